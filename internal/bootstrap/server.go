package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/slotcart/api"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter mounts the cart API under /api/v1/cart behind auth and an unauthenticated /healthz.
func NewRouter(auth gin.HandlerFunc, cart *api.CartHandler, checks ...HealthCheck) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", healthz(checks))

	v1 := router.Group("/api/v1", auth)
	cart.Register(v1.Group("/cart"))

	return router
}

func healthz(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		code := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				code = http.StatusServiceUnavailable
				results[hc.Name] = err.Error()
				continue
			}
			results[hc.Name] = "ok"
		}
		c.JSON(code, gin.H{"status": http.StatusText(code), "checks": results})
	}
}

// Run serves handler on addr and blocks until ctx is canceled or the server fails.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
