package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/repository"
	"github.com/Domenick1991/slotcart/internal/service/checkout"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope wraps every response body.
type envelope struct {
	Data   interface{} `json:"data"`
	Status status      `json:"status"`
}

func respond(c *gin.Context, code int, data interface{}) {
	c.JSON(code, envelope{Data: data, Status: status{Code: code, Message: http.StatusText(code)}})
}

func respondError(c *gin.Context, err error) {
	code, message := classify(err)
	if code == http.StatusInternalServerError {
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(code, envelope{Status: status{Code: code, Message: message}})
}

func classify(err error) (int, string) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.Is(err, domain.ErrCartFull), errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "cart item not found"
	case errors.Is(err, repository.ErrVersionConflict), errors.Is(err, checkout.ErrCheckoutInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, repository.ErrSagaConflict):
		return http.StatusConflict, "checkout was interrupted and is being recovered"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// amount renders money as a JSON number with exactly two decimals.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
