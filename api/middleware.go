package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxOwner = "owner"
	ctxEmail = "email"
)

type Claims struct {
	Sub   string `json:"sub"`
	Org   string `json:"org"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Authenticator checks HS256 bearer tokens issued by the identity service.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) IssueToken(owner domain.OwnerKey, email string, ttl time.Duration) (string, error) {
	claims := Claims{
		Sub:              owner.UserID,
		Org:              owner.OrganizationID,
		Email:            email,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) ParseToken(raw string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Sub == "" || claims.Org == "" {
		return nil, errors.New("token carries no user or organization")
	}
	return claims, nil
}

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			unauthorized(c)
			return
		}
		claims, err := a.ParseToken(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			unauthorized(c)
			return
		}
		c.Set(ctxOwner, domain.OwnerKey{UserID: claims.Sub, OrganizationID: claims.Org})
		c.Set(ctxEmail, claims.Email)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Status: status{Code: http.StatusUnauthorized, Message: http.StatusText(http.StatusUnauthorized)}})
}

func ownerFrom(c *gin.Context) domain.OwnerKey {
	owner, _ := c.Get(ctxOwner)
	key, _ := owner.(domain.OwnerKey)
	return key
}

func emailFrom(c *gin.Context) string {
	return c.GetString(ctxEmail)
}
