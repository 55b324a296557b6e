// Package auth authenticates requests with HS256 bearer tokens and exposes the
// caller's identity to handlers.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
)

const identityKey = "identity"

// ErrNoSecret is returned when tokens would be signed or checked with an empty
// key, which anyone could forge.
var ErrNoSecret = errors.New("jwt secret is empty")

// Claims carries the identity. Tokens from the account service put the id in
// user_id; sub is accepted as well.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for id. Used by seeding and tests.
func Issue(secret string, id accounts.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		UserID: id.AccountID,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse validates a token and returns the identity it carries.
func Parse(secret, token string) (accounts.Identity, error) {
	if secret == "" {
		return accounts.Identity{}, ErrNoSecret
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return accounts.Identity{}, err
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return accounts.Identity{}, errors.New("token has no subject")
	}
	role := strings.ToUpper(claims.Role)
	if role == "" {
		role = accounts.RoleCustomer
	}
	return accounts.Identity{AccountID: id, Email: claims.Email, Role: role}, nil
}

// Middleware rejects requests without a valid bearer token.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			// browsers cannot set headers on a websocket handshake
			token, ok = c.GetQuery("token")
		}
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}
		id, err := Parse(secret, strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token."})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireStaff must run after Middleware.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := IdentityFrom(c); !ok || !id.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
			return
		}
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (accounts.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return accounts.Identity{}, false
	}
	id, ok := v.(accounts.Identity)
	return id, ok
}

// MustIdentity is for handlers mounted behind Middleware.
func MustIdentity(c *gin.Context) accounts.Identity {
	id, ok := IdentityFrom(c)
	if !ok {
		panic(fmt.Sprintf("auth: no identity on %s %s", c.Request.Method, c.FullPath()))
	}
	return id
}
