package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"stocks-trader/models"
)

// Context keys set by JWTAuth.
const (
	UsernameKey = "username"
	RoleKey     = "role"
)

// Token kinds.
const (
	AccessToken  = "access"
	RefreshToken = "refresh"
)

// Claims are carried by access and refresh tokens.
type Claims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	Kind     string      `json:"kind"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for username valid for ttl.
func IssueToken(secret []byte, username string, role models.Role, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     role,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies an HMAC-signed token of the given kind.
func ParseToken(secret []byte, tokenString, kind string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token expired or invalid")
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("expected %s token, got %q", kind, claims.Kind)
	}
	return claims, nil
}

// JWTAuth rejects requests without a valid bearer access token.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := ParseToken(secret, tokenString, AccessToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token",
				"details": err.Error(),
			})
			return
		}

		c.Set(UsernameKey, claims.Username)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RoleLookup returns the current role of an account.
type RoleLookup func(ctx context.Context, username string) (models.Role, error)

// RequireAdmin must run after JWTAuth. The role is re-read through lookup,
// so a demoted admin loses access before the token expires.
func RequireAdmin(lookup RoleLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(RoleKey)
		if role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
			return
		}

		current, err := lookup(c.Request.Context(), c.GetString(UsernameKey))
		if errors.Is(err, models.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading user", "details": err.Error()})
			return
		}
		if current != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
			return
		}
		c.Next()
	}
}
