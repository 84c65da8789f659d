package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"stocks-trader/middleware"
	"stocks-trader/models"
)

type AuthInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshInput struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func refreshKey(token string) string {
	return "refresh:" + token
}

func (h *Handler) Signup(c *gin.Context) {
	var input AuthInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Ledger.Register(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "username": user.Username})
}

func (h *Handler) Login(c *gin.Context) {
	var input AuthInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.Ledger.Authenticate(ctx, input.Username, input.Password)
	if errors.Is(err, models.ErrDenied) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	accessToken, err := middleware.IssueToken(h.Secret, user.Username, user.Type, middleware.AccessToken, h.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error generating token", "details": err.Error()})
		return
	}
	resp := gin.H{
		"access_token": accessToken,
		"username":     user.Username,
		"role":         user.Type,
	}

	if h.Redis != nil {
		refreshToken, err := middleware.IssueToken(h.Secret, user.Username, user.Type, middleware.RefreshToken, h.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error generating refresh token", "details": err.Error()})
			return
		}
		if err := h.Redis.Set(ctx, refreshKey(refreshToken), user.Username, h.RefreshTTL).Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error storing refresh token", "details": err.Error()})
			return
		}
		resp["refresh_token"] = refreshToken
	}

	c.JSON(http.StatusOK, resp)
}

// Refresh trades a stored refresh token for a new access token. The role is
// re-read so demoted admins lose their rights on refresh.
func (h *Handler) Refresh(c *gin.Context) {
	if h.Redis == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Refresh tokens are disabled"})
		return
	}
	var input RefreshInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := middleware.ParseToken(h.Secret, input.RefreshToken, middleware.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token", "details": err.Error()})
		return
	}
	ctx := c.Request.Context()
	username, err := h.Redis.Get(ctx, refreshKey(input.RefreshToken)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && username != claims.Username) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token revoked"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error reading refresh token", "details": err.Error()})
		return
	}

	user, err := h.Ledger.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.Redis.Del(ctx, refreshKey(input.RefreshToken))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists"})
			return
		}
		abortWithError(c, err)
		return
	}

	accessToken, err := middleware.IssueToken(h.Secret, user.Username, user.Type, middleware.AccessToken, h.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error generating token", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": accessToken})
}
