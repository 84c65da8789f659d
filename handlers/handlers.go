// Package handlers exposes the ledger and the quote cache over HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"stocks-trader/database"
	"stocks-trader/ledger"
	"stocks-trader/middleware"
	"stocks-trader/models"
	"stocks-trader/quotes"
)

// Handler serves the HTTP API.
type Handler struct {
	Ledger     *ledger.Ledger
	Quotes     *quotes.Cache
	Reconciler *quotes.Reconciler
	Feed       quotes.Feed   // nil disables on-demand sync
	Redis      *redis.Client // nil disables refresh tokens

	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Currency   string
}

// Router wires every route.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	// Public routes
	router.POST("/signup", h.Signup)
	router.POST("/login", h.Login)
	router.POST("/refresh", h.Refresh)

	// Protected routes
	auth := router.Group("/")
	auth.Use(middleware.JWTAuth(h.Secret))
	{
		auth.GET("/stocks", h.ListStocks)
		auth.GET("/stocks/:code", h.GetStock)
		auth.GET("/portfolio", h.GetPortfolio)
		auth.POST("/trades", h.ExecuteTrade)
		auth.GET("/transactions", h.GetTransactions)
	}

	admin := router.Group("/admin")
	admin.Use(middleware.JWTAuth(h.Secret), middleware.RequireAdmin(h.currentRole))
	{
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.AddUser)
		admin.PUT("/users/:username", h.UpdateUser)
		admin.DELETE("/users/:username", h.DeleteUser)
		admin.GET("/users/:username/transactions", h.GetUserTransactions)
		admin.PUT("/stocks/:code", h.UpdateStock)
		admin.POST("/stocks/sync", h.SyncStocks)
		admin.GET("/stats", h.Statistics)
	}

	return router
}

func (h *Handler) currentRole(ctx context.Context, username string) (models.Role, error) {
	user, err := h.Ledger.GetUser(ctx, username)
	if err != nil {
		return "", err
	}
	return user.Type, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("http request")
	}
}

// statusOf maps core errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrDenied):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidSide),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrInvalidRole),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, database.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTradeFailed),
		errors.Is(err, database.ErrIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Errorf("%s %s", c.Request.Method, c.FullPath())
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
