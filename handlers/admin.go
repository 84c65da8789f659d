package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stocks-trader/ledger"
	"stocks-trader/models"
)

type userView struct {
	Username  string          `json:"username"`
	Role      models.Role     `json:"role"`
	Balance   decimal.Decimal `json:"balance"`
	Holdings  int             `json:"holdings"`
	CreatedAt string          `json:"created_at"`
}

func newUserView(u *models.User) userView {
	return userView{
		Username:  u.Username,
		Role:      u.Type,
		Balance:   u.Balance,
		Holdings:  len(u.Holdings),
		CreatedAt: u.CreatedAt.String(),
	}
}

type AddUserInput struct {
	Username       string           `json:"username" binding:"required"`
	Password       string           `json:"password" binding:"required"`
	Role           string           `json:"role"`
	InitialBalance *decimal.Decimal `json:"initial_balance"`
}

type UpdateUserInput struct {
	Password *string          `json:"password"`
	Role     *string          `json:"role"`
	Balance  *decimal.Decimal `json:"balance"`
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Ledger.ListUsers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, newUserView(u))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) AddUser(c *gin.Context) {
	var input AddUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := models.RoleUser
	if input.Role != "" {
		var err error
		if role, err = models.ParseRole(input.Role); err != nil {
			abortWithError(c, err)
			return
		}
	}
	balance := ledger.DefaultInitialBalance
	if input.InitialBalance != nil {
		balance = *input.InitialBalance
	}

	user, err := h.Ledger.AddUser(c.Request.Context(), input.Username, input.Password, role, balance)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUserView(user))
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var input UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	update := ledger.UserUpdate{Password: input.Password, Balance: input.Balance}
	if input.Role != nil {
		role, err := models.ParseRole(*input.Role)
		if err != nil {
			abortWithError(c, err)
			return
		}
		update.Role = &role
	}

	user, err := h.Ledger.UpdateUser(c.Request.Context(), c.Param("username"), update)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.Ledger.DeleteUser(c.Request.Context(), c.Param("username")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (h *Handler) GetUserTransactions(c *gin.Context) {
	h.writeTransactions(c, c.Param("username"))
}

func (h *Handler) Statistics(c *gin.Context) {
	st, err := h.Ledger.Statistics(c.Request.Context(), h.Currency)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
