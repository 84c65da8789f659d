package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"stocks-trader/middleware"
	"stocks-trader/models"
)

type TradeInput struct {
	Side     string `json:"side" binding:"required"`
	Code     string `json:"code" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required"`
}

type holdingView struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Quantity     int64           `json:"quantity"`
	Cost         decimal.Decimal `json:"cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	ProfitLoss   decimal.Decimal `json:"profit_loss"`
}

func (h *Handler) ExecuteTrade(c *gin.Context) {
	var input TradeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := models.ParseSide(input.Side)
	if err != nil {
		abortWithError(c, err)
		return
	}

	username := c.GetString(middleware.UsernameKey)
	record, err := h.Ledger.ExecuteTrade(c.Request.Context(), username, side, input.Code, input.Quantity)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.Ledger.GetUser(ctx, c.GetString(middleware.UsernameKey))
	if err != nil {
		abortWithError(c, err)
		return
	}
	instruments := h.Quotes.GetAll(ctx)

	holdings := make([]holdingView, 0, len(user.Holdings))
	total := decimal.Zero
	for code, held := range user.Holdings {
		qty := decimal.NewFromInt(held.Quantity)
		v := holdingView{Code: code, Name: held.Name, Quantity: held.Quantity, Cost: held.Cost}
		if inst, ok := instruments[code]; ok {
			v.CurrentPrice = inst.Price
			v.MarketValue = inst.Price.Mul(qty)
			v.ProfitLoss = inst.Price.Sub(held.Cost).Mul(qty)
		}
		total = total.Add(v.MarketValue)
		holdings = append(holdings, v)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Code < holdings[j].Code })

	c.JSON(http.StatusOK, gin.H{
		"username":       user.Username,
		"balance":        user.Balance,
		"holdings":       holdings,
		"holdings_value": total,
		"total_assets":   user.Balance.Add(total),
	})
}

func (h *Handler) GetTransactions(c *gin.Context) {
	h.writeTransactions(c, c.GetString(middleware.UsernameKey))
}

func (h *Handler) writeTransactions(c *gin.Context, username string) {
	records, err := h.Ledger.Transactions(c.Request.Context(), username)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if c.Query("format") == "csv" {
		body, err := gocsv.MarshalBytes(records)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode transactions", "details": err.Error()})
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+username+"_transactions.csv")
		c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
		return
	}
	c.JSON(http.StatusOK, records)
}
