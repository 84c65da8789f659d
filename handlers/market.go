package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stocks-trader/models"
	"stocks-trader/quotes"
)

type stockView struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Change decimal.Decimal `json:"change"`
}

func newStockView(i *models.Instrument) stockView {
	return stockView{Code: i.Code, Name: i.Name, Price: i.Price, Change: i.Change}
}

// ListStocks returns every quote, or the quotes matching ?q=.
func (h *Handler) ListStocks(c *gin.Context) {
	ctx := c.Request.Context()
	var found []*models.Instrument
	if q := c.Query("q"); q != "" {
		found = h.Quotes.Search(ctx, q)
	} else {
		for _, inst := range h.Quotes.GetAll(ctx) {
			found = append(found, inst)
		}
		sort.Slice(found, func(i, j int) bool { return found[i].Code < found[j].Code })
	}

	out := make([]stockView, 0, len(found))
	for _, inst := range found {
		out = append(out, newStockView(inst))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetStock(c *gin.Context) {
	inst, err := h.Quotes.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStockView(inst))
}

// UpdateStock is the administrative quote override.
func (h *Handler) UpdateStock(c *gin.Context) {
	var input quotes.Fields
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inst, err := h.Quotes.Patch(c.Request.Context(), c.Param("code"), input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStockView(inst))
}

// SyncStocks reconciles every quote against the external feed now.
func (h *Handler) SyncStocks(c *gin.Context) {
	if h.Feed == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "No quote feed configured"})
		return
	}
	if err := h.Reconciler.Sync(c.Request.Context(), h.Feed); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Quote sync incomplete", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Quotes synchronized"})
}
