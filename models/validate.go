package models

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Stored documents carry plain JSON numbers, not quoted decimals.
	decimal.MarshalJSONWithoutQuotes = true
}
