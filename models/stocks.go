package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument is a cached quote, stored in the instruments collection keyed by
// its exchange-qualified code (e.g. "sh.600000").
type Instrument struct {
	Code   string          `json:"-"`
	Name   string          `json:"name" validate:"required"`
	Price  decimal.Decimal `json:"price"`
	Change decimal.Decimal `json:"change"` // percent, signed, relative to prior close
}

func (i *Instrument) Validate() error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("instrument %q: %w", i.Code, err)
	}
	if i.Price.IsNegative() {
		return fmt.Errorf("instrument %q: price %s: %w", i.Code, i.Price, ErrInvalidAmount)
	}
	return nil
}

func (i *Instrument) SetKey(key string) { i.Code = key }
