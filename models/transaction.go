package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// Transaction is one executed trade. It is immutable once appended.
type Transaction struct {
	ID        uuid.UUID       `json:"id" csv:"id"`
	Username  string          `json:"username" csv:"username" validate:"required"`
	Type      Side            `json:"type" csv:"type" validate:"oneof=buy sell"`
	StockCode string          `json:"stock_code" csv:"stock_code" validate:"required"`
	StockName string          `json:"stock_name" csv:"stock_name"`
	Price     decimal.Decimal `json:"price" csv:"price"`
	Quantity  int64           `json:"quantity" csv:"quantity" validate:"gt=0"`
	Amount    decimal.Decimal `json:"amount" csv:"amount"`
	Timestamp Timestamp       `json:"timestamp" csv:"timestamp"`
}

// SignedAmount is the cash effect of the trade on the balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == Buy {
		return t.Amount.Neg()
	}
	return t.Amount
}

// TransactionLog is the document stored per user in the transactions
// collection, oldest record first.
type TransactionLog []Transaction

func (l TransactionLog) Validate() error {
	for i := range l {
		if err := validate.Struct(&l[i]); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}
