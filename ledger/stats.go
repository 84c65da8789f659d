package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/Rhymond/go-money"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"stocks-trader/models"
)

// UserStats summarizes one account for the admin dashboard.
type UserStats struct {
	Username      string          `json:"username"`
	Role          models.Role     `json:"role"`
	Balance       decimal.Decimal `json:"balance"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	TotalAssets   decimal.Decimal `json:"total_assets"`
	Holdings      int             `json:"holdings"`
	Transactions  int             `json:"transactions"`
	TotalDisplay  string          `json:"total_display"`
}

// Statistics aggregates every account and trade.
type Statistics struct {
	Currency          string      `json:"currency"`
	Users             []UserStats `json:"users"`
	TradeCount        int         `json:"trade_count"`
	TradeVolume       string      `json:"trade_volume"`
	MeanTradeAmount   float64     `json:"mean_trade_amount"`
	MedianTradeAmount float64     `json:"median_trade_amount"`
}

// Statistics values every account at the cached prices and counts trades.
func (l *Ledger) Statistics(ctx context.Context, currency string) (*Statistics, error) {
	users, err := l.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	instruments, err := l.quotes.List(ctx)
	if err != nil {
		return nil, err
	}
	price := func(code string) (decimal.Decimal, bool) {
		inst, ok := instruments[code]
		if !ok {
			return decimal.Zero, false
		}
		return inst.Price, true
	}

	out := &Statistics{Currency: currency, Users: make([]UserStats, 0, len(users))}
	var amounts stats.Float64Data
	volume := decimal.Zero
	for _, u := range users {
		records, err := l.txlog.ReadAll(ctx, u.Username)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			amounts = append(amounts, r.Amount.InexactFloat64())
			volume = volume.Add(r.Amount)
		}

		value := u.HoldingsValue(price)
		total := u.Balance.Add(value)
		out.Users = append(out.Users, UserStats{
			Username:      u.Username,
			Role:          u.Type,
			Balance:       u.Balance,
			HoldingsValue: value,
			TotalAssets:   total,
			Holdings:      len(u.Holdings),
			Transactions:  len(records),
			TotalDisplay:  FormatAmount(total, currency),
		})
	}
	sort.SliceStable(out.Users, func(i, j int) bool {
		return out.Users[i].TotalAssets.GreaterThan(out.Users[j].TotalAssets)
	})

	out.TradeCount = len(amounts)
	out.TradeVolume = FormatAmount(volume, currency)
	if len(amounts) > 0 {
		if out.MeanTradeAmount, err = amounts.Mean(); err != nil {
			return nil, fmt.Errorf("mean trade amount: %w", err)
		}
		if out.MedianTradeAmount, err = amounts.Median(); err != nil {
			return nil, fmt.Errorf("median trade amount: %w", err)
		}
	}
	return out, nil
}

// FormatAmount renders amount in currency, e.g. "$98,829.00" for USD.
// Unknown currency codes fall back to "98829.00 XYZ".
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}
