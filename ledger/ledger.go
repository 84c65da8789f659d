// Package ledger owns user balances and holdings. ExecuteTrade is the only
// operation that changes either; it writes the account and appends the
// transaction record in one store transaction, under a per-user lock.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"stocks-trader/database"
	"stocks-trader/models"
	"stocks-trader/quotes"
)

// Ledger executes trades and manages accounts.
type Ledger struct {
	store  database.Store
	quotes *quotes.Cache
	txlog  *TransactionLog
	locks  *database.KeyedMutex
	now    func() time.Time
}

// New returns a ledger reading prices from cache. The ledger's per-user
// locks are independent of the cache's instrument locks.
func New(store database.Store, cache *quotes.Cache) *Ledger {
	locks := database.NewKeyedMutex()
	return &Ledger{
		store:  store,
		quotes: cache,
		txlog:  newTransactionLog(store, locks),
		locks:  locks,
		now:    time.Now,
	}
}

// Log returns the transaction log shared with the ledger.
func (l *Ledger) Log() *TransactionLog {
	return l.txlog
}

// ExecuteTrade buys or sells quantity units of code for username at the
// cached price and returns the appended record.
//
// Validation failures, insufficient funds or holdings change nothing. A
// storage failure while writing returns models.ErrTradeFailed and leaves both
// the account and the log untouched.
func (l *Ledger) ExecuteTrade(ctx context.Context, username string, side models.Side, code string, quantity int64) (*models.Transaction, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidQuantity, quantity)
	}
	if side != models.Buy && side != models.Sell {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidSide, side)
	}

	unlock := l.locks.Lock(username)
	defer unlock()

	var user models.User
	if err := l.store.Get(ctx, database.Users, username, &user); err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	inst, err := l.quotes.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	next, record, err := applyTrade(&user, inst, side, quantity, l.now())
	if err != nil {
		log.Debugf("ledger: %s %s %d %s rejected: %v", username, side, quantity, code, err)
		return nil, err
	}

	// past this point the trade runs to completion or not at all
	ctx = context.WithoutCancel(ctx)
	err = l.store.Update(ctx, func(tx database.Store) error {
		if err := tx.Put(ctx, database.Users, username, next); err != nil {
			return err
		}
		return appendTo(ctx, tx, username, record)
	})
	if err != nil {
		log.WithError(err).Errorf("ledger: %s %s %d %s failed", username, side, quantity, code)
		return nil, fmt.Errorf("%w: %w", models.ErrTradeFailed, err)
	}

	log.Infof("ledger: %s %s %d %s @ %s = %s, balance %s",
		username, side, quantity, code, record.Price, record.Amount, next.Balance)
	return &record, nil
}

// applyTrade computes the account after the trade on a copy of user.
func applyTrade(user *models.User, inst *models.Instrument, side models.Side, quantity int64, now time.Time) (*models.User, models.Transaction, error) {
	qty := decimal.NewFromInt(quantity)
	amount := inst.Price.Mul(qty)
	next := user.Clone()

	switch side {
	case models.Buy:
		if next.Balance.LessThan(amount) {
			return nil, models.Transaction{}, fmt.Errorf("%w: need %s, have %s", models.ErrInsufficientFunds, amount, next.Balance)
		}
		next.Balance = next.Balance.Sub(amount)

		h := next.Holdings[inst.Code]
		if h.Quantity > math.MaxInt64-quantity {
			return nil, models.Transaction{}, fmt.Errorf("%w: holding %d of %s cannot grow by %d", models.ErrInvalidQuantity, h.Quantity, inst.Code, quantity)
		}
		newQuantity := h.Quantity + quantity
		h.Cost = h.Cost.Mul(decimal.NewFromInt(h.Quantity)).Add(amount).Div(decimal.NewFromInt(newQuantity))
		h.Quantity = newQuantity
		h.Code, h.Name = inst.Code, inst.Name
		next.Holdings[inst.Code] = h

	case models.Sell:
		h, ok := next.Holdings[inst.Code]
		if !ok || h.Quantity < quantity {
			return nil, models.Transaction{}, fmt.Errorf("%w: want %d of %s, hold %d", models.ErrInsufficientHoldings, quantity, inst.Code, h.Quantity)
		}
		next.Balance = next.Balance.Add(amount)

		h.Quantity -= quantity
		if h.Quantity == 0 {
			// a later buy starts a fresh average
			delete(next.Holdings, inst.Code)
		} else {
			h.Name = inst.Name
			next.Holdings[inst.Code] = h
		}

	default:
		return nil, models.Transaction{}, fmt.Errorf("%w: %q", models.ErrInvalidSide, side)
	}

	record := models.Transaction{
		ID:        uuid.New(),
		Username:  user.Username,
		Type:      side,
		StockCode: inst.Code,
		StockName: inst.Name,
		Price:     inst.Price,
		Quantity:  quantity,
		Amount:    amount,
		Timestamp: models.NewTimestamp(now),
	}
	return next, record, nil
}
