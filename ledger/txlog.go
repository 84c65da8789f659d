package ledger

import (
	"context"
	"errors"
	"fmt"

	"stocks-trader/database"
	"stocks-trader/models"
)

// TransactionLog is the append-only trade history of each user. Records are
// never updated or removed, not even when the user is deleted.
type TransactionLog struct {
	store database.Store
	locks *database.KeyedMutex
}

func newTransactionLog(store database.Store, locks *database.KeyedMutex) *TransactionLog {
	return &TransactionLog{store: store, locks: locks}
}

// Append adds rec at the end of username's log.
func (l *TransactionLog) Append(ctx context.Context, username string, rec models.Transaction) error {
	unlock := l.locks.Lock(username)
	defer unlock()
	return l.store.Update(ctx, func(tx database.Store) error {
		return appendTo(ctx, tx, username, rec)
	})
}

// ReadAll returns username's records, oldest first. A user without trades
// has an empty log.
func (l *TransactionLog) ReadAll(ctx context.Context, username string) (models.TransactionLog, error) {
	return readLog(ctx, l.store, username)
}

func readLog(ctx context.Context, s database.Store, username string) (models.TransactionLog, error) {
	var records models.TransactionLog
	err := s.Get(ctx, database.Transactions, username, &records)
	if errors.Is(err, models.ErrNotFound) {
		return models.TransactionLog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transactions of %q: %w", username, err)
	}
	return records, nil
}

// appendTo must run inside a store transaction while username is locked.
func appendTo(ctx context.Context, tx database.Store, username string, rec models.Transaction) error {
	records, err := readLog(ctx, tx, username)
	if err != nil {
		return err
	}
	records = append(records, rec)
	return tx.Put(ctx, database.Transactions, username, records)
}
