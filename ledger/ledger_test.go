package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"stocks-trader/database"
	"stocks-trader/models"
	"stocks-trader/quotes"
)

var now = time.Date(2025, 5, 6, 9, 30, 0, 0, time.Local)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store  database.Store
	cache  *quotes.Cache
	ledger *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"), logger.Silent)
	require.NoError(t, err)
	store, err := database.NewGormStore(db, database.RetryPolicy{MaxRetries: 0})
	require.NoError(t, err)
	require.NoError(t, database.Seed(ctx, store, now))

	cache := quotes.NewCache(store, nil, 0)
	l := New(store, cache)
	l.now = func() time.Time { return now }
	return &fixture{store: store, cache: cache, ledger: l}
}

func (f *fixture) setPrice(t *testing.T, code, price string) {
	t.Helper()
	_, err := f.cache.Upsert(context.Background(), code, quotes.Update{Price: d(price), Change: decimal.Zero})
	require.NoError(t, err)
}

func (f *fixture) user(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := f.ledger.GetUser(context.Background(), username)
	require.NoError(t, err)
	return u
}

func TestExecuteTrade_BuyThenPartialSell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, err := f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sh.600000", 100)
	require.NoError(t, err)
	assert.Equal(t, "浦发银行", rec.StockName)
	assert.True(t, rec.Amount.Equal(d("1171")))

	u := f.user(t, "user")
	assert.Equal(t, "98829.00", u.Balance.StringFixed(2))
	h, ok := u.Holding("sh.600000")
	require.True(t, ok)
	assert.Equal(t, int64(100), h.Quantity)
	assert.True(t, h.Cost.Equal(d("11.71")))

	f.setPrice(t, "sh.600000", "12.00")
	_, err = f.ledger.ExecuteTrade(ctx, "user", models.Sell, "sh.600000", 40)
	require.NoError(t, err)

	u = f.user(t, "user")
	assert.Equal(t, "99309.00", u.Balance.StringFixed(2))
	h, ok = u.Holding("sh.600000")
	require.True(t, ok)
	assert.Equal(t, int64(60), h.Quantity)
	assert.True(t, h.Cost.Equal(d("11.71")), "a sell leaves the cost basis unchanged")

	records, err := f.ledger.Transactions(ctx, "user")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.Buy, records[0].Type)
	assert.Equal(t, models.Sell, records[1].Type)
	assert.True(t, records[1].Price.Equal(d("12")))
	assert.True(t, records[1].Amount.Equal(d("480")))
	assert.Equal(t, "user", records[1].Username)
	assert.Equal(t, "2025-05-06 09:30:00", records[1].Timestamp.String())
}

func TestExecuteTrade_FullSellRemovesHolding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sz.000002", 10)
	require.NoError(t, err)
	_, err = f.ledger.ExecuteTrade(ctx, "user", models.Sell, "sz.000002", 10)
	require.NoError(t, err)

	u := f.user(t, "user")
	_, ok := u.Holdings["sz.000002"]
	assert.False(t, ok)
	assert.True(t, u.Balance.Equal(d("100000")))

	// re-buying starts a fresh average
	f.setPrice(t, "sz.000002", "7.00")
	_, err = f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sz.000002", 10)
	require.NoError(t, err)
	h, _ := f.user(t, "user").Holding("sz.000002")
	assert.True(t, h.Cost.Equal(d("7")))
}

func TestExecuteTrade_WeightedAverageCost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	buys := []struct {
		price string
		qty   int64
	}{
		{"10.00", 100},
		{"12.50", 300},
		{"9.37", 7},
		{"11.11", 1},
	}
	spent := decimal.Zero
	var held int64
	for _, b := range buys {
		f.setPrice(t, "sh.601398", b.price)
		_, err := f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sh.601398", b.qty)
		require.NoError(t, err)
		spent = spent.Add(d(b.price).Mul(decimal.NewFromInt(b.qty)))
		held += b.qty
	}

	h, ok := f.user(t, "user").Holding("sh.601398")
	require.True(t, ok)
	assert.Equal(t, held, h.Quantity)
	want := spent.Div(decimal.NewFromInt(held))
	assert.True(t, h.Cost.Sub(want).Abs().LessThan(d("0.000000001")), "cost %s, want %s", h.Cost, want)
}

func TestExecuteTrade_ConservesValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	trades := []struct {
		side  models.Side
		code  string
		qty   int64
		price string
	}{
		{models.Buy, "sh.600000", 100, "11.71"},
		{models.Buy, "sz.000001", 50, "11.16"},
		{models.Sell, "sh.600000", 30, "12.02"},
		{models.Buy, "sh.600000", 5, "11.50"},
		{models.Sell, "sz.000001", 50, "10.90"},
	}

	worth := func() decimal.Decimal {
		u := f.user(t, "user")
		all := f.cache.GetAll(ctx)
		return u.Balance.Add(u.HoldingsValue(func(code string) (decimal.Decimal, bool) {
			inst, ok := all[code]
			if !ok {
				return decimal.Zero, false
			}
			return inst.Price, true
		}))
	}

	for _, tr := range trades {
		f.setPrice(t, tr.code, tr.price)
		before := worth()
		_, err := f.ledger.ExecuteTrade(ctx, "user", tr.side, tr.code, tr.qty)
		require.NoError(t, err)
		assert.True(t, worth().Equal(before), "%s %d %s changed value at execution price", tr.side, tr.qty, tr.code)
	}
}

func TestExecuteTrade_RejectionsMutateNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sh.600000", 10)
	require.NoError(t, err)
	before := f.user(t, "user")

	testCases := []struct {
		name    string
		user    string
		side    models.Side
		code    string
		qty     int64
		wantErr error
	}{
		{"buy over balance", "user", models.Buy, "sh.000001", 1000, models.ErrInsufficientFunds},
		{"sell over holding", "user", models.Sell, "sh.600000", 11, models.ErrInsufficientHoldings},
		{"sell without holding", "user", models.Sell, "sz.000001", 1, models.ErrInsufficientHoldings},
		{"zero quantity", "user", models.Buy, "sh.600000", 0, models.ErrInvalidQuantity},
		{"negative quantity", "user", models.Sell, "sh.600000", -5, models.ErrInvalidQuantity},
		{"bad side", "user", models.Side("short"), "sh.600000", 1, models.ErrInvalidSide},
		{"unknown user", "ghost", models.Buy, "sh.600000", 1, models.ErrNotFound},
		{"unknown instrument", "user", models.Buy, "sh.999999", 1, models.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.ExecuteTrade(ctx, tc.user, tc.side, tc.code, tc.qty)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	after := f.user(t, "user")
	assert.True(t, after.Balance.Equal(before.Balance))
	assert.Equal(t, before.Holdings, after.Holdings)
	records, err := f.ledger.Transactions(ctx, "user")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// failingStore fails every write to one collection inside transactions.
type failingStore struct {
	database.Store
	failOn database.Collection
}

func (s *failingStore) Put(ctx context.Context, c database.Collection, key string, doc any) error {
	if c == s.failOn {
		return fmt.Errorf("%w: disk full", database.ErrIO)
	}
	return s.Store.Put(ctx, c, key, doc)
}

func (s *failingStore) Update(ctx context.Context, fn func(tx database.Store) error) error {
	return s.Store.Update(ctx, func(tx database.Store) error {
		return fn(&failingStore{Store: tx, failOn: s.failOn})
	})
}

func TestExecuteTrade_HoldingOverflowIsInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setPrice(t, "sz.000002", "0")

	_, err := f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sz.000002", math.MaxInt64)
	require.NoError(t, err)

	_, err = f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sz.000002", 1)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	assert.NotErrorIs(t, err, models.ErrTradeFailed)

	h, ok := f.user(t, "user").Holding("sz.000002")
	require.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), h.Quantity)
	records, err := f.ledger.Transactions(ctx, "user")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExecuteTrade_LogFailureRollsBackAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	broken := New(&failingStore{Store: f.store, failOn: database.Transactions}, f.cache)

	_, err := broken.ExecuteTrade(ctx, "user", models.Buy, "sh.600000", 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTradeFailed)
	assert.ErrorIs(t, err, database.ErrIO)

	u := f.user(t, "user")
	assert.True(t, u.Balance.Equal(d("100000")), "balance must not be debited without a log record")
	assert.Empty(t, u.Holdings)

	records, err := f.ledger.Transactions(ctx, "user")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecuteTrade_ConcurrentDistinctUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ledger.AddUser(ctx, "alice", "pw", models.RoleUser, d("10000"))
	require.NoError(t, err)
	_, err = f.ledger.AddUser(ctx, "bob", "pw", models.RoleUser, d("10000"))
	require.NoError(t, err)
	f.setPrice(t, "sh.600000", "10")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := f.ledger.ExecuteTrade(ctx, name, models.Buy, "sh.600000", 100)
			errs <- err
		}(name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, name := range []string{"alice", "bob"} {
		u := f.user(t, name)
		assert.True(t, u.Balance.Equal(d("9000")), name)
		assert.Equal(t, int64(100), u.Holdings["sh.600000"].Quantity, name)
	}
}

func TestExecuteTrade_ConcurrentSameUserSerializes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setPrice(t, "sh.600000", "10")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sh.600000", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u := f.user(t, "user")
	assert.True(t, u.Balance.Equal(d("98000")), "balance %s", u.Balance)
	assert.Equal(t, int64(n*10), u.Holdings["sh.600000"].Quantity)

	records, err := f.ledger.Transactions(ctx, "user")
	require.NoError(t, err)
	assert.Len(t, records, n)
}

func TestExecuteTrade_ConcurrentWithAdminEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setPrice(t, "sh.600000", "10")
	role := models.RoleAdmin

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.ledger.ExecuteTrade(ctx, "user", models.Buy, "sh.600000", 10)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.ledger.UpdateUser(ctx, "user", UserUpdate{Role: &role})
		assert.NoError(t, err)
	}()
	wg.Wait()

	u := f.user(t, "user")
	assert.Equal(t, models.RoleAdmin, u.Type)
	assert.Equal(t, int64(10), u.Holdings["sh.600000"].Quantity)
	assert.True(t, u.Balance.Equal(d("99900")))
}

func TestTransactionLog_Append(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txlog := f.ledger.Log()

	for i := 1; i <= 3; i++ {
		require.NoError(t, txlog.Append(ctx, "audit", models.Transaction{
			Username:  "audit",
			Type:      models.Buy,
			StockCode: "sh.600000",
			Price:     d("1"),
			Quantity:  int64(i),
			Amount:    decimal.NewFromInt(int64(i)),
			Timestamp: models.NewTimestamp(now),
		}))
	}
	records, err := txlog.ReadAll(ctx, "audit")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.Quantity)
	}

	err = txlog.Append(ctx, "audit", models.Transaction{Username: "audit", Type: "hold", StockCode: "x", Quantity: 1})
	assert.True(t, errors.Is(err, database.ErrInvalidDocument))
}
