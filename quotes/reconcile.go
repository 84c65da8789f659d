package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"stocks-trader/models"
)

// PriceEpsilon is the largest price move treated as "unchanged".
var PriceEpsilon = decimal.RequireFromString("0.001")

// Observation is a quote read from an external feed.
type Observation struct {
	Code  string
	Price decimal.Decimal
	// Change is the percent change the feed supports, nil when it could not
	// be derived.
	Change *decimal.Decimal
}

// ChangeFromClose derives the percent change from the prior close, rounded
// to two decimals. It reports false when prevClose is not positive.
func ChangeFromClose(price, prevClose decimal.Decimal) (decimal.Decimal, bool) {
	if !prevClose.IsPositive() {
		return decimal.Zero, false
	}
	return price.Sub(prevClose).Div(prevClose).Mul(decimal.NewFromInt(100)).Round(2), true
}

// ResolveChange picks the percent change to cache for an observation.
//
// A known non-zero change survives while the price has not moved; otherwise
// a non-zero observed change wins, and the cached value is kept when the
// feed brings no positive evidence.
func ResolveChange(cached models.Instrument, obs Observation) decimal.Decimal {
	unchanged := obs.Price.Sub(cached.Price).Abs().LessThan(PriceEpsilon)
	if unchanged && !cached.Change.IsZero() {
		return cached.Change
	}
	if obs.Change != nil && !obs.Change.IsZero() {
		return *obs.Change
	}
	return cached.Change
}

// Feed fetches the current quote of one instrument.
type Feed interface {
	Quote(ctx context.Context, code string) (Observation, error)
}

// Reconciler merges feed observations into the cache.
type Reconciler struct {
	cache *Cache
}

func NewReconciler(cache *Cache) *Reconciler {
	return &Reconciler{cache: cache}
}

// Reconcile writes obs into the cache under the retention policy of
// ResolveChange. The instrument must already be cached.
func (r *Reconciler) Reconcile(ctx context.Context, obs Observation) (*models.Instrument, error) {
	if obs.Price.IsNegative() {
		return nil, fmt.Errorf("quote %s: price %s: %w", obs.Code, obs.Price, models.ErrInvalidAmount)
	}
	return r.cache.Apply(ctx, obs.Code, func(cur *models.Instrument) (Update, error) {
		if cur == nil {
			return Update{}, fmt.Errorf("instrument %q: %w", obs.Code, models.ErrNotFound)
		}
		change := ResolveChange(*cur, obs)
		if !change.Equal(cur.Change) || !obs.Price.Equal(cur.Price) {
			log.Infof("quotes: reconciled %s price %s -> %s, change %s%% -> %s%%",
				obs.Code, cur.Price, obs.Price, cur.Change, change)
		}
		return Update{Name: cur.Name, Price: obs.Price, Change: change}, nil
	})
}

// Sync reconciles every cached instrument against feed. A failing instrument
// is logged and reported without stopping the others.
func (r *Reconciler) Sync(ctx context.Context, feed Feed) error {
	all, err := r.cache.List(ctx)
	if err != nil {
		return fmt.Errorf("sync quotes: %w", err)
	}

	var errs error
	for code := range all {
		if err := ctx.Err(); err != nil {
			return errors.Join(errs, err)
		}
		obs, err := feed.Quote(ctx, code)
		if err != nil {
			log.WithError(err).Warnf("quotes: fetch %s failed", code)
			errs = errors.Join(errs, fmt.Errorf("fetch %s: %w", code, err))
			continue
		}
		obs.Code = code
		if _, err := r.Reconcile(ctx, obs); err != nil {
			log.WithError(err).Errorf("quotes: reconcile %s failed", code)
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// Run syncs on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context, feed Feed, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("quotes: refreshing every %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Info("quotes: refresh loop stopped")
			return
		case <-ticker.C:
			if err := r.Sync(ctx, feed); err != nil {
				log.WithError(err).Warn("quotes: sync finished with errors")
			}
		}
	}
}
