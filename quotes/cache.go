// Package quotes owns the cached instrument quotes: the store-backed cache,
// the percent-change reconciliation policy and the external quote feed.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"stocks-trader/database"
	"stocks-trader/models"
)

// Update is a full quote write. An empty Name keeps the cached name.
type Update struct {
	Name   string
	Price  decimal.Decimal
	Change decimal.Decimal
}

// Fields is a partial quote edit; nil fields are left unchanged.
type Fields struct {
	Name   *string          `json:"name"`
	Price  *decimal.Decimal `json:"price"`
	Change *decimal.Decimal `json:"change"`
}

// Cache maps instrument codes to quotes. The store is authoritative; redis,
// when configured, mirrors single-instrument reads.
type Cache struct {
	store database.Store
	locks *database.KeyedMutex
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCache returns a cache over store. rdb may be nil.
func NewCache(store database.Store, rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		store: store,
		locks: database.NewKeyedMutex(),
		rdb:   rdb,
		ttl:   ttl,
	}
}

func mirrorKey(code string) string {
	return fmt.Sprintf("stock:%s:quote", code)
}

// List returns every cached quote, or the store error.
func (c *Cache) List(ctx context.Context) (map[string]*models.Instrument, error) {
	return database.ListDocs[models.Instrument](ctx, c.store, database.Instruments)
}

// GetAll returns every cached quote. A failing store read degrades to an
// empty mapping; use List when absence and failure must be told apart.
func (c *Cache) GetAll(ctx context.Context) map[string]*models.Instrument {
	all, err := c.List(ctx)
	if err != nil {
		log.WithError(err).Warn("quotes: reading instruments failed, serving empty set")
		return map[string]*models.Instrument{}
	}
	return all
}

// Get returns one quote, or models.ErrNotFound.
func (c *Cache) Get(ctx context.Context, code string) (*models.Instrument, error) {
	if inst, ok := c.mirrorGet(ctx, code); ok {
		return inst, nil
	}
	// populate the mirror under the write lock so a concurrent Apply cannot
	// be overwritten with the older value
	if c.rdb != nil {
		unlock := c.locks.Lock(code)
		defer unlock()
	}
	var inst models.Instrument
	if err := c.store.Get(ctx, database.Instruments, code, &inst); err != nil {
		return nil, fmt.Errorf("instrument %q: %w", code, err)
	}
	c.mirrorSet(ctx, &inst)
	return &inst, nil
}

// Upsert writes price and change for code, creating the instrument when it
// is unknown. No reconciliation happens here.
func (c *Cache) Upsert(ctx context.Context, code string, u Update) (*models.Instrument, error) {
	return c.Apply(ctx, code, func(*models.Instrument) (Update, error) {
		return u, nil
	})
}

// Patch applies a partial edit, creating the instrument when it is unknown.
func (c *Cache) Patch(ctx context.Context, code string, f Fields) (*models.Instrument, error) {
	return c.Apply(ctx, code, func(cur *models.Instrument) (Update, error) {
		u := Update{}
		if cur != nil {
			u.Price, u.Change = cur.Price, cur.Change
		}
		if f.Name != nil {
			u.Name = *f.Name
		}
		if f.Price != nil {
			u.Price = *f.Price
		}
		if f.Change != nil {
			u.Change = *f.Change
		}
		return u, nil
	})
}

// Apply computes an update from the current quote (nil when unknown) and
// writes it, holding the instrument's lock across the read and the write.
// Writes that change nothing are skipped.
func (c *Cache) Apply(ctx context.Context, code string, fn func(cur *models.Instrument) (Update, error)) (*models.Instrument, error) {
	if code == "" {
		return nil, fmt.Errorf("instrument code: %w", models.ErrNotFound)
	}
	unlock := c.locks.Lock(code)
	defer unlock()

	var cur *models.Instrument
	var stored models.Instrument
	err := c.store.Get(ctx, database.Instruments, code, &stored)
	switch {
	case err == nil:
		cur = &stored
	case errors.Is(err, models.ErrNotFound):
	default:
		return nil, fmt.Errorf("instrument %q: %w", code, err)
	}

	u, err := fn(cur)
	if err != nil {
		return nil, err
	}

	next := &models.Instrument{Code: code, Name: u.Name, Price: u.Price, Change: u.Change}
	if next.Name == "" {
		next.Name = code
		if cur != nil {
			next.Name = cur.Name
		}
	}
	if cur != nil && cur.Name == next.Name && cur.Price.Equal(next.Price) && cur.Change.Equal(next.Change) {
		return cur, nil
	}

	// the mirror must not outlive the stored quote it copies
	if err := c.mirrorDel(ctx, code); err != nil {
		return nil, fmt.Errorf("instrument %q: invalidate mirror: %w", code, err)
	}
	if err := c.store.Put(ctx, database.Instruments, code, next); err != nil {
		return nil, fmt.Errorf("instrument %q: %w", code, err)
	}
	c.mirrorSet(ctx, next)
	log.Debugf("quotes: %s price %s change %s%%", code, next.Price, next.Change)
	return next, nil
}

// Search matches keyword against codes and names, case-insensitively.
func (c *Cache) Search(ctx context.Context, keyword string) []*models.Instrument {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	var out []*models.Instrument
	for code, inst := range c.GetAll(ctx) {
		if strings.Contains(strings.ToLower(code), keyword) || strings.Contains(strings.ToLower(inst.Name), keyword) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (c *Cache) mirrorGet(ctx context.Context, code string) (*models.Instrument, bool) {
	if c.rdb == nil {
		return nil, false
	}
	body, err := c.rdb.Get(ctx, mirrorKey(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).Warnf("quotes: redis get %s", code)
		}
		return nil, false
	}
	var inst models.Instrument
	if err := json.Unmarshal(body, &inst); err != nil {
		log.WithError(err).Warnf("quotes: bad mirror entry for %s", code)
		return nil, false
	}
	inst.Code = code
	return &inst, true
}

func (c *Cache) mirrorSet(ctx context.Context, inst *models.Instrument) {
	if c.rdb == nil {
		return
	}
	body, err := json.Marshal(inst)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, mirrorKey(inst.Code), body, c.ttl).Err(); err != nil {
		log.WithError(err).Warnf("quotes: redis set %s", inst.Code)
	}
}

func (c *Cache) mirrorDel(ctx context.Context, code string) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, mirrorKey(code)).Err(); err != nil {
		log.WithError(err).Warnf("quotes: redis del %s", code)
		return err
	}
	return nil
}
