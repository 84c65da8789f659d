package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"stocks-trader/models"
)

type seedAccount struct {
	username string
	password string
	role     models.Role
	balance  float64
}

var seedAccounts = []seedAccount{
	{username: "admin", password: "admin123", role: models.RoleAdmin, balance: 1000000},
	{username: "user", password: "user123", role: models.RoleUser, balance: 100000},
}

// SeedInstruments are the starter quotes written on first bootstrap.
var SeedInstruments = []models.Instrument{
	{Code: "sh.000001", Name: "上证指数", Price: decimal.RequireFromString("3369.24"), Change: decimal.RequireFromString("0.82")},
	{Code: "sh.600000", Name: "浦发银行", Price: decimal.RequireFromString("11.71"), Change: decimal.RequireFromString("0.43")},
	{Code: "sh.601398", Name: "工商银行", Price: decimal.RequireFromString("7.16"), Change: decimal.RequireFromString("-0.28")},
	{Code: "sz.000001", Name: "平安银行", Price: decimal.RequireFromString("11.16"), Change: decimal.RequireFromString("1.73")},
	{Code: "sz.000002", Name: "万科A", Price: decimal.RequireFromString("6.85"), Change: decimal.RequireFromString("-1.15")},
}

type seedMarker struct {
	SeededAt models.Timestamp `json:"seeded_at"`
}

// Seed writes the bootstrap accounts and instruments once. A collection is
// skipped when it was seeded before or already holds documents.
func Seed(ctx context.Context, s Store, now time.Time) error {
	return s.Update(ctx, func(tx Store) error {
		if err := seedCollection(ctx, tx, Users, now, func() error {
			for _, a := range seedAccounts {
				hashed, err := models.HashPassword(a.password)
				if err != nil {
					return err
				}
				u := &models.User{
					Username:  a.username,
					Password:  hashed,
					Type:      a.role,
					Balance:   decimal.NewFromFloat(a.balance),
					Holdings:  map[string]models.Holding{},
					CreatedAt: models.NewTimestamp(now),
				}
				if err := tx.Put(ctx, Users, a.username, u); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		return seedCollection(ctx, tx, Instruments, now, func() error {
			for i := range SeedInstruments {
				inst := SeedInstruments[i]
				if err := tx.Put(ctx, Instruments, inst.Code, &inst); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func seedCollection(ctx context.Context, tx Store, c Collection, now time.Time, write func() error) error {
	var marker seedMarker
	err := tx.Get(ctx, Meta, "seeded:"+string(c), &marker)
	if err == nil {
		log.Debugf("seed: %s already seeded at %s", c, marker.SeededAt)
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("seed %s: %w", c, err)
	}

	existing, err := tx.List(ctx, c)
	if err != nil {
		return fmt.Errorf("seed %s: %w", c, err)
	}
	if len(existing) == 0 {
		if err := write(); err != nil {
			return fmt.Errorf("seed %s: %w", c, err)
		}
		log.Infof("seed: wrote default %s", c)
	}
	return tx.Put(ctx, Meta, "seeded:"+string(c), &seedMarker{SeededAt: models.NewTimestamp(now)})
}
