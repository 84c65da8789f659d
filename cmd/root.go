// Package cmd is the command line of the trading simulator.
package cmd

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"stocks-trader/config"
	"stocks-trader/database"
	"stocks-trader/ledger"
	"stocks-trader/quotes"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "stocks-trader",
	Short:         "Simulated stock trading against cached quotes",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		cfg.InitLogger()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, seedCmd, tradeCmd, quotesCmd, usersCmd, transactionsCmd)
}

// Execute runs the command named on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// app holds the components every command shares.
type app struct {
	db         *gorm.DB
	store      *database.GormStore
	redis      *redis.Client
	quotes     *quotes.Cache
	reconciler *quotes.Reconciler
	ledger     *ledger.Ledger
}

func openApp(ctx context.Context) (*app, error) {
	db, store, err := cfg.InitDB()
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	rdb, err := cfg.InitRedis(ctx)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("init redis: %w", err)
	}

	cache := quotes.NewCache(store, rdb, cfg.QuoteCacheTTL)
	return &app{
		db:         db,
		store:      store,
		redis:      rdb,
		quotes:     cache,
		reconciler: quotes.NewReconciler(cache),
		ledger:     ledger.New(store, cache),
	}, nil
}

// feed returns the configured external quote feed, or nil.
func (a *app) feed() quotes.Feed {
	if cfg.AlphaVantageKey == "" {
		return nil
	}
	return quotes.NewAlphaVantage(cfg.AlphaVantageURL, cfg.AlphaVantageKey)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("close redis")
		}
	}
	closeDB(a.db)
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Warn("get database instance")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Warn("close database")
	}
}
