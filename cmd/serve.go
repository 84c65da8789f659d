package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stocks-trader/database"
	"stocks-trader/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Seed the store if empty and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET must be set")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := database.Seed(ctx, a.store, time.Now()); err != nil {
			return fmt.Errorf("seed: %w", err)
		}

		feed := a.feed()
		if feed != nil && cfg.QuoteRefreshInterval > 0 {
			go a.reconciler.Run(ctx, feed, cfg.QuoteRefreshInterval)
		}

		if !log.IsLevelEnabled(log.DebugLevel) {
			gin.SetMode(gin.ReleaseMode)
		}
		h := &handlers.Handler{
			Ledger:     a.ledger,
			Quotes:     a.quotes,
			Reconciler: a.reconciler,
			Feed:       feed,
			Redis:      a.redis,
			Secret:     []byte(cfg.JWTSecret),
			AccessTTL:  cfg.AccessTokenTTL,
			RefreshTTL: cfg.RefreshTokenTTL,
			Currency:   cfg.Currency,
		}
		srv := &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: h.Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			log.Infof("listening on %s", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
