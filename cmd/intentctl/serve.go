package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"intentLedger/internal/api"
	"intentLedger/internal/snapshot"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8080", "listen address")
	return cmd
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Snapshot ledger balances and intents into Postgres",
		RunE:  runSync,
	}
	cmd.Flags().StringSlice("account", nil, "accounts to snapshot (comma-separated)")
	cmd.Flags().Int("batch-size", 50, "accounts per database batch")
	cmd.Flags().Duration("interval", 0, "repeat every interval, 0 syncs once")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts per read")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	h := api.NewHandler(a.view, a.ledger, a.cfg.Decimals, a.metrics.Registry(), a.logger)
	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           api.NewRouter(h, a.metrics.Registry()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", zap.String("addr", a.cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info("api shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	if a.store == nil {
		return errors.New("pg-dsn is required")
	}
	if len(a.cfg.Accounts) == 0 {
		return errors.New("account list is required")
	}
	accounts := make([]common.Address, 0, len(a.cfg.Accounts))
	for _, raw := range a.cfg.Accounts {
		account, err := parseAccount(raw)
		if err != nil {
			return err
		}
		accounts = append(accounts, account)
	}
	if err := a.store.EnsureSchema(ctx); err != nil {
		return err
	}

	runner := snapshot.NewRunner(snapshot.RunConfig{
		Accounts:     accounts,
		BatchSize:    a.cfg.BatchSize,
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
		Interval:     a.cfg.Interval,
	}, a.client, a.ledger, a.store, a.logger)

	a.logger.Info("snapshot start",
		zap.Int("accounts", len(accounts)),
		zap.Int("batch_size", a.cfg.BatchSize),
		zap.Duration("interval", a.cfg.Interval),
		zap.String("pg", a.cfg.RedactedDSN()),
	)
	return runner.Run(ctx)
}

