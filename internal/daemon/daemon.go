package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lockup-labs/lockup/internal/api"
	"github.com/lockup-labs/lockup/internal/app/accounting"
	"github.com/lockup-labs/lockup/internal/app/keyring"
	"github.com/lockup-labs/lockup/internal/app/ledger"
	"github.com/lockup-labs/lockup/internal/app/lifecycle"
	"github.com/lockup-labs/lockup/internal/app/notify"
	"github.com/lockup-labs/lockup/internal/app/pinning"
	"github.com/lockup-labs/lockup/internal/app/reward"
	"github.com/lockup-labs/lockup/internal/app/timeline"
	"github.com/lockup-labs/lockup/internal/app/voting"
	"github.com/lockup-labs/lockup/internal/infra/metrics"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// Daemon is the core Lockup runtime. It wires the engine services together
// and drives the periodic sweeps.
type Daemon struct {
	Config Config
	DB     *sqlite.DB
	Server *api.Server

	Lifecycle  *lifecycle.Service
	Accounting *accounting.Service
	Voting     *voting.Service
	Reward     *reward.Service
	Pinning    *pinning.Service

	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	db, err := sqlite.Open(lockupHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	acct := accounting.NewService(db)
	if cfg.Economy.FreezeFee > 0 {
		acct.FreezeFee = cfg.Economy.FreezeFee
	}
	if cfg.Economy.UnfreezeFee > 0 {
		acct.UnfreezeFee = cfg.Economy.UnfreezeFee
	}

	d := &Daemon{
		Config:     cfg,
		DB:         db,
		Lifecycle:  lifecycle.NewService(db),
		Accounting: acct,
		Voting:     voting.NewService(db),
		Reward:     reward.NewService(db),
		Pinning:    pinning.NewService(db),
	}

	srv := &api.Server{
		Lifecycle:  d.Lifecycle,
		Accounting: d.Accounting,
		Voting:     d.Voting,
		Reward:     d.Reward,
		Pinning:    d.Pinning,
		Timeline:   timeline.NewService(db),
		Keyring:    keyring.NewService(db),
		Ledger:     ledger.NewService(db),
		Notify:     notify.NewService(db),
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// Serve starts the HTTP server and sweep tickers and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.runSweep(ctx, "rewards", d.Config.Sweeps.RewardInterval, func() error {
		_, err := d.Reward.ProcessHourly()
		return err
	})
	go d.runSweep(ctx, "votes", d.Config.Sweeps.VoteInterval, func() error {
		_, err := d.Voting.ResolveDue()
		return err
	})
	go d.runSweep(ctx, "pins", d.Config.Sweeps.PinInterval, func() error {
		_, err := d.Pinning.UpdateQueue()
		return err
	})
	go d.runSweep(ctx, "boards", d.Config.Sweeps.BoardInterval, func() error {
		_, err := d.Lifecycle.SettleDue()
		return err
	})

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("Lockup serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop triggers a graceful shutdown.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// runSweep invokes fn every interval seconds until the context ends.
// Sweep failures are logged, never surfaced to users.
func (d *Daemon) runSweep(ctx context.Context, name string, intervalSec int, fn func() error) {
	if intervalSec <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := fn(); err != nil {
				log.Printf("[daemon] sweep %s: %v", name, err)
				metrics.SweepErrors.WithLabelValues(name).Inc()
			}
			metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}
}
