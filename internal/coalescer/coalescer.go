// Package coalescer turns bursts of whitelist change signals into a single
// PAC regeneration once the whitelist has been quiet for a full window.
package coalescer

import (
	"context"
	"fmt"
	"time"

	"github.com/jmerrifield20/qpac/internal/artifact"
	"github.com/jmerrifield20/qpac/internal/pac"
	"github.com/jmerrifield20/qpac/internal/whitelist"
	"go.uber.org/zap"
)

// DefaultWindow is the quiet period used when Config.Window is unset.
const DefaultWindow = 150 * time.Millisecond

// Config holds coalescer configuration.
type Config struct {
	// Window is the quiet period that must follow the last signal before a
	// regeneration runs. Every new signal restarts it.
	Window time.Duration
}

// Coalescer owns the regeneration loop. Notify may be called from any
// goroutine; Run must be called exactly once.
type Coalescer struct {
	store   whitelist.Store
	cache   artifact.Cache
	cfg     Config
	signals chan struct{}

	onRegenerate func(pac.Artifact)
	logger       *zap.Logger
}

// New creates a Coalescer that regenerates from store into cache.
func New(store whitelist.Store, cache artifact.Cache, cfg Config, logger *zap.Logger) *Coalescer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Coalescer{
		store:   store,
		cache:   cache,
		cfg:     cfg,
		signals: make(chan struct{}, 1),
		logger:  logger,
	}
}

// SetOnRegenerate registers a callback invoked with every artifact that
// became the latest. Must be called before Run.
func (c *Coalescer) SetOnRegenerate(fn func(pac.Artifact)) {
	c.onRegenerate = fn
}

// Notify records that the whitelist changed. It never blocks: if a signal
// is already queued the new one is folded into it.
func (c *Coalescer) Notify() {
	select {
	case c.signals <- struct{}{}:
		signalsTotal.WithLabelValues("queued").Inc()
	default:
		signalsTotal.WithLabelValues("coalesced").Inc()
	}
}

// Run executes the debounce loop until ctx is cancelled.
//
// idle: waiting for a signal. pending: the quiet timer is armed and is
// restarted by every further signal. When it fires one regeneration pass
// runs and the loop returns to idle. Signals arriving during a pass are
// picked up afterwards and start a new pending period.
func (c *Coalescer) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)

	var fire <-chan time.Time // nil while idle
	for {
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return

		case <-c.signals:
			stopTimer(timer)
			timer.Reset(c.cfg.Window)
			fire = timer.C

		case <-fire:
			fire = nil
			// A pass runs to completion even if shutdown starts meanwhile.
			_, _ = c.Regenerate(context.WithoutCancel(ctx))
		}
	}
}

// Regenerate runs one pass synchronously: list the whitelist, render the
// PAC file, upload it and move the latest pointer. A failing stage is
// logged and aborts the pass; the previous latest artifact stays in place.
func (c *Coalescer) Regenerate(ctx context.Context) (pac.Artifact, error) {
	start := time.Now()

	a, err := c.regenerate(ctx)
	regenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		regenerationsTotal.WithLabelValues("failure").Inc()
		c.logger.Error("pac regeneration failed", zap.Error(err))
		return pac.Artifact{}, err
	}
	regenerationsTotal.WithLabelValues("success").Inc()

	c.logger.Info("pac regenerated",
		zap.String("hash", a.Hash),
		zap.Duration("took", time.Since(start)),
	)
	if c.onRegenerate != nil {
		c.onRegenerate(a)
	}
	return a, nil
}

func (c *Coalescer) regenerate(ctx context.Context) (pac.Artifact, error) {
	hosts, err := c.store.List(ctx)
	if err != nil {
		return pac.Artifact{}, fmt.Errorf("list whitelist: %w", err)
	}
	whitelistHosts.Set(float64(len(hosts)))

	a := pac.Generate(hosts)

	if err := c.cache.Upload(ctx, a); err != nil {
		return pac.Artifact{}, fmt.Errorf("upload artifact: %w", err)
	}
	if err := c.cache.SetLatest(ctx, a.Hash); err != nil {
		return pac.Artifact{}, fmt.Errorf("set latest: %w", err)
	}
	return a, nil
}

// stopTimer stops t and drains a pending fire so a later Reset starts clean.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
