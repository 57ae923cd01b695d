package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snippetd/internal/config"
	"snippetd/internal/expand"
	"snippetd/internal/ime"
	"snippetd/internal/logging"
	"snippetd/internal/metrics"
	"snippetd/internal/snippet"
	"snippetd/internal/store"
	"snippetd/internal/surface"
	"snippetd/internal/trigger"
)

// daemon owns every long-lived component of snippetd.
type daemon struct {
	cfg    *config.Config
	logger *logging.Logger

	store     store.Collection
	index     *trigger.Index
	refresher *trigger.Refresher
	loop      *surface.Loop
	engine    *expand.Engine
	metrics   *metrics.SnippetdMetrics
	host      *ime.Host
	ibus      *ime.Server
}

func newDaemon(cfg *config.Config, logger *logging.Logger, crash *logging.CrashHandler) (*daemon, error) {
	st, err := store.Open(cfg.Storage,
		store.WithLogger(logger),
		store.WithDebounce(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d := &daemon{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		index:   trigger.NewIndex(),
		loop:    surface.NewLoop(logger, crash),
		metrics: metrics.NewSnippetdMetrics(nil),
	}

	d.refresher = trigger.NewRefresher(d.index, st, st.Scope(), logger)
	d.refresher.Apply = d.loop.Post
	d.refresher.OnRefresh = d.metrics.RecordRefresh

	d.engine = expand.New(d.index, d.loop,
		expand.WithLogger(logger),
		expand.WithObserver(expand.LogObserver(logger)),
	)
	d.host = ime.NewHost(d.loop, d.engine, d.observe, logger)
	d.ibus = ime.NewServer(d.host, cfg.IBus.EngineName, logger)

	if crash != nil {
		crash.OnCrash(func(logging.CrashReport) { d.metrics.Panics.Inc() })
	}
	return d, nil
}

func (d *daemon) observe(res expand.Result, took time.Duration) {
	d.metrics.RecordOutcome(res.Outcome.String(), took)
}

// run serves until ctx is cancelled.
func (d *daemon) run(ctx context.Context) error {
	loopDone := make(chan error, 1)
	go func() { loopDone <- d.loop.Run(ctx) }()

	d.start(ctx)

	var flush <-chan time.Time
	if d.cfg.Metrics.Enabled {
		interval := time.Duration(d.cfg.Metrics.FlushIntervalSec) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		flush = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			<-loopDone
			return nil
		case err := <-loopDone:
			d.shutdown()
			if ctx.Err() != nil {
				return nil
			}
			return err
		case <-flush:
			d.flushMetrics()
		}
	}
}

// start loads the triggers once and subscribes to later changes.
func (d *daemon) start(ctx context.Context) {
	// A failed first load leaves the engine running with no triggers.
	_ = d.refresher.Refresh(ctx)

	d.store.OnChange(func(change snippet.Change) {
		d.refresher.HandleChange(ctx, change)
	})

	if d.cfg.Watch.Enabled {
		if err := d.store.Watch(ctx); err != nil {
			d.logger.Warn("store watch unavailable, external edits need a restart", "error", err)
		}
	}

	if d.cfg.IBus.Enabled {
		switch err := d.ibus.Start(ctx); {
		case errors.Is(err, ime.ErrUnsupported):
			d.logger.Info("input method host not available on this platform")
		case err != nil:
			d.logger.Warn("ibus engine not started", "error", err)
		}
	}

	d.logger.Info("snippetd started",
		"store", d.cfg.StorePath(),
		"scope", d.store.Scope(),
	)
}

func (d *daemon) flushMetrics() {
	d.metrics.UpdateUptime()
	if err := d.metrics.Registry().WriteTextfile(d.cfg.Metrics.Path); err != nil {
		d.logger.Warn("metrics flush failed", "path", d.cfg.Metrics.Path, "error", err)
	}
}

func (d *daemon) shutdown() {
	if err := d.ibus.Stop(); err != nil {
		d.logger.Warn("ibus stop failed", "error", err)
	}
	d.loop.Close()
	if d.cfg.Metrics.Enabled {
		d.flushMetrics()
	}
	if err := d.store.Close(); err != nil {
		d.logger.Warn("store close failed", "error", err)
	}
	d.logger.Info("snippetd stopped")
}

// reconfigure applies the parts of a reloaded configuration that can
// change at runtime.
func (d *daemon) reconfigure(cfg *config.Config) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		d.logger.Warn("ignoring log level", "level", cfg.Logging.Level, "error", err)
	} else {
		d.logger.SetLevel(level)
	}
	if cfg.StorePath() != d.cfg.StorePath() || cfg.Scope() != d.cfg.Scope() {
		d.logger.Warn("storage settings changed, restart snippetd to apply",
			"store", cfg.StorePath(),
		)
	}
}
