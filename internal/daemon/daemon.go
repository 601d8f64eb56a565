// Package daemon wires the sentinel subsystem together and runs its
// background loops: the guardian scan loop, the watchdog and the
// config hot-reloader.
package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hannesmitterer/sentinel/internal/alert"
	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/config"
	"github.com/hannesmitterer/sentinel/internal/guardian"
	"github.com/hannesmitterer/sentinel/internal/kernel"
	"github.com/hannesmitterer/sentinel/internal/quarantine"
	"github.com/hannesmitterer/sentinel/internal/response"
)

// Daemon owns every long-lived component of a running sentinel.
type Daemon struct {
	mu      sync.Mutex
	cfgPath string
	cfg     *config.Config

	Log        *audit.Log
	State      *kernel.State
	Store      *quarantine.Store
	Dispatcher *alert.Dispatcher
	Responder  *response.Manager
	Guardian   *guardian.Guardian
}

// New loads configuration and constructs the full component graph.
// Nothing runs until Run is called.
func New(cfgPath string) (*Daemon, error) {
	cfg, cfgHash, err := config.LoadWithHash(cfgPath)
	if err != nil {
		return nil, err
	}

	log, err := audit.OpenWithOptions(cfg.Audit.Path, audit.Options{
		RotateEvery: cfg.Audit.RotateEvery,
		Backups:     cfg.Audit.Backups,
	})
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	store, err := quarantine.Open(cfg.Quarantine.Path)
	if err != nil {
		log.Close()
		return nil, err
	}

	state := kernel.New(log)
	dispatcher := alert.NewDispatcher(cfg.Webhooks)
	responder := response.New(state, log, store, dispatcher)
	guard := guardian.New(state, log, responder, guardian.Options{
		ScanInterval:     cfg.Guardian.ScanInterval,
		AnomalyThreshold: cfg.Guardian.AnomalyThreshold,
		Baseline: guardian.Baseline{
			Trust:   cfg.Guardian.BaselineTrust,
			Harmony: cfg.Guardian.BaselineHarmony,
		},
		WatchdogInterval: cfg.Guardian.WatchdogInterval,
		WatchdogTimeout:  cfg.Guardian.WatchdogTimeout,
	})

	log.Append(audit.TypeGuardian, map[string]any{
		"action":      "daemon_configured",
		"config_hash": cfgHash,
		"webhooks":    len(cfg.Webhooks),
	}, audit.LevelNormal)

	return &Daemon{
		cfgPath:    cfgPath,
		cfg:        cfg,
		Log:        log,
		State:      state,
		Store:      store,
		Dispatcher: dispatcher,
		Responder:  responder,
		Guardian:   guard,
	}, nil
}

// Run starts the scan loop, the watchdog and the config reloader, and
// blocks until ctx is cancelled. Components are closed on return.
func (d *Daemon) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		d.Guardian.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		d.Guardian.Watchdog.Run(ctx)
	}()

	reloader, err := NewReloader(d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config watcher unavailable: %v\n", err)
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reloader.Run(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return d.Close()
}

// Close releases the daemon's resources.
func (d *Daemon) Close() error {
	storeErr := d.Store.Close()
	if err := d.Log.Close(); err != nil {
		return err
	}
	return storeErr
}

// ConfigPath returns the watched config file path, resolving the
// default location for an empty configured path.
func (d *Daemon) ConfigPath() string {
	if d.cfgPath != "" {
		return d.cfgPath
	}
	return defaultConfigPath()
}

// Reload re-reads the config file and applies the hot-reloadable
// parts: the guardian anomaly threshold and the alert webhooks.
// Intervals and file paths stay fixed for the process lifetime.
func (d *Daemon) Reload() error {
	cfg, cfgHash, err := config.LoadWithHash(d.cfgPath)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	d.Guardian.SetAnomalyThreshold(cfg.Guardian.AnomalyThreshold)
	d.Dispatcher.SetConfigs(cfg.Webhooks)

	d.Log.Append(audit.TypeGuardian, map[string]any{
		"action":      "config_reloaded",
		"config_hash": cfgHash,
		"webhooks":    len(cfg.Webhooks),
	}, audit.LevelNormal)
	return nil
}

// Config returns the currently loaded configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}
