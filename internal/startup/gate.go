package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/arutha/lexhost/internal/prefs"
)

// Provisioner performs one provisioning pass.
type Provisioner interface {
	Provision() (int, error)
}

// Logger defines the logging interface for the startup package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Decision is the result of comparing the marker with the running version.
type Decision struct {
	// Previous is the stored marker, prefs.NeverProvisioned when absent.
	Previous int

	// Current is the running version code.
	Current int

	// Needed is true when Previous != Current.
	Needed bool
}

// Outcome describes a completed gate run.
type Outcome struct {
	Decision
	Skipped  bool
	Copied   int
	Duration time.Duration
}

// VersionGate runs the provisioner once per application version.
type VersionGate struct {
	store       prefs.Store
	provisioner Provisioner
	versionCode int
	logger      Logger
}

// NewVersionGate creates a gate for the given running version code.
func NewVersionGate(store prefs.Store, provisioner Provisioner, versionCode int) (*VersionGate, error) {
	if versionCode < 0 {
		return nil, ErrNegativeVersion
	}
	return &VersionGate{
		store:       store,
		provisioner: provisioner,
		versionCode: versionCode,
		logger:      noopLogger{},
	}, nil
}

// SetLogger sets the logger for the gate.
func (g *VersionGate) SetLogger(logger Logger) {
	g.logger = logger
}

// VersionCode returns the running version code.
func (g *VersionGate) VersionCode() int {
	return g.versionCode
}

// Check reads the marker without side effects.
func (g *VersionGate) Check(ctx context.Context) (Decision, error) {
	prev, err := prefs.LastRun(ctx, g.store)
	if err != nil {
		return Decision{}, fmt.Errorf("reading version marker: %w", err)
	}
	return Decision{
		Previous: prev,
		Current:  g.versionCode,
		Needed:   prev != g.versionCode,
	}, nil
}

// Run provisions when the marker differs from the running version and
// records the running version after the pass succeeds.
func (g *VersionGate) Run(ctx context.Context) (Outcome, error) {
	d, err := g.Check(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !d.Needed {
		g.logger.Info("databases already provisioned for this version", "version_code", d.Current)
		return Outcome{Decision: d, Skipped: true}, nil
	}
	return g.provision(ctx, d)
}

// Force provisions regardless of the marker and records the running version
// after the pass succeeds.
func (g *VersionGate) Force(ctx context.Context) (Outcome, error) {
	d, err := g.Check(ctx)
	if err != nil {
		return Outcome{}, err
	}
	d.Needed = true
	return g.provision(ctx, d)
}

func (g *VersionGate) provision(ctx context.Context, d Decision) (Outcome, error) {
	g.logger.Info("provisioning databases",
		"previous_version_code", d.Previous,
		"version_code", d.Current,
	)

	start := time.Now()
	copied, err := g.provisioner.Provision()
	out := Outcome{Decision: d, Copied: copied, Duration: time.Since(start)}
	if err != nil {
		return out, fmt.Errorf("provisioning databases: %w", err)
	}

	// Strictly after a complete pass.
	if err := g.store.SetInt(ctx, prefs.LastRunVersionCode, d.Current); err != nil {
		return out, fmt.Errorf("writing version marker: %w", err)
	}

	g.logger.Info("databases provisioned",
		"copied", copied,
		"version_code", d.Current,
		"duration", out.Duration,
	)
	return out, nil
}
