package cli

import (
	"io"
	"log/slog"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/engine"
	"github.com/roach88/cartprice/internal/migrate"
	"github.com/roach88/cartprice/internal/pricing"
	"github.com/roach88/cartprice/internal/rules"
	"github.com/roach88/cartprice/internal/store"
)

// app wires the storage, rule engine, cart service and migrator for
// commands that work on a database.
type app struct {
	store    *store.Store
	factory  *rules.Factory
	engine   *engine.Engine
	service  *cart.Service
	migrator *migrate.Migrator
	logger   *slog.Logger
}

// newLogger returns a text logger on w at the configured level, or debug
// when verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level, err := opts.Config.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newFactory returns a rules factory evaluating calendar rules in the
// configured time zone.
func newFactory(opts *RootOptions) (*rules.Factory, error) {
	loc, err := opts.Config.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return rules.NewFactory(rules.WithLocation(loc)), nil
}

func openApp(opts *RootOptions, stderr io.Writer) (*app, error) {
	logger := newLogger(opts, stderr)

	factory, err := newFactory(opts)
	if err != nil {
		return nil, err
	}
	cur, err := opts.Config.Money()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger.Debug("opening database", "path", opts.Config.Database)
	st, err := store.Open(opts.Config.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	locker := cart.NewKeyedLocker()
	events := cart.LogSink{Logger: logger}
	eng := engine.New(st, factory,
		engine.WithLocker(locker),
		engine.WithEvents(events),
		engine.WithLogger(logger),
	)
	a := &app{
		store:   st,
		factory: factory,
		engine:  eng,
		service: cart.NewService(st, pricing.NewPipeline(cur),
			cart.WithEvaluator(eng),
			cart.WithLocker(locker),
			cart.WithEvents(events),
			cart.WithLogger(logger),
		),
		migrator: migrate.New(st,
			migrate.WithRuleEngine(eng),
			migrate.WithLocker(locker),
			migrate.WithStrategy(opts.Config.Strategy()),
			migrate.WithEvents(events),
			migrate.WithLogger(logger),
		),
		logger: logger,
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}
