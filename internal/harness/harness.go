package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/catalog"
	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/engine"
	"github.com/roach88/cartprice/internal/pricing"
	"github.com/roach88/cartprice/internal/rules"
	"github.com/roach88/cartprice/internal/store"
	"github.com/roach88/cartprice/internal/testutil"
)

// Identity is the cart every scenario runs against.
var Identity = cart.NewIdentity("scenario", "")

// Result is the outcome of a scenario run.
type Result struct {
	Name string `json:"name"`

	// Pass is true when every expectation held.
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	Totals pricing.Totals `json:"totals"`

	// Conditions are the active cart-level conditions in insertion order.
	Conditions []string `json:"conditions"`

	// Registered are the dynamic condition names, sorted.
	Registered []string `json:"registered"`

	Events   []string `json:"-"`
	Failures []string `json:"-"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Option configures a run.
type Option func(*runner)

// WithStorage runs the scenario against st instead of a fresh in-memory
// SQLite store.
func WithStorage(st cart.Storage) Option {
	return func(r *runner) { r.storage = st }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) { r.logger = l }
}

type runner struct {
	storage  cart.Storage
	logger   *slog.Logger
	clock    *testutil.FixedClock
	factory  *rules.Factory
	locker   *cart.KeyedLocker
	events   *testutil.RecordingSink
	failures *testutil.FailureRecorder
	pipeline *pricing.Pipeline
	engine   *engine.Engine
	service  *cart.Service
}

// Run executes a scenario and evaluates its expectations. Setup failures
// are returned as errors; unmet expectations are reported in the Result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		locker:   cart.NewKeyedLocker(),
		events:   &testutil.RecordingSink{},
		failures: &testutil.FailureRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.storage == nil {
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
		r.storage = st
	}

	clock := s.Clock
	if clock == "" {
		clock = DefaultClock
	}
	r.clock = testutil.MustParseClock(clock)
	r.factory = rules.NewFactory(rules.WithClock(r.clock))

	cur, err := pricing.NewCurrency(s.Currency, -1)
	if err != nil {
		return nil, err
	}
	r.pipeline = pricing.NewPipeline(cur)
	r.start()

	if err := r.setup(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	for i, step := range s.Steps {
		if err := r.step(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}
	return r.result(ctx, s)
}

// start builds a fresh engine and service over the runner's storage, as a
// restarted process would.
func (r *runner) start() {
	r.engine = engine.New(r.storage, r.factory,
		engine.WithLocker(r.locker),
		engine.WithFailureHandler(r.failures.Handle),
		engine.WithEvents(r.events),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("rule")),
		engine.WithLogger(r.logger),
	)
	r.service = cart.NewService(r.storage, r.pipeline,
		cart.WithEvaluator(r.engine),
		cart.WithLocker(r.locker),
		cart.WithEvents(r.events),
		cart.WithIDGenerator(testutil.NewSequenceGenerator("evt")),
		cart.WithLogger(r.logger),
	)
}

func (r *runner) setup(ctx context.Context, s *Scenario) error {
	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := r.service.SetMetadata(ctx, Identity, k, s.Metadata[k]); err != nil {
			return err
		}
	}

	for _, it := range s.Items {
		if err := r.addItem(ctx, it); err != nil {
			return err
		}
	}

	for _, c := range s.Conditions {
		if err := r.addCondition(ctx, c); err != nil {
			return fmt.Errorf("condition %s: %w", c.Name, err)
		}
	}

	if s.Catalog != "" {
		cat, err := catalog.LoadFile(s.CatalogPath(), r.factory)
		if err != nil {
			return err
		}
		if err := cat.Apply(ctx, r.service, r.engine, Identity); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) addItem(ctx context.Context, it ItemSpec) error {
	def := cart.ItemDefinition{
		ID:         it.ID,
		Name:       it.Name,
		Price:      it.Price,
		Quantity:   it.Quantity,
		Attributes: it.Attributes,
	}
	if def.Name == "" {
		def.Name = it.ID
	}
	for _, c := range it.Conditions {
		cond, err := condition.New(c.Definition())
		if err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		def.Conditions = append(def.Conditions, cond)
	}
	if _, err := r.service.AddItem(ctx, Identity, def); err != nil {
		return fmt.Errorf("item %s: %w", it.ID, err)
	}
	return nil
}

func (r *runner) addCondition(ctx context.Context, c ConditionSpec) error {
	if c.Rules == nil {
		cond, err := condition.New(c.Definition())
		if err != nil {
			return err
		}
		return r.service.AddCondition(ctx, Identity, cond)
	}

	src := engine.FactoryKeys{Context: rules.Context(c.Rules.Context), Persist: true}
	if c.Rules.Persist != nil {
		src.Persist = *c.Rules.Persist
	}
	for _, k := range c.Rules.Keys {
		src.Keys = append(src.Keys, rules.Key(k))
	}
	return r.engine.Register(ctx, Identity, c.Definition(), src)
}

func (r *runner) step(ctx context.Context, step Step) error {
	switch step.Op {
	case OpAdd:
		return r.addItem(ctx, *step.Add)
	case OpUpdate:
		_, err := r.service.UpdateItem(ctx, Identity, step.Item, cart.ItemUpdate{
			Quantity: step.Quantity,
			Price:    step.Price,
			Relative: step.Relative,
		})
		return err
	case OpRemove:
		return r.service.RemoveItem(ctx, Identity, step.Item)
	case OpClear:
		return r.service.Clear(ctx, Identity)
	case OpMetadata:
		return r.service.SetMetadata(ctx, Identity, step.Key, step.Value)
	case OpClock:
		at, err := time.Parse(time.RFC3339, step.At)
		if err != nil {
			return err
		}
		r.clock.Set(at)
		return r.engine.EvaluateAll(ctx, Identity)
	case OpRestart:
		r.start()
		return r.engine.RestoreAll(ctx, Identity)
	case OpUnregister:
		_, err := r.engine.Unregister(ctx, Identity, step.Condition)
		return err
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

func (r *runner) result(ctx context.Context, s *Scenario) (*Result, error) {
	c, err := r.service.Get(ctx, Identity)
	if err != nil {
		return nil, err
	}
	totals, err := r.service.Totals(ctx, Identity)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Name:       s.Name,
		Pass:       true,
		Totals:     totals,
		Conditions: c.Conditions().Names(),
		Registered: []string{},
	}
	if res.Conditions == nil {
		res.Conditions = []string{}
	}
	for _, def := range r.engine.Registered(Identity) {
		res.Registered = append(res.Registered, def.Name)
	}
	sort.Strings(res.Registered)
	for _, t := range r.events.Types() {
		res.Events = append(res.Events, string(t))
	}
	for _, f := range r.failures.Failures() {
		res.Failures = append(res.Failures, f.Error())
	}

	s.Expect.check(res, c.Count())
	return res, nil
}
