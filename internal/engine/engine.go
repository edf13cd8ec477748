package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/rules"
)

// FailureHandler receives recoverable evaluation and restoration failures.
type FailureHandler func(ctx context.Context, f Failure)

// Engine owns the dynamic-condition registrations of every cart and keeps
// the materialized static copies in storage in sync with them.
//
// Thread-safety: Engine is safe for concurrent use. Registrations are
// guarded by an internal mutex; cart state is guarded by the cart.Locker
// shared with cart.Service.
//
// INVARIANTS:
//   - Registrations of a cart are evaluated in registration order
//   - Active condition sets only ever receive WithoutRules copies
type Engine struct {
	storage  cart.Storage
	factory  *rules.Factory
	locker   cart.Locker
	failures FailureHandler
	events   cart.EventSink
	ids      cart.IDGenerator
	logger   *slog.Logger

	mu   sync.Mutex
	regs map[cart.Identity]*registry
}

// registry holds one cart's registrations in registration order.
type registry struct {
	byName map[string]*registration
	names  []string
}

type registration struct {
	cond *condition.Condition

	// persisted is set when a Record for this registration is stored.
	persisted bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker sets the per-cart locker. It must be the same Locker the cart
// service uses.
func WithLocker(l cart.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithFailureHandler sets the failure hook. Default: log at warn level.
func WithFailureHandler(h FailureHandler) Option {
	return func(e *Engine) {
		e.failures = h
	}
}

// WithEvents sets the sink for condition.added/removed events caused by
// materialization and retraction.
func WithEvents(sink cart.EventSink) Option {
	return func(e *Engine) {
		e.events = sink
	}
}

// WithIDGenerator sets the event id generator.
func WithIDGenerator(g cart.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over st, building persisted rules with f.
func New(st cart.Storage, f *rules.Factory, opts ...Option) *Engine {
	e := &Engine{
		storage: st,
		factory: f,
		locker:  cart.NewKeyedLocker(),
		events:  cart.NopSink{},
		ids:     cart.UUIDv7Generator{},
		logger:  slog.Default(),
		regs:    make(map[cart.Identity]*registry),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.failures == nil {
		e.failures = e.logFailure
	}
	return e
}

// Factory returns the rules factory used to rebuild persisted rules.
func (e *Engine) Factory() *rules.Factory { return e.factory }

// Register adds a dynamic condition to the cart and evaluates the cart.
//
// def.Rules is used when src is nil. Registering a name that is already
// registered replaces the earlier registration and retracts its active
// copies first.
func (e *Engine) Register(ctx context.Context, id cart.Identity, def condition.Definition, src RulesSource) error {
	if err := id.Validate(); err != nil {
		return err
	}
	unlock := e.locker.Lock(id)
	defer unlock()

	snapshot, err := cart.Load(ctx, e.storage, id)
	if err != nil {
		return fmt.Errorf("register %s: %w", def.Name, err)
	}
	predicates, persist, err := e.resolve(def.Name, src, snapshot)
	if err != nil {
		return err
	}
	if src != nil {
		def.Rules = predicates
	}
	c, err := condition.New(def)
	if err != nil {
		return err
	}
	if !c.IsDynamic() {
		return &RegistrationError{
			Code:      ErrCodeNotDynamic,
			Message:   "only dynamic conditions may be registered",
			Condition: def.Name,
		}
	}

	if prev, ok := e.lookup(id, c.Name()); ok {
		if err := e.retract(ctx, id, prev.cond.Name()); err != nil {
			return err
		}
	}

	records, err := LoadRecords(ctx, e.storage, id)
	if err != nil {
		return err
	}
	_, hadRecord := records[c.Name()]
	if persist {
		records[c.Name()] = newRecord(def, src.(FactoryKeys))
	} else {
		delete(records, c.Name())
	}
	if persist || hadRecord {
		if err := SaveRecords(ctx, e.storage, id, records); err != nil {
			return err
		}
	}

	e.put(id, &registration{cond: c, persisted: persist})
	e.logger.DebugContext(ctx, "dynamic condition registered",
		"cart", id.String(),
		"condition", c.Name(),
		"target", string(c.Target()),
		"persisted", persist,
	)
	return e.Reevaluate(ctx, id)
}

// Unregister removes a registration, retracts its active copies and
// deletes its persisted record. It reports whether anything was removed.
func (e *Engine) Unregister(ctx context.Context, id cart.Identity, name string) (bool, error) {
	unlock := e.locker.Lock(id)
	defer unlock()

	_, inMemory := e.lookup(id, name)
	records, err := LoadRecords(ctx, e.storage, id)
	if err != nil {
		return false, err
	}
	_, stored := records[name]
	if !inMemory && !stored {
		return false, nil
	}

	e.remove(id, name)
	if err := e.retract(ctx, id, name); err != nil {
		return false, err
	}
	if stored {
		delete(records, name)
		if err := SaveRecords(ctx, e.storage, id, records); err != nil {
			return false, err
		}
	}
	return true, nil
}

// EvaluateAll re-derives the active dynamic conditions of the cart.
func (e *Engine) EvaluateAll(ctx context.Context, id cart.Identity) error {
	unlock := e.locker.Lock(id)
	defer unlock()
	return e.Reevaluate(ctx, id)
}

// RestoreAll rebuilds persisted registrations for a cart, then evaluates
// it. Entries that cannot be rebuilt are reported to the FailureHandler
// and skipped. Restored registrations are not written back.
func (e *Engine) RestoreAll(ctx context.Context, id cart.Identity) error {
	unlock := e.locker.Lock(id)
	defer unlock()

	records, err := LoadRecords(ctx, e.storage, id)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	// Restore in the order the conditions aggregate in.
	slices.SortFunc(names, func(a, b string) int {
		if d := records[a].Order - records[b].Order; d != 0 {
			return d
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})

	restored := 0
	for _, name := range names {
		rec := records[name]
		c, err := e.rebuild(name, rec)
		if err != nil {
			e.failures(ctx, Failure{
				Operation: OpRestore,
				Cart:      id,
				Name:      name,
				Err:       err,
				Context:   map[string]any{"factory_keys": rec.FactoryKeys, "context": rec.Context},
			})
			continue
		}
		e.put(id, &registration{cond: c, persisted: true})
		restored++
	}
	e.logger.DebugContext(ctx, "dynamic conditions restored",
		"cart", id.String(),
		"restored", restored,
		"skipped", len(names)-restored,
	)
	return e.Reevaluate(ctx, id)
}

func (e *Engine) rebuild(name string, rec Record) (*condition.Condition, error) {
	def := rec.definition(name)
	ps, err := e.factory.CreateAll(rec.FactoryKeys, rec.Context)
	if err != nil {
		return nil, err
	}
	def.Rules = ps
	c, err := condition.New(def)
	if err != nil {
		return nil, err
	}
	if !c.IsDynamic() {
		return nil, &RegistrationError{Code: ErrCodeNotDynamic, Message: "factory produced no rules", Condition: name}
	}
	return c, nil
}

// Registered returns the definitions registered for the cart in
// registration order. Rules are included.
func (e *Engine) Registered(id cart.Identity) []condition.Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.regs[id]
	if !ok {
		return nil
	}
	out := make([]condition.Definition, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name].cond.Definition())
	}
	return out
}

// Forget drops the in-memory registrations of a cart. Persisted records
// and active copies are left alone.
func (e *Engine) Forget(id cart.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.regs, id)
}

// DynamicNames returns the names registered for the cart, in memory or in
// storage. The caller must hold the cart lock.
func (e *Engine) DynamicNames(ctx context.Context, id cart.Identity) (map[string]bool, error) {
	records, err := LoadRecords(ctx, e.storage, id)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(records))
	for name := range records {
		names[name] = true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.regs[id]; ok {
		for _, name := range r.names {
			names[name] = true
		}
	}
	return names, nil
}

// Transfer moves registrations from one cart to another, keeping the
// target's registration on a name clash. Persisted records are merged the
// same way. The caller must hold both cart locks.
func (e *Engine) Transfer(ctx context.Context, from, to cart.Identity) error {
	fromRecords, err := LoadRecords(ctx, e.storage, from)
	if err != nil {
		return err
	}
	if len(fromRecords) > 0 {
		toRecords, err := LoadRecords(ctx, e.storage, to)
		if err != nil {
			return err
		}
		for name, rec := range fromRecords {
			if _, ok := toRecords[name]; !ok {
				toRecords[name] = rec
			}
		}
		if err := SaveRecords(ctx, e.storage, to, toRecords); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	src, ok := e.regs[from]
	if !ok {
		return nil
	}
	delete(e.regs, from)
	dst := e.registryLocked(to)
	for _, name := range src.names {
		if _, clash := dst.byName[name]; clash {
			continue
		}
		dst.byName[name] = src.byName[name]
		dst.names = append(dst.names, name)
	}
	return nil
}

func (e *Engine) lookup(id cart.Identity, name string) (*registration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.regs[id]
	if !ok {
		return nil, false
	}
	reg, ok := r.byName[name]
	return reg, ok
}

func (e *Engine) put(id cart.Identity, reg *registration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.registryLocked(id)
	if _, ok := r.byName[reg.cond.Name()]; !ok {
		r.names = append(r.names, reg.cond.Name())
	}
	r.byName[reg.cond.Name()] = reg
}

func (e *Engine) remove(id cart.Identity, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.regs[id]
	if !ok {
		return
	}
	delete(r.byName, name)
	r.names = slices.DeleteFunc(r.names, func(n string) bool { return n == name })
	if len(r.names) == 0 {
		delete(e.regs, id)
	}
}

func (e *Engine) registryLocked(id cart.Identity) *registry {
	r, ok := e.regs[id]
	if !ok {
		r = &registry{byName: make(map[string]*registration)}
		e.regs[id] = r
	}
	return r
}

// snapshotRegistrations copies the registrations so evaluation runs
// without holding e.mu.
func (e *Engine) snapshotRegistrations(id cart.Identity) []*registration {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.regs[id]
	if !ok {
		return nil
	}
	out := make([]*registration, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name])
	}
	return out
}

func (e *Engine) logFailure(ctx context.Context, f Failure) {
	e.logger.WarnContext(ctx, "dynamic condition failure",
		"operation", string(f.Operation),
		"cart", f.Cart.String(),
		"condition", f.Name,
		"item_id", f.ItemID,
		"error", f.Err,
	)
}
