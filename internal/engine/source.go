package engine

import (
	"fmt"

	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/rules"
)

// RulesSource says where a dynamic condition's predicates come from. It is
// one of Literal, FactoryKeys or Producer. Only FactoryKeys can survive a
// restart.
type RulesSource interface {
	rulesSource()
}

// Literal registers predicates directly. They are never persisted.
type Literal []condition.Predicate

// FactoryKeys builds predicates through rules.Factory. With Persist set the
// recipe is written to cart metadata and RestoreAll can rebuild it.
type FactoryKeys struct {
	Keys    []rules.Key
	Context rules.Context
	Persist bool
}

// Persistent is shorthand for a persisted FactoryKeys source.
func Persistent(ctx rules.Context, keys ...rules.Key) FactoryKeys {
	return FactoryKeys{Keys: keys, Context: ctx, Persist: true}
}

// Producer is evaluated once at registration against the current cart. A
// result of []condition.Predicate, Literal or condition.Predicate becomes
// the rules. Any other result makes the producer itself the single rule,
// in which case each later call must return a bool.
type Producer func(cart condition.CartState, item condition.ItemState) (any, error)

func (Literal) rulesSource()     {}
func (FactoryKeys) rulesSource() {}
func (Producer) rulesSource()    {}

// resolve turns src into predicates. The flag is true only for persisted
// factory keys.
func (e *Engine) resolve(name string, src RulesSource, snapshot condition.CartState) ([]condition.Predicate, bool, error) {
	switch s := src.(type) {
	case nil:
		return nil, false, nil
	case Literal:
		return []condition.Predicate(s), false, nil
	case FactoryKeys:
		ps, err := e.factory.CreateAll(s.Keys, s.Context)
		if err != nil {
			return nil, false, fmt.Errorf("register %s: %w", name, err)
		}
		return ps, s.Persist, nil
	case Producer:
		if s == nil {
			return nil, false, &RegistrationError{Code: ErrCodeInvalidSource, Message: "nil producer", Condition: name}
		}
		out, err := s.call(snapshot)
		if err != nil {
			return nil, false, fmt.Errorf("register %s: producer: %w", name, err)
		}
		switch v := out.(type) {
		case []condition.Predicate:
			return v, false, nil
		case Literal:
			return []condition.Predicate(v), false, nil
		case condition.Predicate:
			return []condition.Predicate{v}, false, nil
		}
		return []condition.Predicate{s.predicate()}, false, nil
	}
	return nil, false, &RegistrationError{
		Code:      ErrCodeInvalidSource,
		Message:   fmt.Sprintf("unsupported rules source %T", src),
		Condition: name,
	}
}

func (p Producer) call(snapshot condition.CartState) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panicked: %v", r)
		}
	}()
	return p(snapshot, nil)
}

func (p Producer) predicate() condition.Predicate {
	return func(c condition.CartState, it condition.ItemState) (bool, error) {
		out, err := p(c, it)
		if err != nil {
			return false, err
		}
		b, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("producer returned %T, want bool", out)
		}
		return b, nil
	}
}
