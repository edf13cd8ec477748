package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
)

// Reevaluate implements cart.Evaluator. The caller must hold the cart lock.
//
// Registrations run in order and each sees the effect of the previous
// ones, so a rule reading HasCondition observes conditions materialized
// earlier in the same pass. A second call with no mutation in between
// changes nothing.
func (e *Engine) Reevaluate(ctx context.Context, id cart.Identity) error {
	regs := e.snapshotRegistrations(id)
	if len(regs) == 0 {
		return nil
	}

	p, err := e.newPass(ctx, id)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		if reg.cond.Target() == condition.TargetItem {
			p.evaluateItems(ctx, reg.cond)
		} else {
			p.evaluateCart(ctx, reg.cond)
		}
	}
	return p.flush(ctx)
}

// pass is one evaluation of a cart's registrations over a working copy.
type pass struct {
	e     *Engine
	id    cart.Identity
	items []*cart.Item
	conds *condition.Set
	meta  map[string]json.RawMessage

	itemsChanged bool
	condsChanged bool
	events       []cart.Event
}

func (e *Engine) newPass(ctx context.Context, id cart.Identity) (*pass, error) {
	items, err := e.storage.GetItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	conds, err := e.storage.GetConditions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	meta, err := e.storage.AllMetadata(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	return &pass{e: e, id: id, items: items, conds: conds, meta: meta}, nil
}

func (p *pass) view() *cart.Cart {
	return cart.NewCart(p.id, p.items, p.conds, p.meta)
}

func (p *pass) evaluateCart(ctx context.Context, c *condition.Condition) {
	ok, err := shouldApply(c, p.view(), nil)
	if err != nil {
		p.e.failures(ctx, Failure{
			Operation: OpEvaluate,
			Cart:      p.id,
			Name:      c.Name(),
			Condition: c,
			Err:       err,
			Context:   map[string]any{"target": string(c.Target())},
		})
		ok = false
	}

	static := c.WithoutRules()
	current, active := p.conds.Get(c.Name())
	switch {
	case ok && (!active || !sameDefinition(current, static)):
		p.conds.Put(static)
		p.condsChanged = true
		if !active {
			p.events = append(p.events, cart.Event{Type: cart.EventConditionAdded, Cart: p.id, Condition: c.Name(), Data: dynamicData})
		}
	case !ok && active:
		p.conds.Remove(c.Name())
		p.condsChanged = true
		p.events = append(p.events, cart.Event{Type: cart.EventConditionRemoved, Cart: p.id, Condition: c.Name(), Data: dynamicData})
	}
}

func (p *pass) evaluateItems(ctx context.Context, c *condition.Condition) {
	static := c.WithoutRules()
	for i := range p.items {
		it := p.items[i]
		ok, err := shouldApply(c, p.view(), it)
		if err != nil {
			p.e.failures(ctx, Failure{
				Operation: OpEvaluate,
				Cart:      p.id,
				Name:      c.Name(),
				Condition: c,
				ItemID:    it.ID(),
				Err:       err,
				Context:   map[string]any{"target": string(c.Target()), "item_id": it.ID()},
			})
			ok = false
		}

		current, active := it.Conditions().Get(c.Name())
		switch {
		case ok && (!active || !sameDefinition(current, static)):
			updated, err := it.WithCondition(static)
			if err != nil {
				p.e.failures(ctx, Failure{Operation: OpEvaluate, Cart: p.id, Name: c.Name(), Condition: c, ItemID: it.ID(), Err: err})
				continue
			}
			p.items[i] = updated
			p.itemsChanged = true
			if !active {
				p.events = append(p.events, cart.Event{Type: cart.EventConditionAdded, Cart: p.id, ItemID: it.ID(), Condition: c.Name(), Data: dynamicData})
			}
		case !ok && active:
			updated, _ := it.WithoutCondition(c.Name())
			p.items[i] = updated
			p.itemsChanged = true
			p.events = append(p.events, cart.Event{Type: cart.EventConditionRemoved, Cart: p.id, ItemID: it.ID(), Condition: c.Name(), Data: dynamicData})
		}
	}
}

func (p *pass) flush(ctx context.Context) error {
	if p.itemsChanged {
		if err := p.e.storage.PutItems(ctx, p.id, p.items); err != nil {
			return fmt.Errorf("evaluate %s: %w", p.id, err)
		}
	}
	if p.condsChanged {
		if err := p.e.storage.PutConditions(ctx, p.id, p.conds); err != nil {
			return fmt.Errorf("evaluate %s: %w", p.id, err)
		}
	}
	for _, ev := range p.events {
		ev.ID = p.e.ids.Generate()
		p.e.events.Emit(ctx, ev)
	}
	return nil
}

var dynamicData = map[string]any{"dynamic": true}

// retract removes every active copy of name from the cart and its items.
func (e *Engine) retract(ctx context.Context, id cart.Identity, name string) error {
	p, err := e.newPass(ctx, id)
	if err != nil {
		return err
	}
	if p.conds.Remove(name) {
		p.condsChanged = true
		p.events = append(p.events, cart.Event{Type: cart.EventConditionRemoved, Cart: id, Condition: name, Data: dynamicData})
	}
	for i, it := range p.items {
		if updated, ok := it.WithoutCondition(name); ok {
			p.items[i] = updated
			p.itemsChanged = true
			p.events = append(p.events, cart.Event{Type: cart.EventConditionRemoved, Cart: id, ItemID: it.ID(), Condition: name, Data: dynamicData})
		}
	}
	return p.flush(ctx)
}

// shouldApply runs the condition's rules, turning a panicking rule into an
// error so it reaches the failure handler like any other.
func shouldApply(c *condition.Condition, state condition.CartState, item condition.ItemState) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return c.ShouldApply(state, item)
}

// sameDefinition compares the JSON forms, so a copy read back from storage
// (numbers decoded as float64) equals the registration it came from.
func sameDefinition(a, b *condition.Condition) bool {
	da, errA := json.Marshal(a.Definition())
	db, errB := json.Marshal(b.Definition())
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(da, db)
}
