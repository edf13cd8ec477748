package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/rules"
)

// RecordsKey is the cart metadata key holding persisted registrations.
const RecordsKey = cart.ReservedMetadataPrefix + "dynamic_conditions"

// Record is the persisted recipe of a dynamic condition.
type Record struct {
	Type        string         `json:"type"`
	Target      string         `json:"target"`
	Value       string         `json:"value"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Order       int            `json:"order"`
	FactoryKeys []rules.Key    `json:"factory_keys"`
	Context     rules.Context  `json:"context,omitempty"`
}

func newRecord(def condition.Definition, src FactoryKeys) Record {
	return Record{
		Type:        def.Kind,
		Target:      string(def.Target),
		Value:       def.Value,
		Attributes:  maps.Clone(def.Attributes),
		Order:       def.Order,
		FactoryKeys: append([]rules.Key(nil), src.Keys...),
		Context:     src.Context.Clone(),
	}
}

// definition rebuilds the condition definition, without rules.
func (r Record) definition(name string) condition.Definition {
	return condition.Definition{
		Name:       name,
		Kind:       r.Type,
		Target:     condition.Target(r.Target),
		Value:      r.Value,
		Attributes: maps.Clone(r.Attributes),
		Order:      r.Order,
	}
}

// LoadRecords reads the persisted registrations of a cart.
func LoadRecords(ctx context.Context, st cart.Storage, id cart.Identity) (map[string]Record, error) {
	raw, err := st.GetMetadata(ctx, id, RecordsKey)
	if err != nil {
		return nil, fmt.Errorf("load dynamic records: %w", err)
	}
	records := make(map[string]Record)
	if len(raw) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("load dynamic records: %w", err)
	}
	return records, nil
}

// SaveRecords replaces the persisted registrations of a cart.
func SaveRecords(ctx context.Context, st cart.Storage, id cart.Identity, records map[string]Record) error {
	if err := st.PutMetadata(ctx, id, RecordsKey, records); err != nil {
		return fmt.Errorf("save dynamic records: %w", err)
	}
	return nil
}
