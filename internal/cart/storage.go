package cart

import (
	"context"
	"encoding/json"

	"github.com/roach88/cartprice/internal/condition"
)

// Storage is the persistence contract the engine consumes. Every method is
// keyed by Identity. Implementations return empty values (not errors) for
// carts that were never written.
type Storage interface {
	GetItems(ctx context.Context, id Identity) ([]*Item, error)
	PutItems(ctx context.Context, id Identity, items []*Item) error

	GetConditions(ctx context.Context, id Identity) (*condition.Set, error)
	PutConditions(ctx context.Context, id Identity, conds *condition.Set) error

	// GetMetadata returns nil when key is absent.
	GetMetadata(ctx context.Context, id Identity, key string) (json.RawMessage, error)
	AllMetadata(ctx context.Context, id Identity) (map[string]json.RawMessage, error)
	PutMetadata(ctx context.Context, id Identity, key string, value any) error
	PutMetadataBatch(ctx context.Context, id Identity, values map[string]any) error
	ClearMetadata(ctx context.Context, id Identity) error

	// Has reports whether anything is stored for id.
	Has(ctx context.Context, id Identity) (bool, error)

	// SwapIdentifier moves everything stored under (oldIdentifier, instance)
	// to (newIdentifier, instance), replacing whatever was stored there.
	SwapIdentifier(ctx context.Context, instance, oldIdentifier, newIdentifier string) error

	// Forget deletes everything stored for id.
	Forget(ctx context.Context, id Identity) error
}

// Load reads a consistent-enough snapshot of the cart at id.
func Load(ctx context.Context, st Storage, id Identity) (*Cart, error) {
	items, err := st.GetItems(ctx, id)
	if err != nil {
		return nil, err
	}
	conds, err := st.GetConditions(ctx, id)
	if err != nil {
		return nil, err
	}
	meta, err := st.AllMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewCart(id, items, conds, meta), nil
}
