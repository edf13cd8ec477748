package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
)

// GetItems returns the cart's items in insertion order.
// Returns an empty slice (not nil) if the cart was never written.
func (s *Store) GetItems(ctx context.Context, id cart.Identity) ([]*cart.Item, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT items FROM carts WHERE identifier = ? AND instance = ?`,
		id.Identifier, id.Instance,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return []*cart.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	return unmarshalItems(data)
}

// GetConditions returns the cart-level condition set.
func (s *Store) GetConditions(ctx context.Context, id cart.Identity) (*condition.Set, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT conditions FROM carts WHERE identifier = ? AND instance = ?`,
		id.Identifier, id.Instance,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return condition.NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conditions: %w", err)
	}
	return unmarshalConditions(data)
}

// GetMetadata returns the JSON stored under key, or nil if absent.
func (s *Store) GetMetadata(ctx context.Context, id cart.Identity, key string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cart_metadata WHERE identifier = ? AND instance = ? AND key = ?`,
		id.Identifier, id.Instance, key,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata %q: %w", key, err)
	}
	return json.RawMessage(data), nil
}

// AllMetadata returns every metadata entry for the cart.
func (s *Store) AllMetadata(ctx context.Context, id cart.Identity) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM cart_metadata
		WHERE identifier = ? AND instance = ?
		ORDER BY key COLLATE BINARY ASC
	`, id.Identifier, id.Instance)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return out, nil
}

// Has reports whether a cart row or any metadata exists for id.
func (s *Store) Has(ctx context.Context, id cart.Identity) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM carts WHERE identifier = ? AND instance = ?) +
			(SELECT COUNT(*) FROM cart_metadata WHERE identifier = ? AND instance = ?)
	`, id.Identifier, id.Instance, id.Identifier, id.Instance).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check cart: %w", err)
	}
	return count > 0, nil
}
