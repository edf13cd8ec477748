package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
)

// PutItems replaces the cart's items. The cart row is created on first
// write and its revision incremented on every write.
func (s *Store) PutItems(ctx context.Context, id cart.Identity, items []*cart.Item) error {
	data, err := marshalItems(items)
	if err != nil {
		return fmt.Errorf("put items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (identifier, instance, items, revision)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(identifier, instance) DO UPDATE SET
			items = excluded.items,
			revision = carts.revision + 1
	`, id.Identifier, id.Instance, data)
	if err != nil {
		return fmt.Errorf("put items: %w", err)
	}
	return nil
}

// PutConditions replaces the cart-level condition set.
func (s *Store) PutConditions(ctx context.Context, id cart.Identity, conds *condition.Set) error {
	data, err := marshalConditions(conds)
	if err != nil {
		return fmt.Errorf("put conditions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (identifier, instance, conditions, revision)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(identifier, instance) DO UPDATE SET
			conditions = excluded.conditions,
			revision = carts.revision + 1
	`, id.Identifier, id.Instance, data)
	if err != nil {
		return fmt.Errorf("put conditions: %w", err)
	}
	return nil
}

// PutMetadata stores value (JSON-encoded) under key.
func (s *Store) PutMetadata(ctx context.Context, id cart.Identity, key string, value any) error {
	return s.PutMetadataBatch(ctx, id, map[string]any{key: value})
}

// PutMetadataBatch stores several metadata values in one transaction.
func (s *Store) PutMetadataBatch(ctx context.Context, id cart.Identity, values map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put metadata: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for key, value := range values {
		data, err := marshalValue(value)
		if err != nil {
			return fmt.Errorf("put metadata %q: %w", key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cart_metadata (identifier, instance, key, value)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(identifier, instance, key) DO UPDATE SET value = excluded.value
		`, id.Identifier, id.Instance, key, data)
		if err != nil {
			return fmt.Errorf("put metadata %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put metadata: commit: %w", err)
	}
	return nil
}

// ClearMetadata deletes every metadata entry for the cart.
func (s *Store) ClearMetadata(ctx context.Context, id cart.Identity) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_metadata WHERE identifier = ? AND instance = ?`,
		id.Identifier, id.Instance,
	)
	if err != nil {
		return fmt.Errorf("clear metadata: %w", err)
	}
	return nil
}

// SwapIdentifier moves the cart row and metadata from oldIdentifier to
// newIdentifier within instance, discarding anything stored under
// newIdentifier. Runs in one transaction.
func (s *Store) SwapIdentifier(ctx context.Context, instance, oldIdentifier, newIdentifier string) error {
	if oldIdentifier == newIdentifier {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("swap identifier: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := forgetTx(ctx, tx, newIdentifier, instance); err != nil {
		return fmt.Errorf("swap identifier: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE carts SET identifier = ?, revision = revision + 1
		WHERE identifier = ? AND instance = ?
	`, newIdentifier, oldIdentifier, instance); err != nil {
		return fmt.Errorf("swap identifier: move cart: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE cart_metadata SET identifier = ?
		WHERE identifier = ? AND instance = ?
	`, newIdentifier, oldIdentifier, instance); err != nil {
		return fmt.Errorf("swap identifier: move metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("swap identifier: commit: %w", err)
	}
	return nil
}

// Forget deletes the cart row and all metadata for id.
func (s *Store) Forget(ctx context.Context, id cart.Identity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("forget: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := forgetTx(ctx, tx, id.Identifier, id.Instance); err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("forget: commit: %w", err)
	}
	return nil
}

func forgetTx(ctx context.Context, tx *sql.Tx, identifier, instance string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM carts WHERE identifier = ? AND instance = ?`, identifier, instance,
	); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_metadata WHERE identifier = ? AND instance = ?`, identifier, instance,
	); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}
