package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
)

// marshalItems converts items to JSON TEXT for storage.
func marshalItems(items []*cart.Item) (string, error) {
	if items == nil {
		items = []*cart.Item{}
	}
	return encode(items, "items")
}

// marshalConditions converts a condition set to JSON TEXT for storage.
func marshalConditions(conds *condition.Set) (string, error) {
	if conds == nil {
		conds = condition.NewSet()
	}
	return encode(conds, "conditions")
}

// marshalValue converts a metadata value to JSON TEXT.
func marshalValue(v any) (string, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return "", fmt.Errorf("marshal metadata: invalid raw JSON")
		}
		return string(raw), nil
	}
	return encode(v, "metadata")
}

// encode uses json.Encoder with HTML escaping disabled so stored documents
// stay byte-identical to what callers wrote.
func encode(v any, what string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalItems parses JSON TEXT to items. Each item is re-validated.
func unmarshalItems(data string) ([]*cart.Item, error) {
	if data == "" || data == "[]" {
		return []*cart.Item{}, nil
	}
	var items []*cart.Item
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}

// unmarshalConditions parses JSON TEXT to a condition set.
func unmarshalConditions(data string) (*condition.Set, error) {
	set := condition.NewSet()
	if data == "" || data == "[]" {
		return set, nil
	}
	if err := json.Unmarshal([]byte(data), set); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	return set, nil
}
