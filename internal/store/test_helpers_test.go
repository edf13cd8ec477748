package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
)

// createTestStore creates a new file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every cart.Storage implementation under test.
func backends(t *testing.T) map[string]cart.Storage {
	t.Helper()
	return map[string]cart.Storage{
		"sqlite": createTestStore(t),
		"memory": NewMemory(),
	}
}

// createTestItem creates an item with minimal required fields.
func createTestItem(t *testing.T, id string, price float64, qty int) *cart.Item {
	t.Helper()
	it, err := cart.NewItem(cart.ItemDefinition{ID: id, Name: "Item " + id, Price: price, Quantity: qty})
	if err != nil {
		t.Fatalf("NewItem() failed: %v", err)
	}
	return it
}

func createTestCondition(name, value string) *condition.Condition {
	return condition.MustNew(condition.Definition{Name: name, Kind: "discount", Target: condition.TargetSubtotal, Value: value})
}
