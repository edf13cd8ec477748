package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartprice/internal/store"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		t.Run(s.Name, func(t *testing.T) {
			RunWithGolden(t, s)
		})
	}
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
description: "expectations that do not hold"
items:
  - { id: a, price: 10, quantity: 2 }
expect:
  subtotal: 19
  count: 3
  conditions: [missing]
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "subtotal")
	assert.Contains(t, result.Errors[1], "count")
	assert.Contains(t, result.Errors[2], "missing")
}

func TestRun_UnregisterStep(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unregister
description: "an unregistered rule is retracted"
items:
  - { id: a, price: 10, quantity: 1 }
conditions:
  - name: always
    type: discount
    target: subtotal
    value: "-1"
    rules: { keys: [min-items], context: { min: 1 } }
steps:
  - { op: unregister, condition: always }
expect:
  subtotal: 10
  absent: [always]
  events: [condition.removed]
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
	assert.Empty(t, result.Registered)
}

func TestRun_EphemeralRuleLostOnRestart(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: ephemeral
description: "non-persistent registrations do not survive a restart"
items:
  - { id: a, price: 10, quantity: 1 }
conditions:
  - name: kept
    type: discount
    target: subtotal
    value: "-1"
    rules: { keys: [min-items], context: { min: 1 } }
  - name: dropped
    type: discount
    target: subtotal
    value: "-1"
    rules: { keys: [min-items], context: { min: 1 }, persist: false }
steps:
  - { op: restart }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, result.Registered)
	assert.Equal(t, []string{"kept", "dropped"}, result.Conditions, "the materialized copy is left in place")
}

func TestRun_SetupError(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad
description: "unknown rule key"
conditions:
  - name: x
    type: discount
    target: total
    value: "-1"
    rules: { keys: [no-such-key] }
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-key")
}

func TestRun_WithStorage(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "cart.db"))
	require.NoError(t, err)
	defer st.Close()

	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "bulk_discount.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), s, WithStorage(st))
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)

	items, err := st.GetItems(context.Background(), Identity)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing name", `description: x`, "name is required"},
		{"missing description", `name: x`, "description is required"},
		{"unknown field", "name: x\ndescription: y\nitemz: []", "field itemz not found"},
		{"bad clock", "name: x\ndescription: y\nclock: yesterday", "clock"},
		{"item without id", "name: x\ndescription: y\nitems: [{price: 1}]", "items[0]: id is required"},
		{"empty rule keys", "name: x\ndescription: y\nconditions: [{name: c, rules: {keys: []}}]", "keys list is required"},
		{"item rules", "name: x\ndescription: y\nitems: [{id: a, conditions: [{name: c, rules: {keys: [min-items]}}]}]", "cannot carry rules"},
		{"unknown op", "name: x\ndescription: y\nsteps: [{op: explode}]", `unknown op "explode"`},
		{"missing op", "name: x\ndescription: y\nsteps: [{item: a}]", "op is required"},
		{"update without change", "name: x\ndescription: y\nsteps: [{op: update, item: a}]", "quantity or price"},
		{"bad clock step", "name: x\ndescription: y\nsteps: [{op: clock, at: soon}]", "steps[0]: at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\ndescription: y\ncatalog: nope.cue\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog not found")
}
