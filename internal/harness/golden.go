package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden-file view of a result.
func (r *Result) Snapshot() ([]byte, error) {
	return json.MarshalIndent(struct {
		Name       string   `json:"name"`
		Totals     any      `json:"totals"`
		Conditions []string `json:"conditions"`
		Registered []string `json:"registered"`
	}{r.Name, r.Totals, r.Conditions, r.Registered}, "", "  ")
}

// RunWithGolden runs a scenario, fails the test on unmet expectations and
// compares the snapshot with testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()

	result, err := Run(context.Background(), s, opts...)
	if err != nil {
		t.Fatalf("run %s: %v", s.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", s.Name, msg)
	}

	snapshot, err := result.Snapshot()
	if err != nil {
		t.Fatalf("snapshot %s: %v", s.Name, err)
	}
	snapshot = append(snapshot, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, snapshot)
	return result
}
