package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cartprice/internal/condition"
)

// Scenario is a cart pricing scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Currency is an ISO 4217 code. Defaults to USD.
	Currency string `yaml:"currency,omitempty"`

	// Clock is the RFC 3339 wall time rules see. Defaults to DefaultClock.
	Clock string `yaml:"clock,omitempty"`

	// Catalog is an optional CUE condition catalog applied after items
	// and conditions.
	Catalog string `yaml:"catalog,omitempty"`

	Metadata   map[string]any  `yaml:"metadata,omitempty"`
	Items      []ItemSpec      `yaml:"items,omitempty"`
	Conditions []ConditionSpec `yaml:"conditions,omitempty"`
	Steps      []Step          `yaml:"steps,omitempty"`
	Expect     Expectation     `yaml:"expect"`

	dir string
}

// DefaultClock is the scenario clock when none is given.
const DefaultClock = "2024-01-01T00:00:00Z"

// ItemSpec describes a cart line.
type ItemSpec struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Price      float64         `yaml:"price"`
	Quantity   int             `yaml:"quantity"`
	Attributes map[string]any  `yaml:"attributes,omitempty"`
	Conditions []ConditionSpec `yaml:"conditions,omitempty"`
}

// ConditionSpec describes a condition. With Rules it is dynamic.
type ConditionSpec struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Target     string         `yaml:"target"`
	Value      string         `yaml:"value"`
	Order      int            `yaml:"order,omitempty"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
	Rules      *RulesSpec     `yaml:"rules,omitempty"`
}

// RulesSpec names factory rules and their shared context.
type RulesSpec struct {
	Keys    []string       `yaml:"keys"`
	Context map[string]any `yaml:"context,omitempty"`

	// Persist defaults to true.
	Persist *bool `yaml:"persist,omitempty"`
}

// Definition returns the condition definition without rules.
func (c ConditionSpec) Definition() condition.Definition {
	return condition.Definition{
		Name:       c.Name,
		Kind:       c.Type,
		Target:     condition.Target(c.Target),
		Value:      c.Value,
		Order:      c.Order,
		Attributes: c.Attributes,
	}
}

// Step is one mutation applied after the initial cart is built.
type Step struct {
	Op        string    `yaml:"op"`
	Item      string    `yaml:"item,omitempty"`
	Add       *ItemSpec `yaml:"add,omitempty"`
	Quantity  *int      `yaml:"quantity,omitempty"`
	Relative  bool      `yaml:"relative,omitempty"`
	Price     *float64  `yaml:"price,omitempty"`
	Key       string    `yaml:"key,omitempty"`
	Value     any       `yaml:"value,omitempty"`
	At        string    `yaml:"at,omitempty"`
	Condition string    `yaml:"condition,omitempty"`
}

// Step operations.
const (
	OpAdd        = "add"
	OpUpdate     = "update"
	OpRemove     = "remove"
	OpClear      = "clear"
	OpMetadata   = "metadata"
	OpClock      = "clock"
	OpRestart    = "restart"
	OpUnregister = "unregister"
)

// Expectation holds the checks run against the final cart. Unset fields
// are not checked.
type Expectation struct {
	Subtotal   *float64 `yaml:"subtotal,omitempty"`
	Total      *float64 `yaml:"total,omitempty"`
	Savings    *float64 `yaml:"savings,omitempty"`
	Count      *int     `yaml:"count,omitempty"`
	Conditions []string `yaml:"conditions,omitempty"`
	Absent     []string `yaml:"absent,omitempty"`
	Events     []string `yaml:"events,omitempty"`
	Failures   *int     `yaml:"failures,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	if err := s.checkCatalog(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. Catalog paths are
// resolved against the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// CatalogPath returns the catalog path resolved against the scenario file.
func (s *Scenario) CatalogPath() string {
	if s.Catalog == "" || filepath.IsAbs(s.Catalog) || s.dir == "" {
		return s.Catalog
	}
	return filepath.Join(s.dir, s.Catalog)
}

func (s *Scenario) checkCatalog() error {
	if s.Catalog == "" {
		return nil
	}
	if _, err := os.Stat(s.CatalogPath()); err != nil {
		return fmt.Errorf("catalog not found: %s", s.CatalogPath())
	}
	return nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Clock != "" {
		if _, err := time.Parse(time.RFC3339, s.Clock); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
	}

	for i, it := range s.Items {
		if err := validateItem(fmt.Sprintf("items[%d]", i), it); err != nil {
			return err
		}
	}
	for i, c := range s.Conditions {
		if err := validateCondition(fmt.Sprintf("conditions[%d]", i), c); err != nil {
			return err
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(where string, it ItemSpec) error {
	if it.ID == "" {
		return fmt.Errorf("%s: id is required", where)
	}
	for i, c := range it.Conditions {
		if c.Rules != nil {
			return fmt.Errorf("%s.conditions[%d]: item conditions cannot carry rules", where, i)
		}
		if err := validateCondition(fmt.Sprintf("%s.conditions[%d]", where, i), c); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(where string, c ConditionSpec) error {
	if c.Name == "" {
		return fmt.Errorf("%s: name is required", where)
	}
	if c.Rules != nil && len(c.Rules.Keys) == 0 {
		return fmt.Errorf("%s.rules: keys list is required and must be non-empty", where)
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch step.Op {
	case OpAdd:
		if step.Add == nil {
			return fmt.Errorf("steps[%d]: add requires an item", i)
		}
		return validateItem(fmt.Sprintf("steps[%d].add", i), *step.Add)
	case OpUpdate:
		if step.Item == "" {
			return fmt.Errorf("steps[%d]: item is required for update", i)
		}
		if step.Quantity == nil && step.Price == nil {
			return fmt.Errorf("steps[%d]: update needs quantity or price", i)
		}
	case OpRemove:
		if step.Item == "" {
			return fmt.Errorf("steps[%d]: item is required for remove", i)
		}
	case OpMetadata:
		if step.Key == "" {
			return fmt.Errorf("steps[%d]: key is required for metadata", i)
		}
	case OpClock:
		if _, err := time.Parse(time.RFC3339, step.At); err != nil {
			return fmt.Errorf("steps[%d]: at: %w", i, err)
		}
	case OpUnregister:
		if step.Condition == "" {
			return fmt.Errorf("steps[%d]: condition is required for unregister", i)
		}
	case OpClear, OpRestart:
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	return nil
}
