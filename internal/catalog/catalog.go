package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/engine"
	"github.com/roach88/cartprice/internal/rules"
)

//go:embed schema.cue
var schemaSource string

// Error reports an invalid catalog entry with its CUE position.
type Error struct {
	Entry   string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	loc := e.Entry
	if e.Field != "" && loc != "" {
		loc += "." + e.Field
	} else if e.Field != "" {
		loc = e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), loc, e.Message)
	}
	if loc == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

// Entry is one named condition from a catalog.
type Entry struct {
	Definition condition.Definition
	Keys       []rules.Key
	Context    rules.Context
	Persist    bool
}

// Dynamic reports whether the entry carries rules.
func (e Entry) Dynamic() bool { return len(e.Keys) > 0 }

// Source returns the engine rules source for a dynamic entry.
func (e Entry) Source() engine.FactoryKeys {
	return engine.FactoryKeys{Keys: e.Keys, Context: e.Context, Persist: e.Persist}
}

// Catalog is a validated set of entries sorted by name.
type Catalog struct {
	Entries []Entry
}

// entry mirrors #Condition for decoding.
type entry struct {
	Type       string         `json:"type"`
	Target     string         `json:"target"`
	Value      string         `json:"value"`
	Order      int            `json:"order"`
	Attributes map[string]any `json:"attributes"`
	Rules      *struct {
		Keys    []string       `json:"keys"`
		Context map[string]any `json:"context"`
		Persist bool           `json:"persist"`
	} `json:"rules"`
}

// LoadFile reads a single .cue file, or every .cue file of a CUE package
// when path is a directory.
func LoadFile(path string, f *rules.Factory) (*Catalog, error) {
	ctx := cuecontext.New()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, fmt.Errorf("catalog: no CUE instances in %s", path)
		}
		if err := instances[0].Err; err != nil {
			return nil, formatCUEError(err)
		}
		v = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		v = ctx.CompileBytes(data, cue.Filename(filepath.Base(path)))
	}
	return build(ctx, v, f)
}

// Parse compiles catalog source held in memory.
func Parse(src []byte, f *rules.Factory) (*Catalog, error) {
	ctx := cuecontext.New()
	return build(ctx, ctx.CompileBytes(src, cue.Filename("catalog.cue")), f)
}

func build(ctx *cue.Context, v cue.Value, f *rules.Factory) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	conds := unified.LookupPath(cue.ParsePath("condition"))
	if !conds.Exists() {
		return nil, &Error{Message: "no condition entries found"}
	}
	iter, err := conds.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cat := &Catalog{}
	for iter.Next() {
		e, err := compileEntry(iter.Selector().Unquoted(), iter.Value(), f)
		if err != nil {
			return nil, err
		}
		cat.Entries = append(cat.Entries, e)
	}
	if len(cat.Entries) == 0 {
		return nil, &Error{Message: "no condition entries found"}
	}
	sort.Slice(cat.Entries, func(i, j int) bool {
		return cat.Entries[i].Definition.Name < cat.Entries[j].Definition.Name
	})
	return cat, nil
}

func compileEntry(name string, v cue.Value, f *rules.Factory) (Entry, error) {
	var raw entry
	if err := v.Decode(&raw); err != nil {
		return Entry{}, formatCUEError(err)
	}

	e := Entry{Definition: condition.Definition{
		Name:       name,
		Kind:       raw.Type,
		Target:     condition.Target(raw.Target),
		Value:      raw.Value,
		Attributes: raw.Attributes,
		Order:      raw.Order,
	}}

	// Validate the static part the same way the cart would.
	if _, err := condition.New(e.Definition); err != nil {
		var de *condition.DefinitionError
		field := ""
		if errors.As(err, &de) {
			field = de.Field
		}
		return Entry{}, &Error{Entry: name, Field: field, Message: err.Error(), Pos: v.Pos()}
	}

	if raw.Rules == nil {
		return e, nil
	}
	for _, k := range raw.Rules.Keys {
		e.Keys = append(e.Keys, rules.Key(k))
	}
	e.Context = rules.Context(raw.Rules.Context)
	e.Persist = raw.Rules.Persist
	if _, err := f.CreateAll(e.Keys, e.Context); err != nil {
		return Entry{}, &Error{Entry: name, Field: "rules", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("rules")).Pos()}
	}
	return e, nil
}

// Apply attaches every static entry to the cart and registers every
// dynamic one with the engine.
func (c *Catalog) Apply(ctx context.Context, svc *cart.Service, eng *engine.Engine, id cart.Identity) error {
	for _, e := range c.Entries {
		if e.Dynamic() {
			if err := eng.Register(ctx, id, e.Definition, e.Source()); err != nil {
				return fmt.Errorf("apply %s: %w", e.Definition.Name, err)
			}
			continue
		}
		cond, err := condition.New(e.Definition)
		if err != nil {
			return fmt.Errorf("apply %s: %w", e.Definition.Name, err)
		}
		if err := svc.AddCondition(ctx, id, cond); err != nil {
			return fmt.Errorf("apply %s: %w", e.Definition.Name, err)
		}
	}
	return nil
}

// formatCUEError keeps the first error with its path and position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	format, args := first.Msg()
	out := &Error{
		Field:   strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
