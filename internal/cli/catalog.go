package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/catalog"
)

// CatalogEntryInfo summarizes one catalog entry.
type CatalogEntryInfo struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Target  string   `json:"target"`
	Value   string   `json:"value"`
	Dynamic bool     `json:"dynamic"`
	Keys    []string `json:"keys,omitempty"`
}

// CatalogResult is the JSON payload of the catalog commands.
type CatalogResult struct {
	Valid   bool               `json:"valid"`
	Entries []CatalogEntryInfo `json:"entries,omitempty"`
	Line    int                `json:"line,omitempty"`
	Applied string             `json:"applied,omitempty"`
}

// CatalogOptions holds flags for catalog apply.
type CatalogOptions struct {
	*RootOptions
	Cart     string
	Instance string
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with CUE condition catalogs",
	}
	cmd.AddCommand(newCatalogValidateCommand(rootOpts))
	cmd.AddCommand(newCatalogApplyCommand(rootOpts))
	return cmd
}

func newCatalogValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.cue|dir>",
		Short: "Validate a condition catalog",
		Long: `Validate a CUE condition catalog against the catalog schema.

Rule keys and their contexts are checked against the built-in rules.

Exit codes:
  0 - Catalog is valid
  1 - Catalog is invalid
  2 - Command error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogValidate(rootOpts, args[0], cmd)
		},
	}
}

func newCatalogApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "apply <file.cue|dir>",
		Short: "Attach a catalog's conditions to a stored cart",
		Long: `Attach a catalog's conditions to a stored cart.

Without --cart the conditions go to a new guest cart, whose identifier
is printed so it can be filled and later migrated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogApply(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Cart, "cart", "", "cart identifier (default: a new guest cart)")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "cart instance (default from config)")
	return cmd
}

func loadCatalog(opts *RootOptions, path string, f *OutputFormatter) (*catalog.Catalog, error) {
	factory, err := newFactory(opts)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.LoadFile(path, factory)
	if err == nil {
		return cat, nil
	}

	result := CatalogResult{Valid: false}
	var ce *catalog.Error
	if errors.As(err, &ce) && ce.Pos.IsValid() {
		result.Line = ce.Pos.Line()
	}
	_ = f.Error(CodeInvalidCatalog, err.Error(), result)
	return nil, WrapExitError(ExitFailure, "invalid catalog", err)
}

func summarize(cat *catalog.Catalog) []CatalogEntryInfo {
	out := make([]CatalogEntryInfo, 0, len(cat.Entries))
	for _, e := range cat.Entries {
		info := CatalogEntryInfo{
			Name:    e.Definition.Name,
			Type:    e.Definition.Kind,
			Target:  string(e.Definition.Target),
			Value:   e.Definition.Value,
			Dynamic: e.Dynamic(),
		}
		for _, k := range e.Keys {
			info.Keys = append(info.Keys, string(k))
		}
		out = append(out, info)
	}
	return out
}

func writeEntries(w io.Writer, entries []CatalogEntryInfo) {
	for _, e := range entries {
		rules := "static"
		if e.Dynamic {
			rules = strings.Join(e.Keys, ", ")
		}
		fmt.Fprintf(w, "  %s: %s %s %s [%s]\n", e.Name, e.Type, e.Target, e.Value, rules)
	}
}

func runCatalogValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cat, err := loadCatalog(opts, path, f)
	if err != nil {
		return err
	}

	result := CatalogResult{Valid: true, Entries: summarize(cat)}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s: %d condition(s)\n", path, len(result.Entries))
		if opts.Verbose {
			writeEntries(w, result.Entries)
		}
	})
}

func runCatalogApply(opts *CatalogOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	cat, err := loadCatalog(opts.RootOptions, path, f)
	if err != nil {
		return err
	}

	instance := opts.Instance
	if instance == "" {
		instance = opts.Config.Instance
	}
	identifier := opts.Cart
	if identifier == "" {
		identifier = cart.NewGuestIdentifier()
	}
	id := cart.NewIdentity(identifier, instance)
	ctx := cmd.Context()

	if err := a.engine.RestoreAll(ctx, id); err != nil {
		_ = f.Error(CodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to restore rules", err)
	}
	if err := cat.Apply(ctx, a.service, a.engine, id); err != nil {
		_ = f.Error(CodeInvalidArgument, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to apply catalog", err)
	}

	result := CatalogResult{Valid: true, Entries: summarize(cat), Applied: id.String()}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Applied %d condition(s) to %s\n", len(result.Entries), id)
		writeEntries(w, result.Entries)
	})
}
