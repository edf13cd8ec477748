package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/harness"
	"github.com/roach88/cartprice/internal/pricing"
)

// TotalsOptions holds flags for the totals command.
type TotalsOptions struct {
	*RootOptions
	Cart     string
	Instance string
}

// TotalsResult is the JSON payload of the totals command.
type TotalsResult struct {
	Name       string         `json:"name"`
	Pass       bool           `json:"pass"`
	Errors     []string       `json:"errors,omitempty"`
	Totals     pricing.Totals `json:"totals"`
	Conditions []string       `json:"conditions"`

	// Revision counts writes to a stored cart. Zero for scenarios.
	Revision int64 `json:"revision,omitempty"`
}

// NewTotalsCommand creates the totals command.
func NewTotalsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TotalsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "totals [scenario.yaml]",
		Short: "Price a scenario or a stored cart",
		Long: `Price a cart and print its breakdown.

With a scenario file, the scenario runs against an in-memory database and
its expectations are checked. With --cart, the stored cart is priced after
its persisted dynamic conditions are restored.

Exit codes:
  0 - Priced; every expectation held
  1 - One or more expectations failed
  2 - Command error (invalid scenario, database errors)

Examples:
  cartctl totals ./scenarios/bulk.yaml
  cartctl totals --db cart.db --cart user-42`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.Cart != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Cart != "" {
				return runStoredTotals(opts, cmd)
			}
			return runScenarioTotals(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cart, "cart", "", "price the stored cart with this identifier")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "cart instance (default from config)")

	return cmd
}

func runScenarioTotals(opts *TotalsOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	s, err := harness.LoadScenario(path)
	if err != nil {
		_ = f.Error(CodeInvalidScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid scenario", err)
	}
	f.VerboseLog("Running scenario %s", s.Name)

	result, err := harness.Run(cmd.Context(), s, harness.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))
	if err != nil {
		_ = f.Error(CodeInvalidScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario failed to run", err)
	}

	out := TotalsResult{
		Name:       result.Name,
		Pass:       result.Pass,
		Errors:     result.Errors,
		Totals:     result.Totals,
		Conditions: result.Conditions,
	}
	if err := f.Success(out, func(w io.Writer) { writeTotals(w, out) }); err != nil {
		return err
	}
	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d expectation(s) failed", len(result.Errors)))
	}
	return nil
}

func runStoredTotals(opts *TotalsOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	instance := opts.Instance
	if instance == "" {
		instance = opts.Config.Instance
	}
	id := cart.NewIdentity(opts.Cart, instance)
	ctx := cmd.Context()

	if err := a.engine.RestoreAll(ctx, id); err != nil {
		_ = f.Error(CodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to restore rules", err)
	}
	c, err := a.service.Get(ctx, id)
	if err != nil {
		_ = f.Error(CodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read cart", err)
	}
	totals, err := a.service.Totals(ctx, id)
	if err != nil {
		_ = f.Error(CodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to price cart", err)
	}

	rev, err := a.store.Revision(ctx, id)
	if err != nil {
		_ = f.Error(CodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read cart", err)
	}

	out := TotalsResult{
		Name:       id.String(),
		Pass:       true,
		Totals:     totals,
		Conditions: c.Conditions().Names(),
		Revision:   rev,
	}
	return f.Success(out, func(w io.Writer) { writeTotals(w, out) })
}

func writeTotals(w io.Writer, r TotalsResult) {
	fmt.Fprintf(w, "%s (%s)\n\n", r.Name, r.Totals.Currency)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tQTY\tPRICE\tSUBTOTAL")
	for _, l := range r.Totals.Lines {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\n", l.ID, l.Quantity, l.Price, l.Subtotal)
	}
	_ = tw.Flush()

	if len(r.Totals.Adjustments) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CONDITION\tTYPE\tTARGET\tAMOUNT")
		for _, a := range r.Totals.Adjustments {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%+.2f\n", a.Name, a.Kind, a.Target, a.Amount)
		}
		_ = tw.Flush()
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Subtotal: %.2f\n", r.Totals.Subtotal)
	fmt.Fprintf(w, "Total:    %.2f\n", r.Totals.Total)
	fmt.Fprintf(w, "Savings:  %.2f\n", r.Totals.Savings)
	if r.Revision > 0 {
		fmt.Fprintf(w, "Revision: %d\n", r.Revision)
	}

	for _, msg := range r.Errors {
		fmt.Fprintf(w, "FAIL: %s\n", msg)
	}
}
