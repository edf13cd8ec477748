package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/migrate"
)

// MigrateOptions holds flags for the swap and migrate commands.
type MigrateOptions struct {
	*RootOptions
	Instance string
	Strategy string
}

// SwapResult is the JSON payload of the swap command.
type SwapResult struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Swapped bool   `json:"swapped"`
}

// NewSwapCommand creates the swap command.
func NewSwapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "swap <old-identifier> <new-identifier>",
		Short: "Move a whole cart to a new identifier",
		Long: `Move a whole cart, with its conditions and dynamic rules, to a new
identifier. Anything stored under the new identifier is replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSwap(opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "cart instance (default from config)")
	return cmd
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "migrate <guest-identifier> <user-identifier>",
		Short: "Merge a guest cart into a user's cart",
		Long: `Merge a guest cart into a user's cart and forget the guest cart.

Strategies for items present in both carts:
  add_quantities         sum both quantities (default)
  keep_highest_quantity  keep the larger quantity
  keep_user_cart         keep the user's line untouched
  replace_with_guest     take the guest's line`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "cart instance (default from config)")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "merge strategy (default from config)")
	return cmd
}

func (o *MigrateOptions) instance() string {
	if o.Instance != "" {
		return o.Instance
	}
	return o.Config.Instance
}

func runSwap(opts *MigrateOptions, oldID, newID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	from := cart.NewIdentity(oldID, opts.instance())
	if err := a.engine.RestoreAll(ctx, from); err != nil {
		_ = f.Error(CodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to restore rules", err)
	}

	swapped, err := a.migrator.Swap(ctx, oldID, newID, opts.instance())
	if err != nil {
		_ = f.Error(CodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "swap failed", err)
	}

	result := SwapResult{From: from.String(), To: cart.NewIdentity(newID, opts.instance()).String(), Swapped: swapped}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Swapped %s -> %s\n", result.From, result.To)
	})
}

func runMigrate(opts *MigrateOptions, guest, user string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if opts.Strategy != "" {
		s, err := migrate.ParseStrategy(opts.Strategy)
		if err != nil {
			_ = f.Error(CodeInvalidArgument, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid strategy", err)
		}
		opts.Config.MergeStrategy = string(s)
	}

	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	guestID := cart.NewIdentity(guest, opts.instance())
	userID := cart.NewIdentity(user, opts.instance())
	for _, id := range []cart.Identity{guestID, userID} {
		if err := a.engine.RestoreAll(ctx, id); err != nil {
			_ = f.Error(CodeStorage, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to restore rules", err)
		}
	}

	result, err := a.migrator.Migrate(ctx, user, opts.instance(), guest)
	if err != nil {
		_ = f.Error(CodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "migration failed", err)
	}

	return f.Success(result, func(w io.Writer) {
		if !result.Migrated {
			fmt.Fprintf(w, "Nothing to migrate: %s is empty\n", guestID)
			return
		}
		fmt.Fprintf(w, "Migrated %d line(s) from %s into %s (%s)\n", result.ItemCount, guestID, userID, result.Strategy)
		if result.HadConflicts {
			fmt.Fprintln(w, "Some items were in both carts")
		}
	})
}
