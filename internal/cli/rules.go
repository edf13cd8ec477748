package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// RuleKeyInfo describes one rule key for output.
type RuleKeyInfo struct {
	Key         string      `json:"key"`
	Description string      `json:"description"`
	Fields      []FieldInfo `json:"fields"`
}

// FieldInfo describes one context field of a rule key.
type FieldInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Optional bool   `json:"optional,omitempty"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List rule keys and their context fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(rootOpts, cmd)
		},
	}
}

func runRules(opts *RootOptions, cmd *cobra.Command) error {
	factory, err := newFactory(opts)
	if err != nil {
		return err
	}

	keys := []RuleKeyInfo{}
	for _, k := range factory.Keys() {
		spec, _ := factory.Spec(k)
		info := RuleKeyInfo{Key: string(k), Description: spec.Description, Fields: []FieldInfo{}}
		for _, fld := range spec.Fields {
			info.Fields = append(info.Fields, FieldInfo{Name: fld.Name, Kind: fld.Kind.String(), Optional: fld.Optional})
		}
		keys = append(keys, info)
	}

	return opts.formatter(cmd).Success(keys, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tFIELDS\tDESCRIPTION")
		for _, k := range keys {
			fields := make([]string, 0, len(k.Fields))
			for _, fld := range k.Fields {
				s := fld.Name + ":" + fld.Kind
				if fld.Optional {
					s += "?"
				}
				fields = append(fields, s)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", k.Key, strings.Join(fields, " "), k.Description)
		}
		_ = tw.Flush()
	})
}
