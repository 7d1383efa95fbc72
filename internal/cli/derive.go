package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/featsql/internal/engine"
)

// DeriveOptions holds flags for the derive command.
type DeriveOptions struct {
	*RootOptions
	requestFlags
}

// DerivedPlan is the SQL of one feature type.
type DerivedPlan struct {
	Type   string            `json:"type"`
	Meta   string            `json:"meta"`
	Values []engine.TableSQL `json:"values"`
}

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeriveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "derive <provider-dir>",
		Short: "Print the SQL derived for feature types",
		Long: `Derive the join graph and SQL templates of every feature type of a
provider and print the meta and value queries a request would run.

Value queries are shown without the key range of the meta query result.

Examples:
  featsql derive ./provider
  featsql derive ./provider --type building --limit 10 --sort -name
  featsql derive ./provider --type building --filter '{"op":"=","args":[{"property":"name"},"A"]}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(opts, args[0], cmd)
		},
	}

	addRequestFlags(cmd, &opts.requestFlags)
	return cmd
}

func addRequestFlags(cmd *cobra.Command, r *requestFlags) {
	cmd.Flags().StringVarP(&r.Type, "type", "t", "", "feature type")
	cmd.Flags().Int64Var(&r.Limit, "limit", 10, "maximum number of features (0 = unlimited)")
	cmd.Flags().Int64Var(&r.Offset, "offset", 0, "number of features to skip")
	cmd.Flags().StringSliceVar(&r.Sort, "sort", nil, "sort keys, -name for descending")
	cmd.Flags().StringVar(&r.Filter, "filter", "", "CQL2-JSON filter, or @file")
	cmd.Flags().BoolVar(&r.CountSkipped, "count-skipped", false, "compute numberSkipped")
}

func runDerive(opts *DeriveOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	p, err := loadProvider(f, dir)
	if err != nil {
		return err
	}
	e, err := newEngine(f, p, nil)
	if err != nil {
		return err
	}

	req, err := opts.request()
	if err != nil {
		_ = f.Error(ErrCodeBadFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	types := e.Types()
	if opts.Type != "" {
		types = []string{opts.Type}
	}

	plans := make([]DerivedPlan, 0, len(types))
	for _, name := range types {
		req.Type = name
		plan, err := e.Explain(req)
		if err != nil {
			_ = f.Error(errorCode(err), err.Error(), nil)
			return WrapExitError(ExitFailure, "derive failed", err)
		}
		plans = append(plans, DerivedPlan{Type: name, Meta: plan.Meta, Values: plan.Values})
	}

	if f.JSON() {
		return f.Success(plans)
	}
	w := f.Writer
	for _, plan := range plans {
		fmt.Fprintf(w, "-- %s: meta\n%s\n", plan.Type, plan.Meta)
		for _, v := range plan.Values {
			fmt.Fprintf(w, "-- %s: %s\n%s\n", plan.Type, v.Table, v.SQL)
		}
	}
	return nil
}
