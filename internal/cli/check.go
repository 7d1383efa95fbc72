package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/featsql/internal/cql"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	requestFlags
}

// CheckResult is the outcome of a filter check.
type CheckResult struct {
	Type   string `json:"type"`
	Filter string `json:"filter"`
	Valid  bool   `json:"valid"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <provider-dir>",
		Short: "Type-check a CQL2 filter against a feature type",
		Long: `Type-check a CQL2-JSON filter against the properties of a feature type
without touching the database.

Exit codes:
  0 - The filter is a valid predicate
  1 - The filter is rejected
  2 - Command error (invalid provider, unparsable filter, etc.)

Examples:
  featsql check ./provider --type building --filter '{"op":"like","args":[{"property":"name"},"A%"]}'
  featsql check ./provider --filter @filter.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "feature type")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "CQL2-JSON filter, or @file (required)")
	_ = cmd.MarkFlagRequired("filter")
	return cmd
}

func runCheck(opts *CheckOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	p, err := loadProvider(f, dir)
	if err != nil {
		return err
	}
	e, err := newEngine(f, p, nil)
	if err != nil {
		return err
	}

	typeName, err := opts.typeName(e)
	if err != nil {
		_ = f.Error(ErrCodeBadFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid request", err)
	}
	req, err := opts.request()
	if err != nil {
		_ = f.Error(ErrCodeBadFilter, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	text := cql.Text(req.Filter)
	if err := e.Check(typeName, req.Filter); err != nil {
		_ = f.Error(errorCode(err), err.Error(), CheckResult{Type: typeName, Filter: text})
		return WrapExitError(ExitFailure, "filter rejected", err)
	}

	if f.JSON() {
		return f.Success(CheckResult{Type: typeName, Filter: text, Valid: true})
	}
	return f.Success(fmt.Sprintf("ok %s: %s", typeName, text))
}
