package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/featsql/internal/engine"
	"github.com/roach88/featsql/internal/feature"
	"github.com/roach88/featsql/internal/metrics"
	"github.com/roach88/featsql/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	requestFlags
	DSN         string
	Fingerprint bool
}

// QueryOutput is the JSON payload of a successful query.
type QueryOutput struct {
	Type        string          `json:"type"`
	Returned    int64           `json:"returned"`
	Matched     int64           `json:"matched"`
	Skipped     int64           `json:"skipped"`
	Rows        int             `json:"rows"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Events      json.RawMessage `json:"events"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <provider-dir>",
		Short: "Run a feature query and print the feature stream",
		Long: `Run a feature query against the provider's database and print the
decoded feature event stream.

Text output prints one line per event; JSON output carries the events in
canonical JSON.

Exit codes:
  0 - Query succeeded
  1 - Query failed (filter rejected, SQL error, decode error)
  2 - Command error (invalid provider, database not reachable, etc.)

Examples:
  featsql query ./provider --type building --limit 5
  featsql query ./provider --dsn ./other.db --sort -name --count-skipped --offset 10
  featsql query ./provider --filter @filter.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	addRequestFlags(cmd, &opts.requestFlags)
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "database DSN (overrides the provider's connection)")
	cmd.Flags().BoolVar(&opts.Fingerprint, "fingerprint", false, "print the SHA-256 fingerprint of the stream")
	return cmd
}

func runQuery(opts *QueryOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	p, err := loadProvider(f, dir)
	if err != nil {
		return err
	}

	dsn := p.DSN
	if opts.DSN != "" {
		dsn = opts.DSN
	}
	driver, err := store.DriverFor(p.Dialect)
	if err != nil {
		_ = f.Error(ErrCodeUnreachable, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unsupported dialect", err)
	}
	st, err := store.Open(driver, dsn, store.WithLogger(slog.Default()))
	if err != nil {
		_ = f.Error(ErrCodeUnreachable, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	f.VerboseLog("Opened %s database", driver)

	m := metrics.New(prometheus.NewRegistry())
	e, err := newEngine(f, p, st, engine.WithMetrics(m), engine.WithDecoderLogger(slog.Default()))
	if err != nil {
		return err
	}

	req, err := opts.request()
	if err != nil {
		_ = f.Error(ErrCodeBadFilter, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid request", err)
	}
	if req.Type, err = opts.typeName(e); err != nil {
		_ = f.Error(ErrCodeBadFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	rec := feature.NewRecorder()
	res, err := e.Query(cmd.Context(), req, rec)
	if err != nil {
		_ = f.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "query failed", err)
	}

	var fingerprint string
	if opts.Fingerprint {
		if fingerprint, err = feature.Fingerprint(rec.Events()); err != nil {
			return WrapExitError(ExitFailure, "fingerprint", err)
		}
	}

	if f.JSON() {
		events, err := feature.MarshalCanonical(rec.Events())
		if err != nil {
			return WrapExitError(ExitFailure, "encode events", err)
		}
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "ok",
			QueryID: res.QueryID,
			Data: QueryOutput{
				Type:        req.Type,
				Returned:    res.Meta.NumberReturned,
				Matched:     res.Meta.NumberMatched,
				Skipped:     res.Meta.NumberSkipped,
				Rows:        res.Rows,
				Fingerprint: fingerprint,
				Events:      events,
			},
		})
	}

	if trace := rec.Trace(); trace != "" {
		fmt.Fprintln(f.Writer, trace)
	}
	if fingerprint != "" {
		fmt.Fprintf(f.Writer, "fingerprint %s\n", fingerprint)
	}
	f.VerboseLog("query %s: %d feature(s), %d row(s)", res.QueryID, res.Meta.NumberReturned, res.Rows)
	return nil
}
