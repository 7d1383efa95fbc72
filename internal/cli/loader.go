package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/featsql/internal/compiler"
	"github.com/roach88/featsql/internal/cql"
	"github.com/roach88/featsql/internal/engine"
	"github.com/roach88/featsql/internal/mapping"
	"github.com/roach88/featsql/internal/querysql"
)

// Error codes of the CLI itself. Provider errors keep the compiler's codes,
// query errors the engine's.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeBadFilter   = "E020" // Filter is not valid CQL2-JSON
	ErrCodeBadFlag     = "E021" // Invalid flag value
	ErrCodeUnreachable = "E030" // Database cannot be opened
)

// loadProvider compiles the provider directory, reporting failures through
// f. The returned error carries ExitCommandError.
func loadProvider(f *OutputFormatter, dir string) (*compiler.Provider, error) {
	p, err := compiler.LoadProvider(dir)
	if err != nil {
		code := compiler.CodeOf(err)
		if code == "" {
			code = ErrCodeGeneric
		}
		_ = f.Error(code, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load provider", err)
	}
	f.VerboseLog("Loaded provider %s: dialect %s, %d feature type(s)", dir, p.Dialect, len(p.Types))
	return p, nil
}

// newEngine derives all feature types of the provider. A nil backend is
// enough for commands that do not run queries.
func newEngine(f *OutputFormatter, p *compiler.Provider, b engine.Backend, opts ...engine.Option) (*engine.Engine, error) {
	d, err := p.SQLDialect()
	if err != nil {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "unsupported dialect", err)
	}
	e, err := engine.New(b, d, p.Types, append(p.EngineOptions(), opts...)...)
	if err != nil {
		_ = f.Error(errorCode(err), err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to derive feature types", err)
	}
	return e, nil
}

// errorCode returns the most specific code for err.
func errorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	if code := compiler.CodeOf(err); code != "" {
		return code
	}
	var de *mapping.DerivationError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeGeneric
}

// requestFlags are the query parameters shared by derive, check and query.
type requestFlags struct {
	Type         string
	Limit        int64
	Offset       int64
	Sort         []string
	Filter       string
	CountSkipped bool
}

// request builds an engine request. The filter is CQL2-JSON, inline or
// read from a file with an @ prefix. Sort keys are property names, with a
// leading "-" for descending order.
func (r *requestFlags) request() (engine.Request, error) {
	req := engine.Request{
		Type:         r.Type,
		Limit:        r.Limit,
		Offset:       r.Offset,
		CountSkipped: r.CountSkipped,
	}
	if r.Limit < 0 || r.Offset < 0 {
		return req, fmt.Errorf("limit and offset must be non-negative")
	}
	for _, s := range r.Sort {
		key := querysql.SortKey{Property: strings.TrimPrefix(s, "-"), Descending: strings.HasPrefix(s, "-")}
		if key.Property == "" {
			return req, fmt.Errorf("empty sort key")
		}
		req.SortKeys = append(req.SortKeys, key)
	}
	if r.Filter != "" {
		data := []byte(r.Filter)
		if name, ok := strings.CutPrefix(r.Filter, "@"); ok {
			var err error
			if data, err = os.ReadFile(name); err != nil {
				return req, fmt.Errorf("read filter: %w", err)
			}
		}
		if !json.Valid(data) {
			return req, fmt.Errorf("filter is not valid JSON")
		}
		filter, err := cql.ParseJSON(data)
		if err != nil {
			return req, fmt.Errorf("parse filter: %w", err)
		}
		req.Filter = filter
	}
	return req, nil
}

// typeName defaults to the only feature type of a provider.
func (r *requestFlags) typeName(e *engine.Engine) (string, error) {
	if r.Type != "" {
		return r.Type, nil
	}
	if types := e.Types(); len(types) == 1 {
		return types[0], nil
	}
	return "", fmt.Errorf("--type is required: provider serves %s", strings.Join(e.Types(), ", "))
}
