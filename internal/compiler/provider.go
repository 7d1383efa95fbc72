package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/featsql/internal/dialect"
	"github.com/roach88/featsql/internal/engine"
	"github.com/roach88/featsql/internal/mapping"
	"github.com/roach88/featsql/internal/querysql"
)

//go:embed schema.cue
var schemaSource string

// Provider is a compiled provider configuration: where the data lives, how
// queries are rendered and which feature types are served.
type Provider struct {
	Dialect string
	DSN     string
	Queries Queries
	Types   []engine.FeatureType
}

// Queries holds the query tuning of a provider.
type Queries struct {
	Concurrency          int    `json:"concurrency"`
	ComputeNumberMatched bool   `json:"computeNumberMatched"`
	NullOrder            string `json:"nullOrder"`
	GeometryEncoding     string `json:"geometryEncoding"`
	ForcePolygonCCW      bool   `json:"forcePolygonCCW"`
	LinearizeCurves      bool   `json:"linearizeCurves"`
	CacheSize            int    `json:"cacheSize"`
}

// QueryOptions returns the template options of the provider.
func (p *Provider) QueryOptions() querysql.Options {
	return querysql.Options{
		ComputeNumberMatched: p.Queries.ComputeNumberMatched,
		NullOrder:            p.Queries.NullOrder,
	}
}

// MappingOptions returns the column options of the provider.
func (p *Provider) MappingOptions() mapping.Options {
	return mapping.Options{
		GeometryEncoding: mapping.Operation(p.Queries.GeometryEncoding),
		ForcePolygonCCW:  p.Queries.ForcePolygonCCW,
		LinearizeCurves:  p.Queries.LinearizeCurves,
	}
}

// EngineOptions returns the engine options carrying the provider's query
// settings.
func (p *Provider) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithQueryOptions(p.QueryOptions()),
		engine.WithMappingOptions(p.MappingOptions()),
		engine.WithCacheSize(p.Queries.CacheSize),
		engine.WithConcurrency(p.Queries.Concurrency),
	}
}

// SQLDialect resolves the provider's dialect.
func (p *Provider) SQLDialect() (dialect.Dialect, error) {
	return dialect.Lookup(p.Dialect)
}

// LoadProvider loads the CUE files of dir and compiles their provider value.
func LoadProvider(dir string) (*Provider, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &CompileError{Code: ErrCodeNotFound, Field: "dir",
			Message: fmt.Sprintf("provider directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &CompileError{Code: ErrCodeNotFound, Field: "dir",
			Message: fmt.Sprintf("error accessing provider directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &CompileError{Code: ErrCodeNotFound, Field: "dir",
			Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &CompileError{Code: ErrCodeLoadFailed, Field: "dir",
			Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &CompileError{Code: ErrCodeNoFiles, Field: "dir",
			Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &CompileError{Code: ErrCodeLoadFailed, Field: "dir",
			Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(ErrCodeLoadFailed, "", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, "", err)
	}
	return CompileProvider(value)
}

// CompileProvider validates the provider field of v against the provider
// schema and converts it. Defaults of the schema fill omitted settings.
func CompileProvider(v cue.Value) (*Provider, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, "", err)
	}

	raw := v.LookupPath(cue.ParsePath("provider"))
	if !raw.Exists() {
		return nil, &CompileError{Code: ErrCodeInvalid, Field: "provider",
			Message: "provider is required", Pos: v.Pos()}
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, "schema", err)
	}
	pv := schema.LookupPath(cue.ParsePath("#Provider")).Unify(raw)
	if err := pv.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(ErrCodeInvalid, "", err)
	}

	p := &Provider{}
	var err error
	if p.Dialect, err = pv.LookupPath(cue.ParsePath("dialect")).String(); err != nil {
		return nil, formatCUEError(ErrCodeInvalid, "dialect", err)
	}
	if p.DSN, err = pv.LookupPath(cue.ParsePath("connection.dsn")).String(); err != nil {
		return nil, formatCUEError(ErrCodeInvalid, "connection.dsn", err)
	}
	if err := pv.LookupPath(cue.ParsePath("queries")).Decode(&p.Queries); err != nil {
		return nil, formatCUEError(ErrCodeInvalid, "queries", err)
	}

	p.Types, err = compileTypes(pv.LookupPath(cue.ParsePath("types")), raw.LookupPath(cue.ParsePath("types")))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// compileTypes converts the feature types in declaration order. Positions
// are taken from raw, the value as written.
func compileTypes(v, raw cue.Value) ([]engine.FeatureType, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(ErrCodeInvalid, "types", err)
	}

	var types []engine.FeatureType
	for iter.Next() {
		name := iter.Selector().Unquoted()
		list, err := iter.Value().List()
		if err != nil {
			return nil, formatCUEError(ErrCodeInvalid, "types."+name, err)
		}

		ft := engine.FeatureType{Name: name}
		for list.Next() {
			var rule mapping.Rule
			if err := list.Value().Decode(&rule); err != nil {
				return nil, formatCUEError(ErrCodeInvalid, "types."+name, err)
			}
			ft.Rules = append(ft.Rules, rule)
		}
		if len(ft.Rules) == 0 {
			return nil, &CompileError{Code: ErrCodeEmptyType, Field: "types." + name,
				Message: "feature type has no rules",
				Pos: raw.LookupPath(cue.MakePath(iter.Selector())).Pos()}
		}
		types = append(types, ft)
	}

	if len(types) == 0 {
		return nil, &CompileError{Code: ErrCodeNoTypes, Field: "types",
			Message: "at least one feature type is required", Pos: raw.Pos()}
	}
	return types, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".cue") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
