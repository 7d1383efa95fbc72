package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/featsql/internal/cql"
	"github.com/roach88/featsql/internal/decoder"
	"github.com/roach88/featsql/internal/dialect"
	"github.com/roach88/featsql/internal/feature"
	"github.com/roach88/featsql/internal/mapping"
	"github.com/roach88/featsql/internal/metrics"
	"github.com/roach88/featsql/internal/querysql"
	"github.com/roach88/featsql/internal/store"
)

// Backend runs rendered SQL. Implemented by *store.Store.
type Backend interface {
	QueryMeta(ctx context.Context, query string) (decoder.RowMeta, error)
	QueryRows(ctx context.Context, query string, layout store.Layout, fn func(store.Record) error) error
}

// FeatureType declares one feature type by its mapping rules.
type FeatureType struct {
	Name  string
	Rules []mapping.Rule
}

// Request is one feature query.
type Request struct {
	// Type names the feature type.
	Type string

	// Limit of features; 0 means unlimited.
	Limit  int64
	Offset int64

	SortKeys []querysql.SortKey

	// Filter is a CQL2 predicate, or nil.
	Filter cql.Expr

	// CountSkipped requests numberSkipped.
	CountSkipped bool

	VirtualTables map[string]string
}

// Result summarizes one execution. The features went to the handler.
type Result struct {
	QueryID string
	Meta    decoder.RowMeta

	// Rows is the number of value rows decoded.
	Rows int
}

// Engine executes feature queries against a Backend.
//
// Thread-safety: an Engine is immutable after New; Query is safe for
// concurrent use.
type Engine struct {
	backend Backend
	dialect dialect.Dialect

	types map[string]*featureType
	names []string

	queryOpts   querysql.Options
	mappingOpts mapping.Options
	ids         QueryIDGenerator
	metrics     *metrics.Metrics
	connectors  map[string]decoder.Connector
	logger      *slog.Logger
	cacheSize   int
	concurrency int

	cache *sqlCache
}

// featureType is the derived, immutable state of one feature type.
type featureType struct {
	mapping   *mapping.SqlQueryMapping
	templates *querysql.Templates
	checker   *cql.TypeChecker
}

// Option configures an Engine.
type Option func(*Engine)

// WithQueryOptions sets the template derivation options.
func WithQueryOptions(opts querysql.Options) Option {
	return func(e *Engine) { e.queryOpts = opts }
}

// WithMappingOptions sets the mapping derivation options.
func WithMappingOptions(opts mapping.Options) Option {
	return func(e *Engine) { e.mappingOpts = opts }
}

// WithQueryIDs sets the query id generator. Default: UUIDv7Generator.
func WithQueryIDs(gen QueryIDGenerator) Option {
	return func(e *Engine) { e.ids = gen }
}

// WithMetrics records executions in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConnectors registers connector sub-decoders by name.
func WithConnectors(c map[string]decoder.Connector) Option {
	return func(e *Engine) { e.connectors = c }
}

// WithDecoderLogger sets the logger handed to decoders.
func WithDecoderLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCacheSize sets the number of rendered statements kept; 0 disables the
// cache. Default: DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(e *Engine) { e.cacheSize = n }
}

// WithConcurrency bounds the number of value queries run at once; 0 runs
// all tables of a type at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// New derives the join graph and templates of every feature type.
// A derivation error of any type fails New.
func New(b Backend, d dialect.Dialect, types []FeatureType, opts ...Option) (*Engine, error) {
	e := &Engine{
		backend:   b,
		dialect:   d,
		types:     make(map[string]*featureType, len(types)),
		ids:       UUIDv7Generator{},
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}

	deriver := querysql.NewDeriver(d, e.queryOpts)
	for _, ft := range types {
		if _, dup := e.types[ft.Name]; dup {
			return nil, fmt.Errorf("duplicate feature type %q", ft.Name)
		}
		m, err := mapping.Derive(ft.Name, ft.Rules, e.mappingOpts)
		if err != nil {
			return nil, err
		}
		t, err := deriver.Derive(m)
		if err != nil {
			return nil, err
		}
		e.types[ft.Name] = &featureType{
			mapping:   m,
			templates: t,
			checker:   cql.NewTypeChecker(m.PropertyTypes()),
		}
		e.names = append(e.names, ft.Name)
		slog.Debug("feature type derived",
			"type", ft.Name,
			"tables", len(m.Tables),
			"relations", len(m.Relations()))
	}
	slices.Sort(e.names)

	cache, err := newSQLCache(e.cacheSize, e.metrics)
	if err != nil {
		return nil, err
	}
	e.cache = cache
	return e, nil
}

// Types returns the feature type names in sorted order.
func (e *Engine) Types() []string {
	return slices.Clone(e.names)
}

// Mapping returns the derived join graph of a feature type.
func (e *Engine) Mapping(name string) (*mapping.SqlQueryMapping, bool) {
	ft, ok := e.types[name]
	if !ok {
		return nil, false
	}
	return ft.mapping, true
}

// Templates returns the query templates of a feature type.
func (e *Engine) Templates(name string) (*querysql.Templates, bool) {
	ft, ok := e.types[name]
	if !ok {
		return nil, false
	}
	return ft.templates, true
}

// Check type-checks filter against the properties of a feature type.
func (e *Engine) Check(typeName string, filter cql.Expr) error {
	ft, ok := e.types[typeName]
	if !ok {
		return newRuntimeError(ErrCodeUnknownType, typeName, "", "unknown feature type", nil)
	}
	return ft.check(typeName, "", filter)
}

func (ft *featureType) check(typeName, queryID string, filter cql.Expr) error {
	if filter == nil {
		return nil
	}
	typ, err := ft.checker.Check(filter)
	if err != nil {
		return newRuntimeError(ErrCodeTypeCheckFailed, typeName, queryID, "filter does not type-check", err)
	}
	if typ != cql.Boolean {
		return newRuntimeError(ErrCodeTypeCheckFailed, typeName, queryID,
			fmt.Sprintf("filter is %s, not a predicate", typ), nil)
	}
	return nil
}

func (r Request) params() querysql.Params {
	return querysql.Params{
		Limit:         r.Limit,
		Offset:        r.Offset,
		SortKeys:      r.SortKeys,
		Filter:        r.Filter,
		CountSkipped:  r.CountSkipped,
		VirtualTables: r.VirtualTables,
	}
}

// Query executes req and streams its features to h.
//
// On failure the stream may be left unterminated: OnEnd is only sent when
// the execution succeeds.
func (e *Engine) Query(ctx context.Context, req Request, h feature.Handler) (*Result, error) {
	start := time.Now()
	res, err := e.query(ctx, req, h)
	if e.metrics != nil {
		e.metrics.ObserveQuery(req.Type, err, time.Since(start))
	}
	return res, err
}

func (e *Engine) query(ctx context.Context, req Request, h feature.Handler) (*Result, error) {
	ft, ok := e.types[req.Type]
	if !ok {
		return nil, newRuntimeError(ErrCodeUnknownType, req.Type, "", "unknown feature type", nil)
	}

	id := e.ids.Generate()
	res := &Result{QueryID: id}
	log := slog.With("query_id", id, "type", req.Type)

	if err := ft.check(req.Type, id, req.Filter); err != nil {
		log.Info("filter rejected", "error", err)
		return res, err
	}

	p := req.params()
	metaSQL, err := e.cache.get(cacheKey(req.Type, "meta", p), func() (string, error) {
		return ft.templates.Meta.SQL(p)
	})
	if err != nil {
		return res, newRuntimeError(ErrCodeQueryFailed, req.Type, id, "render meta query", err)
	}

	sqlStart := time.Now()
	meta, err := e.backend.QueryMeta(ctx, metaSQL)
	if e.metrics != nil {
		e.metrics.ObserveSQL(req.Type, "meta", time.Since(sqlStart))
	}
	if err != nil {
		log.Error("meta query failed", "error", err)
		return res, newRuntimeError(ErrCodeQueryFailed, req.Type, id, "meta query", err)
	}
	res.Meta = meta
	log.Debug("meta query done",
		"returned", meta.NumberReturned,
		"matched", meta.NumberMatched,
		"min_key", meta.MinKey,
		"max_key", meta.MaxKey)

	dec := decoder.New(ft.mapping, h, decoder.Options{Logger: e.logger, Connectors: e.connectors})
	if err := dec.OnMeta(meta); err != nil {
		return res, newRuntimeError(ErrCodeDecodeFailed, req.Type, id, "decode meta", err)
	}

	if meta.NumberReturned > 0 {
		p.MinKey, p.MaxKey = meta.MinKey, meta.MaxKey
		results, err := e.values(ctx, req.Type, ft, p)
		if err != nil {
			log.Error("value queries failed", "error", err)
			return res, newRuntimeError(ErrCodeQueryFailed, req.Type, id, "value query", err)
		}

		mg := newMerger(ft.mapping)
		mg.add(results)
		res.Rows = mg.Len()
		if err := mg.each(dec.OnRow); err != nil {
			return res, newRuntimeError(ErrCodeDecodeFailed, req.Type, id, "decode rows", err)
		}
	}

	if err := dec.Close(); err != nil {
		return res, newRuntimeError(ErrCodeDecodeFailed, req.Type, id, "close stream", err)
	}
	if e.metrics != nil {
		e.metrics.FeaturesTotal.WithLabelValues(req.Type).Add(float64(meta.NumberReturned))
	}

	log.Info("query executed",
		"returned", meta.NumberReturned,
		"rows", res.Rows)
	return res, nil
}

// values runs the value queries of all tables concurrently. The first
// failure cancels the others.
func (e *Engine) values(ctx context.Context, typeName string, ft *featureType, p querysql.Params) ([][]store.Record, error) {
	results := make([][]store.Record, len(ft.templates.Values))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, vt := range ft.templates.Values {
		g.Go(func() error {
			query, err := e.cache.get(cacheKey(typeName, strconv.Itoa(i), p), func() (string, error) {
				return vt.SQL(p)
			})
			if err != nil {
				return fmt.Errorf("render %s: %w", vt.Table.Name, err)
			}

			layout := store.Layout{CustomKeys: vt.CustomKeys(p), Keys: vt.Keys, Values: len(vt.Columns)}
			start := time.Now()
			err = e.backend.QueryRows(gctx, query, layout, func(r store.Record) error {
				results[i] = append(results[i], r)
				return nil
			})
			if e.metrics != nil {
				e.metrics.ObserveSQL(typeName, "values", time.Since(start))
				e.metrics.RowsTotal.WithLabelValues(typeName, vt.Table.Name).Add(float64(len(results[i])))
			}
			if err != nil {
				return fmt.Errorf("%s: %w", vt.Table.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Plan is the SQL an execution of a request would run before the meta
// query result is known.
type Plan struct {
	Meta   string     `json:"meta"`
	Values []TableSQL `json:"values"`
}

// TableSQL is the value query of one table.
type TableSQL struct {
	Table string `json:"table"`
	SQL   string `json:"sql"`
}

// Explain renders the statements of req without running them. Value
// queries are rendered without the key range bound.
func (e *Engine) Explain(req Request) (*Plan, error) {
	ft, ok := e.types[req.Type]
	if !ok {
		return nil, newRuntimeError(ErrCodeUnknownType, req.Type, "", "unknown feature type", nil)
	}
	if err := ft.check(req.Type, "", req.Filter); err != nil {
		return nil, err
	}

	p := req.params()
	meta, err := ft.templates.Meta.SQL(p)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Meta: meta}
	for _, vt := range ft.templates.Values {
		sql, err := vt.SQL(p)
		if err != nil {
			return nil, err
		}
		plan.Values = append(plan.Values, TableSQL{Table: vt.Table.Name, SQL: sql})
	}
	return plan, nil
}
