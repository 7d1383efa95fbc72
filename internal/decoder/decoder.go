package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/featsql/internal/feature"
	"github.com/roach88/featsql/internal/mapping"
)

// ErrClosed is returned for input after Close.
var ErrClosed = errors.New("decoder is closed")

// Options configures a Decoder.
type Options struct {
	// Logger receives warnings. Nil discards them.
	Logger *slog.Logger

	// Connectors are sub-decoders by connector name. JSON is built in.
	Connectors map[string]Connector
}

// Decoder turns rows of one query execution into feature events.
type Decoder struct {
	mapping    *mapping.SqlQueryMapping
	handler    feature.Handler
	logger     *slog.Logger
	connectors map[string]Connector

	// tables maps a table full path to its index.
	tables map[string]int

	// chains holds, per table, the indexes of the tables on its join chain
	// below the main table, ending with the table itself.
	chains [][]int

	started     bool
	featureOpen bool
	closed      bool
	meta        feature.Context

	tracker *MultiplicityTracker
	stack   NestingStack
}

// New creates a Decoder that emits the features of m to h.
func New(m *mapping.SqlQueryMapping, h feature.Handler, opts Options) *Decoder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	connectors := map[string]Connector{"JSON": JSONConnector{}}
	for name, c := range opts.Connectors {
		connectors[strings.ToUpper(name)] = c
	}

	d := &Decoder{
		mapping:    m,
		handler:    h,
		logger:     logger,
		connectors: connectors,
		tables:     make(map[string]int, len(m.Tables)),
		chains:     make([][]int, len(m.Tables)),
		meta:       feature.Context{Type: m.Name, NumberMatched: -1},
		tracker:    NewMultiplicityTracker(),
	}
	for i, t := range m.Tables {
		d.tables[t.FullPath] = i
		d.chains[i] = m.Chain(i)
	}
	return d
}

// Decode feeds meta and then every row of src to the decoder and closes it.
// When src fails or ctx is cancelled the decoder is left open and the
// stream unterminated.
func (d *Decoder) Decode(ctx context.Context, meta RowMeta, src RowSource) error {
	if err := d.OnMeta(meta); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		if err := d.OnRow(row); err != nil {
			return err
		}
	}
	return d.Close()
}

// OnMeta accumulates the counters of a meta row and emits OnStart once.
func (d *Decoder) OnMeta(meta RowMeta) error {
	if d.closed {
		return ErrClosed
	}
	d.meta.NumberReturned += meta.NumberReturned
	if meta.NumberMatched >= 0 {
		if d.meta.NumberMatched < 0 {
			d.meta.NumberMatched = 0
		}
		d.meta.NumberMatched += meta.NumberMatched
	}
	return d.start()
}

func (d *Decoder) start() error {
	if d.started {
		return nil
	}
	d.started = true
	return d.handler.OnStart(d.meta)
}

// OnRow processes one value row.
func (d *Decoder) OnRow(row Row) error {
	if d.closed {
		return ErrClosed
	}
	if err := d.start(); err != nil {
		return err
	}

	idx, ok := d.tables[row.TablePath]
	if !ok {
		return fmt.Errorf("row of unknown table %s", row.TablePath)
	}
	table := d.mapping.Tables[idx]
	if len(row.IDs) < table.ChainLength() {
		return fmt.Errorf("row of %s has %d ids, want %d", table.Name, len(row.IDs), table.ChainLength())
	}

	if table.IsMain() {
		return d.startFeature(row)
	}
	if !d.featureOpen {
		return fmt.Errorf("row of %s before the first feature", table.Name)
	}

	indexes, err := d.nest(idx, row.IDs)
	if err != nil {
		return err
	}
	return d.values(table, row, indexes)
}

func (d *Decoder) startFeature(row Row) error {
	if d.featureOpen {
		if err := d.closeLevels(0); err != nil {
			return err
		}
		if err := d.handler.OnFeatureEnd(feature.Context{Type: d.mapping.Name}); err != nil {
			return err
		}
	}
	d.tracker.Reset()
	for _, c := range d.connectors {
		c.Reset()
	}

	d.featureOpen = true
	if err := d.handler.OnFeatureStart(feature.Context{Type: d.mapping.Name}); err != nil {
		return err
	}
	return d.values(d.mapping.Main(), row, nil)
}

// parentLen returns the number of ids identifying the parent occurrence of
// a table.
func (d *Decoder) parentLen(t *mapping.SqlQuerySchema) int {
	if t.Parent < 0 {
		return 0
	}
	return d.mapping.Tables[t.Parent].ChainLength()
}

// nest reconciles the open levels with the chain of table idx and returns
// the array indexes of the row.
func (d *Decoder) nest(idx int, ids []any) ([]int, error) {
	chain := d.chains[idx]
	indexOf := make(map[int]int, len(chain))
	parentOf := make(map[int]string, len(chain))
	for _, a := range chain {
		t := d.mapping.Tables[a]
		parent := ids[:d.parentLen(t)]
		indexOf[a] = d.tracker.Track(a, parent, ids[:t.ChainLength()])
		parentOf[a] = TupleKey(parent)
	}

	// close from the lowest level that does not contain the row
	for i, l := range d.stack.levels {
		index, onChain := indexOf[l.table]
		stale := !onChain ||
			(l.array && l.parent != parentOf[l.table]) ||
			(!l.array && (l.table == idx || l.index != index))
		if stale {
			if err := d.closeLevels(i); err != nil {
				return nil, err
			}
			break
		}
	}

	var indexes []int
	for _, a := range chain {
		t := d.mapping.Tables[a]
		if t.Multiple {
			if !d.stack.has(a, true) {
				l := level{table: a, array: true, path: t.TargetPath, parent: parentOf[a], indexes: slices.Clone(indexes)}
				d.stack.push(l)
				if err := d.handler.OnArrayStart(d.levelContext(l.path, l.indexes)); err != nil {
					return nil, err
				}
			}
			indexes = append(indexes, indexOf[a])
		}
		if !t.ValueArray && !d.stack.has(a, false) {
			l := level{table: a, path: t.TargetPath, index: indexOf[a], indexes: slices.Clone(indexes)}
			d.stack.push(l)
			if err := d.handler.OnObjectStart(d.levelContext(l.path, l.indexes)); err != nil {
				return nil, err
			}
		}
	}
	return indexes, nil
}

func (d *Decoder) levelContext(path []string, indexes []int) feature.Context {
	return feature.Context{Type: d.mapping.Name, Path: path, Indexes: indexes}
}

// closeLevels closes every level from the top of the stack down to and
// including position from. End events carry the indexes of their start.
func (d *Decoder) closeLevels(from int) error {
	for d.stack.Len() > from {
		l := d.stack.pop()
		ctx := d.levelContext(l.path, l.indexes)
		var err error
		if l.array {
			err = d.handler.OnArrayEnd(ctx)
		} else {
			err = d.handler.OnObjectEnd(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// values emits the column values of a row.
func (d *Decoder) values(t *mapping.SqlQuerySchema, row Row, indexes []int) error {
	for i, col := range t.Columns {
		if i >= len(row.Values) || row.Values[i] == nil {
			continue
		}
		v := row.Values[i]
		ctx := feature.Context{Type: d.mapping.Name, Path: col.Path, Indexes: indexes}

		switch {
		case col.Connector() != "":
			if err := d.connector(col, v, ctx); err != nil {
				return err
			}
		case col.IsGeometry():
			g, err := parseGeometry(v, col.HasOperation(mapping.OpWkb))
			if err != nil {
				return &GeometryError{Path: col.PathString(), Err: err}
			}
			if err := (geometryWriter{h: d.handler}).write(ctx, g); err != nil {
				if errors.Is(err, errUnsupportedGeometry) {
					return &GeometryError{Path: col.PathString(), Err: err}
				}
				return err
			}
		default:
			ctx.Value = text(v)
			ctx.ValueType = col.Type
			if err := d.handler.OnValue(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Decoder) connector(col mapping.SqlQueryColumn, v any, ctx feature.Context) error {
	name := col.Connector()
	c, ok := d.connectors[name]
	if !ok {
		d.logger.Warn("unknown connector, value dropped",
			"connector", name,
			"path", col.PathString())
		return nil
	}
	c.Reset()
	return c.Decode([]byte(text(v)), col, ctx, d.handler)
}

// Close ends the stream: it closes open levels and the open feature and
// emits OnEnd. Further calls are no-ops.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.closeLevels(0); err != nil {
		return err
	}
	d.tracker.Reset()
	if d.featureOpen {
		d.featureOpen = false
		if err := d.handler.OnFeatureEnd(feature.Context{Type: d.mapping.Name}); err != nil {
			return err
		}
	}
	if d.started {
		return d.handler.OnEnd(d.meta)
	}
	return nil
}

// text renders a scanned SQL value.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
