package engine

import (
	"log/slog"
	"slices"

	"github.com/google/btree"

	"github.com/roach88/featsql/internal/decoder"
	"github.com/roach88/featsql/internal/mapping"
	"github.com/roach88/featsql/internal/store"
)

// mergeItem is one value row with its position in decoding order.
type mergeItem struct {
	key []int
	row decoder.Row
}

func lessItem(a, b mergeItem) bool {
	return slices.Compare(a.key, b.key) < 0
}

// merger orders the rows of all value queries of one execution.
//
// The key of a row is its root rank followed by one (table, ordinal) pair
// per mapped table on its join chain. The ordinal of an ancestor is the
// position of the first row of that ancestor tuple in the ancestor table's
// result; the row's own table contributes the row's position. Parents thus
// precede their children, and children of one parent follow mapping order.
type merger struct {
	mapping *mapping.SqlQueryMapping
	tree    *btree.BTreeG[mergeItem]
}

func newMerger(m *mapping.SqlQueryMapping) *merger {
	return &merger{
		mapping: m,
		tree:    btree.NewG(16, lessItem),
	}
}

// add inserts the result rows of every table; results[i] holds the rows of
// table i in query order.
func (mg *merger) add(results [][]store.Record) {
	m := mg.mapping

	roots := make(map[string]int)
	for pos, rec := range results[0] {
		k := decoder.TupleKey(rec.IDs[:1])
		if _, seen := roots[k]; !seen {
			roots[k] = len(roots)
		}
		mg.insert(0, rec, []int{roots[k], 0, pos})
	}

	// ordinals[t] maps an id tuple of table t to its first row position.
	ordinals := make([]map[string]int, len(m.Tables))
	for t := 1; t < len(m.Tables); t++ {
		ordinals[t] = make(map[string]int, len(results[t]))
		for pos, rec := range results[t] {
			k := decoder.TupleKey(rec.IDs)
			if _, seen := ordinals[t][k]; !seen {
				ordinals[t][k] = pos
			}
		}
	}

	for t := 1; t < len(m.Tables); t++ {
		chain := m.Chain(t)
		for pos, rec := range results[t] {
			rank, ok := roots[decoder.TupleKey(rec.IDs[:1])]
			if !ok {
				slog.Warn("value row without root row",
					"type", m.Name,
					"table", m.Tables[t].Name)
				continue
			}
			key := []int{rank}
			for _, a := range chain[:len(chain)-1] {
				ids := rec.IDs[:m.Tables[a].ChainLength()]
				ord, ok := ordinals[a][decoder.TupleKey(ids)]
				if !ok {
					// orphaned ancestor: order after every row of its table
					ord = len(results[a])
				}
				key = append(key, a, ord)
			}
			mg.insert(t, rec, append(key, t, pos))
		}
	}
}

func (mg *merger) insert(table int, rec store.Record, key []int) {
	mg.tree.ReplaceOrInsert(mergeItem{
		key: key,
		row: decoder.Row{
			TablePath: mg.mapping.Tables[table].FullPath,
			IDs:       rec.IDs,
			Values:    rec.Values,
		},
	})
}

// each calls fn for every row in decoding order until fn fails.
func (mg *merger) each(fn func(decoder.Row) error) error {
	var err error
	mg.tree.Ascend(func(it mergeItem) bool {
		err = fn(it.row)
		return err == nil
	})
	return err
}

// Len returns the number of merged rows.
func (mg *merger) Len() int {
	return mg.tree.Len()
}
