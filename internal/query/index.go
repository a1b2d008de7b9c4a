package query

import (
	"github.com/google/btree"

	"membercheck/internal/record"
)

const btreeDegree = 32

// valueKey is the B-tree item for the lookup index: one distinct field value
// and the collection row positions holding it, in ascending order.
type valueKey struct {
	Value string
	Rows  []int
}

func valueLess(a, b valueKey) bool {
	return a.Value < b.Value
}

// Index is an exact-match lookup index over one field of a unified
// collection. It is the fast path for direct membership-number lookups;
// substring search never uses it. Like the collection itself it is built
// per query and never persisted.
type Index struct {
	field string
	tree  *btree.BTreeG[valueKey]
}

// BuildIndex indexes every record's value for the given field. Records
// lacking the field are indexed under the sentinel.
func BuildIndex(c record.Collection, field string) *Index {
	idx := &Index{
		field: field,
		tree:  btree.NewG[valueKey](btreeDegree, valueLess),
	}
	for pos, rec := range c.Records {
		key := valueKey{Value: rec.Get(field)}
		item, found := idx.tree.Get(key)
		if !found {
			item = key
		}
		item.Rows = append(item.Rows, pos)
		idx.tree.ReplaceOrInsert(item)
	}
	return idx
}

// Field returns the indexed field name.
func (idx *Index) Field() string { return idx.field }

// Lookup returns the row positions whose value equals v exactly, in
// collection order. Unknown values return an empty slice.
func (idx *Index) Lookup(v string) []int {
	item, found := idx.tree.Get(valueKey{Value: v})
	if !found {
		return []int{}
	}
	return item.Rows
}

// LookupRecords resolves an exact-match lookup back to the records of the
// collection the index was built from.
func LookupRecords(c record.Collection, idx *Index, v string) []record.Record {
	rows := idx.Lookup(v)
	out := make([]record.Record, 0, len(rows))
	for _, pos := range rows {
		out = append(out, c.Records[pos])
	}
	return out
}
