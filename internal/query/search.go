package query

import (
	"strings"

	"membercheck/internal/record"
)

// Predicates maps a field name to a case-insensitive substring query.
// An empty query string imposes no constraint on its field.
type Predicates map[string]string

// Empty reports whether no predicate carries a non-empty query, i.e. no
// search criteria were entered at all.
func (p Predicates) Empty() bool {
	for _, q := range p {
		if q != "" {
			return false
		}
	}
	return true
}

// Search filters the collection with AND semantics across fields: a record
// matches when every non-empty predicate's query is a case-insensitive
// substring of the record's value for that field. The filter is stable
// (input order preserved) and idempotent. With all predicates empty the
// collection is returned unchanged. A predicate on a field no dataset ever
// had is tested against the sentinel, so in practice it matches nothing.
func Search(c record.Collection, preds Predicates) record.Collection {
	active := make(map[string]string, len(preds))
	for field, q := range preds {
		if q != "" {
			active[field] = strings.ToLower(q)
		}
	}
	if len(active) == 0 {
		return c
	}

	out := record.Collection{Fields: c.Fields}
	for _, rec := range c.Records {
		if matches(rec, active) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

func matches(rec record.Record, active map[string]string) bool {
	for field, q := range active {
		if !strings.Contains(strings.ToLower(rec.Get(field)), q) {
			return false
		}
	}
	return true
}

// Project narrows the collection's visible columns to the given fields, in
// the given order. Fields absent from the collection's union are silently
// dropped rather than treated as an error. Records are shared, not copied;
// readers go through Record.Get with the projected field list.
func Project(c record.Collection, fields []string) record.Collection {
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if c.HasField(f) {
			kept = append(kept, f)
		}
	}
	return record.Collection{Fields: kept, Records: c.Records}
}

// Rows flattens a collection into header + cell grid form for rendering or
// export, reading every projected field through the sentinel rule.
func Rows(c record.Collection) [][]string {
	rows := make([][]string, 0, len(c.Records))
	for _, rec := range c.Records {
		row := make([]string, len(c.Fields))
		for i, f := range c.Fields {
			row[i] = rec.Get(f)
		}
		rows = append(rows, row)
	}
	return rows
}
