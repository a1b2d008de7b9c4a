package query

import (
	"testing"

	"membercheck/internal/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoDatasets() (record.Dataset, record.Dataset) {
	d1 := record.Dataset{
		Source: "one.csv",
		Fields: []string{"NAMA", "NOPEK", "PENANGGUNG"},
		Records: []record.Record{
			{"NAMA": "Budi", "NOPEK": "123", "PENANGGUNG": "Acme"},
			{"NAMA": "Siti", "NOPEK": "456", "PENANGGUNG": "Beta"},
		},
	}
	d2 := record.Dataset{
		Source: "two.csv",
		Fields: []string{"NAMA", "NOPEK", "PERUSAHAAN"},
		Records: []record.Record{
			{"NAMA": "Andi", "NOPEK": "789", "PERUSAHAAN": "Gamma"},
		},
	}
	return d1, d2
}

func TestAggregate(t *testing.T) {
	d1, d2 := twoDatasets()

	t.Run("row count is the sum and order is preserved", func(t *testing.T) {
		c := Aggregate([]record.Dataset{d1, d2})
		require.Equal(t, d1.Len()+d2.Len(), c.Len())
		assert.Equal(t, "Budi", c.Records[0].Get("NAMA"))
		assert.Equal(t, "Siti", c.Records[1].Get("NAMA"))
		assert.Equal(t, "Andi", c.Records[2].Get("NAMA"))
	})

	t.Run("field set is the union in first-seen order", func(t *testing.T) {
		c := Aggregate([]record.Dataset{d1, d2})
		assert.Equal(t, []string{"NAMA", "NOPEK", "PENANGGUNG", "PERUSAHAAN"}, c.Fields)
	})

	t.Run("records lacking a field read the sentinel", func(t *testing.T) {
		c := Aggregate([]record.Dataset{d1, d2})
		assert.Equal(t, record.Sentinel, c.Records[2].Get("PENANGGUNG"))
		assert.Equal(t, record.Sentinel, c.Records[0].Get("PERUSAHAAN"))
	})

	t.Run("zero datasets yield an empty collection", func(t *testing.T) {
		c := Aggregate(nil)
		assert.Zero(t, c.Len())
		assert.Empty(t, c.Fields)
	})

	t.Run("duplicate rows across files are preserved", func(t *testing.T) {
		c := Aggregate([]record.Dataset{d1, d1})
		assert.Equal(t, 2*d1.Len(), c.Len())
	})
}

func TestSearch(t *testing.T) {
	d1, d2 := twoDatasets()
	unified := Aggregate([]record.Dataset{d1, d2})

	t.Run("all-empty predicates return the collection unchanged", func(t *testing.T) {
		got := Search(unified, Predicates{"NAMA": "", "NOPEK": ""})
		assert.Equal(t, unified.Records, got.Records)
	})

	t.Run("case-insensitive substring with empty predicate as wildcard", func(t *testing.T) {
		got := Search(unified, Predicates{"NAMA": "bu", "NOPEK": ""})
		require.Equal(t, 1, got.Len())
		assert.Equal(t, "Budi", got.Records[0].Get("NAMA"))
	})

	t.Run("AND semantics across fields", func(t *testing.T) {
		got := Search(unified, Predicates{"NAMA": "i", "NOPEK": "45"})
		require.Equal(t, 1, got.Len())
		assert.Equal(t, "Siti", got.Records[0].Get("NAMA"))
	})

	t.Run("filter is stable", func(t *testing.T) {
		got := Search(unified, Predicates{"NAMA": "i"})
		names := make([]string, 0, got.Len())
		for _, rec := range got.Records {
			names = append(names, rec.Get("NAMA"))
		}
		assert.Equal(t, []string{"Budi", "Siti", "Andi"}, names)
	})

	t.Run("search is idempotent", func(t *testing.T) {
		preds := Predicates{"NAMA": "i"}
		once := Search(unified, preds)
		twice := Search(once, preds)
		assert.Equal(t, once.Records, twice.Records)
	})

	t.Run("predicate on a field missing from one dataset skips its rows", func(t *testing.T) {
		got := Search(unified, Predicates{"PENANGGUNG": "acme"})
		require.Equal(t, 1, got.Len())
		assert.Equal(t, "Budi", got.Records[0].Get("NAMA"))
	})

	t.Run("predicate on a wholly-absent field matches nothing", func(t *testing.T) {
		got := Search(unified, Predicates{"ALAMAT": "jakarta"})
		assert.Zero(t, got.Len())
	})

	t.Run("no match yields empty result, not an error", func(t *testing.T) {
		got := Search(unified, Predicates{"NAMA": "zzz"})
		assert.Zero(t, got.Len())
	})
}

func TestPredicatesEmpty(t *testing.T) {
	assert.True(t, Predicates{}.Empty())
	assert.True(t, Predicates{"NAMA": ""}.Empty())
	assert.False(t, Predicates{"NAMA": "x"}.Empty())
}

func TestProject(t *testing.T) {
	d1, d2 := twoDatasets()
	unified := Aggregate([]record.Dataset{d1, d2})

	t.Run("keeps requested order, drops absent fields silently", func(t *testing.T) {
		p := Project(unified, []string{"NOPEK", "NAMA", "ALAMAT"})
		assert.Equal(t, []string{"NOPEK", "NAMA"}, p.Fields)
		assert.Equal(t, unified.Len(), p.Len())
	})

	t.Run("rows flatten through the sentinel rule", func(t *testing.T) {
		p := Project(unified, []string{"NAMA", "PERUSAHAAN"})
		rows := Rows(p)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"Budi", record.Sentinel}, rows[0])
		assert.Equal(t, []string{"Andi", "Gamma"}, rows[2])
	})
}
