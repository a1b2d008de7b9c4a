package record

// Sentinel is the placeholder stored for every missing or empty cell.
// Ingestion guarantees that no record field ever reads as an empty string,
// so downstream filtering never has to reason about absent values.
const Sentinel = "-"

// Well-known field names of the participant files. Header names are
// case-sensitive and carried through exactly as uploaded; these constants
// only name the columns the search and projection layers care about.
const (
	FieldNama           = "NAMA"
	FieldNopek          = "NOPEK"
	FieldPerusahaan     = "PERUSAHAAN"
	FieldPenanggung     = "PENANGGUNG"
	FieldDOB            = "DOB"
	FieldSts            = "STS"
	FieldKelasRawatInap = "KELAS_RAWAT_INAP"
)

// QueryableFields lists the columns the query engine accepts predicates on.
func QueryableFields() []string {
	return []string{FieldNama, FieldNopek, FieldPerusahaan, FieldPenanggung}
}

// DefaultProjection is the column order shown to end users.
func DefaultProjection() []string {
	return []string{
		FieldNopek, FieldNama, FieldPerusahaan, FieldPenanggung,
		FieldDOB, FieldSts, FieldKelasRawatInap,
	}
}

// Record is one participant row: field name to string value. All values are
// plain strings, never parsed into numbers or dates, so membership numbers
// with leading zeros survive untouched.
type Record map[string]string

// Get returns the value for a field, or the sentinel when the record's
// source file never had that column.
func (r Record) Get(field string) string {
	if v, ok := r[field]; ok {
		return v
	}
	return Sentinel
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Dataset is one ingested file's worth of records. It is immutable once
// created: the store replaces or removes whole datasets, never edits rows.
type Dataset struct {
	// Source is the original upload name the dataset came from.
	Source string
	// Fields is the header row in file order.
	Fields []string
	// Records preserves the file's row order.
	Records []Record
}

// Len returns the number of rows in the dataset.
func (d Dataset) Len() int { return len(d.Records) }

// HasField reports whether the dataset's header contains the given column.
func (d Dataset) HasField(field string) bool {
	for _, f := range d.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Collection is the unified, query-time view over one or more datasets:
// records concatenated in store order, field set the union of all headers.
// It is recomputed per query and never persisted.
type Collection struct {
	Fields  []string
	Records []Record
}

// Len returns the number of rows in the collection.
func (c Collection) Len() int { return len(c.Records) }

// HasField reports whether any contributing dataset had the given column.
func (c Collection) HasField(field string) bool {
	for _, f := range c.Fields {
		if f == field {
			return true
		}
	}
	return false
}
