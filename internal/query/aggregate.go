package query

import (
	"membercheck/internal/record"
)

// Aggregate concatenates datasets into one unified collection. Datasets are
// processed in the given (store enumeration) order and each dataset's row
// order is preserved, so the result's row count is always the sum of the
// inputs. The field set is the union of all headers; a record from a dataset
// lacking a column reads the sentinel for it. Duplicate rows across files
// are kept as-is. Zero datasets yield an empty collection.
func Aggregate(datasets []record.Dataset) record.Collection {
	var c record.Collection
	seen := make(map[string]struct{})

	for _, ds := range datasets {
		for _, f := range ds.Fields {
			if f == "" {
				continue
			}
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				c.Fields = append(c.Fields, f)
			}
		}
		c.Records = append(c.Records, ds.Records...)
	}
	return c
}
