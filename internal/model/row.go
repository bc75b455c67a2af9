// Package model defines core data structures for DataGrade.
package model

// Row represents a single dataset record.
// Values are stored as byte slices, one per schema column, to avoid
// allocations on the hot path. An empty or nil value means the cell is
// missing. Rows are read-only once handed to the engine.
type Row struct {
	// Index is the global zero-based row index within the dataset.
	// It is assigned by the source and is stable across shards.
	Index int64

	// Columns holds the column names in schema order. The slice is shared
	// with the schema and must not be mutated.
	Columns []string

	// Values holds the raw cell values, parallel to Columns.
	Values [][]byte
}

// Value returns the raw value for a column name, and whether the column
// exists in this row.
func (r *Row) Value(col string) ([]byte, bool) {
	for i, c := range r.Columns {
		if c == col {
			if i < len(r.Values) {
				return r.Values[i], true
			}
			return nil, true
		}
	}
	return nil, false
}

// IsMissing reports whether the cell at position i is absent or a null
// sentinel ("", NULL, NA, None, ...).
func (r *Row) IsMissing(i int) bool {
	if i >= len(r.Values) {
		return true
	}
	return IsNullValue(r.Values[i])
}

// Reset clears the row for reuse from a pool.
func (r *Row) Reset() {
	r.Index = 0
	r.Columns = nil
	for i := range r.Values {
		r.Values[i] = r.Values[i][:0]
	}
	r.Values = r.Values[:0]
}

// IsNullValue reports whether a raw cell value represents null.
// The sentinel list follows common dataset export conventions.
func IsNullValue(val []byte) bool {
	switch string(val) {
	case "", "NULL", "null", "NA", "N/A", "n/a", "None", "none", "nil", "-", "\\N":
		return true
	}
	return false
}

// RowBatch holds a slice of rows for batch processing.
type RowBatch struct {
	Rows []Row
	Size int
}

// Reset clears the batch for reuse.
func (b *RowBatch) Reset() {
	b.Size = 0
	for i := range b.Rows {
		b.Rows[i].Reset()
	}
}
