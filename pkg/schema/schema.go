// Package schema defines dataset schemas and observed-type checking.
// A Schema is supplied (or inferred) at run start and is immutable for the
// duration of a run; the checker compares declared column types against
// observed row values so drift shows up as findings, never as failures.
package schema

import (
	"time"
	"unicode/utf8"

	"github.com/datagrade/datagrade/internal/pool"
)

// Type is the declared or observed type of a column.
type Type string

const (
	TypeString    Type = "string"
	TypeInt       Type = "int"
	TypeFloat     Type = "float"
	TypeBool      Type = "bool"
	TypeTimestamp Type = "timestamp"
)

// Column describes one dataset column.
type Column struct {
	Name     string `yaml:"name" json:"name"`
	Type     Type   `yaml:"type" json:"type"`
	Format   string `yaml:"format,omitempty" json:"format,omitempty"` // timestamp layout, Go reference time
	Nullable bool   `yaml:"nullable" json:"nullable"`
	Position int    `yaml:"-" json:"-"`
}

// Schema is an ordered set of columns. Immutable once a run starts.
type Schema struct {
	Columns []Column `yaml:"columns" json:"columns"`
}

// Names returns the column names in declared order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name.
func (s *Schema) Column(name string) (*Column, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// defaultTimestampLayouts are tried in order when a timestamp column does
// not declare an explicit format.
var defaultTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
}

// DetectType infers the type of a single raw value. Surrounding whitespace
// is ignored; CSV exports routinely pad cells.
func DetectType(value []byte) Type {
	value = pool.TrimSpaces(value)
	if _, err := pool.ParseInt64(value); err == nil {
		return TypeInt
	}
	if _, err := pool.ParseFloat64(value); err == nil {
		return TypeFloat
	}
	if _, err := pool.ParseBool(value); err == nil {
		return TypeBool
	}
	if _, ok := ParseTimestamp(value, ""); ok {
		return TypeTimestamp
	}
	return TypeString
}

// ParseTimestamp parses a timestamp value with the declared layout, or with
// the default layout list when no layout is declared. The ISO 8601 fast
// path covers the dominant export format without a time.Parse call.
func ParseTimestamp(value []byte, layout string) (time.Time, bool) {
	if layout != "" {
		t, err := time.Parse(layout, pool.BytesToString(value))
		return t, err == nil
	}
	if t, ok := pool.ParseTimestampFast(value); ok {
		return t, true
	}
	s := pool.BytesToString(value)
	for _, l := range defaultTimestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Conforms reports whether a raw value satisfies the column's declared type.
// Missing values never count as mismatches; nullability is the missingness
// analyzer's concern.
func (c *Column) Conforms(value []byte) bool {
	switch c.Type {
	case TypeString, "":
		return utf8.Valid(value)
	case TypeInt:
		_, err := pool.ParseInt64(pool.TrimSpaces(value))
		return err == nil
	case TypeFloat:
		_, err := pool.ParseFloat64(pool.TrimSpaces(value))
		return err == nil
	case TypeBool:
		_, err := pool.ParseBool(pool.TrimSpaces(value))
		return err == nil
	case TypeTimestamp:
		_, ok := ParseTimestamp(value, c.Format)
		return ok
	default:
		return true
	}
}

// Infer builds a schema from column names and a sample of rows. A column's
// type is the most specific type every sampled value conforms to; columns
// with any missing sample value are marked nullable.
func Infer(columns []string, sample [][][]byte) *Schema {
	s := &Schema{Columns: make([]Column, len(columns))}
	for i, name := range columns {
		col := Column{Name: name, Position: i}

		var detected Type
		seen := false
		for _, row := range sample {
			if i >= len(row) {
				col.Nullable = true
				continue
			}
			v := row[i]
			if len(v) == 0 {
				col.Nullable = true
				continue
			}
			t := DetectType(v)
			if !seen {
				detected = t
				seen = true
				continue
			}
			detected = widen(detected, t)
		}
		if !seen {
			detected = TypeString
		}
		col.Type = detected
		s.Columns[i] = col
	}
	return s
}

// widen resolves two observed types to the narrowest common type.
func widen(a, b Type) Type {
	if a == b {
		return a
	}
	// int and float widen to float; anything else falls back to string.
	if (a == TypeInt && b == TypeFloat) || (a == TypeFloat && b == TypeInt) {
		return TypeFloat
	}
	return TypeString
}
