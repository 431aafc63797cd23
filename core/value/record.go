package value

import "github.com/josephlewis42/pipeshell/core/span"

// Record is an ordered mapping from column name to Value with unique keys.
type Record struct {
	base
	Cols []string
	Vals []Value
}

// NewRecord creates an empty record.
func NewRecord(sp span.Span) Record {
	return Record{base: base{sp}}
}

// RecordOf builds a record from alternating column names and values. It
// panics on malformed input and is meant for literals in builtins and tests.
func RecordOf(sp span.Span, kv ...interface{}) Record {
	if len(kv)%2 != 0 {
		panic("RecordOf: odd number of arguments")
	}
	r := NewRecord(sp)
	for i := 0; i < len(kv); i += 2 {
		r.Insert(kv[i].(string), kv[i+1].(Value))
	}
	return r
}

// Len returns the number of columns.
func (r Record) Len() int {
	return len(r.Cols)
}

// Get returns the value stored under col.
func (r Record) Get(col string) (Value, bool) {
	for i, c := range r.Cols {
		if c == col {
			return r.Vals[i], true
		}
	}
	return nil, false
}

// Insert sets col to v, replacing an existing column in place or appending a
// new one.
func (r *Record) Insert(col string, v Value) {
	for i, c := range r.Cols {
		if c == col {
			r.Vals[i] = v
			return
		}
	}
	r.Cols = append(r.Cols, col)
	r.Vals = append(r.Vals, v)
}
