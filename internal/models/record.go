package models

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is one CSV data row keyed by header column. Keys keep header order,
// including in its JSON encoding.
type Record struct {
	fields *orderedmap.OrderedMap[string, string]
}

// NewRecord returns an empty Record.
func NewRecord() Record {
	return Record{fields: orderedmap.New[string, string]()}
}

// RecordOf builds a Record from alternating column/value arguments.
// A trailing column without a value is set to "".
func RecordOf(pairs ...string) Record {
	r := NewRecord()
	for i := 0; i < len(pairs); i += 2 {
		v := ""
		if i+1 < len(pairs) {
			v = pairs[i+1]
		}
		r.Set(pairs[i], v)
	}
	return r
}

// Set stores value under column. Setting an existing column keeps its position.
func (r *Record) Set(column, value string) {
	if r.fields == nil {
		r.fields = orderedmap.New[string, string]()
	}
	r.fields.Set(column, value)
}

// Get returns the value stored under column.
func (r Record) Get(column string) (string, bool) {
	if r.fields == nil {
		return "", false
	}
	return r.fields.Get(column)
}

// Keys returns the columns in header order.
func (r Record) Keys() []string {
	if r.fields == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of columns.
func (r Record) Len() int {
	if r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// MarshalJSON encodes the record as a JSON object in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return r.fields.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object of string values, keeping key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	fields := orderedmap.New[string, string]()
	if err := fields.UnmarshalJSON(data); err != nil {
		return err
	}
	r.fields = fields
	return nil
}
