package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column names the pipeline correlates extracts on
const (
	FieldCustomerReference = "customer_reference"
	FieldOrderReference    = "order_reference"
	FieldTotalPrice        = "total_price"
)

var (
	// ErrFieldMissing is returned when a field is absent or empty.
	ErrFieldMissing = errors.New("field missing")
	// ErrFieldInvalid is returned when a field is present but cannot be interpreted.
	ErrFieldInvalid = errors.New("field invalid")
)

// FieldError describes a failed typed access on a Record.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrFieldInvalid) {
		return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Record is one row of a tabular extract, keyed by column name.
type Record map[string]string

// Get returns the raw value and whether the column is present at all.
func (r Record) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// Has reports whether the field is present and non-empty.
func (r Record) Has(field string) bool {
	return r[field] != ""
}

// Text returns a non-empty field value.
func (r Record) Text(field string) (string, error) {
	v, ok := r[field]
	if !ok || v == "" {
		return "", &FieldError{Field: field, Err: ErrFieldMissing}
	}
	return v, nil
}

// Number parses the field as a finite float.
func (r Record) Number(field string) (float64, error) {
	v, ok := r[field]
	if !ok || strings.TrimSpace(v) == "" {
		return 0, &FieldError{Field: field, Err: ErrFieldMissing}
	}
	f, ok := ParseNumber(v)
	if !ok {
		return 0, &FieldError{Field: field, Value: v, Err: ErrFieldInvalid}
	}
	return f, nil
}

// NumberOr returns the parsed field, or fallback when it is missing or invalid.
func (r Record) NumberOr(field string, fallback float64) float64 {
	f, err := r.Number(field)
	if err != nil {
		return fallback
	}
	return f
}

// Merge returns a new record holding r's fields overlaid by overlay's.
// A nil overlay yields a plain copy.
func (r Record) Merge(overlay Record) Record {
	out := make(Record, len(r)+len(overlay))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Clone copies the record.
func (r Record) Clone() Record {
	return r.Merge(nil)
}

// ParseNumber parses a decimal string. Surrounding whitespace is ignored;
// NaN, infinities, hex floats and digit separators are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
