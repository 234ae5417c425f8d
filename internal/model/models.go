package model

import (
	"fmt"
	"path/filepath"
	"time"
)

// RunDateLayout is the DDMMYYYY stamp used in extract file names.
const RunDateLayout = "02012006"

// Extract names one of the three tabular sources of a run
type Extract string

const (
	ExtractCustomers Extract = "customers"
	ExtractOrders    Extract = "orders"
	ExtractItems     Extract = "items"
)

// Extracts lists the sources in load order.
var Extracts = []Extract{ExtractCustomers, ExtractOrders, ExtractItems}

// FileName returns the date-stamped file name, e.g. orders_16102026.csv.
func (e Extract) FileName(date time.Time) string {
	return fmt.Sprintf("%s_%s.csv", e, date.Format(RunDateLayout))
}

// ValidationRules defines the structural requirements of an extract
type ValidationRules struct {
	RequiredColumns []string `json:"requiredColumns" yaml:"required_columns"` // columns the header must carry
}

// DefaultValidation holds the minimum columns each extract must expose.
func DefaultValidation() map[Extract]*ValidationRules {
	return map[Extract]*ValidationRules{
		ExtractCustomers: {RequiredColumns: []string{FieldCustomerReference}},
		ExtractOrders:    {RequiredColumns: []string{FieldOrderReference, FieldCustomerReference}},
		ExtractItems:     {RequiredColumns: []string{FieldOrderReference, FieldTotalPrice}},
	}
}

// Source points at one extract on disk
type Source struct {
	Extract    Extract          `json:"extract"`
	Path       string           `json:"path"`
	Validation *ValidationRules `json:"validation,omitempty"`
}

// RunSpec is the payload of POST /api/v1/runs and the input of one run
type RunSpec struct {
	RunDate          string `json:"run_date,omitempty"` // DDMMYYYY, today when empty
	DataDir          string `json:"data_dir,omitempty"`
	CustomerQueue    string `json:"customer_queue,omitempty"`
	ErrorQueue       string `json:"error_queue,omitempty"`
	StrictReferences *bool  `json:"strict_references,omitempty"` // nil inherits the configured default
}

// Date parses RunDate, falling back to now.
func (s RunSpec) Date(now time.Time) (time.Time, error) {
	if s.RunDate == "" {
		return now, nil
	}
	d, err := time.ParseInLocation(RunDateLayout, s.RunDate, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run date %q (want DDMMYYYY): %w", s.RunDate, err)
	}
	return d, nil
}

// Sources resolves the three extract paths for the given date.
func (s RunSpec) Sources(date time.Time) []Source {
	rules := DefaultValidation()
	sources := make([]Source, 0, len(Extracts))
	for _, e := range Extracts {
		sources = append(sources, Source{
			Extract:    e,
			Path:       filepath.Join(s.DataDir, e.FileName(date)),
			Validation: rules[e],
		})
	}
	return sources
}

// WithDefaults fills the empty fields of s from def.
func (s RunSpec) WithDefaults(def RunSpec) RunSpec {
	if s.RunDate == "" {
		s.RunDate = def.RunDate
	}
	if s.DataDir == "" {
		s.DataDir = def.DataDir
	}
	if s.CustomerQueue == "" {
		s.CustomerQueue = def.CustomerQueue
	}
	if s.ErrorQueue == "" {
		s.ErrorQueue = def.ErrorQueue
	}
	if s.StrictReferences == nil && def.StrictReferences != nil {
		strict := *def.StrictReferences
		s.StrictReferences = &strict
	}
	return s
}

// Strict reports whether strict reference checks are on.
func (s RunSpec) Strict() bool {
	return s.StrictReferences != nil && *s.StrictReferences
}

// Validate checks that both queues are named and distinct.
func (s RunSpec) Validate() error {
	switch {
	case s.CustomerQueue == "":
		return fmt.Errorf("customer queue is required")
	case s.ErrorQueue == "":
		return fmt.Errorf("error queue is required")
	case s.CustomerQueue == s.ErrorQueue:
		return fmt.Errorf("customer and error queues must differ, both are %q", s.CustomerQueue)
	}
	return nil
}
