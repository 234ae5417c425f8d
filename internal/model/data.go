package model

import "time"

// CustomerSummary is the aggregated spend of one customer
type CustomerSummary struct {
	CustomerReference string  `json:"customer_reference"`
	TotalPrice        float64 `json:"total_price"`
	OrderCount        int     `json:"order_count"`
}

// DefectKind classifies a data-quality defect
type DefectKind string

const (
	DefectMissingCustomerReference DefectKind = "missing_customer_reference"
	DefectNegativeTotalPrice       DefectKind = "negative_total_price"
	DefectUnknownOrderReference    DefectKind = "unknown_order_reference"
	DefectUnknownCustomerReference DefectKind = "unknown_customer_reference"
)

// Message is the human-readable text carried on the error stream.
func (k DefectKind) Message() string {
	switch k {
	case DefectMissingCustomerReference:
		return "Customer reference is undefined."
	case DefectNegativeTotalPrice:
		return "Total price should not be negative."
	case DefectUnknownOrderReference:
		return "Order reference not found in orders."
	case DefectUnknownCustomerReference:
		return "Customer reference not found in customers."
	default:
		return "Unknown defect."
	}
}

// DefectRecord is a derived defect, independent of the row it came from
type DefectRecord struct {
	Kind              DefectKind `json:"kind"`
	OrderReference    string     `json:"order_reference"`
	CustomerReference string     `json:"customer_reference,omitempty"` // only set for unknown customers
}

// RunReport is the JSON document written for a finished run
type RunReport struct {
	RunID            string            `json:"run_id"`
	RunDate          string            `json:"run_date"`
	CustomerQueue    string            `json:"customer_queue"`
	ErrorQueue       string            `json:"error_queue"`
	CustomerMessages []CustomerMessage `json:"customer_messages"`
	ErrorMessages    []ErrorMessage    `json:"error_messages"`
	Metrics          RunMetrics        `json:"metrics"`
	GeneratedAt      time.Time         `json:"generated_at"`
}
