package model

import "time"

// Run statuses stored in the ledger
const (
	RunStatusPending    = "pending"
	RunStatusRunning    = "running"
	RunStatusIngesting  = "ingesting"
	RunStatusPublishing = "publishing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// Stage names
const (
	StageIngestion      = "ingestion"
	StageReconciliation = "reconciliation"
	StageAggregation    = "aggregation"
	StageMessages       = "messages"
	StagePublish        = "publish"
	StageReport         = "report"
)

// RunMetrics represents overall run metrics
type RunMetrics struct {
	CustomersRead    int                     `json:"customers_read"`
	OrdersRead       int                     `json:"orders_read"`
	ItemsRead        int                     `json:"items_read"`
	CustomerMessages int                     `json:"customer_messages"`
	ErrorMessages    int                     `json:"error_messages"`
	Published        map[string]int          `json:"published"` // queue -> confirmed publishes
	ProcessingTime   time.Duration           `json:"processing_time"`
	StageMetrics     map[string]StageMetrics `json:"stage_metrics"`
}

// StageMetrics represents metrics for a specific pipeline stage
type StageMetrics struct {
	StageName        string        `json:"stage_name"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	Duration         time.Duration `json:"duration"`
	RecordsProcessed int           `json:"records_processed"`
	ErrorCount       int           `json:"error_count"`
	Status           string        `json:"status"` // "running", "completed", "failed"
}

// ErrorDetail represents a fatal run error with context
type ErrorDetail struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
