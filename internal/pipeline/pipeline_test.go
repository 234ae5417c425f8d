package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go-reconcile-pipeline/internal/broker"
	"go-reconcile-pipeline/internal/model"
	"go-reconcile-pipeline/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	customerQueue = "customer_messages"
	errorQueue    = "error_messages"
)

func newTestRunner(t *testing.T, mem *broker.Memory, ledger Ledger, reportDir string) *Runner {
	t.Helper()
	return NewRunner(RunnerConfig{
		Defaults: model.RunSpec{
			RunDate:       testRunDate,
			CustomerQueue: customerQueue,
			ErrorQueue:    errorQueue,
		},
		Retry:     fastRetry(),
		ReportDir: reportDir,
	}, mem, ledger, zaptest.NewLogger(t))
}

func decodeAll[T any](t *testing.T, msgs []broker.Message) []T {
	t.Helper()
	out := make([]T, 0, len(msgs))
	for _, m := range msgs {
		var v T
		require.NoError(t, json.Unmarshal(m.Body, &v))
		out = append(out, v)
	}
	return out
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestRun_EndToEnd(t *testing.T) {
	tests := []struct {
		name          string
		customers     string
		orders        string
		items         string
		wantCustomers []model.CustomerMessage
		wantErrors    []model.ErrorMessage
	}{
		{
			name:      "one customer two items of one order",
			customers: "customer_reference\nC1\n",
			orders:    "order_reference,customer_reference\nO1,C1\n",
			items:     "order_reference,total_price\nO1,10.00\nO1,5.00\n",
			wantCustomers: []model.CustomerMessage{
				{Type: model.CustomerMessageType, CustomerReference: "C1", TotalPrice: 15, OrderCount: 1},
			},
			wantErrors: []model.ErrorMessage{},
		},
		{
			name:      "negative price is flagged and still aggregated",
			customers: "customer_reference\n",
			orders:    "order_reference,customer_reference\nO2,C2\n",
			items:     "order_reference,total_price\nO2,-3.00\n",
			wantCustomers: []model.CustomerMessage{
				{Type: model.CustomerMessageType, CustomerReference: "C2", TotalPrice: -3, OrderCount: 1},
			},
			wantErrors: []model.ErrorMessage{
				{
					Type:           model.ErrorMessageType,
					OrderReference: "O2",
					Message:        "Total price should not be negative.",
					Defect:         model.DefectNegativeTotalPrice,
				},
			},
		},
		{
			name:          "item without order",
			customers:     "customer_reference\nC1\n",
			orders:        "order_reference,customer_reference\nO1,C1\n",
			items:         "order_reference,total_price\nO3,4.00\n",
			wantCustomers: []model.CustomerMessage{},
			wantErrors: []model.ErrorMessage{
				{
					Type:           model.ErrorMessageType,
					OrderReference: "O3",
					Message:        "Customer reference is undefined.",
					Defect:         model.DefectMissingCustomerReference,
				},
			},
		},
		{
			name:          "empty items file",
			customers:     "customer_reference\nC1\n",
			orders:        "order_reference,customer_reference\nO1,C1\n",
			items:         "",
			wantCustomers: []model.CustomerMessage{},
			wantErrors:    []model.ErrorMessage{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeExtracts(t, dir, tt.customers, tt.orders, tt.items)
			mem := broker.NewMemory()

			res, err := newTestRunner(t, mem, nil, "").Run(context.Background(), "", model.RunSpec{DataDir: dir})
			require.NoError(t, err)
			assert.NotEmpty(t, res.RunID)

			assert.True(t, mem.Declared(customerQueue))
			assert.True(t, mem.Declared(errorQueue))

			gotCustomers := decodeAll[model.CustomerMessage](t, mem.Messages(customerQueue))
			if diff := cmp.Diff(tt.wantCustomers, gotCustomers); diff != "" {
				t.Errorf("customer stream mismatch (-want +got):\n%s", diff)
			}
			gotErrors := decodeAll[model.ErrorMessage](t, mem.Messages(errorQueue))
			if diff := cmp.Diff(tt.wantErrors, gotErrors); diff != "" {
				t.Errorf("error stream mismatch (-want +got):\n%s", diff)
			}

			assert.Equal(t, len(tt.wantCustomers), res.Published[customerQueue])
			assert.Equal(t, len(tt.wantErrors), res.Published[errorQueue])
		})
	}
}

func TestRun_StrictReferences(t *testing.T) {
	dir := t.TempDir()
	writeExtracts(t, dir,
		"customer_reference\nC1\n",
		"order_reference,customer_reference\nO1,C1\nO2,C9\n",
		"order_reference,total_price\nO1,1\nO2,2\n",
	)
	mem := broker.NewMemory()

	_, err := newTestRunner(t, mem, nil, "").Run(context.Background(), "", model.RunSpec{DataDir: dir, StrictReferences: boolPtr(true)})
	require.NoError(t, err)

	customers := decodeAll[model.CustomerMessage](t, mem.Messages(customerQueue))
	require.Len(t, customers, 1)
	assert.Equal(t, "C1", customers[0].CustomerReference)

	errs := decodeAll[model.ErrorMessage](t, mem.Messages(errorQueue))
	assert.Equal(t, []model.ErrorMessage{{
		Type:              model.ErrorMessageType,
		CustomerReference: strPtr("C9"),
		OrderReference:    "O2",
		Message:           "Customer reference not found in customers.",
		Defect:            model.DefectUnknownCustomerReference,
	}}, errs)
}

func TestRun_IdenticalInputGivesIdenticalMessages(t *testing.T) {
	dir := t.TempDir()
	writeExtracts(t, dir,
		"customer_reference,name\nC1,Ada\nC2,Grace\n",
		"order_reference,customer_reference\nO1,C1\nO2,C2\nO3,\n",
		"order_reference,total_price\nO1,1\nO2,-2\nO3,3\nO1,x\n",
	)

	bodies := func() ([]model.CustomerMessage, []model.ErrorMessage) {
		mem := broker.NewMemory()
		_, err := newTestRunner(t, mem, nil, "").Run(context.Background(), "", model.RunSpec{DataDir: dir})
		require.NoError(t, err)
		return decodeAll[model.CustomerMessage](t, mem.Messages(customerQueue)),
			decodeAll[model.ErrorMessage](t, mem.Messages(errorQueue))
	}

	c1, e1 := bodies()
	c2, e2 := bodies()
	assert.Empty(t, cmp.Diff(c1, c2))
	assert.Empty(t, cmp.Diff(e1, e2))
	assert.Len(t, c1, 2)
	assert.Len(t, e1, 2)
}

func TestRun_MissingExtractAbortsBeforePublish(t *testing.T) {
	dir := t.TempDir()
	mem := broker.NewMemory()

	res, err := newTestRunner(t, mem, nil, "").Run(context.Background(), "", model.RunSpec{DataDir: dir})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, model.StageIngestion, stageErr.Stage)

	require.NotNil(t, res)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, model.StageIngestion, res.Errors[0].Stage)
	assert.Equal(t, 0, mem.Dials())
	assert.False(t, mem.Declared(customerQueue))
}

func TestRun_InvalidSpec(t *testing.T) {
	mem := broker.NewMemory()
	r := newTestRunner(t, mem, nil, "")

	_, err := r.Run(context.Background(), "", model.RunSpec{RunDate: "2026-10-16"})
	assert.Error(t, err)

	_, err = r.Run(context.Background(), "", model.RunSpec{CustomerQueue: "q", ErrorQueue: "q"})
	assert.Error(t, err)
	assert.Equal(t, 0, mem.Dials())
}

func TestRun_RecordsLedgerAndReport(t *testing.T) {
	dir := t.TempDir()
	writeExtracts(t, dir,
		"customer_reference\nC1\n",
		"order_reference,customer_reference\nO1,C1\n",
		"order_reference,total_price\nO1,2\nO9,-1\n",
	)
	db, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reportDir := t.TempDir()
	mem := broker.NewMemory()
	res, err := newTestRunner(t, mem, db, reportDir).Run(context.Background(), "", model.RunSpec{DataDir: dir})
	require.NoError(t, err)

	run, err := db.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run["status"])

	progress, err := db.GetStageProgress(res.RunID)
	require.NoError(t, err)
	stages := map[string]bool{}
	for _, p := range progress {
		stages[p["stage"].(string)] = true
	}
	for _, stage := range []string{
		model.StageIngestion, model.StageReconciliation, model.StageAggregation,
		model.StageMessages, model.StagePublish, model.StageReport,
	} {
		assert.True(t, stages[stage], "stage %s recorded", stage)
	}

	assert.Equal(t, 1, res.Metrics.CustomersRead)
	assert.Equal(t, 1, res.Metrics.OrdersRead)
	assert.Equal(t, 2, res.Metrics.ItemsRead)
	assert.Equal(t, 1, res.Metrics.CustomerMessages)
	assert.Equal(t, 2, res.Metrics.ErrorMessages)
	assert.Equal(t, map[string]int{customerQueue: 1, errorQueue: 2}, res.Metrics.Published)

	require.Equal(t, filepath.Join(reportDir, res.RunID, ReportFileName), res.ReportPath)
	raw, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	var report model.RunReport
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, res.RunID, report.RunID)
	assert.Equal(t, testRunDate, report.RunDate)
	assert.Len(t, report.CustomerMessages, 1)
	assert.Len(t, report.ErrorMessages, 2)
}

func TestRun_PublishFailureMarksRunFailed(t *testing.T) {
	dir := t.TempDir()
	writeExtracts(t, dir,
		"customer_reference\nC1\n",
		"order_reference,customer_reference\nO1,C1\n",
		"order_reference,total_price\nO1,2\n",
	)
	db, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mem := broker.NewMemory()
	mem.PublishErr = func(queue string, _ int) error {
		if queue == customerQueue {
			return errors.New("nack")
		}
		return nil
	}

	runID := "run-under-test"
	require.NoError(t, db.SaveRun(runID, model.RunSpec{DataDir: dir}))

	res, err := newTestRunner(t, mem, db, "").Run(context.Background(), runID, model.RunSpec{DataDir: dir})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, model.StagePublish, stageErr.Stage)
	assert.Equal(t, runID, res.RunID)

	run, err := db.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run["status"])

	runErrors, err := db.GetRunErrors(runID)
	require.NoError(t, err)
	assert.NotEmpty(t, runErrors)
}

func TestRunner_OutputsFollowReportDir(t *testing.T) {
	mem := broker.NewMemory()
	assert.Nil(t, newTestRunner(t, mem, nil, "").Outputs())

	dir := t.TempDir()
	out := newTestRunner(t, mem, nil, dir).Outputs()
	require.NotNil(t, out)
	assert.Equal(t, dir, out.BaseOutputDir)
}
