package pipeline

import (
	"testing"

	"go-reconcile-pipeline/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func rows(records ...model.Record) []ReconciledRow {
	out := make([]ReconciledRow, len(records))
	for i, r := range records {
		out[i] = ReconciledRow{Record: r, OrderMatched: true, CustomerMatched: true}
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		rows []ReconciledRow
		want []model.CustomerSummary
	}{
		{
			name: "items of one order count once",
			rows: rows(
				rec("customer_reference", "C1", "order_reference", "O1", "total_price", "10.00"),
				rec("customer_reference", "C1", "order_reference", "O1", "total_price", "5.00"),
			),
			want: []model.CustomerSummary{{CustomerReference: "C1", TotalPrice: 15, OrderCount: 1}},
		},
		{
			name: "distinct orders",
			rows: rows(
				rec("customer_reference", "C1", "order_reference", "O1", "total_price", "1"),
				rec("customer_reference", "C1", "order_reference", "O2", "total_price", "2"),
				rec("customer_reference", "C1", "order_reference", "O1", "total_price", "3"),
			),
			want: []model.CustomerSummary{{CustomerReference: "C1", TotalPrice: 6, OrderCount: 2}},
		},
		{
			name: "unparsable and missing prices contribute zero",
			rows: rows(
				rec("customer_reference", "C1", "order_reference", "O1", "total_price", "abc"),
				rec("customer_reference", "C1", "order_reference", "O2"),
				rec("customer_reference", "C1", "order_reference", "O3", "total_price", "2.5"),
			),
			want: []model.CustomerSummary{{CustomerReference: "C1", TotalPrice: 2.5, OrderCount: 3}},
		},
		{
			name: "negative prices are summed",
			rows: rows(rec("customer_reference", "C2", "order_reference", "O2", "total_price", "-3.00")),
			want: []model.CustomerSummary{{CustomerReference: "C2", TotalPrice: -3, OrderCount: 1}},
		},
		{
			name: "first seen order and exact keys",
			rows: rows(
				rec("customer_reference", "c1", "order_reference", "O1", "total_price", "1"),
				rec("customer_reference", "C1", "order_reference", "O2", "total_price", "1"),
				rec("customer_reference", "c1", "order_reference", "O3", "total_price", "1"),
			),
			want: []model.CustomerSummary{
				{CustomerReference: "c1", TotalPrice: 2, OrderCount: 2},
				{CustomerReference: "C1", TotalPrice: 1, OrderCount: 1},
			},
		},
		{
			name: "rows without a customer are skipped",
			rows: rows(
				rec("order_reference", "O1", "total_price", "1"),
				rec("customer_reference", "", "order_reference", "O2", "total_price", "1"),
			),
			want: []model.CustomerSummary{},
		},
		{
			name: "empty order reference is not an order",
			rows: rows(rec("customer_reference", "C1", "order_reference", "", "total_price", "7")),
			want: []model.CustomerSummary{{CustomerReference: "C1", TotalPrice: 7, OrderCount: 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.rows)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregate_DuplicateRowKeepsOrderCount(t *testing.T) {
	base := rows(
		rec("customer_reference", "C1", "order_reference", "O1", "total_price", "1"),
		rec("customer_reference", "C1", "order_reference", "O2", "total_price", "1"),
	)
	duplicated := append(append([]ReconciledRow{}, base...), base[0])

	before := Aggregate(base)
	after := Aggregate(duplicated)
	assert.Equal(t, before[0].OrderCount, after[0].OrderCount)
	assert.Equal(t, 3.0, after[0].TotalPrice)
}
