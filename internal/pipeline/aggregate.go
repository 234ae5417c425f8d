package pipeline

import (
	"go-reconcile-pipeline/internal/model"
)

// customerAccumulator collects the running totals of one customer group
type customerAccumulator struct {
	summary model.CustomerSummary
	orders  map[string]struct{}
}

func (a *customerAccumulator) add(row ReconciledRow) {
	// missing or unparsable prices contribute nothing
	a.summary.TotalPrice += row.Record.NumberOr(model.FieldTotalPrice, 0)

	if ref := row.OrderReference(); ref != "" {
		if _, seen := a.orders[ref]; !seen {
			a.orders[ref] = struct{}{}
			a.summary.OrderCount++
		}
	}
}

// Aggregate groups rows by customer_reference and returns one summary
// per customer in first-seen order. Rows without a customer reference
// are skipped. Negative prices are summed like any other.
func Aggregate(rows []ReconciledRow) []model.CustomerSummary {
	groups := make(map[string]*customerAccumulator)
	var order []string

	for _, row := range rows {
		ref, ok := row.CustomerReference()
		if !ok {
			continue
		}

		acc, exists := groups[ref]
		if !exists {
			acc = &customerAccumulator{
				summary: model.CustomerSummary{CustomerReference: ref},
				orders:  make(map[string]struct{}),
			}
			groups[ref] = acc
			order = append(order, ref)
		}
		acc.add(row)
	}

	summaries := make([]model.CustomerSummary, 0, len(order))
	for _, ref := range order {
		summaries = append(summaries, groups[ref].summary)
	}
	return summaries
}
