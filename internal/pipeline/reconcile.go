package pipeline

import (
	"go-reconcile-pipeline/internal/model"
)

// ReconcileOptions controls the optional reference checks
type ReconcileOptions struct {
	// StrictReferences reports items without an order and order-items
	// whose customer is not in the customers extract, and keeps the
	// latter out of the summaries.
	StrictReferences bool
}

// ReconciledRow is one item merged with its order and customer.
type ReconciledRow struct {
	Record          model.Record
	OrderMatched    bool
	CustomerMatched bool
}

// CustomerReference returns the row's customer reference when present and non-empty.
func (r ReconciledRow) CustomerReference() (string, bool) {
	ref, err := r.Record.Text(model.FieldCustomerReference)
	return ref, err == nil
}

// OrderReference returns the row's order reference, possibly empty.
func (r ReconciledRow) OrderReference() string {
	return r.Record[model.FieldOrderReference]
}

// Reconciliation is the output of the join: one row per item, in item
// order, plus the reference defects found along the way.
type Reconciliation struct {
	Rows             []ReconciledRow
	MissingCustomer  []model.DefectRecord
	UnknownOrders    []model.DefectRecord
	UnknownCustomers []model.DefectRecord
	strict           bool
}

// AggregationRows returns the rows eligible for customer summaries:
// rows with a customer reference, and in strict mode only those whose
// customer was found.
func (r Reconciliation) AggregationRows() []ReconciledRow {
	rows := make([]ReconciledRow, 0, len(r.Rows))
	for _, row := range r.Rows {
		if _, ok := row.CustomerReference(); !ok {
			continue
		}
		if r.strict && !row.CustomerMatched {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// referenceIndex maps a key to the first record carrying it.
type referenceIndex map[string]model.Record

// buildIndex indexes records by field. On duplicate keys the first
// record wins; records with an empty key are never indexed.
func buildIndex(records []model.Record, field string) referenceIndex {
	idx := make(referenceIndex, len(records))
	for _, rec := range records {
		key := rec[field]
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = rec
		}
	}
	return idx
}

func (idx referenceIndex) lookup(key string) (model.Record, bool) {
	if key == "" {
		return nil, false
	}
	rec, ok := idx[key]
	return rec, ok
}

// Reconcile joins items to orders by order_reference and the result to
// customers by customer_reference. Item fields override order fields,
// customer fields override both. Unmatched references are represented
// on the rows, never raised.
func Reconcile(customers, orders, items []model.Record, opts ReconcileOptions) Reconciliation {
	ordersByRef := buildIndex(orders, model.FieldOrderReference)
	customersByRef := buildIndex(customers, model.FieldCustomerReference)

	result := Reconciliation{
		Rows:   make([]ReconciledRow, 0, len(items)),
		strict: opts.StrictReferences,
	}

	seenUnknownCustomer := make(map[[2]string]bool)

	for _, item := range items {
		orderRef := item[model.FieldOrderReference]

		// orders ⋈ items
		order, orderMatched := ordersByRef.lookup(orderRef)
		row := ReconciledRow{Record: order.Merge(item), OrderMatched: orderMatched}

		if !orderMatched && opts.StrictReferences {
			result.UnknownOrders = append(result.UnknownOrders, model.DefectRecord{
				Kind:           model.DefectUnknownOrderReference,
				OrderReference: orderRef,
			})
		}

		customerRef, hasCustomerRef := row.CustomerReference()
		if !hasCustomerRef {
			result.MissingCustomer = append(result.MissingCustomer, model.DefectRecord{
				Kind:           model.DefectMissingCustomerReference,
				OrderReference: row.OrderReference(),
			})
		}

		// the customer join runs over every order-item, not only those with a reference
		if customer, ok := customersByRef.lookup(customerRef); ok {
			row.Record = row.Record.Merge(customer)
			row.CustomerMatched = true
		} else if hasCustomerRef && opts.StrictReferences {
			key := [2]string{row.OrderReference(), customerRef}
			if !seenUnknownCustomer[key] {
				seenUnknownCustomer[key] = true
				result.UnknownCustomers = append(result.UnknownCustomers, model.DefectRecord{
					Kind:              model.DefectUnknownCustomerReference,
					OrderReference:    row.OrderReference(),
					CustomerReference: customerRef,
				})
			}
		}

		result.Rows = append(result.Rows, row)
	}

	return result
}
