package pipeline

import (
	"go-reconcile-pipeline/internal/model"
)

// Streams holds the two outbound message streams of a run. They are
// disjoint: Customers only carries customer messages, Errors only
// carries error messages.
type Streams struct {
	Customers []model.OutboundMessage
	Errors    []model.OutboundMessage
}

// NegativePriceDefects flags every item whose total_price parses to a
// negative number. Unparsable prices are not flagged.
func NegativePriceDefects(items []model.Record) []model.DefectRecord {
	var defects []model.DefectRecord
	for _, item := range items {
		price, err := item.Number(model.FieldTotalPrice)
		if err != nil || price >= 0 {
			continue
		}
		defects = append(defects, model.DefectRecord{
			Kind:           model.DefectNegativeTotalPrice,
			OrderReference: item[model.FieldOrderReference],
		})
	}
	return defects
}

// BuildMessages turns the summaries and defects of a run into the two
// message streams. Negative-price defects come from the raw items, so
// they are classified independently of the join. The error stream is
// ordered negative price, missing customer, unknown order, unknown
// customer.
func BuildMessages(items []model.Record, summaries []model.CustomerSummary, rec Reconciliation) Streams {
	streams := Streams{
		Customers: make([]model.OutboundMessage, 0, len(summaries)),
		Errors:    []model.OutboundMessage{},
	}

	for _, s := range summaries {
		streams.Customers = append(streams.Customers, model.NewCustomerMessage(s))
	}

	for _, group := range [][]model.DefectRecord{
		NegativePriceDefects(items),
		rec.MissingCustomer,
		rec.UnknownOrders,
		rec.UnknownCustomers,
	} {
		for _, d := range group {
			streams.Errors = append(streams.Errors, model.NewErrorMessage(d))
		}
	}

	return streams
}
