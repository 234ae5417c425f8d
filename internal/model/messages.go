package model

// MessageType is the discriminant consumers switch on
type MessageType string

const (
	CustomerMessageType MessageType = "customer_message"
	ErrorMessageType    MessageType = "error_message"
)

// OutboundMessage is either a CustomerMessage or an ErrorMessage.
type OutboundMessage interface {
	Discriminant() MessageType
	// Key identifies the entity the message is about, for broker message ids and logs.
	Key() string
	outbound()
}

// CustomerMessage carries one CustomerSummary
type CustomerMessage struct {
	Type              MessageType `json:"type"`
	CustomerReference string      `json:"customer_reference"`
	TotalPrice        float64     `json:"total_price"`
	OrderCount        int         `json:"order_count"`
}

// NewCustomerMessage tags a summary for the customer stream.
func NewCustomerMessage(s CustomerSummary) CustomerMessage {
	return CustomerMessage{
		Type:              CustomerMessageType,
		CustomerReference: s.CustomerReference,
		TotalPrice:        s.TotalPrice,
		OrderCount:        s.OrderCount,
	}
}

func (CustomerMessage) Discriminant() MessageType { return CustomerMessageType }
func (m CustomerMessage) Key() string             { return m.CustomerReference }
func (CustomerMessage) outbound()                 {}

// ErrorMessage carries one DefectRecord
type ErrorMessage struct {
	Type              MessageType `json:"type"`
	CustomerReference *string     `json:"customer_reference"`
	OrderReference    string      `json:"order_reference"`
	Message           string      `json:"message"`
	Defect            DefectKind  `json:"defect"`
}

// NewErrorMessage tags a defect for the error stream. The customer
// reference is only carried for unknown-customer defects.
func NewErrorMessage(d DefectRecord) ErrorMessage {
	m := ErrorMessage{
		Type:           ErrorMessageType,
		OrderReference: d.OrderReference,
		Message:        d.Kind.Message(),
		Defect:         d.Kind,
	}
	if d.CustomerReference != "" {
		ref := d.CustomerReference
		m.CustomerReference = &ref
	}
	return m
}

func (ErrorMessage) Discriminant() MessageType { return ErrorMessageType }
func (m ErrorMessage) Key() string             { return m.OrderReference }
func (ErrorMessage) outbound()                 {}
