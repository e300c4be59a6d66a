package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice statuses. PAID is terminal; there is no way back to OPEN.
const (
	StatusOpen = "OPEN"
	StatusPaid = "PAID"
)

// Invoice is one billing record per order. OrderID is unique across the
// store for its lifetime — it is the deduplication key that makes
// redelivered order events converge to a single invoice.
type Invoice struct {
	InvoiceID string          `json:"invoiceId"`
	OrderID   string          `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// New returns an OPEN invoice for the given order with a fresh invoice id.
func New(orderID string, amount decimal.Decimal) Invoice {
	now := time.Now().UTC()
	return Invoice{
		InvoiceID: uuid.NewString(),
		OrderID:   orderID,
		Amount:    amount,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// invoiceRecord is the shape persisted in the invoices DynamoDB table.
// order_id is the partition key: the table itself enforces at most one
// invoice per order. invoice_id is served by a GSI for direct lookups.
// Amounts are stored as decimal strings, never floats.
type invoiceRecord struct {
	OrderID   string    `dynamodbav:"order_id"`   // PK
	InvoiceID string    `dynamodbav:"invoice_id"` // GSI invoice_id-index
	Amount    string    `dynamodbav:"amount"`
	Status    string    `dynamodbav:"status"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

func toRecord(inv Invoice) invoiceRecord {
	return invoiceRecord{
		OrderID:   inv.OrderID,
		InvoiceID: inv.InvoiceID,
		Amount:    inv.Amount.String(),
		Status:    inv.Status,
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
}

func fromRecord(rec invoiceRecord) (Invoice, error) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		InvoiceID: rec.InvoiceID,
		OrderID:   rec.OrderID,
		Amount:    amount,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
