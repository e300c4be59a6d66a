// Package events defines the wire contract shared by the orders publisher
// and the billing consumer.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TypeOrderCreated is the routing key for order-creation events. Other
// consumers can subscribe to the same stream by filtering on it.
const TypeOrderCreated = "order.created"

// OrderCreated announces that an order was durably committed.
// The schema is intentionally minimal and versionless.
type OrderCreated struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

// ErrBadEvent marks a payload that can never be processed (poison).
// The consumer routes such deliveries to the dead-letter queue instead of retrying.
var ErrBadEvent = errors.New("malformed order event")

// EncodeOrderCreated serializes the event for publishing. Amounts are
// encoded via shopspring/decimal so currency values never pass through
// floating point.
func EncodeOrderCreated(evt OrderCreated) ([]byte, error) {
	return json.Marshal(evt)
}

// DecodeOrderCreated parses an OrderCreated payload. Some producers emit the
// amount as "total" instead of "amount"; both are accepted. A missing or
// empty orderId, or the absence of a decimal amount under either name, is
// reported as ErrBadEvent.
func DecodeOrderCreated(data []byte) (OrderCreated, error) {
	var raw struct {
		OrderID string          `json:"orderId"`
		Amount  json.RawMessage `json:"amount"`
		Total   json.RawMessage `json:"total"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return OrderCreated{}, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	if strings.TrimSpace(raw.OrderID) == "" {
		return OrderCreated{}, fmt.Errorf("%w: orderId missing or empty", ErrBadEvent)
	}

	field := raw.Amount
	if len(field) == 0 || string(field) == "null" {
		field = raw.Total
	}
	if len(field) == 0 || string(field) == "null" {
		return OrderCreated{}, fmt.Errorf("%w: amount/total missing", ErrBadEvent)
	}

	var amount decimal.Decimal
	if err := json.Unmarshal(field, &amount); err != nil {
		return OrderCreated{}, fmt.Errorf("%w: amount not decimal: %v", ErrBadEvent, err)
	}

	return OrderCreated{OrderID: raw.OrderID, Amount: amount}, nil
}
