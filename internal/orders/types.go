package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one position on an order.
type LineItem struct {
	SKU       string          `json:"sku"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Order is the aggregate owned by the orders service. Immutable once
// committed; Total is computed server-side from the line items.
type Order struct {
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	Total      decimal.Decimal `json:"total"`
	Items      []LineItem      `json:"items"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// TotalOf sums qty x unitPrice over the line items without ever touching
// floating point.
func TotalOf(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return total
}

// orderRecord is the persisted shape. Line items are embedded in the order
// item so the whole aggregate commits in one atomic write.
type orderRecord struct {
	OrderID    string           `dynamodbav:"order_id"` // PK
	CustomerID string           `dynamodbav:"customer_id"`
	Total      string           `dynamodbav:"total"`
	Items      []lineItemRecord `dynamodbav:"items,omitempty"`
	CreatedAt  time.Time        `dynamodbav:"created_at"`
}

type lineItemRecord struct {
	SKU       string `dynamodbav:"sku"`
	Qty       int    `dynamodbav:"qty"`
	UnitPrice string `dynamodbav:"unit_price"`
}

func toRecord(o Order) orderRecord {
	rec := orderRecord{
		OrderID:    o.OrderID,
		CustomerID: o.CustomerID,
		Total:      o.Total.String(),
		CreatedAt:  o.CreatedAt,
	}
	for _, it := range o.Items {
		rec.Items = append(rec.Items, lineItemRecord{
			SKU:       it.SKU,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	return rec
}

func fromRecord(rec orderRecord) (Order, error) {
	total, err := decimal.NewFromString(rec.Total)
	if err != nil {
		return Order{}, err
	}
	o := Order{
		OrderID:    rec.OrderID,
		CustomerID: rec.CustomerID,
		Total:      total,
		CreatedAt:  rec.CreatedAt,
	}
	for _, it := range rec.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, LineItem{SKU: it.SKU, Qty: it.Qty, UnitPrice: price})
	}
	return o, nil
}
