package validation

// ItemReq represents a single order line item in a create request.
// Unit prices travel as strings and are parsed as exact decimals; a float
// here would invite currency drift.
type ItemReq struct {
	SKU       string `json:"sku" validate:"required,max=64"`
	Qty       int    `json:"qty" validate:"required,min=1"`
	UnitPrice string `json:"unitPrice" validate:"required"`
}

// CreateOrderRequest is the payload for POST /api/orders.
type CreateOrderRequest struct {
	CustomerID string    `json:"customerId" validate:"required"`
	Items      []ItemReq `json:"items" validate:"required,min=1,dive"`
}

// CreateInvoiceRequest is the payload for the administrative
// POST /api/invoices path that bypasses the event flow.
type CreateInvoiceRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Amount  string `json:"amount" validate:"required"`
}
