package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(createInvoiceStructValidation, CreateInvoiceRequest{})

	return v
}

// createOrderStructValidation checks that every unit price parses as a
// positive decimal.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	for _, it := range req.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil || !price.IsPositive() {
			sl.ReportError(it.UnitPrice, "unitPrice", "UnitPrice", "decimal_positive", it.SKU)
		}
	}
}

// createInvoiceStructValidation checks that the amount parses as a
// non-negative decimal.
func createInvoiceStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateInvoiceRequest)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		sl.ReportError(req.Amount, "amount", "Amount", "decimal_non_negative", "")
	}
}
