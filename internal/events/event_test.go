package events

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestDecodeOrderCreated_AmountField(t *testing.T) {
	evt, err := DecodeOrderCreated([]byte(`{"orderId":"o1","amount":19.98}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.OrderID != "o1" {
		t.Fatalf("orderId mismatch: %s", evt.OrderID)
	}
	if evt.Amount.String() != "19.98" {
		t.Fatalf("amount drifted: %s", evt.Amount.String())
	}
}

func TestDecodeOrderCreated_TotalFallback(t *testing.T) {
	evt, err := DecodeOrderCreated([]byte(`{"orderId":"o2","total":"5.10"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.Amount.String() != "5.10" {
		t.Fatalf("amount mismatch: %s", evt.Amount.String())
	}
}

func TestDecodeOrderCreated_AmountWinsOverTotal(t *testing.T) {
	evt, err := DecodeOrderCreated([]byte(`{"orderId":"o3","amount":"1.00","total":"2.00"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !evt.Amount.Equal(mustDecimal(t, "1.00")) {
		t.Fatalf("expected amount field to win, got %s", evt.Amount.String())
	}
}

func TestDecodeOrderCreated_Poison(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"orderId":`,
		"missing orderId": `{"amount":5}`,
		"empty orderId":   `{"orderId":"","amount":5.00}`,
		"blank orderId":   `{"orderId":"   ","amount":5}`,
		"missing amount":  `{"orderId":"o1"}`,
		"null amount":     `{"orderId":"o1","amount":null}`,
		"bad amount":      `{"orderId":"o1","amount":"abc"}`,
		"bad total":       `{"orderId":"o1","total":{}}`,
	}
	for name, payload := range cases {
		if _, err := DecodeOrderCreated([]byte(payload)); !errors.Is(err, ErrBadEvent) {
			t.Fatalf("%s: expected ErrBadEvent, got %v", name, err)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	body, err := EncodeOrderCreated(OrderCreated{OrderID: "o9", Amount: mustDecimal(t, "123.45")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	evt, err := DecodeOrderCreated(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.OrderID != "o9" || evt.Amount.String() != "123.45" {
		t.Fatalf("round trip mismatch: %+v", evt)
	}
}
