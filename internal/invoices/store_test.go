package invoices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

func TestInsert_DuplicateOrder(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "invoices")
	ctx := context.Background()

	first := New("O1", mustDecimal(t, "19.98"))
	if err := s.Insert(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := New("O1", mustDecimal(t, "42.00"))
	if err := s.Insert(ctx, second); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}

	// the first write wins
	got, err := s.GetByOrder(ctx, "O1")
	if err != nil {
		t.Fatalf("get by order: %v", err)
	}
	if got.InvoiceID != first.InvoiceID {
		t.Fatalf("invoice replaced by duplicate insert")
	}
	if got.Amount.String() != "19.98" {
		t.Fatalf("amount mismatch: %s", got.Amount.String())
	}
	if got.Status != StatusOpen {
		t.Fatalf("expected OPEN, got %s", got.Status)
	}
}

func TestGet_ByInvoiceID(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "invoices")
	ctx := context.Background()

	inv := New("O2", mustDecimal(t, "7.50"))
	if err := s.Insert(ctx, inv); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get(ctx, inv.InvoiceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OrderID != "O2" {
		t.Fatalf("order mismatch: %s", got.OrderID)
	}

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetByOrder(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkPaid_Idempotent(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "invoices")
	ctx := context.Background()

	inv := New("O3", mustDecimal(t, "10.00"))
	if err := s.Insert(ctx, inv); err != nil {
		t.Fatalf("insert: %v", err)
	}

	paid, err := s.MarkPaid(ctx, inv.InvoiceID)
	if err != nil {
		t.Fatalf("first MarkPaid: %v", err)
	}
	if paid.Status != StatusPaid {
		t.Fatalf("expected PAID, got %s", paid.Status)
	}

	// retrying is a no-op success, not an error
	again, err := s.MarkPaid(ctx, inv.InvoiceID)
	if err != nil {
		t.Fatalf("second MarkPaid: %v", err)
	}
	if again.Status != StatusPaid {
		t.Fatalf("expected PAID on retry, got %s", again.Status)
	}
}

func TestMarkPaid_Concurrent(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "invoices")
	ctx := context.Background()

	inv := New("O2-pay", mustDecimal(t, "10.00"))
	if err := s.Insert(ctx, inv); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.MarkPaid(ctx, inv.InvoiceID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent MarkPaid %d: %v", i, err)
		}
	}

	got, err := s.GetByOrder(ctx, "O2-pay")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPaid {
		t.Fatalf("expected PAID, got %s", got.Status)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one invoice, got %d", n)
	}
}

func TestMarkPaid_NotFound(t *testing.T) {
	s := NewStore(newMockDynamo(), "invoices")
	if _, err := s.MarkPaid(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSince_FilterAndOrder(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "invoices")
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	// deliberately inserted out of creation order
	ages := map[string]time.Duration{
		"O-mid":    30 * time.Minute,
		"O-oldest": 0,
		"O-newest": 50 * time.Minute,
	}
	for orderID, offset := range ages {
		inv := New(orderID, mustDecimal(t, "1.00"))
		inv.CreatedAt = base.Add(offset)
		if err := s.Insert(ctx, inv); err != nil {
			t.Fatalf("insert %s: %v", orderID, err)
		}
	}

	since := base.Add(30 * time.Minute)
	list, err := s.ListSince(ctx, since, 200)
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 invoices at or after cutoff, got %d", len(list))
	}
	if list[0].OrderID != "O-newest" || list[1].OrderID != "O-mid" {
		t.Fatalf("wrong order: %s, %s", list[0].OrderID, list[1].OrderID)
	}

	recent, err := s.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || recent[0].OrderID != "O-newest" {
		t.Fatalf("list recent wrong: %+v", recent)
	}
}

func TestDeletes(t *testing.T) {
	mock := newMockDynamo()
	s := NewStore(mock, "invoices")
	ctx := context.Background()

	now := time.Now().UTC()
	old := New("O-old", mustDecimal(t, "1.00"))
	old.CreatedAt = now.Add(-2 * time.Hour)
	fresh := New("O-fresh", mustDecimal(t, "2.00"))
	for _, inv := range []Invoice{old, fresh} {
		if err := s.Insert(ctx, inv); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := s.DeleteOlderThan(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}

	found, err := s.DeleteByOrder(ctx, "O-fresh")
	if err != nil || !found {
		t.Fatalf("delete by order: found=%v err=%v", found, err)
	}
	found, err = s.DeleteByOrder(ctx, "O-fresh")
	if err != nil || found {
		t.Fatalf("second delete should find nothing: found=%v err=%v", found, err)
	}

	if err := s.Insert(ctx, New("O-x", mustDecimal(t, "3.00"))); err != nil {
		t.Fatalf("insert: %v", err)
	}
	n, err = s.DeleteAll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("delete all: n=%d err=%v", n, err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func TestInsert_StorageFailure(t *testing.T) {
	mock := newMockDynamo()
	mock.failWith = errors.New("storage offline")
	s := NewStore(mock, "invoices")

	err := s.Insert(context.Background(), New("O9", mustDecimal(t, "1.00")))
	if err == nil || errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected a retryable error distinct from ErrDuplicateOrder, got %v", err)
	}
}
