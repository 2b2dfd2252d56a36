package webhook

import (
	"errors"
	"testing"

	"github.com/mercadito/tienda/app/models"
	"github.com/mercadito/tienda/internal/pkg/mercadopago"
)

func seedOrderWithStock(t *testing.T) (*fakeOrderRepo, *fakeProductRepo) {
	t.Helper()
	products := newFakeProductRepo()
	orders := newFakeOrderRepo(products)

	_ = products.Create(&models.Product{ID: 1, SKU: "SKU-1", PriceCents: 1000, Stock: 10})
	_ = orders.Create(&models.Order{
		OrderNumber: "ORD-100",
		Status:      models.OrderStatusPendingPayment,
		TotalCents:  2000,
		Items: []models.OrderItem{
			{ProductID: 1, SKU: "SKU-1", Quantity: 2, UnitPriceCents: 1000},
		},
	})
	return orders, products
}

func approvedPayment(id int64, ref string) *mercadopago.VerifiedPayment {
	return &mercadopago.VerifiedPayment{
		ID:                id,
		Status:            mercadopago.PaymentStatusApproved,
		ExternalReference: ref,
	}
}

func TestReconcilerApproved(t *testing.T) {
	orders, products := seedOrderWithStock(t)
	r := NewReconciler(orders)

	status, err := r.Apply(approvedPayment(9, "ORD-100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.OrderStatusPaid {
		t.Fatalf("expected paid, got %q", status)
	}

	order, _ := orders.GetByOrderNumber("ORD-100")
	if order.Status != models.OrderStatusPaid || !order.StockReduced {
		t.Fatalf("unexpected order state: status=%q stock_reduced=%t", order.Status, order.StockReduced)
	}
	if order.PaymentID != "9" {
		t.Fatalf("expected payment id recorded, got %q", order.PaymentID)
	}
	if got := products.stockOf(1); got != 8 {
		t.Fatalf("expected stock 8 after decrement, got %d", got)
	}
}

func TestReconcilerApproved_RepeatIsNoop(t *testing.T) {
	orders, products := seedOrderWithStock(t)
	r := NewReconciler(orders)

	if _, err := r.Apply(approvedPayment(9, "ORD-100")); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	status, err := r.Apply(approvedPayment(9, "ORD-100"))
	if err != nil {
		t.Fatalf("repeat apply failed: %v", err)
	}
	if status != models.OrderStatusPaid {
		t.Fatalf("expected paid, got %q", status)
	}
	if got := products.stockOf(1); got != 8 {
		t.Fatalf("stock decremented twice: %d", got)
	}
	if got := products.decrementCount(); got != 1 {
		t.Fatalf("expected exactly one decrement, got %d", got)
	}
}

func TestReconcilerApproved_TerminalCancelledStays(t *testing.T) {
	orders, products := seedOrderWithStock(t)
	r := NewReconciler(orders)

	order, _ := orders.GetByOrderNumber("ORD-100")
	order.Status = models.OrderStatusCancelled
	_ = orders.Update(order)

	status, err := r.Apply(approvedPayment(9, "ORD-100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.OrderStatusCancelled {
		t.Fatalf("terminal order transitioned to %q", status)
	}
	if got := products.stockOf(1); got != 10 {
		t.Fatalf("stock touched on terminal order: %d", got)
	}
}

func TestReconcilerRejected(t *testing.T) {
	orders, products := seedOrderWithStock(t)
	r := NewReconciler(orders)

	status, err := r.Apply(&mercadopago.VerifiedPayment{
		ID:                9,
		Status:            mercadopago.PaymentStatusRejected,
		ExternalReference: "ORD-100",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %q", status)
	}
	if got := products.stockOf(1); got != 10 {
		t.Fatalf("stock changed on rejection: %d", got)
	}
}

func TestReconcilerPending_NoChange(t *testing.T) {
	orders, _ := seedOrderWithStock(t)
	r := NewReconciler(orders)

	status, err := r.Apply(&mercadopago.VerifiedPayment{
		ID:                9,
		Status:            mercadopago.PaymentStatusInProcess,
		ExternalReference: "ORD-100",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.OrderStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %q", status)
	}
	order, _ := orders.GetByOrderNumber("ORD-100")
	if order.StockReduced {
		t.Fatalf("stock reduced on pending payment")
	}
}

func TestReconcilerOrderNotFound(t *testing.T) {
	orders, _ := seedOrderWithStock(t)
	r := NewReconciler(orders)

	_, err := r.Apply(approvedPayment(9, "ORD-MISSING"))
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	_, err = r.Apply(approvedPayment(9, ""))
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for empty reference, got %v", err)
	}
}

func seedTwoItemOrder(t *testing.T) (*fakeOrderRepo, *fakeProductRepo) {
	t.Helper()
	products := newFakeProductRepo()
	orders := newFakeOrderRepo(products)

	_ = products.Create(&models.Product{ID: 1, SKU: "SKU-1", PriceCents: 1000, Stock: 10})
	_ = products.Create(&models.Product{ID: 2, SKU: "SKU-2", PriceCents: 500, Stock: 5})
	_ = orders.Create(&models.Order{
		OrderNumber: "ORD-200",
		Status:      models.OrderStatusPendingPayment,
		TotalCents:  2500,
		Items: []models.OrderItem{
			{ProductID: 1, SKU: "SKU-1", Quantity: 2, UnitPriceCents: 1000},
			{ProductID: 2, SKU: "SKU-2", Quantity: 1, UnitPriceCents: 500},
		},
	})
	return orders, products
}

func TestReconcilerApproved_FailedItemRollsBackAllDecrements(t *testing.T) {
	orders, products := seedTwoItemOrder(t)
	r := NewReconciler(orders)

	// The second item's decrement fails once, e.g. a dropped connection
	// mid-transaction. No item may stay decremented.
	products.failSKU = "SKU-2"
	products.failuresLeft = 1

	if _, err := r.Apply(approvedPayment(10, "ORD-200")); err == nil {
		t.Fatal("expected failed apply")
	}
	if got := products.stockOf(1); got != 10 {
		t.Fatalf("first item stock changed by failed apply: %d", got)
	}
	if got := products.stockOf(2); got != 5 {
		t.Fatalf("second item stock changed by failed apply: %d", got)
	}
	order, _ := orders.GetByOrderNumber("ORD-200")
	if order.Status != models.OrderStatusPendingPayment || order.StockReduced {
		t.Fatalf("failed apply mutated order: status=%q stock_reduced=%t", order.Status, order.StockReduced)
	}

	// The redelivered notification succeeds and decrements each item
	// exactly once.
	status, err := r.Apply(approvedPayment(10, "ORD-200"))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if status != models.OrderStatusPaid {
		t.Fatalf("expected paid, got %q", status)
	}
	if got := products.stockOf(1); got != 8 {
		t.Fatalf("expected stock 8 for first item, got %d", got)
	}
	if got := products.stockOf(2); got != 4 {
		t.Fatalf("expected stock 4 for second item, got %d", got)
	}
	if got := products.decrementCount(); got != 2 {
		t.Fatalf("expected one decrement per item, got %d", got)
	}
}

func TestReconcilerStockInvariant(t *testing.T) {
	orders, _ := seedOrderWithStock(t)
	r := NewReconciler(orders)

	// Force the impossible state: pending order with stock already reduced.
	order, _ := orders.GetByOrderNumber("ORD-100")
	order.StockReduced = true
	_ = orders.Update(order)

	_, err := r.Apply(approvedPayment(9, "ORD-100"))
	if !errors.Is(err, ErrStockInvariant) {
		t.Fatalf("expected ErrStockInvariant, got %v", err)
	}
}
