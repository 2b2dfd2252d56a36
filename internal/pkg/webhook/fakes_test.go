package webhook

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mercadito/tienda/app/models"
	"github.com/mercadito/tienda/internal/pkg/mercadopago"
	"gorm.io/gorm"
)

// In-memory repository fakes. They mimic the contract of the GORM
// implementations closely enough for pipeline tests: copy-on-read semantics,
// gorm.ErrRecordNotFound on misses, and atomic ledger reservation.

type fakeOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	nextID   uint
	products *fakeProductRepo
}

func newFakeOrderRepo(products *fakeProductRepo) *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*models.Order), products: products}
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (f *fakeOrderRepo) Create(order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	f.orders[order.OrderNumber] = copyOrder(order)
	return nil
}

func (f *fakeOrderRepo) GetByID(id uint) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == id {
			return copyOrder(o), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrderRepo) GetByOrderNumber(orderNumber string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderNumber]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyOrder(o), nil
}

func (f *fakeOrderRepo) Update(order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.OrderNumber] = copyOrder(order)
	return nil
}

// MarkPaid mirrors the transactional GORM implementation: either every item
// is decremented and the order saved, or nothing changes.
func (f *fakeOrderRepo) MarkPaid(order *models.Order) error {
	if err := f.products.decrementAll(order.Items); err != nil {
		return err
	}
	return f.Update(order)
}

func (f *fakeOrderRepo) List(offset, limit int) ([]models.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeOrderRepo) Count() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.orders)), nil
}

type fakeProductRepo struct {
	mu         sync.Mutex
	products   map[uint]*models.Product
	decrements int

	// one-shot failure injection: decrementAll fails while failuresLeft > 0
	// whenever an item matches failSKU, simulating a transient DB error.
	failSKU      string
	failuresLeft int
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[uint]*models.Product)}
}

func (f *fakeProductRepo) Create(product *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[product.ID] = product
	return nil
}

func (f *fakeProductRepo) GetByID(id uint) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) GetBySKU(sku string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.SKU == sku {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProductRepo) Update(product *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *product
	f.products[product.ID] = &cp
	return nil
}

func (f *fakeProductRepo) DecrementStock(productID uint, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok || p.Stock < quantity {
		return errors.New("insufficient stock")
	}
	p.Stock -= quantity
	f.decrements++
	return nil
}

// decrementAll applies the decrements of a whole order with the rollback
// semantics of a transaction: validate every item first, then mutate.
func (f *fakeProductRepo) decrementAll(items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		if f.failuresLeft > 0 && item.SKU == f.failSKU {
			f.failuresLeft--
			return errors.New("stock update failed")
		}
		p, ok := f.products[item.ProductID]
		if !ok || p.Stock < item.Quantity {
			return errors.New("insufficient stock")
		}
	}
	for _, item := range items {
		f.products[item.ProductID].Stock -= item.Quantity
		f.decrements++
	}
	return nil
}

func (f *fakeProductRepo) List(offset, limit int) ([]models.Product, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProductRepo) stockOf(productID uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[productID].Stock
}

func (f *fakeProductRepo) decrementCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decrements
}

type fakeWebhookRepo struct {
	mu     sync.Mutex
	events map[string]*models.WebhookEvent
	ledger map[string]*models.PaymentLedgerEntry
	nextID uint
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{
		events: make(map[string]*models.WebhookEvent),
		ledger: make(map[string]*models.PaymentLedgerEntry),
	}
}

func (f *fakeWebhookRepo) CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := f.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	f.nextID++
	event.ID = f.nextID
	cp := *event
	f.events[key] = &cp
	out := *event
	return true, &out, nil
}

func (f *fakeWebhookRepo) MarkEventProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeWebhookRepo) GetLedgerEntry(paymentID string) (*models.PaymentLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.ledger[paymentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *entry
	return &cp, nil
}

func (f *fakeWebhookRepo) ReserveLedgerEntry(paymentID string) (bool, *models.PaymentLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.ledger[paymentID]; ok {
		cp := *stored
		return false, &cp, nil
	}
	f.nextID++
	entry := &models.PaymentLedgerEntry{
		ID:        f.nextID,
		PaymentID: paymentID,
		Status:    models.LedgerStatusInProgress,
	}
	f.ledger[paymentID] = entry
	cp := *entry
	return true, &cp, nil
}

func (f *fakeWebhookRepo) CommitLedgerEntry(paymentID, outcome string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.ledger[paymentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	entry.Status = models.LedgerStatusCommitted
	entry.Outcome = outcome
	entry.ProcessedAt = &now
	return nil
}

func (f *fakeWebhookRepo) ReleaseLedgerEntry(paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.ledger[paymentID]; ok && entry.Status == models.LedgerStatusInProgress {
		delete(f.ledger, paymentID)
	}
	return nil
}

func (f *fakeWebhookRepo) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, entry := range f.ledger {
		if entry.Status == models.LedgerStatusCommitted {
			n++
		}
	}
	return n
}

type fakeFetcher struct {
	mu             sync.Mutex
	payments       map[string]*mercadopago.VerifiedPayment
	merchantOrders map[string]*mercadopago.MerchantOrder
	err            error
	fetches        int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payments:       make(map[string]*mercadopago.VerifiedPayment),
		merchantOrders: make(map[string]*mercadopago.MerchantOrder),
	}
}

func (f *fakeFetcher) FetchPayment(_ context.Context, paymentID string) (*mercadopago.VerifiedPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, mercadopago.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeFetcher) FetchMerchantOrder(_ context.Context, merchantOrderID string) (*mercadopago.MerchantOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	mo, ok := f.merchantOrders[merchantOrderID]
	if !ok {
		return nil, mercadopago.ErrPaymentNotFound
	}
	cp := *mo
	return &cp, nil
}
