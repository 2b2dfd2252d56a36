package webhook

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mercadito/tienda/app/models"
	"github.com/mercadito/tienda/app/repository"
	"github.com/mercadito/tienda/internal/pkg/mercadopago"
	"gorm.io/gorm"
)

// Reconciler maps a verified payment status onto an order status transition
// and performs the one-time inventory decrement. It is the only component
// that mutates orders and stock; callers must hold the per-payment lock.
type Reconciler struct {
	orders repository.OrderRepository
}

// NewReconciler creates a reconciler over the order repository.
func NewReconciler(orders repository.OrderRepository) *Reconciler {
	return &Reconciler{orders: orders}
}

// Apply looks up the order behind the payment's external reference and
// advances its state machine:
//
//	pending_payment -> paid       (approved; decrements stock exactly once)
//	pending_payment -> cancelled  (rejected/cancelled; stock untouched)
//
// paid and cancelled are terminal. Repeat or late notifications on a
// terminal order are no-ops. The resulting order status is returned.
func (r *Reconciler) Apply(payment *mercadopago.VerifiedPayment) (string, error) {
	ref := payment.ExternalReference
	if ref == "" {
		return "", fmt.Errorf("%w: payment %d has no external reference", ErrOrderNotFound, payment.ID)
	}

	order, err := r.orders.GetByOrderNumber(ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrOrderNotFound, ref)
		}
		return "", err
	}

	switch payment.Status {
	case mercadopago.PaymentStatusApproved:
		return r.applyApproved(order, payment)
	case mercadopago.PaymentStatusRejected, mercadopago.PaymentStatusCancelled:
		return r.applyCancelled(order, payment)
	default:
		// pending, in_process and the like: acknowledged, no side effect yet.
		return order.Status, nil
	}
}

func (r *Reconciler) applyApproved(order *models.Order, payment *mercadopago.VerifiedPayment) (string, error) {
	if order.Status == models.OrderStatusPaid {
		log.Debugf("[Webhook] order %s already paid, ignoring repeat approval for payment %d", order.OrderNumber, payment.ID)
		return order.Status, nil
	}
	if order.IsTerminal() {
		log.Warnf("[Webhook] late approval for payment %d on terminal order %s (%s), not transitioning", payment.ID, order.OrderNumber, order.Status)
		return order.Status, nil
	}

	if order.StockReduced {
		// Unreachable while the stock_reduced guard and per-payment lock
		// hold; reaching it means lock discipline was violated.
		return "", fmt.Errorf("%w: order %s", ErrStockInvariant, order.OrderNumber)
	}

	order.Status = models.OrderStatusPaid
	order.StockReduced = true
	order.PaymentID = strconv.FormatInt(payment.ID, 10)
	// Stock decrements and the paid transition commit or roll back as one
	// unit; a failed decrement must not leave other items decremented.
	if err := r.orders.MarkPaid(order); err != nil {
		return "", fmt.Errorf("mark order %s paid: %w", order.OrderNumber, err)
	}
	log.Infof("[Webhook] order %s paid via payment %d, stock reduced", order.OrderNumber, payment.ID)
	return order.Status, nil
}

func (r *Reconciler) applyCancelled(order *models.Order, payment *mercadopago.VerifiedPayment) (string, error) {
	if order.IsTerminal() {
		log.Debugf("[Webhook] order %s already %s, ignoring %s for payment %d", order.OrderNumber, order.Status, payment.Status, payment.ID)
		return order.Status, nil
	}

	// Stock was never reserved at payment time, so nothing to restore.
	order.Status = models.OrderStatusCancelled
	order.PaymentID = strconv.FormatInt(payment.ID, 10)
	if err := r.orders.Update(order); err != nil {
		return "", err
	}
	log.Infof("[Webhook] order %s cancelled (payment %d %s)", order.OrderNumber, payment.ID, payment.Status)
	return order.Status, nil
}
