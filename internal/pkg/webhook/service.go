package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mercadito/tienda/app/models"
	"github.com/mercadito/tienda/app/repository"
	"github.com/mercadito/tienda/internal/pkg/mercadopago"
	"github.com/mercadito/tienda/internal/pkg/paymentconfig"
	"gorm.io/gorm"
)

const (
	providerName = "mercadopago"

	// paymentLockTTL bounds how long a crashed holder can keep a payment
	// locked. The provider fetch below is the only slow call inside the lock
	// and is itself bounded by providerFetchTimeout.
	paymentLockTTL       = 30 * time.Second
	providerFetchTimeout = 10 * time.Second

	// How long a losing concurrent delivery waits for the winner's outcome
	// before giving up and letting the provider redeliver.
	priorOutcomeWait = 3 * time.Second
	priorOutcomePoll = 150 * time.Millisecond

	defaultMaxTimestampAge = 5 * time.Minute
)

// PaymentFetcher is the provider API surface the service needs. Satisfied by
// *mercadopago.Client.
type PaymentFetcher interface {
	FetchPayment(ctx context.Context, paymentID string) (*mercadopago.VerifiedPayment, error)
	FetchMerchantOrder(ctx context.Context, merchantOrderID string) (*mercadopago.MerchantOrder, error)
}

// Service runs the full webhook pipeline: source guards, signature
// verification, authoritative payment fetch, idempotency ledger, and order
// reconciliation. Configuration and credentials are immutable snapshots
// taken at construction; nothing here reads ambient process state.
type Service struct {
	cfg        paymentconfig.MercadopagoConfig
	creds      paymentconfig.ModeCredentials
	client     PaymentFetcher
	webhooks   repository.WebhookRepository
	reconciler *Reconciler
	locker     Locker
}

// NewService wires the webhook pipeline.
func NewService(
	cfg paymentconfig.MercadopagoConfig,
	creds paymentconfig.ModeCredentials,
	client PaymentFetcher,
	repos *repository.Repositories,
	locker Locker,
) *Service {
	return &Service{
		cfg:        cfg,
		creds:      creds,
		client:     client,
		webhooks:   repos.Webhook,
		reconciler: NewReconciler(repos.Order),
		locker:     locker,
	}
}

// Process handles one inbound notification end to end.
func (s *Service) Process(ctx context.Context, n Notification) (*Outcome, error) {
	if !s.cfg.Enabled {
		return &Outcome{Code: OutcomeIgnored}, nil
	}

	sigValid, authErr := s.verify(n)
	created, stored, err := s.webhooks.CreateEventIfNotExists(&models.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: eventID(n),
		Topic:           n.Topic,
		PayloadJSON:     n.PayloadJSON,
		SignatureValid:  sigValid,
	})
	if err != nil {
		return nil, err
	}
	if authErr != nil {
		if created {
			_ = s.webhooks.MarkEventProcessed(stored.ID, authErr.Error())
		}
		return nil, authErr
	}
	if !created {
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			return &Outcome{Code: OutcomeDuplicate}, nil
		}
		// The prior delivery of this event failed (or is still running);
		// process it again. The per-payment lock and the ledger keep the
		// side effects at-most-once.
		log.Infof("[Webhook] reprocessing event %s after failed attempt", stored.ProviderEventID)
	}

	outcome, procErr := s.dispatch(ctx, n)
	errMsg := ""
	if procErr != nil {
		errMsg = procErr.Error()
	}
	_ = s.webhooks.MarkEventProcessed(stored.ID, errMsg)
	return outcome, procErr
}

// verify runs the guard chain in order: source IP, timestamp, signature.
// Each guard is skippable via webhook_security configuration; skipping the
// signature check is the documented unsafe escape hatch for deployments
// without a secret yet.
func (s *Service) verify(n Notification) (bool, error) {
	sec := s.cfg.WebhookSecurity

	if sec.ValidateIP {
		if err := CheckSourceIP(n.ClientIP, s.cfg.AllowedCIDRs); err != nil {
			return false, err
		}
	}

	sig, sigErr := mercadopago.ParseSignatureHeader(n.SignatureHeader)

	if sec.ValidateTimestamp {
		if sigErr != nil {
			return false, ErrStaleNotification
		}
		maxAge := defaultMaxTimestampAge
		if sec.MaxTimestampAgeMinutes > 0 {
			maxAge = time.Duration(sec.MaxTimestampAgeMinutes) * time.Minute
		}
		if err := CheckTimestamp(sig.TS, n.ReceivedAt, maxAge); err != nil {
			return false, err
		}
	}

	if sec.ValidateSignature {
		if err := mercadopago.ValidateSignature(n.DataID, n.RequestID, n.SignatureHeader, s.creds.WebhookSecret); err != nil {
			return false, err
		}
	}
	return sec.ValidateSignature, nil
}

func (s *Service) dispatch(ctx context.Context, n Notification) (*Outcome, error) {
	switch n.Topic {
	case TopicPayment:
		if n.DataID == "" {
			log.Warnf("[Webhook] payment notification without data id, acknowledging")
			return &Outcome{Code: OutcomeIgnored}, nil
		}
		return s.processPayment(ctx, n.DataID)

	case TopicMerchantOrder:
		if n.DataID == "" {
			log.Warnf("[Webhook] merchant_order notification without data id, acknowledging")
			return &Outcome{Code: OutcomeIgnored}, nil
		}
		return s.processMerchantOrder(ctx, n.DataID)

	default:
		log.Debugf("[Webhook] ignoring topic %q", n.Topic)
		return &Outcome{Code: OutcomeIgnored}, nil
	}
}

// processMerchantOrder resolves a merchant order to its payments and
// processes each one through the same per-payment pipeline.
func (s *Service) processMerchantOrder(ctx context.Context, merchantOrderID string) (*Outcome, error) {
	fctx, cancel := context.WithTimeout(ctx, providerFetchTimeout)
	defer cancel()

	mo, err := s.client.FetchMerchantOrder(fctx, merchantOrderID)
	if err != nil {
		return nil, err
	}
	if len(mo.Payments) == 0 {
		return &Outcome{Code: OutcomePending}, nil
	}

	best := &Outcome{Code: OutcomeIgnored}
	for _, p := range mo.Payments {
		outcome, err := s.processPayment(ctx, strconv.FormatInt(p.ID, 10))
		if err != nil {
			return nil, err
		}
		if outcomeRank(outcome.Code) > outcomeRank(best.Code) {
			best = outcome
		}
	}
	return best, nil
}

// processPayment applies at-most-once side effects for one payment ID. The
// per-payment lock serializes concurrent deliveries; the ledger's unique
// payment_id index is the durable backstop underneath it.
func (s *Service) processPayment(ctx context.Context, paymentID string) (*Outcome, error) {
	lockKey := "lock:webhook:payment:" + paymentID
	token, ok, err := s.locker.Acquire(ctx, lockKey, paymentLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.awaitPriorOutcome(ctx, paymentID)
	}
	defer func() {
		if err := s.locker.Release(context.Background(), lockKey, token); err != nil {
			log.Errorf("[Webhook] releasing lock %s: %v", lockKey, err)
		}
	}()

	if entry, err := s.webhooks.GetLedgerEntry(paymentID); err == nil {
		if entry.Status == models.LedgerStatusCommitted {
			return &Outcome{Code: OutcomeDuplicate, OrderStatus: entry.Outcome}, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created, entry, err := s.webhooks.ReserveLedgerEntry(paymentID)
	if err != nil {
		return nil, err
	}
	if !created && entry.Status == models.LedgerStatusCommitted {
		return &Outcome{Code: OutcomeDuplicate, OrderStatus: entry.Outcome}, nil
	}
	// An existing in_progress entry is a leftover from a crashed attempt;
	// we hold the lock, so resume it.

	fctx, cancel := context.WithTimeout(ctx, providerFetchTimeout)
	defer cancel()
	payment, err := s.client.FetchPayment(fctx, paymentID)
	if err != nil {
		_ = s.webhooks.ReleaseLedgerEntry(paymentID)
		return nil, err
	}

	orderStatus, err := s.reconciler.Apply(payment)
	if err != nil {
		_ = s.webhooks.ReleaseLedgerEntry(paymentID)
		return nil, err
	}

	if !isFinalPaymentStatus(payment.Status) {
		// The same payment ID will come back with a final status later;
		// keep it reprocessable.
		_ = s.webhooks.ReleaseLedgerEntry(paymentID)
		return &Outcome{Code: OutcomePending, OrderStatus: orderStatus}, nil
	}

	if err := s.webhooks.CommitLedgerEntry(paymentID, orderStatus); err != nil {
		return nil, err
	}
	return &Outcome{Code: OutcomeProcessed, OrderStatus: orderStatus}, nil
}

// awaitPriorOutcome briefly polls for the outcome recorded by a concurrent
// delivery holding the lock. If it does not finish in time the provider's
// redelivery retries later.
func (s *Service) awaitPriorOutcome(ctx context.Context, paymentID string) (*Outcome, error) {
	deadline := time.Now().Add(priorOutcomeWait)
	for time.Now().Before(deadline) {
		if entry, err := s.webhooks.GetLedgerEntry(paymentID); err == nil &&
			entry.Status == models.LedgerStatusCommitted {
			return &Outcome{Code: OutcomeDuplicate, OrderStatus: entry.Outcome}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(priorOutcomePoll):
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInFlight, paymentID)
}

func eventID(n Notification) string {
	if n.RequestID != "" {
		return n.RequestID
	}
	sum := sha256.Sum256([]byte(n.PayloadJSON))
	return "hash:" + hex.EncodeToString(sum[:])
}

// isFinalPaymentStatus reports whether a payment status commits the ledger.
// Pending statuses stay reprocessable since the same payment ID returns
// later with its final status.
func isFinalPaymentStatus(status string) bool {
	switch status {
	case mercadopago.PaymentStatusApproved,
		mercadopago.PaymentStatusRejected,
		mercadopago.PaymentStatusCancelled,
		mercadopago.PaymentStatusRefunded,
		mercadopago.PaymentStatusChargedBack:
		return true
	default:
		return false
	}
}

func outcomeRank(code string) int {
	switch code {
	case OutcomeProcessed:
		return 3
	case OutcomeDuplicate:
		return 2
	case OutcomePending:
		return 1
	default:
		return 0
	}
}
