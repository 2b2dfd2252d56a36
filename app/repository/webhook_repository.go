package repository

import (
	"time"

	"github.com/mercadito/tienda/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a webhook repository backed by GORM
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookRepository) MarkEventProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *webhookRepository) GetLedgerEntry(paymentID string) (*models.PaymentLedgerEntry, error) {
	var entry models.PaymentLedgerEntry
	if err := r.db.Where("payment_id = ?", paymentID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReserveLedgerEntry inserts an in_progress entry for the payment ID unless
// one already exists. The unique index on payment_id makes the insert the
// atomic claim point; created=false means another delivery got there first.
func (r *webhookRepository) ReserveLedgerEntry(paymentID string) (bool, *models.PaymentLedgerEntry, error) {
	entry := &models.PaymentLedgerEntry{
		PaymentID: paymentID,
		Status:    models.LedgerStatusInProgress,
	}
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(entry)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentLedgerEntry
	if err := r.db.Where("payment_id = ?", paymentID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookRepository) CommitLedgerEntry(paymentID, outcome string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.LedgerStatusCommitted,
		"outcome":      outcome,
		"processed_at": &now,
	}
	return r.db.Model(&models.PaymentLedgerEntry{}).
		Where("payment_id = ?", paymentID).
		Updates(updates).Error
}

// ReleaseLedgerEntry drops an uncommitted reservation so the provider's
// redelivery can re-attempt the payment. Committed entries are never removed.
func (r *webhookRepository) ReleaseLedgerEntry(paymentID string) error {
	return r.db.
		Where("payment_id = ? AND status = ?", paymentID, models.LedgerStatusInProgress).
		Delete(&models.PaymentLedgerEntry{}).Error
}
