package models

import "time"

// Ledger entry states. An entry is created in_progress when a payment ID is
// first reserved and moves to committed exactly once; entries for failed
// attempts are deleted so the provider's redelivery can retry.
const (
	LedgerStatusInProgress = "in_progress"
	LedgerStatusCommitted  = "committed"
)

// PaymentLedgerEntry records which provider payment IDs have already produced
// side effects. The unique index on PaymentID is the durable backstop behind
// the per-payment lock: a payment, once committed, is never reprocessed.
type PaymentLedgerEntry struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PaymentID   string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"payment_id"`
	Status      string     `gorm:"type:varchar(20);not null;default:'in_progress';index" json:"status"`
	Outcome     string     `gorm:"type:varchar(32)" json:"outcome"`
	ProcessedAt *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
