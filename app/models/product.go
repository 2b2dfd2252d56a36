package models

import "time"

// Product is a catalog item sold by the storefront. Stock is the source of
// truth for availability; the webhook reconciler decrements it when an order
// is paid.
type Product struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SKU        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"sku"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	PriceCents int64     `gorm:"not null" json:"price_cents"`
	Currency   string    `gorm:"type:varchar(3);not null;default:'ARS'" json:"currency"`
	Stock      int       `gorm:"not null;default:0" json:"stock"`
	IsActive   bool      `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
