package models

import "time"

type Product struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	BusinessID    uint      `gorm:"index;not null" json:"business_id"`
	Name          string    `gorm:"size:150;not null" json:"name"`
	SKU           string    `gorm:"size:60;index" json:"sku"`
	Unit          string    `gorm:"size:20;not null;default:'unit'" json:"unit"`
	PriceCents    int64     `gorm:"not null;default:0" json:"price_cents"`
	UnitCostCents *int64    `json:"unit_cost_cents"`
	IsStocked     bool      `gorm:"not null;default:false" json:"is_stocked"`
	IsService     bool      `gorm:"not null;default:false" json:"is_service"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
