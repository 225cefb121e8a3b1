package models

import (
	"time"

	"gorm.io/datatypes"
)

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceSent      InvoiceStatus = "SENT"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Invoice keeps BalanceCents = TotalCents - DepositCents; both are recomputed
// whenever the lines are replaced.
type Invoice struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	BusinessID     uint          `gorm:"index;not null;uniqueIndex:idx_invoices_business_number" json:"business_id"`
	ProjectID      uint          `gorm:"index;not null" json:"project_id"`
	Project        *Project      `json:"project,omitempty"`
	ClientID       *uint         `gorm:"index" json:"client_id"`
	Client         *Client       `json:"client,omitempty"`
	QuoteID        *uint         `gorm:"uniqueIndex" json:"quote_id"`
	Status         InvoiceStatus `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`
	Number         *string       `gorm:"size:30;uniqueIndex:idx_invoices_business_number" json:"number"`
	Currency       string        `gorm:"size:3;not null;default:'EUR'" json:"currency"`
	TotalCents     int64         `gorm:"not null;default:0" json:"total_cents"`
	DepositPercent int           `gorm:"not null;default:0" json:"deposit_percent"`
	DepositCents   int64         `gorm:"not null;default:0" json:"deposit_cents"`
	BalanceCents   int64         `gorm:"not null;default:0" json:"balance_cents"`
	IssuedAt       *time.Time    `json:"issued_at"`
	DueAt          *time.Time    `json:"due_at"`
	PaidAt         *time.Time    `json:"paid_at"`
	Notes          string        `gorm:"size:2000" json:"notes"`

	IssuerSnapshot      datatypes.JSON `json:"issuer_snapshot"`
	ClientSnapshot      datatypes.JSON `json:"client_snapshot"`
	PrestationsSnapshot datatypes.JSON `json:"prestations_snapshot"`

	Items     []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Payments  []Payment     `gorm:"foreignKey:InvoiceID" json:"payments,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type InvoiceItem struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	InvoiceID      uint         `gorm:"index;not null" json:"invoice_id"`
	ProductID      *uint        `gorm:"index" json:"product_id"`
	Label          string       `gorm:"size:255;not null" json:"label"`
	Description    string       `gorm:"size:1000" json:"description"`
	Quantity       int64        `gorm:"not null" json:"quantity"`
	UnitPriceCents int64        `gorm:"not null" json:"unit_price_cents"`
	DiscountType   DiscountType `gorm:"size:10;not null;default:'NONE'" json:"discount_type"`
	DiscountValue  int64        `gorm:"not null;default:0" json:"discount_value"`
	TotalCents     int64        `gorm:"not null" json:"total_cents"`
	Position       int          `gorm:"not null;default:0" json:"position"`
}
