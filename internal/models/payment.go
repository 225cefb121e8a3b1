package models

import (
	"time"

	"gorm.io/gorm"
)

type PaymentMethod string

const (
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCard     PaymentMethod = "CARD"
	PaymentCash     PaymentMethod = "CASH"
	PaymentCheck    PaymentMethod = "CHECK"
	PaymentOther    PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentTransfer, PaymentCard, PaymentCash, PaymentCheck, PaymentOther:
		return true
	}
	return false
}

// Payment is soft deleted; only rows with a NULL deleted_at count toward the
// paid amount of an invoice.
type Payment struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	BusinessID  uint           `gorm:"index;not null" json:"business_id"`
	InvoiceID   uint           `gorm:"index;not null" json:"invoice_id"`
	ProjectID   uint           `gorm:"index;not null" json:"project_id"`
	ClientID    *uint          `gorm:"index" json:"client_id"`
	AmountCents int64          `gorm:"not null" json:"amount_cents"`
	PaidAt      time.Time      `gorm:"index;not null" json:"paid_at"`
	Method      PaymentMethod  `gorm:"size:20;not null" json:"method"`
	Note        string         `gorm:"size:500" json:"note"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
