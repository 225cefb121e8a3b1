package models

import "time"

type MovementType string

const (
	MovementIn     MovementType = "IN"
	MovementOut    MovementType = "OUT"
	MovementAdjust MovementType = "ADJUST"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjust:
		return true
	}
	return false
}

// InventoryMovement changes the on-hand quantity of a stocked product.
// IN and OUT carry a positive quantity, ADJUST a signed non-zero one.
type InventoryMovement struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	BusinessID    uint         `gorm:"index;not null" json:"business_id"`
	ProductID     uint         `gorm:"index;not null" json:"product_id"`
	Product       *Product     `json:"product,omitempty"`
	Type          MovementType `gorm:"size:10;not null" json:"type"`
	Quantity      int64        `gorm:"not null" json:"quantity"`
	UnitCostCents *int64       `json:"unit_cost_cents"`
	Date          time.Time    `gorm:"index;not null" json:"date"`
	Note          string       `gorm:"size:500" json:"note"`

	// Set when the movement was generated by a paid invoice.
	InvoiceID *uint `gorm:"index" json:"invoice_id"`

	FinanceID     *uint `json:"finance_id"`
	LedgerEntryID *uint `json:"ledger_entry_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Delta is the signed change applied to on-hand stock.
func (m *InventoryMovement) Delta() int64 {
	switch m.Type {
	case MovementOut:
		return -m.Quantity
	default:
		return m.Quantity
	}
}

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

// InventoryReservation holds stock for a stocked product line of an open
// invoice until the invoice is paid or cancelled.
type InventoryReservation struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	BusinessID uint              `gorm:"index;not null" json:"business_id"`
	InvoiceID  uint              `gorm:"index;not null" json:"invoice_id"`
	ProductID  uint              `gorm:"index;not null" json:"product_id"`
	Quantity   int64             `gorm:"not null" json:"quantity"`
	Status     ReservationStatus `gorm:"size:20;not null;default:'ACTIVE';index" json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
