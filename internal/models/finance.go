package models

import (
	"time"

	"gorm.io/gorm"
)

type FinanceType string

const (
	FinanceIncome  FinanceType = "INCOME"
	FinanceExpense FinanceType = "EXPENSE"
)

func (t FinanceType) Valid() bool {
	return t == FinanceIncome || t == FinanceExpense
}

type Recurrence string

const (
	RecurrenceNone      Recurrence = "NONE"
	RecurrenceWeekly    Recurrence = "WEEKLY"
	RecurrenceMonthly   Recurrence = "MONTHLY"
	RecurrenceQuarterly Recurrence = "QUARTERLY"
	RecurrenceYearly    Recurrence = "YEARLY"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceWeekly, RecurrenceMonthly, RecurrenceQuarterly, RecurrenceYearly:
		return true
	}
	return false
}

// Finance source types. Rows carrying one are managed by the owning record.
const (
	FinanceSourceInvoice  = "INVOICE"
	FinanceSourceMovement = "INVENTORY_MOVEMENT"
)

type Finance struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	BusinessID      uint           `gorm:"index;not null" json:"business_id"`
	ProjectID       *uint          `gorm:"index" json:"project_id"`
	Type            FinanceType    `gorm:"size:10;not null;index" json:"type"`
	AmountCents     int64          `gorm:"not null" json:"amount_cents"`
	Category        string         `gorm:"size:100;not null" json:"category"`
	Label           string         `gorm:"size:255" json:"label"`
	Date            time.Time      `gorm:"index;not null" json:"date"`
	Recurrence      Recurrence     `gorm:"size:20;not null;default:'NONE'" json:"recurrence"`
	RecurrenceEndAt *time.Time     `json:"recurrence_end_at"`
	SourceType      *string        `gorm:"size:40;index:idx_finance_source" json:"source_type"`
	SourceID        *uint          `gorm:"index:idx_finance_source" json:"source_id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
