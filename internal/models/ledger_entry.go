package models

import "time"

type LedgerSourceType string

const (
	SourceInvoiceCashSale         LedgerSourceType = "INVOICE_CASH_SALE"
	SourceInvoiceStockConsumption LedgerSourceType = "INVOICE_STOCK_CONSUMPTION"
	SourceInventoryMovement       LedgerSourceType = "INVENTORY_MOVEMENT"
)

func (s LedgerSourceType) Valid() bool {
	switch s {
	case SourceInvoiceCashSale, SourceInvoiceStockConsumption, SourceInventoryMovement:
		return true
	}
	return false
}

// LedgerEntry is one journal line. (BusinessID, SourceType, SourceID) is
// unique: a source event owns at most one entry.
type LedgerEntry struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	BusinessID    uint             `gorm:"not null;uniqueIndex:idx_ledger_source" json:"business_id"`
	SourceType    LedgerSourceType `gorm:"size:40;not null;uniqueIndex:idx_ledger_source" json:"source_type"`
	SourceID      uint             `gorm:"not null;uniqueIndex:idx_ledger_source" json:"source_id"`
	EntryDate     time.Time        `gorm:"index;not null" json:"entry_date"`
	Label         string           `gorm:"size:255;not null" json:"label"`
	DebitAccount  string           `gorm:"size:10;not null" json:"debit_account"`
	CreditAccount string           `gorm:"size:10;not null" json:"credit_account"`
	AmountCents   int64            `gorm:"not null" json:"amount_cents"`
	Currency      string           `gorm:"size:3;not null;default:'EUR'" json:"currency"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
