// Package ledger mirrors business events into a double-entry journal.
// Every source event owns at most one entry, so the helpers upsert.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"atelier-backend/internal/metrics"
	"atelier-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Chart of accounts (French PCG).
const (
	AccountStock     = "37"
	AccountBank      = "512"
	AccountPurchases = "603"
	AccountSales     = "706"
)

type Entry struct {
	BusinessID    uint
	SourceType    models.LedgerSourceType
	SourceID      uint
	Date          time.Time
	Label         string
	DebitAccount  string
	CreditAccount string
	AmountCents   int64
	Currency      string
}

// Upsert creates the entry for (business, source type, source id) or
// updates the existing one in place.
func Upsert(tx *gorm.DB, e Entry) (*models.LedgerEntry, error) {
	if e.Currency == "" {
		e.Currency = "EUR"
	}

	var existing models.LedgerEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND source_type = ? AND source_id = ?", e.BusinessID, e.SourceType, e.SourceID).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry := models.LedgerEntry{
			BusinessID:    e.BusinessID,
			SourceType:    e.SourceType,
			SourceID:      e.SourceID,
			EntryDate:     e.Date,
			Label:         e.Label,
			DebitAccount:  e.DebitAccount,
			CreditAccount: e.CreditAccount,
			AmountCents:   e.AmountCents,
			Currency:      e.Currency,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("create ledger entry: %w", err)
		}
		metrics.LedgerWrites.WithLabelValues(string(e.SourceType), "created").Inc()
		return &entry, nil

	case err != nil:
		return nil, fmt.Errorf("find ledger entry: %w", err)
	}

	err = tx.Model(&existing).Updates(map[string]any{
		"entry_date":     e.Date,
		"label":          e.Label,
		"debit_account":  e.DebitAccount,
		"credit_account": e.CreditAccount,
		"amount_cents":   e.AmountCents,
		"currency":       e.Currency,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update ledger entry: %w", err)
	}
	metrics.LedgerWrites.WithLabelValues(string(e.SourceType), "updated").Inc()

	existing.EntryDate = e.Date
	existing.Label = e.Label
	existing.DebitAccount = e.DebitAccount
	existing.CreditAccount = e.CreditAccount
	existing.AmountCents = e.AmountCents
	existing.Currency = e.Currency
	return &existing, nil
}

func DeleteBySource(tx *gorm.DB, businessID uint, sourceType models.LedgerSourceType, sourceID uint) error {
	return tx.Where("business_id = ? AND source_type = ? AND source_id = ?", businessID, sourceType, sourceID).
		Delete(&models.LedgerEntry{}).Error
}

func invoiceRef(inv *models.Invoice) string {
	if inv.Number != nil && *inv.Number != "" {
		return *inv.Number
	}
	return fmt.Sprintf("#%d", inv.ID)
}

// UpsertInvoiceCashSale books the full invoice total as collected: bank
// debited, sales credited.
func UpsertInvoiceCashSale(tx *gorm.DB, inv *models.Invoice, paidAt time.Time) (*models.LedgerEntry, error) {
	return Upsert(tx, Entry{
		BusinessID:    inv.BusinessID,
		SourceType:    models.SourceInvoiceCashSale,
		SourceID:      inv.ID,
		Date:          paidAt,
		Label:         "Encaissement facture " + invoiceRef(inv),
		DebitAccount:  AccountBank,
		CreditAccount: AccountSales,
		AmountCents:   inv.TotalCents,
		Currency:      inv.Currency,
	})
}

// UpsertStockConsumption books the cost of the goods an invoice consumed.
func UpsertStockConsumption(tx *gorm.DB, inv *models.Invoice, amount int64, at time.Time) (*models.LedgerEntry, error) {
	return Upsert(tx, Entry{
		BusinessID:    inv.BusinessID,
		SourceType:    models.SourceInvoiceStockConsumption,
		SourceID:      inv.ID,
		Date:          at,
		Label:         "Sortie de stock facture " + invoiceRef(inv),
		DebitAccount:  AccountPurchases,
		CreditAccount: AccountStock,
		AmountCents:   amount,
		Currency:      inv.Currency,
	})
}

// MovementAccounts returns the debit and credit accounts of a movement.
func MovementAccounts(mv *models.InventoryMovement) (debit, credit string) {
	switch mv.Type {
	case models.MovementIn:
		return AccountStock, AccountBank
	case models.MovementOut:
		return AccountPurchases, AccountStock
	default:
		if mv.Quantity >= 0 {
			return AccountStock, AccountPurchases
		}
		return AccountPurchases, AccountStock
	}
}

// MovementAmount is unit cost times the absolute quantity, 0 without a cost.
func MovementAmount(mv *models.InventoryMovement) int64 {
	if mv.UnitCostCents == nil {
		return 0
	}
	qty := mv.Quantity
	if qty < 0 {
		qty = -qty
	}
	return *mv.UnitCostCents * qty
}

func UpsertInventoryMovement(tx *gorm.DB, mv *models.InventoryMovement, currency string) (*models.LedgerEntry, error) {
	debit, credit := MovementAccounts(mv)
	label := map[models.MovementType]string{
		models.MovementIn:     "Entrée de stock",
		models.MovementOut:    "Sortie de stock",
		models.MovementAdjust: "Ajustement de stock",
	}[mv.Type]

	return Upsert(tx, Entry{
		BusinessID:    mv.BusinessID,
		SourceType:    models.SourceInventoryMovement,
		SourceID:      mv.ID,
		Date:          mv.Date,
		Label:         fmt.Sprintf("%s #%d", label, mv.ID),
		DebitAccount:  debit,
		CreditAccount: credit,
		AmountCents:   MovementAmount(mv),
		Currency:      currency,
	})
}
