package billing

import (
	"atelier-backend/internal/models"

	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

type PaymentSummary struct {
	PaidCents      int64         `json:"paid_cents"`
	RemainingCents int64         `json:"remaining_cents"`
	Status         PaymentStatus `json:"payment_status"`
}

// SummarizeAmounts derives remaining and payment status from a total and
// the sum already paid. A zero total is never reported as PAID.
func SummarizeAmounts(total, paid int64) PaymentSummary {
	remaining := total - paid
	if remaining < 0 {
		remaining = 0
	}

	status := PaymentUnpaid
	switch {
	case remaining == 0 && total > 0:
		status = PaymentPaid
	case paid > 0:
		status = PaymentPartial
	}

	return PaymentSummary{PaidCents: paid, RemainingCents: remaining, Status: status}
}

// Summarize ignores soft deleted payments.
func Summarize(total int64, payments []models.Payment) PaymentSummary {
	var paid int64
	for _, p := range payments {
		if p.DeletedAt.Valid {
			continue
		}
		paid += p.AmountCents
	}
	return SummarizeAmounts(total, paid)
}

// PaidAmount sums the live payments of an invoice.
func PaidAmount(tx *gorm.DB, invoiceID uint) (int64, error) {
	var paid int64
	row := tx.Model(&models.Payment{}).
		Where("invoice_id = ? AND deleted_at IS NULL", invoiceID).
		Select("COALESCE(SUM(amount_cents), 0)").
		Row()
	if err := row.Scan(&paid); err != nil {
		return 0, err
	}
	return paid, nil
}

// PaidAmounts returns the live paid sum per invoice for a batch of ids.
func PaidAmounts(tx *gorm.DB, invoiceIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}

	type row struct {
		InvoiceID uint
		Paid      int64
	}
	var rows []row
	if err := tx.Model(&models.Payment{}).
		Select("invoice_id, COALESCE(SUM(amount_cents), 0) AS paid").
		Where("invoice_id IN ? AND deleted_at IS NULL", invoiceIDs).
		Group("invoice_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.InvoiceID] = r.Paid
	}
	return out, nil
}
