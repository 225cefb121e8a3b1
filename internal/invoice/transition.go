package invoice

import (
	"errors"
	"time"

	"atelier-backend/internal/billing"
	"atelier-backend/internal/events"
	"atelier-backend/internal/inventory"
	"atelier-backend/internal/ledger"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const salesCategory = "Ventes"

func lockInvoice(tx *gorm.DB, businessID, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND business_id = ?", id, businessID).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Facture introuvable.")
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func reference(inv *models.Invoice) string {
	if inv.Number != nil && *inv.Number != "" {
		return *inv.Number
	}
	return "brouillon"
}

// upsertIncome keeps one INCOME finance row per paid invoice.
func upsertIncome(tx *gorm.DB, inv *models.Invoice, paidAt time.Time) error {
	src := models.FinanceSourceInvoice
	var fin models.Finance
	err := tx.Where("business_id = ? AND source_type = ? AND source_id = ?", inv.BusinessID, src, inv.ID).First(&fin).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	id := inv.ID
	fin.BusinessID = inv.BusinessID
	fin.ProjectID = &inv.ProjectID
	fin.Type = models.FinanceIncome
	fin.AmountCents = inv.TotalCents
	fin.Category = salesCategory
	fin.Label = "Facture " + reference(inv)
	fin.Date = paidAt
	fin.Recurrence = models.RecurrenceNone
	fin.SourceType = &src
	fin.SourceID = &id
	return tx.Save(&fin).Error
}

// markPaid applies every side effect of the PAID transition. The caller has
// already checked the transition and holds the invoice lock.
func markPaid(tx *gorm.DB, inv *models.Invoice, paidAt time.Time) error {
	inv.Status = models.InvoicePaid
	inv.PaidAt = &paidAt

	if err := upsertIncome(tx, inv, paidAt); err != nil {
		return err
	}
	if _, err := inventory.ConsumeReservations(tx, inv, paidAt); err != nil {
		return err
	}
	if _, err := ledger.UpsertInvoiceCashSale(tx, inv, paidAt); err != nil {
		return err
	}
	return tx.Model(inv).Select("status", "paid_at").Updates(inv).Error
}

// applyStatus runs the transition guard and the side effects of the new
// status. It reports whether the status changed and the event to publish.
func applyStatus(tx *gorm.DB, inv *models.Invoice, target models.InvoiceStatus, at time.Time) (bool, string, error) {
	changed, err := billing.CheckInvoiceTransition(inv.Status, target)
	if err != nil || !changed {
		return false, "", err
	}

	switch target {
	case models.InvoiceSent:
		if err := billing.IssueInvoice(tx, inv, at); err != nil {
			return false, "", err
		}
		inv.Status = models.InvoiceSent
		if err := tx.Omit(clause.Associations).Save(inv).Error; err != nil {
			return false, "", err
		}
		return true, events.InvoiceSent, nil

	case models.InvoicePaid:
		paid, err := billing.PaidAmount(tx, inv.ID)
		if err != nil {
			return false, "", err
		}
		if billing.SummarizeAmounts(inv.TotalCents, paid).RemainingCents != 0 {
			return false, "", billing.ErrPaymentsIncomplete
		}
		if err := markPaid(tx, inv, at); err != nil {
			return false, "", err
		}
		return true, events.InvoicePaid, nil

	case models.InvoiceCancelled:
		paid, err := billing.PaidAmount(tx, inv.ID)
		if err != nil {
			return false, "", err
		}
		if paid > 0 {
			return false, "", billing.ErrHasPayments
		}
		if err := inventory.ReleaseReservations(tx, inv.ID); err != nil {
			return false, "", err
		}
		inv.Status = models.InvoiceCancelled
		if err := tx.Model(inv).Update("status", inv.Status).Error; err != nil {
			return false, "", err
		}
		return true, events.InvoiceCanceled, nil
	}
	return false, "", billing.ErrInvalidTransition
}
