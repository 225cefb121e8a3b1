package invoice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"atelier-backend/internal/api"
	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/billing"
	"atelier-backend/internal/cache"
	"atelier-backend/internal/database"
	"atelier-backend/internal/events"
	"atelier-backend/internal/metrics"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreatePaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	PaidAt      string `json:"paid_at"`
	Method      string `json:"method"`
	Note        string `json:"note"`
}

type MarkPaidRequest struct {
	PaidAt string `json:"paid_at"`
	Method string `json:"method"`
}

type PaymentsResponse struct {
	Payments []models.Payment `json:"payments"`
	billing.PaymentSummary
}

func parseMethod(raw string) (models.PaymentMethod, error) {
	if strings.TrimSpace(raw) == "" {
		return models.PaymentTransfer, nil
	}
	m := models.PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	if !m.Valid() {
		return "", fiber.NewError(fiber.StatusBadRequest, "Moyen de paiement invalide.")
	}
	return m, nil
}

func parsePaidAt(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Now(), nil
	}
	return api.ParseDate(raw)
}

func newPayment(inv *models.Invoice, amount int64, at time.Time, method models.PaymentMethod, note string) models.Payment {
	return models.Payment{
		BusinessID:  inv.BusinessID,
		InvoiceID:   inv.ID,
		ProjectID:   inv.ProjectID,
		ClientID:    inv.ClientID,
		AmountCents: amount,
		PaidAt:      at,
		Method:      method,
		Note:        note,
	}
}

// GET /api/invoices/:id/payments
func ListPaymentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		inv, err := api.FindScoped[models.Invoice](database.DB, auth.BusinessID(c), id, "Facture introuvable.")
		if err != nil {
			return err
		}

		var payments []models.Payment
		if err := database.DB.Where("invoice_id = ?", inv.ID).Order("paid_at ASC, id ASC").Find(&payments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les paiements.")
		}
		return c.JSON(PaymentsResponse{
			Payments:       payments,
			PaymentSummary: billing.Summarize(inv.TotalCents, payments),
		})
	}
}

// POST /api/invoices/:id/payments
func CreatePaymentHandler(store cache.Store, pub events.Publisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var body CreatePaymentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		if body.AmountCents <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Le montant doit être supérieur à 0.")
		}
		method, err := parseMethod(body.Method)
		if err != nil {
			return err
		}
		paidAt, err := parsePaidAt(body.PaidAt)
		if err != nil {
			return err
		}

		var p models.Payment
		var summary billing.PaymentSummary
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			inv, err := lockInvoice(tx, businessID, id)
			if err != nil {
				return err
			}
			switch inv.Status {
			case models.InvoiceSent:
			case models.InvoicePaid:
				return billing.ErrAlreadyPaid
			default:
				return billing.ErrNotSent
			}

			paid, err := billing.PaidAmount(tx, inv.ID)
			if err != nil {
				return err
			}
			if body.AmountCents > billing.SummarizeAmounts(inv.TotalCents, paid).RemainingCents {
				return billing.ErrOverpayment
			}

			p = newPayment(inv, body.AmountCents, paidAt, method, strings.TrimSpace(body.Note))
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			summary = billing.SummarizeAmounts(inv.TotalCents, paid+p.AmountCents)
			return nil
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		events.Emit(c.UserContext(), pub, events.New(events.PaymentRecorded, businessID, p.ID, map[string]any{
			"invoice_id":   p.InvoiceID,
			"amount_cents": p.AmountCents,
		}))
		audit.Record(c, audit.Entry{
			EntityType:  "payment",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Paiement de %d centimes sur la facture #%d", p.AmountCents, p.InvoiceID),
			After:       p,
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"payment": p,
			"summary": summary,
		})
	}
}

// DELETE /api/invoices/:id/payments/:paymentId
func DeletePaymentHandler(store cache.Store, pub events.Publisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		paymentID, err := api.ParamID(c, "paymentId")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var p models.Payment
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			inv, err := lockInvoice(tx, businessID, id)
			if err != nil {
				return err
			}
			if inv.Status == models.InvoicePaid {
				return fiber.NewError(fiber.StatusBadRequest, "Impossible de supprimer un paiement d'une facture soldée.")
			}
			err = tx.Where("id = ? AND invoice_id = ?", paymentID, inv.ID).First(&p).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Paiement introuvable.")
			}
			if err != nil {
				return err
			}
			return tx.Delete(&p).Error
		})
		if err != nil {
			return err
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		events.Emit(c.UserContext(), pub, events.New(events.PaymentDeleted, businessID, p.ID, map[string]any{
			"invoice_id": p.InvoiceID,
		}))
		audit.Record(c, audit.Entry{
			EntityType:  "payment",
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Paiement supprimé sur la facture #%d", p.InvoiceID),
			Before:      p,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/invoices/:id/mark-paid
// Records the outstanding amount as one payment and closes the invoice.
// The row lock serializes concurrent calls; the second one sees nothing
// left to pay.
func MarkPaidHandler(store cache.Store, pub events.Publisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var body MarkPaidRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
			}
		}
		method, err := parseMethod(body.Method)
		if err != nil {
			return err
		}
		paidAt, err := parsePaidAt(body.PaidAt)
		if err != nil {
			return err
		}

		var inv *models.Invoice
		var p models.Payment
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if inv, err = lockInvoice(tx, businessID, id); err != nil {
				return err
			}
			paid, err := billing.PaidAmount(tx, inv.ID)
			if err != nil {
				return err
			}
			amount := billing.SummarizeAmounts(inv.TotalCents, paid).RemainingCents
			if amount <= 0 || inv.Status == models.InvoicePaid {
				return billing.ErrAlreadyPaid
			}
			if _, err := billing.CheckInvoiceTransition(inv.Status, models.InvoicePaid); err != nil {
				return err
			}

			p = newPayment(inv, amount, paidAt, method, "Solde")
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			return markPaid(tx, inv, paidAt)
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		metrics.InvoicesPaid.Inc()
		cache.Invalidate(c.UserContext(), store, businessID)
		events.Emit(c.UserContext(), pub, events.New(events.PaymentRecorded, businessID, p.ID, map[string]any{
			"invoice_id":   inv.ID,
			"amount_cents": p.AmountCents,
		}))
		events.Emit(c.UserContext(), pub, events.New(events.InvoicePaid, businessID, inv.ID, map[string]any{
			"number":      inv.Number,
			"total_cents": inv.TotalCents,
		}))
		audit.Record(c, audit.Entry{
			EntityType:  "invoice",
			EntityID:    inv.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Facture soldée (%s)", reference(inv)),
			After:       *inv,
		})

		res, err := detail(businessID, inv.ID)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}
