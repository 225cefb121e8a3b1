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
	"atelier-backend/internal/inventory"
	"atelier-backend/internal/metrics"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceResponse struct {
	models.Invoice
	billing.PaymentSummary
}

type CreateInvoiceRequest struct {
	ProjectID      uint                `json:"project_id"`
	ClientID       *uint               `json:"client_id"`
	QuoteID        *uint               `json:"quote_id"`
	DepositPercent *int                `json:"deposit_percent"`
	DueAt          *string             `json:"due_at"`
	Notes          string              `json:"notes"`
	Items          []billing.LineInput `json:"items"`
}

type UpdateInvoiceRequest struct {
	ClientID       api.Optional[uint] `json:"client_id"`
	DepositPercent *int               `json:"deposit_percent"`
	IssuedAt       *string            `json:"issued_at"`
	DueAt          *string            `json:"due_at"`
	Notes          *string            `json:"notes"`
	Status         *string            `json:"status"`
	PaidAt         *string            `json:"paid_at"`
}

func (r *UpdateInvoiceRequest) editsFields() bool {
	return r.ClientID.Set || r.DepositPercent != nil || r.IssuedAt != nil || r.DueAt != nil || r.Notes != nil
}

type ReplaceItemsRequest struct {
	Items []billing.LineInput `json:"items"`
}

func respond(inv *models.Invoice, paid int64) InvoiceResponse {
	return InvoiceResponse{Invoice: *inv, PaymentSummary: billing.SummarizeAmounts(inv.TotalCents, paid)}
}

func loadInvoice(db *gorm.DB, businessID, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("paid_at ASC, id ASC") }).
		Preload("Client").
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

func detail(businessID, id uint) (InvoiceResponse, error) {
	inv, err := loadInvoice(database.DB, businessID, id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	return InvoiceResponse{Invoice: *inv, PaymentSummary: billing.Summarize(inv.TotalCents, inv.Payments)}, nil
}

func checkClient(tx *gorm.DB, businessID uint, project *models.Project, clientID *uint) (*uint, error) {
	if clientID == nil || *clientID == 0 {
		return project.ClientID, nil
	}
	ok, err := api.Exists[models.Client](tx, businessID, *clientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Client introuvable.")
	}
	return clientID, nil
}

func setTotals(inv *models.Invoice, total int64) error {
	deposit, balance, err := billing.Deposit(total, inv.DepositPercent)
	if err != nil {
		return err
	}
	inv.TotalCents, inv.DepositCents, inv.BalanceCents = total, deposit, balance
	return nil
}

// GET /api/invoices?status=SENT&project_id=1&client_id=2
func ListInvoicesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Preload("Client").Where("business_id = ?", auth.BusinessID(c))

		if s := c.Query("status"); s != "" {
			if !billing.IsInvoiceStatus(models.InvoiceStatus(s)) {
				return fiber.NewError(fiber.StatusBadRequest, "Statut invalide.")
			}
			dbq = dbq.Where("status = ?", s)
		}
		for _, f := range []string{"project_id", "client_id"} {
			v, err := api.QueryUint(c, f)
			if err != nil {
				return err
			}
			if v != nil {
				dbq = dbq.Where(f+" = ?", *v)
			}
		}

		var invoices []models.Invoice
		if err := dbq.Order("created_at DESC, id DESC").Find(&invoices).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les factures.")
		}

		ids := make([]uint, 0, len(invoices))
		for _, inv := range invoices {
			ids = append(ids, inv.ID)
		}
		paid, err := billing.PaidAmounts(database.DB, ids)
		if err != nil {
			return err
		}

		res := make([]InvoiceResponse, 0, len(invoices))
		for i := range invoices {
			res = append(res, respond(&invoices[i], paid[invoices[i].ID]))
		}
		return c.JSON(res)
	}
}

// POST /api/invoices
func CreateInvoiceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateInvoiceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		if body.ProjectID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Le projet est obligatoire.")
		}
		businessID := auth.BusinessID(c)

		lines, total, err := billing.PriceLines(body.Items)
		if err != nil {
			return billing.HTTPError(err)
		}
		dueAt, err := api.OptionalDate(body.DueAt)
		if err != nil {
			return err
		}

		var inv models.Invoice
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			project, err := api.FindScoped[models.Project](tx, businessID, body.ProjectID, "Projet introuvable.")
			if err != nil {
				return err
			}
			clientID, err := checkClient(tx, businessID, project, body.ClientID)
			if err != nil {
				return err
			}
			if body.QuoteID != nil {
				if _, err := billing.LockQuoteForInvoice(tx, businessID, *body.QuoteID, project.ID); err != nil {
					return err
				}
			}

			var b models.Business
			if err := tx.First(&b, businessID).Error; err != nil {
				return err
			}

			inv = models.Invoice{
				BusinessID:     businessID,
				ProjectID:      project.ID,
				ClientID:       clientID,
				QuoteID:        body.QuoteID,
				Status:         models.InvoiceDraft,
				Currency:       b.Currency,
				DepositPercent: b.DefaultDepositPercent,
				DueAt:          dueAt,
				Notes:          strings.TrimSpace(body.Notes),
			}
			if body.DepositPercent != nil {
				inv.DepositPercent = *body.DepositPercent
			}
			if err := setTotals(&inv, total); err != nil {
				return err
			}
			if err := tx.Create(&inv).Error; err != nil {
				return billing.QuoteLinkError(err)
			}
			if len(lines) > 0 {
				inv.Items = billing.InvoiceItems(inv.ID, lines)
				if err := tx.Create(&inv.Items).Error; err != nil {
					return err
				}
			}
			return inventory.SyncReservations(tx, &inv, inv.Items)
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		audit.Record(c, audit.Entry{
			EntityType:  "invoice",
			EntityID:    inv.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Facture créée (%d lignes)", len(inv.Items)),
			After:       inv,
		})

		return c.Status(fiber.StatusCreated).JSON(respond(&inv, 0))
	}
}

// GET /api/invoices/:id
func GetInvoiceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		res, err := detail(auth.BusinessID(c), id)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// PATCH /api/invoices/:id
// Fields are editable while DRAFT. status runs the transition guard and its
// side effects inside the same transaction as the row lock.
func UpdateInvoiceHandler(store cache.Store, pub events.Publisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var body UpdateInvoiceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		var target models.InvoiceStatus
		if body.Status != nil {
			target = models.InvoiceStatus(strings.ToUpper(strings.TrimSpace(*body.Status)))
			if !billing.IsInvoiceStatus(target) {
				return fiber.NewError(fiber.StatusBadRequest, "Statut invalide.")
			}
		}
		at := time.Now()
		if body.PaidAt != nil && target == models.InvoicePaid {
			if at, err = api.ParseDate(*body.PaidAt); err != nil {
				return err
			}
		}

		var inv *models.Invoice
		var before models.Invoice
		var changed bool
		var event string
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if inv, err = lockInvoice(tx, businessID, id); err != nil {
				return err
			}
			before = *inv

			if body.editsFields() {
				if inv.Status != models.InvoiceDraft {
					return billing.ErrNotDraft
				}
				if body.ClientID.Set {
					var project models.Project
					if err := tx.First(&project, inv.ProjectID).Error; err != nil {
						return err
					}
					if inv.ClientID, err = checkClient(tx, businessID, &project, body.ClientID.Value); err != nil {
						return err
					}
				}
				if body.IssuedAt != nil {
					if inv.IssuedAt, err = api.OptionalDate(body.IssuedAt); err != nil {
						return err
					}
				}
				if body.DueAt != nil {
					if inv.DueAt, err = api.OptionalDate(body.DueAt); err != nil {
						return err
					}
				}
				if body.Notes != nil {
					inv.Notes = strings.TrimSpace(*body.Notes)
				}
				if body.DepositPercent != nil {
					inv.DepositPercent = *body.DepositPercent
					if err := setTotals(inv, inv.TotalCents); err != nil {
						return err
					}
				}
				if err := tx.Omit(clause.Associations).Save(inv).Error; err != nil {
					return err
				}
			}

			if body.Status != nil {
				changed, event, err = applyStatus(tx, inv, target, at)
				return err
			}
			return nil
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		if changed {
			cache.Invalidate(c.UserContext(), store, businessID)
			if inv.Status == models.InvoicePaid {
				metrics.InvoicesPaid.Inc()
			}
			events.Emit(c.UserContext(), pub, events.New(event, businessID, inv.ID, map[string]any{
				"number":      inv.Number,
				"total_cents": inv.TotalCents,
			}))
		}
		audit.Record(c, audit.Entry{
			EntityType:  "invoice",
			EntityID:    inv.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Facture modifiée (statut %s)", inv.Status),
			Before:      before,
			After:       *inv,
		})

		res, err := detail(businessID, inv.ID)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// PUT /api/invoices/:id/items
func ReplaceItemsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var body ReplaceItemsRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		lines, total, err := billing.PriceLines(body.Items)
		if err != nil {
			return billing.HTTPError(err)
		}

		var before models.Invoice
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			inv, err := lockInvoice(tx, businessID, id)
			if err != nil {
				return err
			}
			before = *inv
			if inv.Status != models.InvoiceDraft {
				return billing.ErrNotDraft
			}
			paid, err := billing.PaidAmount(tx, inv.ID)
			if err != nil {
				return err
			}
			if paid > 0 {
				return billing.ErrHasPayments
			}

			if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
				return err
			}
			var items []models.InvoiceItem
			if len(lines) > 0 {
				items = billing.InvoiceItems(inv.ID, lines)
				if err := tx.Create(&items).Error; err != nil {
					return err
				}
			}
			if err := setTotals(inv, total); err != nil {
				return err
			}
			if err := tx.Model(inv).Select("total_cents", "deposit_cents", "balance_cents").Updates(inv).Error; err != nil {
				return err
			}
			return inventory.SyncReservations(tx, inv, items)
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		res, err := detail(businessID, id)
		if err != nil {
			return err
		}
		audit.Record(c, audit.Entry{
			EntityType:  "invoice",
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Lignes de la facture remplacées (%d)", len(res.Items)),
			Before:      before,
			After:       res.Invoice,
		})
		return c.JSON(res)
	}
}

// DELETE /api/invoices/:id
func DeleteInvoiceHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var inv *models.Invoice
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if inv, err = lockInvoice(tx, businessID, id); err != nil {
				return err
			}
			if inv.Status != models.InvoiceDraft && inv.Status != models.InvoiceCancelled {
				return fiber.NewError(fiber.StatusBadRequest, "Seule une facture brouillon ou annulée peut être supprimée.")
			}
			paid, err := billing.PaidAmount(tx, inv.ID)
			if err != nil {
				return err
			}
			if paid > 0 {
				return billing.ErrHasPayments
			}

			// soft deleted payments still reference the row
			if err := tx.Unscoped().Where("invoice_id = ?", inv.ID).Delete(&models.Payment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InventoryReservation{}).Error; err != nil {
				return err
			}
			if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
				return err
			}
			return tx.Delete(inv).Error
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		audit.Record(c, audit.Entry{
			EntityType:  "invoice",
			EntityID:    inv.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Facture supprimée (%s)", reference(inv)),
			Before:      *inv,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}
