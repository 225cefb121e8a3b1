package quote

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
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreateQuoteRequest struct {
	ProjectID      uint                `json:"project_id"`
	ClientID       *uint               `json:"client_id"`
	Title          string              `json:"title"`
	Notes          string              `json:"notes"`
	DepositPercent *int                `json:"deposit_percent"`
	ValidUntil     *string             `json:"valid_until"`
	Items          []billing.LineInput `json:"items"`
}

type UpdateQuoteRequest struct {
	ClientID       api.Optional[uint] `json:"client_id"`
	Title          *string            `json:"title"`
	Notes          *string            `json:"notes"`
	DepositPercent *int               `json:"deposit_percent"`
	ValidUntil     *string            `json:"valid_until"`
	Status         *string            `json:"status"`
}

func (r *UpdateQuoteRequest) editsFields() bool {
	return r.ClientID.Set || r.Title != nil || r.Notes != nil || r.DepositPercent != nil || r.ValidUntil != nil
}

type ReplaceItemsRequest struct {
	Items []billing.LineInput `json:"items"`
}

func loadQuote(db *gorm.DB, businessID, id uint) (*models.Quote, error) {
	var q models.Quote
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Preload("Client").
		Where("id = ? AND business_id = ?", id, businessID).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Devis introuvable.")
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func lockQuote(tx *gorm.DB, businessID, id uint) (*models.Quote, error) {
	var q models.Quote
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND business_id = ?", id, businessID).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Devis introuvable.")
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// checkParties verifies the project and client belong to the business and
// returns the client to use, defaulting to the project's.
func checkParties(tx *gorm.DB, businessID, projectID uint, clientID *uint) (*uint, error) {
	project, err := api.FindScoped[models.Project](tx, businessID, projectID, "Projet introuvable.")
	if err != nil {
		return nil, err
	}
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

func setTotals(q *models.Quote, total int64) error {
	deposit, balance, err := billing.Deposit(total, q.DepositPercent)
	if err != nil {
		return err
	}
	q.TotalCents, q.DepositCents, q.BalanceCents = total, deposit, balance
	return nil
}

// GET /api/quotes?status=SENT&project_id=1&client_id=2
func ListQuotesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Preload("Client").Where("business_id = ?", auth.BusinessID(c))

		if s := c.Query("status"); s != "" {
			if !billing.IsQuoteStatus(models.QuoteStatus(s)) {
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

		var quotes []models.Quote
		if err := dbq.Order("created_at DESC, id DESC").Find(&quotes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les devis.")
		}
		return c.JSON(quotes)
	}
}

// POST /api/quotes
func CreateQuoteHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateQuoteRequest
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
		validUntil, err := api.OptionalDate(body.ValidUntil)
		if err != nil {
			return err
		}

		var q models.Quote
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			clientID, err := checkParties(tx, businessID, body.ProjectID, body.ClientID)
			if err != nil {
				return err
			}
			var b models.Business
			if err := tx.First(&b, businessID).Error; err != nil {
				return err
			}

			q = models.Quote{
				BusinessID:     businessID,
				ProjectID:      body.ProjectID,
				ClientID:       clientID,
				Status:         models.QuoteDraft,
				Title:          strings.TrimSpace(body.Title),
				Notes:          strings.TrimSpace(body.Notes),
				Currency:       b.Currency,
				DepositPercent: b.DefaultDepositPercent,
				ValidUntil:     validUntil,
			}
			if body.DepositPercent != nil {
				q.DepositPercent = *body.DepositPercent
			}
			if err := setTotals(&q, total); err != nil {
				return err
			}
			if err := tx.Create(&q).Error; err != nil {
				return err
			}
			if len(lines) > 0 {
				q.Items = billing.QuoteItems(q.ID, lines)
				if err := tx.Create(&q.Items).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		audit.Record(c, audit.Entry{
			EntityType:  "quote",
			EntityID:    q.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Devis créé : %s", q.Title),
			After:       q,
		})

		return c.Status(fiber.StatusCreated).JSON(q)
	}
}

// GET /api/quotes/:id
func GetQuoteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		q, err := loadQuote(database.DB, auth.BusinessID(c), id)
		if err != nil {
			return err
		}

		var invoiceID *uint
		var inv models.Invoice
		if err := database.DB.Select("id").Where("quote_id = ?", q.ID).First(&inv).Error; err == nil {
			invoiceID = &inv.ID
		}

		return c.JSON(fiber.Map{
			"quote":      q,
			"invoice_id": invoiceID,
		})
	}
}

// PATCH /api/quotes/:id
// Fields are editable while DRAFT; status goes through the transition guard.
func UpdateQuoteHandler(store cache.Store, pub events.Publisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var body UpdateQuoteRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		var target models.QuoteStatus
		if body.Status != nil {
			target = models.QuoteStatus(strings.ToUpper(strings.TrimSpace(*body.Status)))
			if !billing.IsQuoteStatus(target) {
				return fiber.NewError(fiber.StatusBadRequest, "Statut invalide.")
			}
		}

		var q *models.Quote
		var before models.Quote
		var changed bool
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if q, err = lockQuote(tx, businessID, id); err != nil {
				return err
			}
			before = *q

			if body.editsFields() {
				if q.Status != models.QuoteDraft {
					return billing.ErrNotDraft
				}
				if body.ClientID.Set {
					if q.ClientID, err = checkParties(tx, businessID, q.ProjectID, body.ClientID.Value); err != nil {
						return err
					}
				}
				if body.Title != nil {
					q.Title = strings.TrimSpace(*body.Title)
				}
				if body.Notes != nil {
					q.Notes = strings.TrimSpace(*body.Notes)
				}
				if body.ValidUntil != nil {
					if q.ValidUntil, err = api.OptionalDate(body.ValidUntil); err != nil {
						return err
					}
				}
				if body.DepositPercent != nil {
					q.DepositPercent = *body.DepositPercent
					if err := setTotals(q, q.TotalCents); err != nil {
						return err
					}
				}
			}

			if body.Status != nil {
				if changed, err = billing.CheckQuoteTransition(q.Status, target); err != nil {
					return err
				}
				if changed {
					now := time.Now()
					switch target {
					case models.QuoteSent:
						if err := billing.IssueQuote(tx, q, now); err != nil {
							return err
						}
					case models.QuoteSigned:
						q.SignedAt = &now
					}
					q.Status = target
				}
			}

			return tx.Omit(clause.Associations).Save(q).Error
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		audit.Record(c, audit.Entry{
			EntityType:  "quote",
			EntityID:    q.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Devis modifié (statut %s)", q.Status),
			Before:      before,
			After:       *q,
		})
		if changed {
			switch q.Status {
			case models.QuoteSent:
				events.Emit(c.UserContext(), pub, events.New(events.QuoteSent, businessID, q.ID, map[string]any{"number": q.Number}))
			case models.QuoteSigned:
				events.Emit(c.UserContext(), pub, events.New(events.QuoteSigned, businessID, q.ID, map[string]any{
					"number":      q.Number,
					"total_cents": q.TotalCents,
				}))
			}
		}

		full, err := loadQuote(database.DB, businessID, q.ID)
		if err != nil {
			return err
		}
		return c.JSON(full)
	}
}

// PUT /api/quotes/:id/items
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

		var before models.Quote
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			q, err := lockQuote(tx, businessID, id)
			if err != nil {
				return err
			}
			before = *q
			if q.Status != models.QuoteDraft {
				return billing.ErrNotDraft
			}

			if err := tx.Where("quote_id = ?", q.ID).Delete(&models.QuoteItem{}).Error; err != nil {
				return err
			}
			if len(lines) > 0 {
				items := billing.QuoteItems(q.ID, lines)
				if err := tx.Create(&items).Error; err != nil {
					return err
				}
			}
			if err := setTotals(q, total); err != nil {
				return err
			}
			return tx.Model(q).Select("total_cents", "deposit_cents", "balance_cents").Updates(q).Error
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		q, err := loadQuote(database.DB, businessID, id)
		if err != nil {
			return err
		}
		audit.Record(c, audit.Entry{
			EntityType:  "quote",
			EntityID:    q.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Lignes du devis remplacées (%d)", len(q.Items)),
			Before:      before,
			After:       q,
		})
		return c.JSON(q)
	}
}

// DELETE /api/quotes/:id
func DeleteQuoteHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var q *models.Quote
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			if q, err = lockQuote(tx, businessID, id); err != nil {
				return err
			}
			var n int64
			if err := tx.Model(&models.Invoice{}).Where("quote_id = ?", q.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Ce devis a été converti en facture et ne peut pas être supprimé.")
			}
			if err := tx.Where("quote_id = ?", q.ID).Delete(&models.QuoteItem{}).Error; err != nil {
				return err
			}
			return tx.Delete(q).Error
		})
		if err != nil {
			return err
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		audit.Record(c, audit.Entry{
			EntityType:  "quote",
			EntityID:    q.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Devis supprimé : %s", q.Title),
			Before:      *q,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/quotes/:id/convert
// Creates a DRAFT invoice from a SENT or SIGNED quote.
func ConvertQuoteHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var inv models.Invoice
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			q, err := billing.LockQuoteForInvoice(tx, businessID, id, 0)
			if err != nil {
				return err
			}

			var items []models.QuoteItem
			if err := tx.Where("quote_id = ?", q.ID).Order("position ASC, id ASC").Find(&items).Error; err != nil {
				return err
			}

			quoteID := q.ID
			inv = models.Invoice{
				BusinessID:          businessID,
				ProjectID:           q.ProjectID,
				ClientID:            q.ClientID,
				QuoteID:             &quoteID,
				Status:              models.InvoiceDraft,
				Currency:            q.Currency,
				TotalCents:          q.TotalCents,
				DepositPercent:      q.DepositPercent,
				DepositCents:        q.DepositCents,
				BalanceCents:        q.BalanceCents,
				Notes:               q.Notes,
				PrestationsSnapshot: q.PrestationsSnapshot,
			}
			if err := tx.Omit(clause.Associations).Create(&inv).Error; err != nil {
				return billing.QuoteLinkError(err)
			}

			inv.Items = make([]models.InvoiceItem, 0, len(items))
			for _, it := range items {
				inv.Items = append(inv.Items, models.InvoiceItem{
					InvoiceID:      inv.ID,
					ProductID:      it.ProductID,
					Label:          it.Label,
					Description:    it.Description,
					Quantity:       it.Quantity,
					UnitPriceCents: it.UnitPriceCents,
					DiscountType:   it.DiscountType,
					DiscountValue:  it.DiscountValue,
					TotalCents:     it.TotalCents,
					Position:       it.Position,
				})
			}
			if len(inv.Items) > 0 {
				if err := tx.Create(&inv.Items).Error; err != nil {
					return err
				}
			}
			return inventory.SyncReservations(tx, &inv, inv.Items)
		})
		if err != nil {
			return billing.HTTPError(err)
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		audit.Record(c, audit.Entry{
			EntityType:  "invoice",
			EntityID:    inv.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Facture créée depuis le devis #%d", id),
			After:       inv,
		})
		return c.Status(fiber.StatusCreated).JSON(inv)
	}
}
