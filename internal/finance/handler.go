package finance

import (
	"fmt"
	"strings"

	"atelier-backend/internal/api"
	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/cache"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type FinanceRequest struct {
	Type            *string            `json:"type"`
	AmountCents     *int64             `json:"amount_cents"`
	Category        *string            `json:"category"`
	Label           *string            `json:"label"`
	Date            *string            `json:"date"`
	ProjectID       api.Optional[uint] `json:"project_id"`
	Recurrence      *string            `json:"recurrence"`
	RecurrenceEndAt *string            `json:"recurrence_end_at"`
}

func (r *FinanceRequest) apply(tx *gorm.DB, f *models.Finance) error {
	if r.Type != nil {
		f.Type = models.FinanceType(strings.ToUpper(strings.TrimSpace(*r.Type)))
	}
	if r.AmountCents != nil {
		f.AmountCents = *r.AmountCents
	}
	if r.Category != nil {
		f.Category = strings.TrimSpace(*r.Category)
	}
	if r.Label != nil {
		f.Label = strings.TrimSpace(*r.Label)
	}
	if r.Date != nil {
		d, err := api.ParseDate(*r.Date)
		if err != nil {
			return err
		}
		f.Date = d
	}
	if r.ProjectID.Set {
		f.ProjectID = r.ProjectID.Value
		if f.ProjectID != nil && *f.ProjectID == 0 {
			f.ProjectID = nil
		}
	}
	if r.Recurrence != nil {
		f.Recurrence = models.Recurrence(strings.ToUpper(strings.TrimSpace(*r.Recurrence)))
	}
	if r.RecurrenceEndAt != nil {
		end, err := api.OptionalDate(r.RecurrenceEndAt)
		if err != nil {
			return err
		}
		f.RecurrenceEndAt = end
	}

	if !f.Type.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "Type invalide (INCOME ou EXPENSE).")
	}
	if f.AmountCents <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Le montant doit être supérieur à 0.")
	}
	if f.Category == "" {
		return fiber.NewError(fiber.StatusBadRequest, "La catégorie est obligatoire.")
	}
	if f.Date.IsZero() {
		return fiber.NewError(fiber.StatusBadRequest, "La date est obligatoire.")
	}
	if f.Recurrence == "" {
		f.Recurrence = models.RecurrenceNone
	}
	if !f.Recurrence.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "Récurrence invalide.")
	}
	if f.Recurrence == models.RecurrenceNone {
		f.RecurrenceEndAt = nil
	}
	if f.RecurrenceEndAt != nil && f.RecurrenceEndAt.Before(f.Date) {
		return fiber.NewError(fiber.StatusBadRequest, "La fin de récurrence précède la date.")
	}
	if f.ProjectID != nil {
		ok, err := api.Exists[models.Project](tx, f.BusinessID, *f.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "Projet introuvable.")
		}
	}
	return nil
}

func readOnly(f *models.Finance) error {
	if f.SourceType != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cette écriture est générée automatiquement et ne peut pas être modifiée.")
	}
	return nil
}

// GET /api/finances?from=&to=&type=&category=&project_id=&expand=1
func ListFinancesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, to, err := api.QueryRange(c)
		if err != nil {
			return err
		}
		expand := c.Query("expand") == "1" || c.Query("expand") == "true"

		dbq := database.DB.Where("business_id = ?", auth.BusinessID(c))
		if t := c.Query("type"); t != "" {
			if !models.FinanceType(t).Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Type invalide (INCOME ou EXPENSE).")
			}
			dbq = dbq.Where("type = ?", t)
		}
		if cat := strings.TrimSpace(c.Query("category")); cat != "" {
			dbq = dbq.Where("category = ?", cat)
		}
		projectID, err := api.QueryUint(c, "project_id")
		if err != nil {
			return err
		}
		if projectID != nil {
			dbq = dbq.Where("project_id = ?", *projectID)
		}

		if !to.IsZero() {
			dbq = dbq.Where("date <= ?", to)
		}
		if !expand && !from.IsZero() {
			dbq = dbq.Where("date >= ?", from)
		}

		var rows []models.Finance
		if err := dbq.Order("date DESC, id DESC").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les écritures.")
		}

		if !expand {
			return c.JSON(rows)
		}
		return c.JSON(ExpandAll(rows, from, to))
	}
}

// POST /api/finances
func CreateFinanceHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body FinanceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		f := models.Finance{BusinessID: auth.BusinessID(c)}
		if err := body.apply(database.DB, &f); err != nil {
			return err
		}
		if err := database.DB.Create(&f).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de créer l'écriture.")
		}

		cache.Invalidate(c.UserContext(), store, f.BusinessID)
		audit.Record(c, audit.Entry{
			EntityType:  "finance",
			EntityID:    f.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Écriture %s : %s", f.Type, f.Category),
			After:       f,
		})

		return c.Status(fiber.StatusCreated).JSON(f)
	}
}

// GET /api/finances/:id
func GetFinanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		f, err := api.FindScoped[models.Finance](database.DB, auth.BusinessID(c), id, "Écriture introuvable.")
		if err != nil {
			return err
		}
		return c.JSON(f)
	}
}

// PATCH /api/finances/:id
func UpdateFinanceHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		f, err := api.FindScoped[models.Finance](database.DB, auth.BusinessID(c), id, "Écriture introuvable.")
		if err != nil {
			return err
		}
		if err := readOnly(f); err != nil {
			return err
		}
		before := *f

		var body FinanceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		if err := body.apply(database.DB, f); err != nil {
			return err
		}
		if err := database.DB.Save(f).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de mettre à jour l'écriture.")
		}

		cache.Invalidate(c.UserContext(), store, f.BusinessID)
		audit.Record(c, audit.Entry{
			EntityType:  "finance",
			EntityID:    f.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Écriture modifiée : %s", f.Category),
			Before:      before,
			After:       *f,
		})

		return c.JSON(f)
	}
}

// DELETE /api/finances/:id
func DeleteFinanceHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		f, err := api.FindScoped[models.Finance](database.DB, auth.BusinessID(c), id, "Écriture introuvable.")
		if err != nil {
			return err
		}
		if err := readOnly(f); err != nil {
			return err
		}

		if err := database.DB.Delete(f).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de supprimer l'écriture.")
		}

		cache.Invalidate(c.UserContext(), store, f.BusinessID)
		audit.Record(c, audit.Entry{
			EntityType:  "finance",
			EntityID:    f.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Écriture supprimée : %s", f.Category),
			Before:      *f,
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
