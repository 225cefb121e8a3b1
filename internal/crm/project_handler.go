package crm

import (
	"encoding/json"
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

type ProjectRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	ClientID    *uint     `json:"client_id"` // 0 detaches the client
	Status      *string   `json:"status"`
	Prestations *[]string `json:"prestations"`
	BudgetCents *int64    `json:"budget_cents"`
	StartsAt    *string   `json:"starts_at"`
	EndsAt      *string   `json:"ends_at"`
}

func (r *ProjectRequest) apply(tx *gorm.DB, p *models.Project) error {
	if r.Name != nil {
		p.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		p.Description = strings.TrimSpace(*r.Description)
	}
	if r.ClientID != nil {
		if *r.ClientID == 0 {
			p.ClientID = nil
		} else {
			ok, err := api.Exists[models.Client](tx, p.BusinessID, *r.ClientID)
			if err != nil {
				return err
			}
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "Client introuvable.")
			}
			id := *r.ClientID
			p.ClientID = &id
		}
		p.Client = nil
	}
	if r.Status != nil {
		st := models.ProjectStatus(strings.ToUpper(strings.TrimSpace(*r.Status)))
		if !st.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Statut de projet invalide.")
		}
		p.Status = st
	}
	if r.Prestations != nil {
		items := make([]string, 0, len(*r.Prestations))
		for _, s := range *r.Prestations {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return err
		}
		p.Prestations = raw
	}
	if r.BudgetCents != nil {
		if *r.BudgetCents < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Le budget ne peut pas être négatif.")
		}
		p.BudgetCents = *r.BudgetCents
	}
	if r.StartsAt != nil {
		d, err := api.OptionalDate(r.StartsAt)
		if err != nil {
			return err
		}
		p.StartsAt = d
	}
	if r.EndsAt != nil {
		d, err := api.OptionalDate(r.EndsAt)
		if err != nil {
			return err
		}
		p.EndsAt = d
	}

	if p.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Le nom du projet est obligatoire.")
	}
	if p.StartsAt != nil && p.EndsAt != nil && p.EndsAt.Before(*p.StartsAt) {
		return fiber.NewError(fiber.StatusBadRequest, "La date de fin précède la date de début.")
	}
	return nil
}

// GET /api/projects?status=ACTIVE&client_id=3
func ListProjectsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Preload("Client").Where("business_id = ?", auth.BusinessID(c))

		if st := c.Query("status"); st != "" {
			if !models.ProjectStatus(st).Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Statut de projet invalide.")
			}
			dbq = dbq.Where("status = ?", st)
		}
		clientID, err := api.QueryUint(c, "client_id")
		if err != nil {
			return err
		}
		if clientID != nil {
			dbq = dbq.Where("client_id = ?", *clientID)
		}

		var projects []models.Project
		if err := dbq.Order("created_at DESC, id DESC").Find(&projects).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les projets.")
		}
		return c.JSON(projects)
	}
}

// POST /api/projects
func CreateProjectHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProjectRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		p := models.Project{BusinessID: auth.BusinessID(c), Status: models.ProjectActive, Prestations: []byte("[]")}
		if err := body.apply(database.DB, &p); err != nil {
			return err
		}

		if err := database.DB.Create(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de créer le projet.")
		}

		cache.Invalidate(c.UserContext(), store, p.BusinessID)
		audit.Record(c, audit.Entry{
			EntityType:  "project",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Projet créé : %s", p.Name),
			After:       p,
		})

		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// GET /api/projects/:id
func GetProjectHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		var p models.Project
		err = database.DB.Preload("Client").Where("id = ? AND business_id = ?", id, auth.BusinessID(c)).First(&p).Error
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Projet introuvable.")
		}
		return c.JSON(p)
	}
}

// PUT /api/projects/:id
func UpdateProjectHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		p, err := api.FindScoped[models.Project](database.DB, auth.BusinessID(c), id, "Projet introuvable.")
		if err != nil {
			return err
		}

		var body ProjectRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		before := *p
		if err := body.apply(database.DB, p); err != nil {
			return err
		}

		if err := database.DB.Omit("Client").Save(p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de modifier le projet.")
		}

		cache.Invalidate(c.UserContext(), store, p.BusinessID)
		audit.Record(c, audit.Entry{
			EntityType:  "project",
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Projet modifié : %s", p.Name),
			Before:      before,
			After:       p,
		})

		return c.JSON(p)
	}
}

// DELETE /api/projects/:id
func DeleteProjectHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)
		p, err := api.FindScoped[models.Project](database.DB, businessID, id, "Projet introuvable.")
		if err != nil {
			return err
		}

		var docs int64
		database.DB.Model(&models.Quote{}).Where("business_id = ? AND project_id = ?", businessID, p.ID).Count(&docs)
		if docs == 0 {
			database.DB.Model(&models.Invoice{}).Where("business_id = ? AND project_id = ?", businessID, p.ID).Count(&docs)
		}
		if docs > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Ce projet a des devis ou factures, il ne peut pas être supprimé.")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("business_id = ? AND project_id = ?", businessID, p.ID).Delete(&models.Task{}).Error; err != nil {
				return err
			}
			if err := tx.Where("business_id = ? AND project_id = ?", businessID, p.ID).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Finance{}).Where("business_id = ? AND project_id = ?", businessID, p.ID).
				Update("project_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(p).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de supprimer le projet.")
		}

		cache.Invalidate(c.UserContext(), store, p.BusinessID)
		audit.Record(c, audit.Entry{
			EntityType:  "project",
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Projet supprimé : %s", p.Name),
			Before:      p,
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
