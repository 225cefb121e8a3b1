package tasks

import (
	"encoding/json"
	"fmt"
	"strings"

	"atelier-backend/internal/api"
	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TemplateRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Steps       *[]string `json:"steps"`
}

// Steps decodes the ordered step titles of a template.
func Steps(t *models.TaskTemplate) ([]string, error) {
	var steps []string
	if len(t.Steps) == 0 {
		return steps, nil
	}
	if err := json.Unmarshal(t.Steps, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *TemplateRequest) apply(t *models.TaskTemplate) error {
	if r.Name != nil {
		t.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		t.Description = strings.TrimSpace(*r.Description)
	}
	if r.Steps != nil {
		steps := make([]string, 0, len(*r.Steps))
		for _, s := range *r.Steps {
			if s = strings.TrimSpace(s); s != "" {
				steps = append(steps, s)
			}
		}
		raw, err := json.Marshal(steps)
		if err != nil {
			return err
		}
		t.Steps = raw
	}
	if t.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Le nom du modèle est obligatoire.")
	}
	if len(t.Steps) == 0 {
		t.Steps = []byte("[]")
	}
	return nil
}

// GET /api/task-templates
func ListTemplatesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var templates []models.TaskTemplate
		if err := database.DB.Where("business_id = ?", auth.BusinessID(c)).Order("name ASC").Find(&templates).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les modèles.")
		}
		return c.JSON(templates)
	}
}

// POST /api/task-templates
func CreateTemplateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body TemplateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		t := models.TaskTemplate{BusinessID: auth.BusinessID(c)}
		if err := body.apply(&t); err != nil {
			return err
		}
		if err := database.DB.Create(&t).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de créer le modèle.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "task_template",
			EntityID:    t.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Modèle créé : %s", t.Name),
			After:       t,
		})
		return c.Status(fiber.StatusCreated).JSON(t)
	}
}

// GET /api/task-templates/:id
func GetTemplateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		t, err := api.FindScoped[models.TaskTemplate](database.DB, auth.BusinessID(c), id, "Modèle introuvable.")
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// PUT /api/task-templates/:id
func UpdateTemplateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		t, err := api.FindScoped[models.TaskTemplate](database.DB, auth.BusinessID(c), id, "Modèle introuvable.")
		if err != nil {
			return err
		}
		before := *t

		var body TemplateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		if err := body.apply(t); err != nil {
			return err
		}
		if err := database.DB.Save(t).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de mettre à jour le modèle.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "task_template",
			EntityID:    t.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Modèle modifié : %s", t.Name),
			Before:      before,
			After:       *t,
		})
		return c.JSON(t)
	}
}

// DELETE /api/task-templates/:id
// Tasks created from the template keep existing and lose the link.
func DeleteTemplateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		t, err := api.FindScoped[models.TaskTemplate](database.DB, auth.BusinessID(c), id, "Modèle introuvable.")
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Task{}).Where("template_id = ?", t.ID).Update("template_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(t).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de supprimer le modèle.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "task_template",
			EntityID:    t.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Modèle supprimé : %s", t.Name),
			Before:      *t,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/projects/:id/apply-template
// Appends one TODO task per template step after the existing tasks.
func ApplyTemplateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var body struct {
			TemplateID uint `json:"template_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		project, err := api.FindScoped[models.Project](database.DB, businessID, projectID, "Projet introuvable.")
		if err != nil {
			return err
		}
		tpl, err := api.FindScoped[models.TaskTemplate](database.DB, businessID, body.TemplateID, "Modèle introuvable.")
		if err != nil {
			return err
		}
		steps, err := Steps(tpl)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Ce modèle ne contient aucune étape.")
		}

		var created []models.Task
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			next, err := nextPosition(tx, project.ID)
			if err != nil {
				return err
			}
			created = make([]models.Task, 0, len(steps))
			for i, step := range steps {
				created = append(created, models.Task{
					BusinessID: businessID,
					ProjectID:  project.ID,
					TemplateID: &tpl.ID,
					Title:      step,
					Status:     models.TaskTodo,
					Position:   next + i,
				})
			}
			return tx.Create(&created).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible d'appliquer le modèle.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "project",
			EntityID:    project.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Modèle « %s » appliqué (%d tâches)", tpl.Name, len(created)),
			After:       created,
		})
		return c.Status(fiber.StatusCreated).JSON(created)
	}
}
