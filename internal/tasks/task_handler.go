package tasks

import (
	"fmt"
	"strings"
	"time"

	"atelier-backend/internal/api"
	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TaskRequest struct {
	Title      *string            `json:"title"`
	Status     *string            `json:"status"`
	Position   *int               `json:"position"`
	AssigneeID api.Optional[uint] `json:"assignee_id"`
	DueAt      *string            `json:"due_at"`
}

func nextPosition(tx *gorm.DB, projectID uint) (int, error) {
	var top *int
	row := tx.Model(&models.Task{}).Where("project_id = ?", projectID).Select("MAX(position)").Row()
	if err := row.Scan(&top); err != nil {
		return 0, err
	}
	if top == nil {
		return 0, nil
	}
	return *top + 1, nil
}

func (r *TaskRequest) apply(tx *gorm.DB, t *models.Task) error {
	if r.Title != nil {
		t.Title = strings.TrimSpace(*r.Title)
	}
	if r.Status != nil {
		st := models.TaskStatus(strings.ToUpper(strings.TrimSpace(*r.Status)))
		if !st.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Statut de tâche invalide.")
		}
		if st == models.TaskDone && t.Status != models.TaskDone {
			now := time.Now()
			t.DoneAt = &now
		} else if st != models.TaskDone {
			t.DoneAt = nil
		}
		t.Status = st
	}
	if r.Position != nil {
		if *r.Position < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Position invalide.")
		}
		t.Position = *r.Position
	}
	if r.AssigneeID.Set {
		t.AssigneeID = r.AssigneeID.Value
		if t.AssigneeID != nil {
			ok, err := api.Exists[models.User](tx, t.BusinessID, *t.AssigneeID)
			if err != nil {
				return err
			}
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "Utilisateur introuvable.")
			}
		}
	}
	if r.DueAt != nil {
		d, err := api.OptionalDate(r.DueAt)
		if err != nil {
			return err
		}
		t.DueAt = d
	}
	if t.Title == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Le titre de la tâche est obligatoire.")
	}
	return nil
}

// GET /api/projects/:id/tasks
func ListTasksHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)
		if _, err := api.FindScoped[models.Project](database.DB, businessID, projectID, "Projet introuvable."); err != nil {
			return err
		}

		dbq := database.DB.Where("business_id = ? AND project_id = ?", businessID, projectID)
		if s := c.Query("status"); s != "" {
			dbq = dbq.Where("status = ?", strings.ToUpper(s))
		}
		var tasks []models.Task
		if err := dbq.Order("position ASC, id ASC").Find(&tasks).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les tâches.")
		}
		return c.JSON(tasks)
	}
}

// POST /api/projects/:id/tasks
func CreateTaskHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)
		if _, err := api.FindScoped[models.Project](database.DB, businessID, projectID, "Projet introuvable."); err != nil {
			return err
		}

		var body TaskRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		t := models.Task{BusinessID: businessID, ProjectID: projectID, Status: models.TaskTodo}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			next, err := nextPosition(tx, projectID)
			if err != nil {
				return err
			}
			t.Position = next
			if err := body.apply(tx, &t); err != nil {
				return err
			}
			return tx.Create(&t).Error
		})
		if err != nil {
			return err
		}

		audit.Record(c, audit.Entry{
			EntityType:  "task",
			EntityID:    t.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Tâche créée : %s", t.Title),
			After:       t,
		})
		return c.Status(fiber.StatusCreated).JSON(t)
	}
}

// PATCH /api/tasks/:id
func UpdateTaskHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		t, err := api.FindScoped[models.Task](database.DB, auth.BusinessID(c), id, "Tâche introuvable.")
		if err != nil {
			return err
		}
		before := *t

		var body TaskRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		if err := body.apply(database.DB, t); err != nil {
			return err
		}
		if err := database.DB.Save(t).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de mettre à jour la tâche.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "task",
			EntityID:    t.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Tâche modifiée : %s (%s)", t.Title, t.Status),
			Before:      before,
			After:       *t,
		})
		return c.JSON(t)
	}
}

// DELETE /api/tasks/:id
func DeleteTaskHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		t, err := api.FindScoped[models.Task](database.DB, auth.BusinessID(c), id, "Tâche introuvable.")
		if err != nil {
			return err
		}
		if err := database.DB.Delete(t).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de supprimer la tâche.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "task",
			EntityID:    t.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Tâche supprimée : %s", t.Title),
			Before:      *t,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}
