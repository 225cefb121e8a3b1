package audit

import (
	"errors"
	"strconv"

	"atelier-backend/internal/api"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/cache"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	Undoable    bool               `json:"undoable"`
	IsUndone    bool               `json:"is_undone"`
	UndoneBy    *uint              `json:"undone_by"`
	UndoneAt    *string            `json:"undone_at"`
}

// GET /api/audit-logs?entity_type=client&entity_id=1&user_id=2&limit=50
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.AuditLog{}).Where("business_id = ?", auth.BusinessID(c))

		if entityType := c.Query("entity_type"); entityType != "" {
			dbq = dbq.Where("entity_type = ?", entityType)
		}
		entityID, err := api.QueryUint(c, "entity_id")
		if err != nil {
			return err
		}
		if entityID != nil {
			dbq = dbq.Where("entity_id = ?", *entityID)
		}
		userID, err := api.QueryUint(c, "user_id")
		if err != nil {
			return err
		}
		if userID != nil {
			dbq = dbq.Where("user_id = ?", *userID)
		}

		limit := defaultLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Paramètre limit invalide.")
			}
			limit = min(n, maxLimit)
		}

		var logs []models.AuditLog
		if err := dbq.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister l'historique.")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, log := range logs {
			var undoneAt *string
			if log.UndoneAt != nil {
				s := log.UndoneAt.Format("2006-01-02 15:04:05")
				undoneAt = &s
			}

			resp = append(resp, AuditLogResponse{
				ID:          log.ID,
				CreatedAt:   log.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:      log.UserID,
				UserName:    log.UserName,
				EntityType:  log.EntityType,
				EntityID:    log.EntityID,
				Action:      log.Action,
				Description: log.Description,
				Undoable:    IsUndoable(log.EntityType) && log.Action != models.AuditActionUndo && !log.IsUndone,
				IsUndone:    log.IsUndone,
				UndoneBy:    log.UndoneBy,
				UndoneAt:    undoneAt,
			})
		}

		return c.JSON(resp)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logID, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}

		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		err = UndoLog(user.BusinessID, logID, user.ID, user.Name)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fiber.NewError(fiber.StatusNotFound, "Entrée d'historique introuvable.")
		case errors.Is(err, ErrAlreadyUndone):
			return fiber.NewError(fiber.StatusBadRequest, "Cette opération a déjà été annulée.")
		case errors.Is(err, ErrNotUndoable):
			return fiber.NewError(fiber.StatusBadRequest, "Cette opération ne peut pas être annulée.")
		case err != nil:
			return fiber.NewError(fiber.StatusBadRequest, "Annulation impossible : "+err.Error())
		}

		cache.Invalidate(c.UserContext(), store, user.BusinessID)

		return c.JSON(fiber.Map{
			"message": "Opération annulée.",
		})
	}
}
