package messaging

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"atelier-backend/internal/api"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	maxBodyLength = 4000
	defaultLimit  = 100
	maxLimit      = 500
)

type PostMessageRequest struct {
	Body string `json:"body"`
}

// GET /api/projects/:id/messages?after_id=42&limit=100
// Clients poll with the last id they have seen.
func ListMessagesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)
		if _, err := api.FindScoped[models.Project](database.DB, businessID, projectID, "Projet introuvable."); err != nil {
			return err
		}

		limit := defaultLimit
		if raw := c.Query("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Paramètre limit invalide.")
			}
			if v > maxLimit {
				v = maxLimit
			}
			limit = v
		}

		dbq := database.DB.Where("business_id = ? AND project_id = ?", businessID, projectID)
		afterID, err := api.QueryUint(c, "after_id")
		if err != nil {
			return err
		}
		if afterID != nil {
			dbq = dbq.Where("id > ?", *afterID)
		}

		var messages []models.Message
		if err := dbq.Order("id ASC").Limit(limit).Find(&messages).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les messages.")
		}
		return c.JSON(messages)
	}
}

// POST /api/projects/:id/messages
func PostMessageHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)
		if _, err := api.FindScoped[models.Project](database.DB, businessID, projectID, "Projet introuvable."); err != nil {
			return err
		}

		var body PostMessageRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		text := strings.TrimSpace(body.Body)
		if text == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Le message est vide.")
		}
		if utf8.RuneCountInString(text) > maxBodyLength {
			return fiber.NewError(fiber.StatusBadRequest, "Le message dépasse 4000 caractères.")
		}

		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		m := models.Message{
			BusinessID: businessID,
			ProjectID:  projectID,
			AuthorID:   user.ID,
			AuthorName: user.Name,
			Body:       text,
		}
		if err := database.DB.Create(&m).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible d'envoyer le message.")
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	}
}
