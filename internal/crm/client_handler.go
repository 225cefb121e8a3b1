package crm

import (
	"fmt"
	"net/mail"
	"strings"

	"atelier-backend/internal/api"
	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ClientRequest struct {
	Name        *string `json:"name"`
	Company     *string `json:"company"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	AddressLine *string `json:"address_line"`
	PostalCode  *string `json:"postal_code"`
	City        *string `json:"city"`
	Country     *string `json:"country"`
	Siret       *string `json:"siret"`
	VatNumber   *string `json:"vat_number"`
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// apply copies the fields present in the request onto the client.
func (r *ClientRequest) apply(cl *models.Client) error {
	if r.Name != nil {
		cl.Name = trimmed(r.Name)
	}
	if r.Company != nil {
		cl.Company = trimmed(r.Company)
	}
	if r.Email != nil {
		cl.Email = strings.ToLower(trimmed(r.Email))
	}
	if r.Phone != nil {
		cl.Phone = trimmed(r.Phone)
	}
	if r.AddressLine != nil {
		cl.AddressLine = trimmed(r.AddressLine)
	}
	if r.PostalCode != nil {
		cl.PostalCode = trimmed(r.PostalCode)
	}
	if r.City != nil {
		cl.City = trimmed(r.City)
	}
	if r.Country != nil {
		cl.Country = strings.ToUpper(trimmed(r.Country))
	}
	if r.Siret != nil {
		cl.Siret = strings.ReplaceAll(trimmed(r.Siret), " ", "")
	}
	if r.VatNumber != nil {
		cl.VatNumber = strings.ToUpper(trimmed(r.VatNumber))
	}

	if cl.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Le nom du client est obligatoire.")
	}
	if cl.Email != "" {
		if _, err := mail.ParseAddress(cl.Email); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Adresse email invalide.")
		}
	}
	if cl.Siret != "" && len(cl.Siret) != 14 {
		return fiber.NewError(fiber.StatusBadRequest, "Le SIRET doit contenir 14 chiffres.")
	}
	if len(cl.Country) > 2 {
		return fiber.NewError(fiber.StatusBadRequest, "Le pays doit être un code ISO à 2 lettres.")
	}
	return nil
}

// GET /api/clients?q=martin
func ListClientsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Where("business_id = ?", auth.BusinessID(c))
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			dbq = dbq.Where("LOWER(name) LIKE ? OR LOWER(company) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
		}

		var clients []models.Client
		if err := dbq.Order("name ASC").Find(&clients).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les clients.")
		}
		return c.JSON(clients)
	}
}

// POST /api/clients
func CreateClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ClientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		cl := models.Client{BusinessID: auth.BusinessID(c)}
		if err := body.apply(&cl); err != nil {
			return err
		}

		if err := database.DB.Create(&cl).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de créer le client.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "client",
			EntityID:    cl.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Client créé : %s", cl.Name),
			After:       cl,
		})

		return c.Status(fiber.StatusCreated).JSON(cl)
	}
}

// GET /api/clients/:id
func GetClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		cl, err := api.FindScoped[models.Client](database.DB, auth.BusinessID(c), id, "Client introuvable.")
		if err != nil {
			return err
		}

		var projects []models.Project
		database.DB.Where("business_id = ? AND client_id = ?", cl.BusinessID, cl.ID).Order("created_at DESC").Find(&projects)

		return c.JSON(fiber.Map{
			"client":   cl,
			"projects": projects,
		})
	}
}

// PUT /api/clients/:id
func UpdateClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		cl, err := api.FindScoped[models.Client](database.DB, auth.BusinessID(c), id, "Client introuvable.")
		if err != nil {
			return err
		}

		var body ClientRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		before := *cl
		if err := body.apply(cl); err != nil {
			return err
		}

		if err := database.DB.Save(cl).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de modifier le client.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "client",
			EntityID:    cl.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Client modifié : %s", cl.Name),
			Before:      before,
			After:       cl,
		})

		return c.JSON(cl)
	}
}

// DELETE /api/clients/:id
func DeleteClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)
		cl, err := api.FindScoped[models.Client](database.DB, businessID, id, "Client introuvable.")
		if err != nil {
			return err
		}

		var docs int64
		database.DB.Model(&models.Quote{}).Where("business_id = ? AND client_id = ?", businessID, cl.ID).Count(&docs)
		if docs == 0 {
			database.DB.Model(&models.Invoice{}).Where("business_id = ? AND client_id = ?", businessID, cl.ID).Count(&docs)
		}
		if docs > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Ce client a des devis ou factures, il ne peut pas être supprimé.")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Project{}).
				Where("business_id = ? AND client_id = ?", businessID, cl.ID).
				Update("client_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(cl).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de supprimer le client.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "client",
			EntityID:    cl.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Client supprimé : %s", cl.Name),
			Before:      cl,
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
