package admin

import (
	"strings"

	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/cache"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type UpdateBusinessRequest struct {
	Name                  *string `json:"name"`
	LegalName             *string `json:"legal_name"`
	Siret                 *string `json:"siret"`
	VatNumber             *string `json:"vat_number"`
	AddressLine           *string `json:"address_line"`
	PostalCode            *string `json:"postal_code"`
	City                  *string `json:"city"`
	Country               *string `json:"country"`
	Email                 *string `json:"email"`
	Phone                 *string `json:"phone"`
	IBAN                  *string `json:"iban"`
	InvoiceFooter         *string `json:"invoice_footer"`
	Currency              *string `json:"currency"`
	DefaultDepositPercent *int    `json:"default_deposit_percent"`
	PaymentTermsDays      *int    `json:"payment_terms_days"`
}

func setTrimmed(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func (r *UpdateBusinessRequest) apply(b *models.Business) error {
	setTrimmed(&b.Name, r.Name)
	setTrimmed(&b.LegalName, r.LegalName)
	setTrimmed(&b.AddressLine, r.AddressLine)
	setTrimmed(&b.PostalCode, r.PostalCode)
	setTrimmed(&b.City, r.City)
	setTrimmed(&b.Phone, r.Phone)
	setTrimmed(&b.InvoiceFooter, r.InvoiceFooter)
	setTrimmed(&b.Email, r.Email)
	if r.Siret != nil {
		b.Siret = strings.ReplaceAll(strings.TrimSpace(*r.Siret), " ", "")
	}
	if r.VatNumber != nil {
		b.VatNumber = strings.ToUpper(strings.TrimSpace(*r.VatNumber))
	}
	if r.Country != nil {
		b.Country = strings.ToUpper(strings.TrimSpace(*r.Country))
	}
	if r.IBAN != nil {
		b.IBAN = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(*r.IBAN), " ", ""))
	}
	if r.Currency != nil {
		b.Currency = strings.ToUpper(strings.TrimSpace(*r.Currency))
	}
	if r.DefaultDepositPercent != nil {
		b.DefaultDepositPercent = *r.DefaultDepositPercent
	}
	if r.PaymentTermsDays != nil {
		b.PaymentTermsDays = *r.PaymentTermsDays
	}

	if b.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Le nom de l'entreprise est obligatoire.")
	}
	if b.Siret != "" && len(b.Siret) != 14 {
		return fiber.NewError(fiber.StatusBadRequest, "Le SIRET doit contenir 14 chiffres.")
	}
	if len(b.Currency) != 3 {
		return fiber.NewError(fiber.StatusBadRequest, "La devise doit être un code ISO à 3 lettres.")
	}
	if len(b.Country) > 2 {
		return fiber.NewError(fiber.StatusBadRequest, "Le pays doit être un code ISO à 2 lettres.")
	}
	if b.DefaultDepositPercent < 0 || b.DefaultDepositPercent > 100 {
		return fiber.NewError(fiber.StatusBadRequest, "Le pourcentage d'acompte doit être compris entre 0 et 100.")
	}
	if b.PaymentTermsDays < 0 || b.PaymentTermsDays > 365 {
		return fiber.NewError(fiber.StatusBadRequest, "Le délai de paiement doit être compris entre 0 et 365 jours.")
	}
	return nil
}

// GET /api/business
func GetBusinessHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var b models.Business
		if err := database.DB.First(&b, auth.BusinessID(c)).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Entreprise introuvable.")
		}
		return c.JSON(b)
	}
}

// PUT /api/business
// Documents already issued keep their issuer snapshot.
func UpdateBusinessHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var b models.Business
		if err := database.DB.First(&b, auth.BusinessID(c)).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Entreprise introuvable.")
		}
		before := b

		var body UpdateBusinessRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		if err := body.apply(&b); err != nil {
			return err
		}
		if err := database.DB.Save(&b).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de mettre à jour l'entreprise.")
		}

		cache.Invalidate(c.UserContext(), store, b.ID)
		audit.Record(c, audit.Entry{
			EntityType:  "business",
			EntityID:    b.ID,
			Action:      models.AuditActionUpdate,
			Description: "Paramètres de l'entreprise modifiés",
			Before:      before,
			After:       b,
		})
		return c.JSON(b)
	}
}
