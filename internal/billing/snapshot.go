package billing

import (
	"bytes"
	"encoding/json"
	"time"

	"atelier-backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type IssuerSnapshot struct {
	Name          string `json:"name"`
	LegalName     string `json:"legal_name"`
	Siret         string `json:"siret"`
	VatNumber     string `json:"vat_number"`
	AddressLine   string `json:"address_line"`
	PostalCode    string `json:"postal_code"`
	City          string `json:"city"`
	Country       string `json:"country"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	IBAN          string `json:"iban"`
	InvoiceFooter string `json:"invoice_footer"`
}

type ClientSnapshot struct {
	Name        string `json:"name"`
	Company     string `json:"company"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	AddressLine string `json:"address_line"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Siret       string `json:"siret"`
	VatNumber   string `json:"vat_number"`
}

// IsEmptyJSON is true for a missing blob or a JSON null.
func IsEmptyJSON(j datatypes.JSON) bool {
	t := bytes.TrimSpace(j)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func IssuerJSON(b *models.Business) (datatypes.JSON, error) {
	raw, err := json.Marshal(IssuerSnapshot{
		Name:          b.Name,
		LegalName:     b.LegalName,
		Siret:         b.Siret,
		VatNumber:     b.VatNumber,
		AddressLine:   b.AddressLine,
		PostalCode:    b.PostalCode,
		City:          b.City,
		Country:       b.Country,
		Email:         b.Email,
		Phone:         b.Phone,
		IBAN:          b.IBAN,
		InvoiceFooter: b.InvoiceFooter,
	})
	return datatypes.JSON(raw), err
}

func ClientJSON(c *models.Client) (datatypes.JSON, error) {
	if c == nil {
		return nil, nil
	}
	raw, err := json.Marshal(ClientSnapshot{
		Name:        c.Name,
		Company:     c.Company,
		Email:       c.Email,
		Phone:       c.Phone,
		AddressLine: c.AddressLine,
		PostalCode:  c.PostalCode,
		City:        c.City,
		Country:     c.Country,
		Siret:       c.Siret,
		VatNumber:   c.VatNumber,
	})
	return datatypes.JSON(raw), err
}

// documentSources are the rows a document snapshots when it is issued.
type documentSources struct {
	business models.Business
	client   *models.Client
	project  models.Project
}

func loadSources(tx *gorm.DB, businessID, projectID uint, clientID *uint) (*documentSources, error) {
	var src documentSources
	if err := tx.First(&src.business, businessID).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("id = ? AND business_id = ?", projectID, businessID).First(&src.project).Error; err != nil {
		return nil, err
	}
	if clientID == nil {
		clientID = src.project.ClientID
	}
	if clientID != nil {
		var cl models.Client
		if err := tx.Where("id = ? AND business_id = ?", *clientID, businessID).First(&cl).Error; err != nil {
			return nil, err
		}
		src.client = &cl
	}
	return &src, nil
}

// IssueQuote fills what a quote needs when it is sent: number, dates and
// the snapshots that are still empty.
func IssueQuote(tx *gorm.DB, q *models.Quote, now time.Time) error {
	src, err := loadSources(tx, q.BusinessID, q.ProjectID, q.ClientID)
	if err != nil {
		return err
	}

	if q.Number == nil || *q.Number == "" {
		n, err := NextNumber(tx, q.BusinessID, models.KindQuote, now)
		if err != nil {
			return err
		}
		q.Number = &n
	}
	if q.IssuedAt == nil {
		q.IssuedAt = &now
	}
	if q.ValidUntil == nil {
		v := q.IssuedAt.AddDate(0, 0, src.business.PaymentTermsDays)
		q.ValidUntil = &v
	}

	if IsEmptyJSON(q.IssuerSnapshot) {
		if q.IssuerSnapshot, err = IssuerJSON(&src.business); err != nil {
			return err
		}
	}
	if IsEmptyJSON(q.ClientSnapshot) {
		if q.ClientSnapshot, err = ClientJSON(src.client); err != nil {
			return err
		}
	}
	if IsEmptyJSON(q.PrestationsSnapshot) {
		q.PrestationsSnapshot = src.project.Prestations
	}
	return nil
}

// IssueInvoice is IssueQuote for invoices. Prestations come from the source
// quote when there is one, otherwise from the project.
func IssueInvoice(tx *gorm.DB, inv *models.Invoice, now time.Time) error {
	src, err := loadSources(tx, inv.BusinessID, inv.ProjectID, inv.ClientID)
	if err != nil {
		return err
	}

	if inv.Number == nil || *inv.Number == "" {
		n, err := NextNumber(tx, inv.BusinessID, models.KindInvoice, now)
		if err != nil {
			return err
		}
		inv.Number = &n
	}
	if inv.IssuedAt == nil {
		inv.IssuedAt = &now
	}
	if inv.DueAt == nil {
		d := inv.IssuedAt.AddDate(0, 0, src.business.PaymentTermsDays)
		inv.DueAt = &d
	}

	if IsEmptyJSON(inv.IssuerSnapshot) {
		if inv.IssuerSnapshot, err = IssuerJSON(&src.business); err != nil {
			return err
		}
	}
	if IsEmptyJSON(inv.ClientSnapshot) {
		if inv.ClientSnapshot, err = ClientJSON(src.client); err != nil {
			return err
		}
	}
	if IsEmptyJSON(inv.PrestationsSnapshot) {
		if inv.QuoteID != nil {
			var q models.Quote
			if err := tx.Select("id", "prestations_snapshot").First(&q, *inv.QuoteID).Error; err == nil && !IsEmptyJSON(q.PrestationsSnapshot) {
				inv.PrestationsSnapshot = q.PrestationsSnapshot
			}
		}
		if IsEmptyJSON(inv.PrestationsSnapshot) {
			inv.PrestationsSnapshot = src.project.Prestations
		}
	}
	return nil
}
