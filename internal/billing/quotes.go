package billing

import (
	"errors"

	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrQuoteNotConvertible = &Error{Code: "QUOTE_NOT_CONVERTIBLE", Message: "Seul un devis envoyé ou signé peut être converti."}
	ErrQuoteInvoiced       = &Error{Code: "QUOTE_INVOICED", Message: "Ce devis a déjà été converti en facture."}
	ErrQuoteProject        = &Error{Code: "QUOTE_PROJECT", Message: "Le devis n'appartient pas à ce projet."}
)

// LockQuoteForInvoice locks the quote an invoice is about to be built from
// and checks it is SENT or SIGNED and not invoiced yet. A non-zero projectID
// must match the quote's project.
func LockQuoteForInvoice(tx *gorm.DB, businessID, quoteID, projectID uint) (*models.Quote, error) {
	var q models.Quote
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND business_id = ?", quoteID, businessID).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Devis introuvable.")
	}
	if err != nil {
		return nil, err
	}

	if projectID != 0 && q.ProjectID != projectID {
		return nil, ErrQuoteProject
	}
	if q.Status != models.QuoteSent && q.Status != models.QuoteSigned {
		return nil, ErrQuoteNotConvertible
	}

	var n int64
	if err := tx.Model(&models.Invoice{}).Where("quote_id = ?", q.ID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrQuoteInvoiced
	}
	return &q, nil
}

// QuoteLinkError reports a lost race on the one-invoice-per-quote index as
// ErrQuoteInvoiced.
func QuoteLinkError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrQuoteInvoiced
	}
	return err
}
