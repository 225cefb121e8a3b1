package billing

import (
	"testing"

	"atelier-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCheckInvoiceTransition(t *testing.T) {
	all := []models.InvoiceStatus{models.InvoiceDraft, models.InvoiceSent, models.InvoicePaid, models.InvoiceCancelled}
	allowed := map[[2]models.InvoiceStatus]bool{
		{models.InvoiceDraft, models.InvoiceSent}:      true,
		{models.InvoiceDraft, models.InvoiceCancelled}: true,
		{models.InvoiceSent, models.InvoicePaid}:       true,
		{models.InvoiceSent, models.InvoiceCancelled}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			changed, err := CheckInvoiceTransition(from, to)
			switch {
			case from == to:
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.False(t, changed, "%s -> %s", from, to)
			case allowed[[2]models.InvoiceStatus{from, to}]:
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.True(t, changed, "%s -> %s", from, to)
			default:
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestCheckQuoteTransition(t *testing.T) {
	all := []models.QuoteStatus{models.QuoteDraft, models.QuoteSent, models.QuoteSigned, models.QuoteCancelled, models.QuoteExpired}
	allowed := map[[2]models.QuoteStatus]bool{
		{models.QuoteDraft, models.QuoteSent}:      true,
		{models.QuoteDraft, models.QuoteCancelled}: true,
		{models.QuoteSent, models.QuoteSigned}:     true,
		{models.QuoteSent, models.QuoteCancelled}:  true,
		{models.QuoteSent, models.QuoteExpired}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			changed, err := CheckQuoteTransition(from, to)
			switch {
			case from == to:
				assert.NoError(t, err)
				assert.False(t, changed)
			case allowed[[2]models.QuoteStatus{from, to}]:
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.True(t, changed)
			default:
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestUnknownStatusIsRejected(t *testing.T) {
	_, err := CheckInvoiceTransition(models.InvoiceDraft, "ARCHIVED")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, IsInvoiceStatus("ARCHIVED"))
	assert.True(t, IsQuoteStatus(models.QuoteExpired))
}

func TestHTTPError(t *testing.T) {
	err := HTTPError(ErrAlreadyPaid)
	fe, ok := err.(interface{ Error() string })
	assert.True(t, ok)
	assert.Equal(t, "Facture déjà soldée.", fe.Error())
	assert.Nil(t, HTTPError(nil))
}
