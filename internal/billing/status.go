package billing

import "atelier-backend/internal/models"

var quoteTransitions = map[models.QuoteStatus][]models.QuoteStatus{
	models.QuoteDraft: {models.QuoteSent, models.QuoteCancelled},
	models.QuoteSent:  {models.QuoteSigned, models.QuoteCancelled, models.QuoteExpired},
}

var invoiceTransitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceDraft: {models.InvoiceSent, models.InvoiceCancelled},
	models.InvoiceSent:  {models.InvoicePaid, models.InvoiceCancelled},
}

func checkTransition[S comparable](table map[S][]S, from, to S) (bool, error) {
	if from == to {
		return false, nil
	}
	for _, next := range table[from] {
		if next == to {
			return true, nil
		}
	}
	return false, ErrInvalidTransition
}

// CheckQuoteTransition reports whether moving from -> to changes anything.
// Asking for the current status is a no-op, not an error.
func CheckQuoteTransition(from, to models.QuoteStatus) (bool, error) {
	return checkTransition(quoteTransitions, from, to)
}

func CheckInvoiceTransition(from, to models.InvoiceStatus) (bool, error) {
	return checkTransition(invoiceTransitions, from, to)
}

func IsQuoteStatus(s models.QuoteStatus) bool {
	switch s {
	case models.QuoteDraft, models.QuoteSent, models.QuoteSigned, models.QuoteCancelled, models.QuoteExpired:
		return true
	}
	return false
}

func IsInvoiceStatus(s models.InvoiceStatus) bool {
	switch s {
	case models.InvoiceDraft, models.InvoiceSent, models.InvoicePaid, models.InvoiceCancelled:
		return true
	}
	return false
}
