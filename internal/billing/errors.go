package billing

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error is a business rule violation. It always maps to a 400.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrAlreadyPaid        = &Error{Code: "ALREADY_PAID", Message: "Facture déjà soldée."}
	ErrInvalidTransition  = &Error{Code: "INVALID_TRANSITION", Message: "Changement de statut non autorisé."}
	ErrPaymentsIncomplete = &Error{Code: "PAYMENTS_INCOMPLETE", Message: "La facture n'est pas entièrement réglée."}
	ErrNotDraft           = &Error{Code: "NOT_DRAFT", Message: "Le document n'est plus modifiable (statut différent de brouillon)."}
	ErrHasPayments        = &Error{Code: "HAS_PAYMENTS", Message: "La facture a déjà des paiements enregistrés."}
	ErrOverpayment        = &Error{Code: "OVERPAYMENT", Message: "Le montant dépasse le reste à payer."}
	ErrNotSent            = &Error{Code: "NOT_SENT", Message: "La facture doit être envoyée avant d'enregistrer un paiement."}
)

func invalid(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HTTPError turns a billing error into the fiber error the API returns.
// Anything else is passed through untouched.
func HTTPError(err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return fiber.NewError(fiber.StatusBadRequest, be.Message)
	}
	return err
}
