package billing

import (
	"strings"

	"atelier-backend/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// percentOf returns value * percent / 100 rounded half-up to the cent.
func percentOf(value, percent int64) int64 {
	return decimal.NewFromInt(value).
		Mul(decimal.NewFromInt(percent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// LineTotal is the post-discount total of one line.
func LineTotal(unitPrice, qty int64, discountType models.DiscountType, discountValue int64) (int64, error) {
	if qty <= 0 {
		return 0, invalid("INVALID_LINE", "La quantité doit être supérieure à 0.")
	}
	if unitPrice < 0 {
		return 0, invalid("INVALID_LINE", "Le prix unitaire ne peut pas être négatif.")
	}

	gross := unitPrice * qty

	switch discountType {
	case models.DiscountNone, "":
		return gross, nil
	case models.DiscountPercent:
		if discountValue < 0 || discountValue > 100 {
			return 0, invalid("INVALID_LINE", "La remise en pourcentage doit être comprise entre 0 et 100.")
		}
		return gross - percentOf(gross, discountValue), nil
	case models.DiscountAmount:
		if discountValue < 0 {
			return 0, invalid("INVALID_LINE", "La remise ne peut pas être négative.")
		}
		if discountValue > gross {
			discountValue = gross
		}
		return gross - discountValue, nil
	default:
		return 0, invalid("INVALID_LINE", "Type de remise inconnu.")
	}
}

// Deposit splits a total into the upfront deposit and the balance.
func Deposit(total int64, percent int) (deposit, balance int64, err error) {
	if percent < 0 || percent > 100 {
		return 0, 0, invalid("INVALID_DEPOSIT", "Le pourcentage d'acompte doit être compris entre 0 et 100.")
	}
	deposit = percentOf(total, int64(percent))
	return deposit, total - deposit, nil
}

type LineInput struct {
	ProductID      *uint               `json:"product_id"`
	Label          string              `json:"label"`
	Description    string              `json:"description"`
	Quantity       int64               `json:"quantity"`
	UnitPriceCents int64               `json:"unit_price_cents"`
	DiscountType   models.DiscountType `json:"discount_type"`
	DiscountValue  int64               `json:"discount_value"`
}

type PricedLine struct {
	LineInput
	TotalCents int64
	Position   int
}

// PriceLines validates and prices a full set of lines, returning them with
// the document total.
func PriceLines(in []LineInput) ([]PricedLine, int64, error) {
	out := make([]PricedLine, 0, len(in))
	var total int64
	for i, l := range in {
		l.Label = strings.TrimSpace(l.Label)
		if l.Label == "" {
			return nil, 0, invalid("INVALID_LINE", "Ligne %d : le libellé est obligatoire.", i+1)
		}
		if l.DiscountType == "" {
			l.DiscountType = models.DiscountNone
		}
		lt, err := LineTotal(l.UnitPriceCents, l.Quantity, l.DiscountType, l.DiscountValue)
		if err != nil {
			return nil, 0, invalid("INVALID_LINE", "Ligne %d : %s", i+1, err.Error())
		}
		total += lt
		out = append(out, PricedLine{LineInput: l, TotalCents: lt, Position: i})
	}
	return out, total, nil
}

func QuoteItems(quoteID uint, lines []PricedLine) []models.QuoteItem {
	items := make([]models.QuoteItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.QuoteItem{
			QuoteID:        quoteID,
			ProductID:      l.ProductID,
			Label:          l.Label,
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			DiscountType:   l.DiscountType,
			DiscountValue:  l.DiscountValue,
			TotalCents:     l.TotalCents,
			Position:       l.Position,
		})
	}
	return items
}

func InvoiceItems(invoiceID uint, lines []PricedLine) []models.InvoiceItem {
	items := make([]models.InvoiceItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.InvoiceItem{
			InvoiceID:      invoiceID,
			ProductID:      l.ProductID,
			Label:          l.Label,
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			DiscountType:   l.DiscountType,
			DiscountValue:  l.DiscountValue,
			TotalCents:     l.TotalCents,
			Position:       l.Position,
		})
	}
	return items
}
