package ledger

import (
	"fmt"
	"time"

	"atelier-backend/internal/api"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/database"
	"atelier-backend/internal/export"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type EntryResponse struct {
	ID            uint                    `json:"id"`
	EntryDate     string                  `json:"entry_date"`
	SourceType    models.LedgerSourceType `json:"source_type"`
	SourceID      uint                    `json:"source_id"`
	Label         string                  `json:"label"`
	DebitAccount  string                  `json:"debit_account"`
	CreditAccount string                  `json:"credit_account"`
	AmountCents   int64                   `json:"amount_cents"`
	Currency      string                  `json:"currency"`
}

type AccountBalance struct {
	Account      string `json:"account"`
	DebitCents   int64  `json:"debit_cents"`
	CreditCents  int64  `json:"credit_cents"`
	BalanceCents int64  `json:"balance_cents"`
}

func filteredQuery(c *fiber.Ctx) (*gorm.DB, error) {
	from, to, err := api.QueryRange(c)
	if err != nil {
		return nil, err
	}

	q := database.DB.Model(&models.LedgerEntry{}).Where("business_id = ?", auth.BusinessID(c))
	if !from.IsZero() {
		q = q.Where("entry_date >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("entry_date <= ?", to)
	}
	if st := c.Query("source_type"); st != "" {
		if !models.LedgerSourceType(st).Valid() {
			return nil, fiber.NewError(fiber.StatusBadRequest, "source_type invalide.")
		}
		q = q.Where("source_type = ?", st)
	}
	return q, nil
}

func load(c *fiber.Ctx) ([]models.LedgerEntry, error) {
	q, err := filteredQuery(c)
	if err != nil {
		return nil, err
	}
	var entries []models.LedgerEntry
	if err := q.Order("entry_date ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Impossible de lire le journal.")
	}
	return entries, nil
}

// Balances sums debits and credits per account.
func Balances(entries []models.LedgerEntry) []AccountBalance {
	byAccount := map[string]*AccountBalance{}
	order := []string{}
	get := func(acc string) *AccountBalance {
		b, ok := byAccount[acc]
		if !ok {
			b = &AccountBalance{Account: acc}
			byAccount[acc] = b
			order = append(order, acc)
		}
		return b
	}
	for _, e := range entries {
		get(e.DebitAccount).DebitCents += e.AmountCents
		get(e.CreditAccount).CreditCents += e.AmountCents
	}

	out := make([]AccountBalance, 0, len(order))
	for _, acc := range order {
		b := byAccount[acc]
		b.BalanceCents = b.DebitCents - b.CreditCents
		out = append(out, *b)
	}
	return out
}

// GET /api/ledger?from=2026-01-01&to=2026-01-31&source_type=INVOICE_CASH_SALE
func ListEntriesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries, err := load(c)
		if err != nil {
			return err
		}

		resp := make([]EntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, EntryResponse{
				ID:            e.ID,
				EntryDate:     e.EntryDate.Format(api.DateLayout),
				SourceType:    e.SourceType,
				SourceID:      e.SourceID,
				Label:         e.Label,
				DebitAccount:  e.DebitAccount,
				CreditAccount: e.CreditAccount,
				AmountCents:   e.AmountCents,
				Currency:      e.Currency,
			})
		}

		return c.JSON(fiber.Map{
			"entries":  resp,
			"balances": Balances(entries),
		})
	}
}

// GET /api/ledger/export?from=&to=
func ExportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries, err := load(c)
		if err != nil {
			return err
		}

		journal := export.Sheet{
			Name:         "Journal",
			Headers:      []string{"Date", "Source", "Référence", "Libellé", "Débit", "Crédit", "Montant", "Devise"},
			CentsColumns: []int{6},
		}
		for _, e := range entries {
			journal.Rows = append(journal.Rows, []any{
				e.EntryDate, string(e.SourceType), int64(e.SourceID), e.Label,
				e.DebitAccount, e.CreditAccount, e.AmountCents, e.Currency,
			})
		}

		balances := export.Sheet{
			Name:         "Balance",
			Headers:      []string{"Compte", "Débit", "Crédit", "Solde"},
			CentsColumns: []int{1, 2, 3},
		}
		for _, b := range Balances(entries) {
			balances.Rows = append(balances.Rows, []any{b.Account, b.DebitCents, b.CreditCents, b.BalanceCents})
		}

		data, err := export.Workbook(journal, balances)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Export impossible.")
		}
		return export.Send(c, fmt.Sprintf("journal-%s.xlsx", time.Now().Format("20060102")), data)
	}
}
