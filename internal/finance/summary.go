package finance

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"atelier-backend/internal/api"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/cache"
	"atelier-backend/internal/database"
	"atelier-backend/internal/export"
	"atelier-backend/internal/logger"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CategoryTotal struct {
	Type        models.FinanceType `json:"type"`
	Category    string             `json:"category"`
	AmountCents int64              `json:"amount_cents"`
}

type Summary struct {
	Year         int             `json:"year"`
	Month        int             `json:"month"`
	IncomeCents  int64           `json:"income_cents"`
	ExpenseCents int64           `json:"expense_cents"`
	NetCents     int64           `json:"net_cents"`
	Categories   []CategoryTotal `json:"categories"`
}

// MonthBounds returns the first and last instant of a calendar month.
func MonthBounds(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// Occurrences loads the rows of a business that can fall inside the window
// and expands them.
func Occurrences(db *gorm.DB, businessID uint, from, to time.Time) ([]Occurrence, error) {
	q := db.Where("business_id = ?", businessID)
	if !to.IsZero() {
		q = q.Where("date <= ?", to)
	}
	var rows []models.Finance
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return ExpandAll(rows, from, to), nil
}

// Summarize totals occurrences by type and by (type, category).
func Summarize(occ []Occurrence) Summary {
	var s Summary
	byCat := map[string]*CategoryTotal{}
	for _, o := range occ {
		switch o.Type {
		case models.FinanceIncome:
			s.IncomeCents += o.AmountCents
		case models.FinanceExpense:
			s.ExpenseCents += o.AmountCents
		}
		k := string(o.Type) + "|" + o.Category
		ct, ok := byCat[k]
		if !ok {
			ct = &CategoryTotal{Type: o.Type, Category: o.Category}
			byCat[k] = ct
		}
		ct.AmountCents += o.AmountCents
	}
	s.NetCents = s.IncomeCents - s.ExpenseCents

	s.Categories = make([]CategoryTotal, 0, len(byCat))
	for _, ct := range byCat {
		s.Categories = append(s.Categories, *ct)
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		a, b := s.Categories[i], s.Categories[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.AmountCents != b.AmountCents {
			return a.AmountCents > b.AmountCents
		}
		return a.Category < b.Category
	})
	return s
}

func yearMonth(c *fiber.Ctx) (int, int, error) {
	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if raw := c.Query("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 2000 || v > 2100 {
			return 0, 0, fiber.NewError(fiber.StatusBadRequest, "Année invalide.")
		}
		year = v
	}
	if raw := c.Query("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 12 {
			return 0, 0, fiber.NewError(fiber.StatusBadRequest, "Mois invalide (1-12).")
		}
		month = v
	}
	return year, month, nil
}

// GET /api/finances/summary?year=2026&month=3
func SummaryHandler(store cache.Store, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		year, month, err := yearMonth(c)
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)
		key := cache.Key(businessID, "finance", "summary", fmt.Sprintf("%04d-%02d", year, month))

		var cached Summary
		if hit, err := store.GetJSON(c.UserContext(), key, &cached); err != nil {
			logger.FromCtx(c).Warn("finance summary cache read failed", zap.Error(err))
		} else if hit {
			return c.JSON(cached)
		}

		from, to := MonthBounds(year, month)
		occ, err := Occurrences(database.DB, businessID, from, to)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de calculer le résumé.")
		}
		s := Summarize(occ)
		s.Year, s.Month = year, month

		if err := store.SetJSON(c.UserContext(), key, s, ttl); err != nil {
			logger.FromCtx(c).Warn("finance summary cache write failed", zap.Error(err))
		}
		return c.JSON(s)
	}
}

// GET /api/finances/export?from=&to=
func ExportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, to, err := api.QueryRange(c)
		if err != nil {
			return err
		}
		occ, err := Occurrences(database.DB, auth.BusinessID(c), from, to)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible d'exporter les écritures.")
		}

		entries := export.Sheet{
			Name:         "Écritures",
			Headers:      []string{"Date", "Type", "Catégorie", "Libellé", "Montant", "Récurrente", "Origine"},
			CentsColumns: []int{4},
		}
		for _, o := range occ {
			origin := ""
			if o.SourceType != nil {
				origin = *o.SourceType
			}
			recurring := "non"
			if o.Recurring {
				recurring = "oui"
			}
			entries.Rows = append(entries.Rows, []any{o.Date, string(o.Type), o.Category, o.Label, o.AmountCents, recurring, origin})
		}

		s := Summarize(occ)
		totals := export.Sheet{
			Name:         "Synthèse",
			Headers:      []string{"Type", "Catégorie", "Montant"},
			CentsColumns: []int{2},
		}
		for _, ct := range s.Categories {
			totals.Rows = append(totals.Rows, []any{string(ct.Type), ct.Category, ct.AmountCents})
		}
		totals.Rows = append(totals.Rows,
			[]any{"", "Recettes", s.IncomeCents},
			[]any{"", "Dépenses", s.ExpenseCents},
			[]any{"", "Résultat", s.NetCents},
		)

		data, err := export.Workbook(entries, totals)
		if err != nil {
			return err
		}
		return export.Send(c, fmt.Sprintf("finances-%s.xlsx", time.Now().Format("20060102")), data)
	}
}
