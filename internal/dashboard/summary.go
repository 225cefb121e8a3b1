package dashboard

import (
	"time"

	"atelier-backend/internal/auth"
	"atelier-backend/internal/billing"
	"atelier-backend/internal/cache"
	"atelier-backend/internal/database"
	"atelier-backend/internal/finance"
	"atelier-backend/internal/logger"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Summary struct {
	OutstandingCents      int64  `json:"outstanding_cents"`
	OverdueInvoices       int64  `json:"overdue_invoices"`
	PaidThisMonthCents    int64  `json:"paid_this_month_cents"`
	IncomeThisMonthCents  int64  `json:"income_this_month_cents"`
	ExpenseThisMonthCents int64  `json:"expense_this_month_cents"`
	DraftQuotes           int64  `json:"draft_quotes"`
	SentInvoices          int64  `json:"sent_invoices"`
	ActiveProjects        int64  `json:"active_projects"`
	Month                 string `json:"month"`
}

// Compute builds the dashboard figures for the month holding now.
func Compute(db *gorm.DB, businessID uint, now time.Time) (Summary, error) {
	s := Summary{Month: now.Format("2006-01")}

	var sent []models.Invoice
	if err := db.Select("id", "total_cents", "due_at").
		Where("business_id = ? AND status = ?", businessID, models.InvoiceSent).
		Find(&sent).Error; err != nil {
		return s, err
	}
	ids := make([]uint, 0, len(sent))
	for _, inv := range sent {
		ids = append(ids, inv.ID)
	}
	paid, err := billing.PaidAmounts(db, ids)
	if err != nil {
		return s, err
	}
	for _, inv := range sent {
		remaining := billing.SummarizeAmounts(inv.TotalCents, paid[inv.ID]).RemainingCents
		s.OutstandingCents += remaining
		if remaining > 0 && inv.DueAt != nil && inv.DueAt.Before(now) {
			s.OverdueInvoices++
		}
	}
	s.SentInvoices = int64(len(sent))

	from, to := finance.MonthBounds(now.Year(), int(now.Month()))
	row := db.Model(&models.Payment{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("business_id = ? AND paid_at >= ? AND paid_at <= ? AND deleted_at IS NULL", businessID, from, to).
		Row()
	if err := row.Scan(&s.PaidThisMonthCents); err != nil {
		return s, err
	}

	occ, err := finance.Occurrences(db, businessID, from, to)
	if err != nil {
		return s, err
	}
	totals := finance.Summarize(occ)
	s.IncomeThisMonthCents = totals.IncomeCents
	s.ExpenseThisMonthCents = totals.ExpenseCents

	if err := db.Model(&models.Quote{}).
		Where("business_id = ? AND status = ?", businessID, models.QuoteDraft).
		Count(&s.DraftQuotes).Error; err != nil {
		return s, err
	}
	if err := db.Model(&models.Project{}).
		Where("business_id = ? AND status = ?", businessID, models.ProjectActive).
		Count(&s.ActiveProjects).Error; err != nil {
		return s, err
	}
	return s, nil
}

// GET /api/dashboard/summary
func SummaryHandler(store cache.Store, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		businessID := auth.BusinessID(c)
		now := time.Now()
		key := cache.Key(businessID, "dashboard", "summary", now.Format("2006-01"))

		var s Summary
		if hit, err := store.GetJSON(c.UserContext(), key, &s); err != nil {
			logger.FromCtx(c).Warn("dashboard cache read failed", zap.Error(err))
		} else if hit {
			return c.JSON(s)
		}

		s, err := Compute(database.DB, businessID, now)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de calculer le tableau de bord.")
		}
		if err := store.SetJSON(c.UserContext(), key, s, ttl); err != nil {
			logger.FromCtx(c).Warn("dashboard cache write failed", zap.Error(err))
		}
		return c.JSON(s)
	}
}
