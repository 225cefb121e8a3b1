package finance

import (
	"testing"
	"time"

	"atelier-backend/internal/models"
	"atelier-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dates(occ []Occurrence) []string {
	out := make([]string, 0, len(occ))
	for _, o := range occ {
		out = append(out, o.Date)
	}
	return out
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	assert.Equal(t, day(2026, 2, 28), addMonths(day(2026, 1, 31), 1))
	assert.Equal(t, day(2026, 3, 31), addMonths(day(2026, 1, 31), 2))
	assert.Equal(t, day(2029, 2, 28), addMonths(day(2028, 2, 29), 12))
	assert.Equal(t, day(2027, 1, 15), addMonths(day(2026, 10, 15), 3))
}

func TestExpandMonthly(t *testing.T) {
	end := day(2026, 5, 31)
	f := models.Finance{
		ID:              1,
		Type:            models.FinanceExpense,
		AmountCents:     4500,
		Category:        "Loyer",
		Date:            day(2026, 1, 31),
		Recurrence:      models.RecurrenceMonthly,
		RecurrenceEndAt: &end,
	}

	occ := Expand(&f, day(2026, 2, 1), day(2026, 12, 31))
	assert.Equal(t, []string{"2026-02-28", "2026-03-31", "2026-04-30", "2026-05-31"}, dates(occ))
	for _, o := range occ {
		assert.True(t, o.Recurring)
		assert.Equal(t, int64(4500), o.AmountCents)
	}
}

func TestExpandWeeklyAndQuarterly(t *testing.T) {
	weekly := models.Finance{ID: 1, Date: day(2026, 3, 2), Recurrence: models.RecurrenceWeekly}
	assert.Equal(t, []string{"2026-03-02", "2026-03-09", "2026-03-16", "2026-03-23", "2026-03-30"},
		dates(Expand(&weekly, day(2026, 3, 1), day(2026, 3, 31))))

	quarterly := models.Finance{ID: 2, Date: day(2025, 11, 15), Recurrence: models.RecurrenceQuarterly}
	assert.Equal(t, []string{"2026-02-15", "2026-05-15", "2026-08-15", "2026-11-15"},
		dates(Expand(&quarterly, day(2026, 1, 1), day(2026, 12, 31))))

	yearly := models.Finance{ID: 3, Date: day(2024, 6, 1), Recurrence: models.RecurrenceYearly}
	assert.Equal(t, []string{"2026-06-01"}, dates(Expand(&yearly, day(2026, 1, 1), day(2026, 12, 31))))
}

func TestExpandOneOffAndOpenWindow(t *testing.T) {
	once := models.Finance{ID: 1, Date: day(2026, 4, 10), Recurrence: models.RecurrenceNone}
	assert.Len(t, Expand(&once, day(2026, 4, 1), day(2026, 4, 30)), 1)
	assert.Empty(t, Expand(&once, day(2026, 5, 1), day(2026, 5, 31)))

	// no upper bound at all: only the row itself
	open := models.Finance{ID: 2, Date: day(2026, 4, 10), Recurrence: models.RecurrenceMonthly}
	assert.Equal(t, []string{"2026-04-10"}, dates(Expand(&open, time.Time{}, time.Time{})))
}

func TestExpandAllSortsByDate(t *testing.T) {
	rows := []models.Finance{
		{ID: 1, Date: day(2026, 3, 20), Recurrence: models.RecurrenceNone},
		{ID: 2, Date: day(2026, 3, 5), Recurrence: models.RecurrenceWeekly},
	}
	occ := ExpandAll(rows, day(2026, 3, 1), day(2026, 3, 31))
	assert.Equal(t, []string{"2026-03-05", "2026-03-12", "2026-03-19", "2026-03-20", "2026-03-26"}, dates(occ))
}

func TestSummarize(t *testing.T) {
	occ := []Occurrence{
		{Type: models.FinanceIncome, Category: "Ventes", AmountCents: 100000},
		{Type: models.FinanceExpense, Category: "Loyer", AmountCents: 45000},
		{Type: models.FinanceExpense, Category: "Stock", AmountCents: 12000},
		{Type: models.FinanceExpense, Category: "Loyer", AmountCents: 45000},
	}
	s := Summarize(occ)
	assert.Equal(t, int64(100000), s.IncomeCents)
	assert.Equal(t, int64(102000), s.ExpenseCents)
	assert.Equal(t, int64(-2000), s.NetCents)
	require.Len(t, s.Categories, 3)
	assert.Equal(t, CategoryTotal{Type: models.FinanceExpense, Category: "Loyer", AmountCents: 90000}, s.Categories[0])
	assert.Equal(t, models.FinanceIncome, s.Categories[2].Type)
}

func TestOccurrencesIncludesEarlierRecurringRows(t *testing.T) {
	f := testutil.NewFixture(t)
	rows := []models.Finance{
		{BusinessID: f.Business.ID, Type: models.FinanceExpense, AmountCents: 3000, Category: "Logiciels", Date: day(2025, 12, 3), Recurrence: models.RecurrenceMonthly},
		{BusinessID: f.Business.ID, Type: models.FinanceIncome, AmountCents: 50000, Category: "Ventes", Date: day(2026, 3, 18), Recurrence: models.RecurrenceNone},
		{BusinessID: f.Business.ID, Type: models.FinanceIncome, AmountCents: 70000, Category: "Ventes", Date: day(2026, 4, 2), Recurrence: models.RecurrenceNone},
	}
	require.NoError(t, f.DB.Create(&rows).Error)

	from, to := MonthBounds(2026, 3)
	occ, err := Occurrences(f.DB, f.Business.ID, from, to)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-03", "2026-03-18"}, dates(occ))

	s := Summarize(occ)
	assert.Equal(t, int64(50000), s.IncomeCents)
	assert.Equal(t, int64(3000), s.ExpenseCents)
}
