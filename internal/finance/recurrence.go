package finance

import (
	"sort"
	"time"

	"atelier-backend/internal/models"
)

// maxOccurrences bounds the expansion of a single row.
const maxOccurrences = 1000

type Occurrence struct {
	FinanceID   uint               `json:"finance_id"`
	Type        models.FinanceType `json:"type"`
	AmountCents int64              `json:"amount_cents"`
	Category    string             `json:"category"`
	Label       string             `json:"label"`
	ProjectID   *uint              `json:"project_id"`
	Date        string             `json:"date"`
	Recurring   bool               `json:"recurring"`
	SourceType  *string            `json:"source_type"`

	at time.Time
}

// addMonths moves t by n months, clamping to the last day of the target
// month so that a row dated the 31st stays at month end.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// nth returns the date of the n-th occurrence, counting the row date as 0.
func nth(start time.Time, r models.Recurrence, n int) time.Time {
	switch r {
	case models.RecurrenceWeekly:
		return start.AddDate(0, 0, 7*n)
	case models.RecurrenceMonthly:
		return addMonths(start, n)
	case models.RecurrenceQuarterly:
		return addMonths(start, 3*n)
	case models.RecurrenceYearly:
		return addMonths(start, 12*n)
	}
	return start
}

func occurrence(f *models.Finance, at time.Time) Occurrence {
	return Occurrence{
		FinanceID:   f.ID,
		Type:        f.Type,
		AmountCents: f.AmountCents,
		Category:    f.Category,
		Label:       f.Label,
		ProjectID:   f.ProjectID,
		Date:        at.Format("2006-01-02"),
		Recurring:   f.Recurrence != models.RecurrenceNone,
		SourceType:  f.SourceType,
		at:          at,
	}
}

// Expand lists the dates of a row that fall inside [from, to]. A zero bound
// is open. Recurring rows without an end and without a window upper bound
// only yield their first date.
func Expand(f *models.Finance, from, to time.Time) []Occurrence {
	inWindow := func(t time.Time) bool {
		if !from.IsZero() && t.Before(from) {
			return false
		}
		if !to.IsZero() && t.After(to) {
			return false
		}
		return true
	}

	if f.Recurrence == models.RecurrenceNone || !f.Recurrence.Valid() {
		if inWindow(f.Date) {
			return []Occurrence{occurrence(f, f.Date)}
		}
		return nil
	}

	end := to
	if f.RecurrenceEndAt != nil && (end.IsZero() || f.RecurrenceEndAt.Before(end)) {
		end = *f.RecurrenceEndAt
	}
	if end.IsZero() {
		if inWindow(f.Date) {
			return []Occurrence{occurrence(f, f.Date)}
		}
		return nil
	}

	var out []Occurrence
	for n := 0; n < maxOccurrences; n++ {
		at := nth(f.Date, f.Recurrence, n)
		if at.After(end) {
			break
		}
		if inWindow(at) {
			out = append(out, occurrence(f, at))
		}
	}
	return out
}

// ExpandAll expands every row and returns the occurrences ordered by date.
func ExpandAll(rows []models.Finance, from, to time.Time) []Occurrence {
	var out []Occurrence
	for i := range rows {
		out = append(out, Expand(&rows[i], from, to)...)
	}
	sortOccurrences(out)
	return out
}

func sortOccurrences(out []Occurrence) {
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].at.Equal(out[j].at) {
			return out[i].at.Before(out[j].at)
		}
		return out[i].FinanceID < out[j].FinanceID
	})
}
