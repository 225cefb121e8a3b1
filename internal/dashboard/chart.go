package dashboard

import (
	"strconv"
	"time"

	"atelier-backend/internal/auth"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ChartPoint struct {
	Label      string                         `json:"label"` // bucket start date
	ByMethod   map[models.PaymentMethod]int64 `json:"by_method"`
	TotalCents int64                          `json:"total_cents"`
}

type RevenueChartResponse struct {
	Period     string                         `json:"period"` // daily | weekly | monthly
	From       string                         `json:"from"`
	To         string                         `json:"to"`
	Points     []ChartPoint                   `json:"points"`
	ByMethod   map[models.PaymentMethod]int64 `json:"by_method"`
	TotalCents int64                          `json:"total_cents"`
}

var defaultCounts = map[string]int{"daily": 7, "weekly": 8, "monthly": 12}

// BucketStart truncates t to the start of its day, ISO week (Monday) or
// month.
func BucketStart(t time.Time, period string) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case "weekly":
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case "monthly":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	return day
}

func step(t time.Time, period string, n int) time.Time {
	switch period {
	case "weekly":
		return t.AddDate(0, 0, 7*n)
	case "monthly":
		return t.AddDate(0, n, 0)
	}
	return t.AddDate(0, 0, n)
}

// Buckets returns the count bucket starts ending with the one holding now,
// and the exclusive end of the last bucket.
func Buckets(period string, count int, now time.Time) ([]time.Time, time.Time) {
	last := BucketStart(now, period)
	first := step(last, period, -(count - 1))
	out := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, step(first, period, i))
	}
	return out, step(last, period, 1)
}

// Chart sums payments into the buckets. Payments outside the range are
// ignored.
func Chart(period string, buckets []time.Time, end time.Time, payments []models.Payment) RevenueChartResponse {
	resp := RevenueChartResponse{
		Period:   period,
		Points:   make([]ChartPoint, 0, len(buckets)),
		ByMethod: map[models.PaymentMethod]int64{},
	}
	index := make(map[time.Time]int, len(buckets))
	for i, b := range buckets {
		index[b] = i
		resp.Points = append(resp.Points, ChartPoint{
			Label:    b.Format("2006-01-02"),
			ByMethod: map[models.PaymentMethod]int64{},
		})
	}
	if len(buckets) > 0 {
		resp.From = buckets[0].Format("2006-01-02")
		resp.To = end.AddDate(0, 0, -1).Format("2006-01-02")
	}

	loc := time.Local
	if len(buckets) > 0 {
		loc = buckets[0].Location()
	}
	for _, p := range payments {
		i, ok := index[BucketStart(p.PaidAt.In(loc), period)]
		if !ok {
			continue
		}
		resp.Points[i].ByMethod[p.Method] += p.AmountCents
		resp.Points[i].TotalCents += p.AmountCents
		resp.ByMethod[p.Method] += p.AmountCents
		resp.TotalCents += p.AmountCents
	}
	return resp
}

// GET /api/dashboard/revenue-chart?period=daily&count=7
func RevenueChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		period := c.Query("period", "daily")
		count, ok := defaultCounts[period]
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "Période invalide (daily, weekly ou monthly).")
		}
		if raw := c.Query("count"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 || v > 366 {
				return fiber.NewError(fiber.StatusBadRequest, "Paramètre count invalide.")
			}
			count = v
		}

		buckets, end := Buckets(period, count, time.Now())

		var payments []models.Payment
		if err := database.DB.
			Where("business_id = ? AND paid_at >= ? AND paid_at < ?", auth.BusinessID(c), buckets[0], end).
			Find(&payments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de calculer le graphique.")
		}

		return c.JSON(Chart(period, buckets, end, payments))
	}
}
