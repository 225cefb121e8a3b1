package dashboard

import (
	"testing"
	"time"

	"atelier-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBucketStart(t *testing.T) {
	// 2026-10-15 is a Thursday
	now := at("2026-10-15 17:30")
	assert.Equal(t, at("2026-10-15 00:00"), BucketStart(now, "daily"))
	assert.Equal(t, at("2026-10-12 00:00"), BucketStart(now, "weekly"))
	assert.Equal(t, at("2026-10-01 00:00"), BucketStart(now, "monthly"))

	sunday := at("2026-10-18 09:00")
	assert.Equal(t, at("2026-10-12 00:00"), BucketStart(sunday, "weekly"))
}

func TestBuckets(t *testing.T) {
	buckets, end := Buckets("monthly", 3, at("2026-01-20 10:00"))
	require.Len(t, buckets, 3)
	assert.Equal(t, at("2025-11-01 00:00"), buckets[0])
	assert.Equal(t, at("2026-01-01 00:00"), buckets[2])
	assert.Equal(t, at("2026-02-01 00:00"), end)

	buckets, end = Buckets("daily", 7, at("2026-10-15 08:00"))
	require.Len(t, buckets, 7)
	assert.Equal(t, at("2026-10-09 00:00"), buckets[0])
	assert.Equal(t, at("2026-10-16 00:00"), end)
}

func TestChart(t *testing.T) {
	buckets, end := Buckets("weekly", 2, at("2026-10-15 08:00"))
	payments := []models.Payment{
		{AmountCents: 1000, Method: models.PaymentCard, PaidAt: at("2026-10-05 10:00")},
		{AmountCents: 2500, Method: models.PaymentTransfer, PaidAt: at("2026-10-11 23:00")},
		{AmountCents: 4000, Method: models.PaymentCard, PaidAt: at("2026-10-14 12:00")},
		// before the first bucket
		{AmountCents: 9999, Method: models.PaymentCash, PaidAt: at("2026-09-30 12:00")},
	}

	res := Chart("weekly", buckets, end, payments)
	assert.Equal(t, "2026-10-05", res.From)
	assert.Equal(t, "2026-10-18", res.To)
	require.Len(t, res.Points, 2)

	assert.Equal(t, "2026-10-05", res.Points[0].Label)
	assert.Equal(t, int64(3500), res.Points[0].TotalCents)
	assert.Equal(t, int64(2500), res.Points[0].ByMethod[models.PaymentTransfer])

	assert.Equal(t, int64(4000), res.Points[1].TotalCents)
	assert.Equal(t, int64(7500), res.TotalCents)
	assert.Equal(t, int64(5000), res.ByMethod[models.PaymentCard])
	assert.Zero(t, res.ByMethod[models.PaymentCash])
}
