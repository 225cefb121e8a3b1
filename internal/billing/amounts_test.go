package billing

import (
	"testing"

	"atelier-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineTotal(t *testing.T) {
	cases := []struct {
		name  string
		price int64
		qty   int64
		dt    models.DiscountType
		dv    int64
		want  int64
	}{
		{"no discount", 1250, 3, models.DiscountNone, 0, 3750},
		{"empty discount type", 1250, 2, "", 0, 2500},
		{"ten percent", 1000, 3, models.DiscountPercent, 10, 2700},
		{"percent rounds half up", 333, 1, models.DiscountPercent, 50, 166},
		{"amount", 5000, 2, models.DiscountAmount, 1500, 8500},
		{"amount capped to gross", 1000, 1, models.DiscountAmount, 5000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LineTotal(tc.price, tc.qty, tc.dt, tc.dv)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLineTotalRejects(t *testing.T) {
	_, err := LineTotal(1000, 0, models.DiscountNone, 0)
	assert.Error(t, err)
	_, err = LineTotal(-1, 1, models.DiscountNone, 0)
	assert.Error(t, err)
	_, err = LineTotal(1000, 1, models.DiscountPercent, 101)
	assert.Error(t, err)
	_, err = LineTotal(1000, 1, "BOGO", 1)
	assert.Error(t, err)
}

func TestDeposit(t *testing.T) {
	deposit, balance, err := Deposit(10000, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), deposit)
	assert.Equal(t, int64(7000), balance)

	deposit, balance, err = Deposit(999, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(500), deposit)
	assert.Equal(t, deposit+balance, int64(999))

	_, _, err = Deposit(1000, 120)
	assert.Error(t, err)
}

func TestPriceLines(t *testing.T) {
	lines, total, err := PriceLines([]LineInput{
		{Label: " Design ", Quantity: 2, UnitPriceCents: 40000},
		{Label: "Hébergement", Quantity: 12, UnitPriceCents: 1500, DiscountType: models.DiscountPercent, DiscountValue: 20},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Design", lines[0].Label)
	assert.Equal(t, models.DiscountNone, lines[0].DiscountType)
	assert.Equal(t, int64(80000), lines[0].TotalCents)
	assert.Equal(t, int64(14400), lines[1].TotalCents)
	assert.Equal(t, 1, lines[1].Position)
	assert.Equal(t, int64(94400), total)

	_, _, err = PriceLines([]LineInput{{Label: "", Quantity: 1}})
	assert.Error(t, err)
}
