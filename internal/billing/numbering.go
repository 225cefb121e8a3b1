package billing

import (
	"fmt"
	"time"

	"atelier-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var numberPrefix = map[models.DocumentKind]string{
	models.KindInvoice: "FAC",
	models.KindQuote:   "DEV",
}

func FormatNumber(kind models.DocumentKind, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", numberPrefix[kind], year, seq)
}

// NextNumber allocates the next sequential number for a business, kind and
// year. Must run inside the caller's transaction: the counter row stays
// locked until it commits.
func NextNumber(tx *gorm.DB, businessID uint, kind models.DocumentKind, at time.Time) (string, error) {
	if _, ok := numberPrefix[kind]; !ok {
		return "", fmt.Errorf("unknown document kind %q", kind)
	}
	year := at.Year()

	seed := models.DocumentCounter{BusinessID: businessID, Kind: kind, Year: year}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return "", fmt.Errorf("init counter: %w", err)
	}

	var counter models.DocumentCounter
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND kind = ? AND year = ?", businessID, kind, year).
		First(&counter).Error; err != nil {
		return "", fmt.Errorf("lock counter: %w", err)
	}

	counter.LastValue++
	if err := tx.Model(&counter).Update("last_value", counter.LastValue).Error; err != nil {
		return "", fmt.Errorf("bump counter: %w", err)
	}

	return FormatNumber(kind, year, counter.LastValue), nil
}
