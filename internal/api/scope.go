package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// FindScoped loads a row by id inside a business. A miss, including a row
// of another business, is a 404 with the given message.
func FindScoped[T any](db *gorm.DB, businessID, id uint, notFound string) (*T, error) {
	var out T
	err := db.Where("id = ? AND business_id = ?", id, businessID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, notFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Exists reports whether a business scoped row exists.
func Exists[T any](db *gorm.DB, businessID, id uint) (bool, error) {
	var n int64
	var model T
	if err := db.Model(&model).Where("id = ? AND business_id = ?", id, businessID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
