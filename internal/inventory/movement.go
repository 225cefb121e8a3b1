package inventory

import (
	"errors"
	"fmt"

	"atelier-backend/internal/ledger"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const stockCategory = "Stock"

// ValidateQuantity applies the per-type sign rules.
func ValidateQuantity(t models.MovementType, qty int64) error {
	switch t {
	case models.MovementIn, models.MovementOut:
		if qty <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "La quantité doit être supérieure à 0.")
		}
	case models.MovementAdjust:
		if qty == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Un ajustement ne peut pas être nul.")
		}
	default:
		return fiber.NewError(fiber.StatusBadRequest, "Type de mouvement invalide (IN, OUT ou ADJUST).")
	}
	return nil
}

// ensureAvailable rejects a change that would leave less than zero
// available units. delta is the signed change to on-hand stock. The product
// row stays locked until tx ends so concurrent withdrawals queue up.
func ensureAvailable(tx *gorm.DB, businessID, productID uint, delta int64) error {
	if delta >= 0 {
		return nil
	}
	if err := lockProduct(tx, businessID, productID); err != nil {
		return err
	}
	level, err := Level(tx, businessID, productID)
	if err != nil {
		return err
	}
	if level.Available+delta < 0 {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("Stock insuffisant : %d disponible(s).", level.Available))
	}
	return nil
}

func lockProduct(tx *gorm.DB, businessID, productID uint) error {
	var p models.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ? AND business_id = ?", productID, businessID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Produit introuvable.")
	}
	return err
}

func businessCurrency(tx *gorm.DB, businessID uint) string {
	var b models.Business
	if err := tx.Select("id", "currency").First(&b, businessID).Error; err != nil || b.Currency == "" {
		return "EUR"
	}
	return b.Currency
}

// syncLinked keeps the finance row and ledger entry of a movement equal to
// unit cost x |quantity|, creating or removing them as the cost appears or
// is cleared. Only IN movements carry a finance expense.
func syncLinked(tx *gorm.DB, mv *models.InventoryMovement, productName string) error {
	amount := ledger.MovementAmount(mv)

	if mv.UnitCostCents != nil && mv.Type == models.MovementIn {
		if err := upsertFinance(tx, mv, amount, productName); err != nil {
			return err
		}
	} else if mv.FinanceID != nil {
		if err := tx.Unscoped().Delete(&models.Finance{}, *mv.FinanceID).Error; err != nil {
			return err
		}
		mv.FinanceID = nil
	}

	if mv.UnitCostCents != nil {
		entry, err := ledger.UpsertInventoryMovement(tx, mv, businessCurrency(tx, mv.BusinessID))
		if err != nil {
			return err
		}
		mv.LedgerEntryID = &entry.ID
	} else if mv.LedgerEntryID != nil {
		if err := ledger.DeleteBySource(tx, mv.BusinessID, models.SourceInventoryMovement, mv.ID); err != nil {
			return err
		}
		mv.LedgerEntryID = nil
	}

	return tx.Model(mv).Select("finance_id", "ledger_entry_id").Updates(mv).Error
}

func upsertFinance(tx *gorm.DB, mv *models.InventoryMovement, amount int64, productName string) error {
	label := fmt.Sprintf("Achat stock : %s (x%d)", productName, mv.Quantity)

	if mv.FinanceID != nil {
		res := tx.Model(&models.Finance{}).Where("id = ?", *mv.FinanceID).Updates(map[string]any{
			"amount_cents": amount,
			"date":         mv.Date,
			"label":        label,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
	}

	src := models.FinanceSourceMovement
	id := mv.ID
	fin := models.Finance{
		BusinessID:  mv.BusinessID,
		Type:        models.FinanceExpense,
		AmountCents: amount,
		Category:    stockCategory,
		Label:       label,
		Date:        mv.Date,
		Recurrence:  models.RecurrenceNone,
		SourceType:  &src,
		SourceID:    &id,
	}
	if err := tx.Create(&fin).Error; err != nil {
		return err
	}
	mv.FinanceID = &fin.ID
	return nil
}

// removeLinked deletes the finance row and ledger entry of a movement.
func removeLinked(tx *gorm.DB, mv *models.InventoryMovement) error {
	if mv.FinanceID != nil {
		if err := tx.Unscoped().Delete(&models.Finance{}, *mv.FinanceID).Error; err != nil {
			return err
		}
	}
	return ledger.DeleteBySource(tx, mv.BusinessID, models.SourceInventoryMovement, mv.ID)
}
