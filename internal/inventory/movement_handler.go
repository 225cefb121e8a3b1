package inventory

import (
	"fmt"
	"strings"
	"time"

	"atelier-backend/internal/api"
	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/cache"
	"atelier-backend/internal/database"
	"atelier-backend/internal/ledger"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateMovementRequest struct {
	ProductID     uint   `json:"product_id"`
	Type          string `json:"type"`
	Quantity      int64  `json:"quantity"`
	UnitCostCents *int64 `json:"unit_cost_cents"`
	Date          string `json:"date"`
	Note          string `json:"note"`
}

type UpdateMovementRequest struct {
	Quantity      *int64              `json:"quantity"`
	UnitCostCents api.Optional[int64] `json:"unit_cost_cents"`
	Date          *string             `json:"date"`
	Note          *string             `json:"note"`
}

type MovementResponse struct {
	ID            uint                `json:"id"`
	ProductID     uint                `json:"product_id"`
	ProductName   string              `json:"product_name"`
	Type          models.MovementType `json:"type"`
	Quantity      int64               `json:"quantity"`
	UnitCostCents *int64              `json:"unit_cost_cents"`
	AmountCents   int64               `json:"amount_cents"`
	Date          string              `json:"date"`
	Note          string              `json:"note"`
	InvoiceID     *uint               `json:"invoice_id"`
	FinanceID     *uint               `json:"finance_id"`
	LedgerEntryID *uint               `json:"ledger_entry_id"`
}

func toMovementResponse(mv *models.InventoryMovement, productName string) MovementResponse {
	return MovementResponse{
		ID:            mv.ID,
		ProductID:     mv.ProductID,
		ProductName:   productName,
		Type:          mv.Type,
		Quantity:      mv.Quantity,
		UnitCostCents: mv.UnitCostCents,
		AmountCents:   ledger.MovementAmount(mv),
		Date:          mv.Date.Format(api.DateLayout),
		Note:          mv.Note,
		InvoiceID:     mv.InvoiceID,
		FinanceID:     mv.FinanceID,
		LedgerEntryID: mv.LedgerEntryID,
	}
}

func validUnitCost(cost *int64) error {
	if cost != nil && *cost < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Le coût unitaire ne peut pas être négatif.")
	}
	return nil
}

// GET /api/inventory/movements?product_id=1&type=IN&from=&to=
func ListMovementsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Preload("Product").Where("business_id = ?", auth.BusinessID(c))

		productID, err := api.QueryUint(c, "product_id")
		if err != nil {
			return err
		}
		if productID != nil {
			dbq = dbq.Where("product_id = ?", *productID)
		}
		if t := c.Query("type"); t != "" {
			if !models.MovementType(t).Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Type de mouvement invalide (IN, OUT ou ADJUST).")
			}
			dbq = dbq.Where("type = ?", t)
		}
		from, to, err := api.QueryRange(c)
		if err != nil {
			return err
		}
		if !from.IsZero() {
			dbq = dbq.Where("date >= ?", from)
		}
		if !to.IsZero() {
			dbq = dbq.Where("date <= ?", to)
		}

		var movements []models.InventoryMovement
		if err := dbq.Order("date DESC, id DESC").Find(&movements).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les mouvements.")
		}

		resp := make([]MovementResponse, 0, len(movements))
		for i := range movements {
			name := ""
			if movements[i].Product != nil {
				name = movements[i].Product.Name
			}
			resp = append(resp, toMovementResponse(&movements[i], name))
		}
		return c.JSON(resp)
	}
}

// POST /api/inventory/movements
func CreateMovementHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateMovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		businessID := auth.BusinessID(c)
		mvType := models.MovementType(strings.ToUpper(strings.TrimSpace(body.Type)))
		if err := ValidateQuantity(mvType, body.Quantity); err != nil {
			return err
		}
		if err := validUnitCost(body.UnitCostCents); err != nil {
			return err
		}

		date := time.Now()
		if body.Date != "" {
			d, err := api.ParseDate(body.Date)
			if err != nil {
				return err
			}
			date = d
		}

		product, err := api.FindScoped[models.Product](database.DB, businessID, body.ProductID, "Produit introuvable.")
		if err != nil {
			return err
		}
		if !product.IsStocked {
			return fiber.NewError(fiber.StatusBadRequest, "Ce produit n'est pas suivi en stock.")
		}

		mv := models.InventoryMovement{
			BusinessID:    businessID,
			ProductID:     product.ID,
			Type:          mvType,
			Quantity:      body.Quantity,
			UnitCostCents: body.UnitCostCents,
			Date:          date,
			Note:          strings.TrimSpace(body.Note),
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if mvType == models.MovementOut {
				if err := ensureAvailable(tx, businessID, product.ID, mv.Delta()); err != nil {
					return err
				}
			}
			if err := tx.Create(&mv).Error; err != nil {
				return err
			}
			return syncLinked(tx, &mv, product.Name)
		})
		if err != nil {
			return err
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		audit.Record(c, audit.Entry{
			EntityType:  "inventory_movement",
			EntityID:    mv.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Mouvement %s : %s x%d", mv.Type, product.Name, mv.Quantity),
			After:       mv,
		})

		return c.Status(fiber.StatusCreated).JSON(toMovementResponse(&mv, product.Name))
	}
}

// PATCH /api/inventory/movements/:id
func UpdateMovementHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var body UpdateMovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		var mv models.InventoryMovement
		var before models.InventoryMovement
		var productName string

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			found, err := api.FindScoped[models.InventoryMovement](tx, businessID, id, "Mouvement introuvable.")
			if err != nil {
				return err
			}
			mv = *found
			before = *found
			if mv.InvoiceID != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Ce mouvement provient d'une facture et ne peut pas être modifié.")
			}

			var product models.Product
			if err := tx.First(&product, mv.ProductID).Error; err != nil {
				return err
			}
			productName = product.Name

			if body.Quantity != nil {
				if err := ValidateQuantity(mv.Type, *body.Quantity); err != nil {
					return err
				}
				mv.Quantity = *body.Quantity
			}
			if body.UnitCostCents.Set {
				if err := validUnitCost(body.UnitCostCents.Value); err != nil {
					return err
				}
				mv.UnitCostCents = body.UnitCostCents.Value
			}
			if body.Date != nil {
				d, err := api.ParseDate(*body.Date)
				if err != nil {
					return err
				}
				mv.Date = d
			}
			if body.Note != nil {
				mv.Note = strings.TrimSpace(*body.Note)
			}

			if err := ensureAvailable(tx, businessID, mv.ProductID, mv.Delta()-before.Delta()); err != nil {
				return err
			}

			if err := tx.Model(&mv).Select("quantity", "unit_cost_cents", "date", "note").Updates(&mv).Error; err != nil {
				return err
			}
			return syncLinked(tx, &mv, productName)
		})
		if err != nil {
			return err
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		audit.Record(c, audit.Entry{
			EntityType:  "inventory_movement",
			EntityID:    mv.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Mouvement modifié : %s x%d", productName, mv.Quantity),
			Before:      before,
			After:       mv,
		})

		return c.JSON(toMovementResponse(&mv, productName))
	}
}

// DELETE /api/inventory/movements/:id
func DeleteMovementHandler(store cache.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var mv models.InventoryMovement
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			found, err := api.FindScoped[models.InventoryMovement](tx, businessID, id, "Mouvement introuvable.")
			if err != nil {
				return err
			}
			mv = *found
			if mv.InvoiceID != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Ce mouvement provient d'une facture et ne peut pas être supprimé.")
			}
			if err := ensureAvailable(tx, businessID, mv.ProductID, -mv.Delta()); err != nil {
				return err
			}
			if err := removeLinked(tx, &mv); err != nil {
				return err
			}
			return tx.Delete(&mv).Error
		})
		if err != nil {
			return err
		}

		cache.Invalidate(c.UserContext(), store, businessID)
		audit.Record(c, audit.Entry{
			EntityType:  "inventory_movement",
			EntityID:    mv.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Mouvement supprimé : %s x%d", mv.Type, mv.Quantity),
			Before:      mv,
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
