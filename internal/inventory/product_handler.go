package inventory

import (
	"fmt"
	"strings"

	"atelier-backend/internal/api"
	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ProductRequest struct {
	Name          *string             `json:"name"`
	SKU           *string             `json:"sku"`
	Unit          *string             `json:"unit"`
	PriceCents    *int64              `json:"price_cents"`
	UnitCostCents api.Optional[int64] `json:"unit_cost_cents"`
	IsStocked     *bool               `json:"is_stocked"`
	IsService     *bool               `json:"is_service"`
}

type ProductResponse struct {
	models.Product
	Stock *StockLevel `json:"stock,omitempty"`
}

func (r *ProductRequest) apply(p *models.Product) error {
	if r.Name != nil {
		p.Name = strings.TrimSpace(*r.Name)
	}
	if r.SKU != nil {
		p.SKU = strings.TrimSpace(*r.SKU)
	}
	if r.Unit != nil {
		p.Unit = strings.TrimSpace(*r.Unit)
	}
	if r.PriceCents != nil {
		p.PriceCents = *r.PriceCents
	}
	if r.UnitCostCents.Set {
		p.UnitCostCents = r.UnitCostCents.Value
	}
	if r.IsStocked != nil {
		p.IsStocked = *r.IsStocked
	}
	if r.IsService != nil {
		p.IsService = *r.IsService
	}

	if p.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Le nom du produit est obligatoire.")
	}
	if p.Unit == "" {
		p.Unit = "unit"
	}
	if p.PriceCents < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Le prix ne peut pas être négatif.")
	}
	if err := validUnitCost(p.UnitCostCents); err != nil {
		return err
	}
	if p.IsStocked && p.IsService {
		return fiber.NewError(fiber.StatusBadRequest, "Une prestation de service ne peut pas être suivie en stock.")
	}
	return nil
}

func skuTaken(db *gorm.DB, businessID uint, sku string, exceptID uint) (bool, error) {
	if sku == "" {
		return false, nil
	}
	var n int64
	err := db.Model(&models.Product{}).
		Where("business_id = ? AND sku = ? AND id <> ?", businessID, sku, exceptID).
		Count(&n).Error
	return n > 0, err
}

// GET /api/products?q=&stocked=true
func ListProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		businessID := auth.BusinessID(c)
		dbq := database.DB.Where("business_id = ?", businessID)

		if q := strings.TrimSpace(c.Query("q")); q != "" {
			like := "%" + strings.ToLower(q) + "%"
			dbq = dbq.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
		}
		switch c.Query("stocked") {
		case "true":
			dbq = dbq.Where("is_stocked = ?", true)
		case "false":
			dbq = dbq.Where("is_stocked = ?", false)
		}

		var products []models.Product
		if err := dbq.Order("name ASC").Find(&products).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les produits.")
		}

		levels, err := Levels(database.DB, businessID, nil)
		if err != nil {
			return err
		}

		res := make([]ProductResponse, 0, len(products))
		for _, p := range products {
			item := ProductResponse{Product: p}
			if p.IsStocked {
				l := levels[p.ID]
				l.ProductID = p.ID
				item.Stock = &l
			}
			res = append(res, item)
		}
		return c.JSON(res)
	}
}

// POST /api/products
func CreateProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		p := models.Product{BusinessID: auth.BusinessID(c)}
		if err := body.apply(&p); err != nil {
			return err
		}

		taken, err := skuTaken(database.DB, p.BusinessID, p.SKU, 0)
		if err != nil {
			return err
		}
		if taken {
			return fiber.NewError(fiber.StatusBadRequest, "Cette référence est déjà utilisée.")
		}

		if err := database.DB.Create(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de créer le produit.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Produit créé : %s", p.Name),
			After:       p,
		})

		return c.Status(fiber.StatusCreated).JSON(ProductResponse{Product: p})
	}
}

// GET /api/products/:id
func GetProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		p, err := api.FindScoped[models.Product](database.DB, auth.BusinessID(c), id, "Produit introuvable.")
		if err != nil {
			return err
		}

		res := ProductResponse{Product: *p}
		if p.IsStocked {
			l, err := Level(database.DB, p.BusinessID, p.ID)
			if err != nil {
				return err
			}
			l.ProductID = p.ID
			res.Stock = &l
		}
		return c.JSON(res)
	}
}

// GET /api/products/:id/stock
func ProductStockHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		p, err := api.FindScoped[models.Product](database.DB, auth.BusinessID(c), id, "Produit introuvable.")
		if err != nil {
			return err
		}
		l, err := Level(database.DB, p.BusinessID, p.ID)
		if err != nil {
			return err
		}
		l.ProductID = p.ID
		return c.JSON(l)
	}
}

// PUT /api/products/:id
func UpdateProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)
		p, err := api.FindScoped[models.Product](database.DB, businessID, id, "Produit introuvable.")
		if err != nil {
			return err
		}
		before := *p

		var body ProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}
		if err := body.apply(p); err != nil {
			return err
		}

		if before.IsStocked && !p.IsStocked {
			var n int64
			database.DB.Model(&models.InventoryMovement{}).Where("product_id = ?", p.ID).Count(&n)
			if n > 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Ce produit a des mouvements de stock et doit rester suivi.")
			}
		}

		taken, err := skuTaken(database.DB, businessID, p.SKU, p.ID)
		if err != nil {
			return err
		}
		if taken {
			return fiber.NewError(fiber.StatusBadRequest, "Cette référence est déjà utilisée.")
		}

		if err := database.DB.Save(p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de mettre à jour le produit.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Produit modifié : %s", p.Name),
			Before:      before,
			After:       *p,
		})

		return c.JSON(ProductResponse{Product: *p})
	}
}

// DELETE /api/products/:id
func DeleteProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		p, err := api.FindScoped[models.Product](database.DB, auth.BusinessID(c), id, "Produit introuvable.")
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&models.InventoryMovement{}).Where("product_id = ?", p.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				if err := tx.Model(&models.InventoryReservation{}).
					Where("product_id = ? AND status = ?", p.ID, models.ReservationActive).
					Count(&n).Error; err != nil {
					return err
				}
			}
			if n > 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Ce produit a un historique de stock et ne peut pas être supprimé.")
			}

			// document lines keep their label and price
			if err := tx.Model(&models.QuoteItem{}).Where("product_id = ?", p.ID).Update("product_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.InvoiceItem{}).Where("product_id = ?", p.ID).Update("product_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("product_id = ?", p.ID).Delete(&models.InventoryReservation{}).Error; err != nil {
				return err
			}
			return tx.Delete(p).Error
		})
		if err != nil {
			return err
		}

		audit.Record(c, audit.Entry{
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Produit supprimé : %s", p.Name),
			Before:      *p,
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
