package inventory

import (
	"fmt"
	"time"

	"atelier-backend/internal/ledger"
	"atelier-backend/internal/models"

	"gorm.io/gorm"
)

// SyncReservations rebuilds the active reservations of an invoice from its
// stocked product lines. Called whenever the lines are replaced.
func SyncReservations(tx *gorm.DB, inv *models.Invoice, items []models.InvoiceItem) error {
	if err := tx.Where("invoice_id = ? AND status = ?", inv.ID, models.ReservationActive).
		Delete(&models.InventoryReservation{}).Error; err != nil {
		return err
	}

	qty := map[uint]int64{}
	var order []uint
	for _, it := range items {
		if it.ProductID == nil {
			continue
		}
		if _, seen := qty[*it.ProductID]; !seen {
			order = append(order, *it.ProductID)
		}
		qty[*it.ProductID] += it.Quantity
	}
	if len(order) == 0 {
		return nil
	}

	var stocked []models.Product
	if err := tx.Where("business_id = ? AND id IN ? AND is_stocked = ?", inv.BusinessID, order, true).
		Find(&stocked).Error; err != nil {
		return err
	}
	isStocked := make(map[uint]bool, len(stocked))
	for _, p := range stocked {
		isStocked[p.ID] = true
	}

	for _, productID := range order {
		if !isStocked[productID] {
			continue
		}
		r := models.InventoryReservation{
			BusinessID: inv.BusinessID,
			InvoiceID:  inv.ID,
			ProductID:  productID,
			Quantity:   qty[productID],
			Status:     models.ReservationActive,
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReleaseReservations frees the stock held by a cancelled or deleted invoice.
func ReleaseReservations(tx *gorm.DB, invoiceID uint) error {
	return tx.Model(&models.InventoryReservation{}).
		Where("invoice_id = ? AND status = ?", invoiceID, models.ReservationActive).
		Update("status", models.ReservationReleased).Error
}

// ConsumeReservations turns the active reservations of a paid invoice into
// OUT movements and books their cost as one stock consumption entry.
// It returns the consumed cost.
func ConsumeReservations(tx *gorm.DB, inv *models.Invoice, at time.Time) (int64, error) {
	var reservations []models.InventoryReservation
	if err := tx.Where("invoice_id = ? AND status = ?", inv.ID, models.ReservationActive).
		Order("id ASC").Find(&reservations).Error; err != nil {
		return 0, err
	}
	if len(reservations) == 0 {
		return 0, nil
	}

	ref := fmt.Sprintf("#%d", inv.ID)
	if inv.Number != nil {
		ref = *inv.Number
	}

	var cost int64
	for _, r := range reservations {
		var p models.Product
		if err := tx.Where("id = ? AND business_id = ?", r.ProductID, inv.BusinessID).First(&p).Error; err != nil {
			return 0, err
		}

		invoiceID := inv.ID
		mv := models.InventoryMovement{
			BusinessID:    inv.BusinessID,
			ProductID:     r.ProductID,
			Type:          models.MovementOut,
			Quantity:      r.Quantity,
			UnitCostCents: p.UnitCostCents,
			Date:          at,
			Note:          "Facture " + ref,
			InvoiceID:     &invoiceID,
		}
		if err := tx.Create(&mv).Error; err != nil {
			return 0, err
		}
		cost += ledger.MovementAmount(&mv)

		if err := tx.Model(&r).Update("status", models.ReservationConsumed).Error; err != nil {
			return 0, err
		}
	}

	if cost > 0 {
		if _, err := ledger.UpsertStockConsumption(tx, inv, cost, at); err != nil {
			return 0, err
		}
	}
	return cost, nil
}
