package inventory

import (
	"atelier-backend/internal/models"

	"gorm.io/gorm"
)

type StockLevel struct {
	ProductID uint  `json:"product_id"`
	OnHand    int64 `json:"on_hand"`
	Reserved  int64 `json:"reserved"`
	Available int64 `json:"available"`
}

const signedQuantity = "SUM(CASE WHEN type = 'OUT' THEN -quantity ELSE quantity END)"

type productQty struct {
	ProductID uint
	Qty       int64
}

func onHandByProduct(tx *gorm.DB, businessID uint, productIDs []uint) ([]productQty, error) {
	var rows []productQty
	q := tx.Model(&models.InventoryMovement{}).
		Select("product_id, COALESCE("+signedQuantity+", 0) AS qty").
		Where("business_id = ?", businessID)
	if productIDs != nil {
		q = q.Where("product_id IN ?", productIDs)
	}
	err := q.Group("product_id").Scan(&rows).Error
	return rows, err
}

func reservedByProduct(tx *gorm.DB, businessID uint, productIDs []uint) ([]productQty, error) {
	var rows []productQty
	q := tx.Model(&models.InventoryReservation{}).
		Select("product_id, COALESCE(SUM(quantity), 0) AS qty").
		Where("business_id = ? AND status = ?", businessID, models.ReservationActive)
	if productIDs != nil {
		q = q.Where("product_id IN ?", productIDs)
	}
	err := q.Group("product_id").Scan(&rows).Error
	return rows, err
}

// Levels returns stock levels keyed by product. A nil productIDs means
// every product of the business.
func Levels(tx *gorm.DB, businessID uint, productIDs []uint) (map[uint]StockLevel, error) {
	out := make(map[uint]StockLevel)
	for _, id := range productIDs {
		out[id] = StockLevel{ProductID: id}
	}

	onHand, err := onHandByProduct(tx, businessID, productIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range onHand {
		l := out[r.ProductID]
		l.ProductID = r.ProductID
		l.OnHand = r.Qty
		out[r.ProductID] = l
	}

	reserved, err := reservedByProduct(tx, businessID, productIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range reserved {
		l := out[r.ProductID]
		l.ProductID = r.ProductID
		l.Reserved = r.Qty
		out[r.ProductID] = l
	}

	for id, l := range out {
		l.Available = l.OnHand - l.Reserved
		out[id] = l
	}
	return out, nil
}

func Level(tx *gorm.DB, businessID, productID uint) (StockLevel, error) {
	levels, err := Levels(tx, businessID, []uint{productID})
	if err != nil {
		return StockLevel{}, err
	}
	return levels[productID], nil
}
