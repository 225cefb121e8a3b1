package models

type DiscountType string

const (
	DiscountNone    DiscountType = "NONE"
	DiscountPercent DiscountType = "PERCENT"
	DiscountAmount  DiscountType = "AMOUNT"
)

func (d DiscountType) Valid() bool {
	switch d {
	case DiscountNone, DiscountPercent, DiscountAmount, "":
		return true
	}
	return false
}

// DocumentKind selects the numbering sequence.
type DocumentKind string

const (
	KindQuote   DocumentKind = "QUOTE"
	KindInvoice DocumentKind = "INVOICE"
)

// DocumentCounter holds the last number handed out per business, kind and
// year. Rows are locked while a number is allocated.
type DocumentCounter struct {
	ID         uint         `gorm:"primaryKey"`
	BusinessID uint         `gorm:"not null;uniqueIndex:idx_document_counter"`
	Kind       DocumentKind `gorm:"size:20;not null;uniqueIndex:idx_document_counter"`
	Year       int          `gorm:"not null;uniqueIndex:idx_document_counter"`
	LastValue  int64        `gorm:"not null;default:0"`
}
