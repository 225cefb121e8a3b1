package models

import "time"

// Business is the tenant. Every other row carries its ID.
type Business struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"size:150;not null" json:"name"`
	LegalName             string    `gorm:"size:200" json:"legal_name"`
	Siret                 string    `gorm:"size:20" json:"siret"`
	VatNumber             string    `gorm:"size:30" json:"vat_number"`
	AddressLine           string    `gorm:"size:255" json:"address_line"`
	PostalCode            string    `gorm:"size:20" json:"postal_code"`
	City                  string    `gorm:"size:100" json:"city"`
	Country               string    `gorm:"size:2;default:'FR'" json:"country"`
	Email                 string    `gorm:"size:150" json:"email"`
	Phone                 string    `gorm:"size:50" json:"phone"`
	IBAN                  string    `gorm:"size:40" json:"iban"`
	InvoiceFooter         string    `gorm:"size:500" json:"invoice_footer"`
	Currency              string    `gorm:"size:3;not null;default:'EUR'" json:"currency"`
	DefaultDepositPercent int       `gorm:"not null;default:0" json:"default_deposit_percent"`
	PaymentTermsDays      int       `gorm:"not null;default:30" json:"payment_terms_days"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}
