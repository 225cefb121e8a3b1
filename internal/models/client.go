package models

import "time"

type Client struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BusinessID  uint      `gorm:"index;not null" json:"business_id"`
	Name        string    `gorm:"size:150;not null" json:"name"`
	Company     string    `gorm:"size:150" json:"company"`
	Email       string    `gorm:"size:150" json:"email"`
	Phone       string    `gorm:"size:50" json:"phone"`
	AddressLine string    `gorm:"size:255" json:"address_line"`
	PostalCode  string    `gorm:"size:20" json:"postal_code"`
	City        string    `gorm:"size:100" json:"city"`
	Country     string    `gorm:"size:2" json:"country"`
	Siret       string    `gorm:"size:20" json:"siret"`
	VatNumber   string    `gorm:"size:30" json:"vat_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
