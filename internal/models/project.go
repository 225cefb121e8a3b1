package models

import (
	"time"

	"gorm.io/datatypes"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "ACTIVE"
	ProjectOnHold   ProjectStatus = "ON_HOLD"
	ProjectDone     ProjectStatus = "DONE"
	ProjectArchived ProjectStatus = "ARCHIVED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectOnHold, ProjectDone, ProjectArchived:
		return true
	}
	return false
}

type Project struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	BusinessID  uint          `gorm:"index;not null" json:"business_id"`
	ClientID    *uint         `gorm:"index" json:"client_id"`
	Client      *Client       `json:"client,omitempty"`
	Name        string        `gorm:"size:150;not null" json:"name"`
	Description string        `gorm:"size:2000" json:"description"`
	Status      ProjectStatus `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
	// Prestations is a JSON array of strings describing the work sold.
	Prestations datatypes.JSON `json:"prestations"`
	BudgetCents int64          `gorm:"not null;default:0" json:"budget_cents"`
	StartsAt    *time.Time     `json:"starts_at"`
	EndsAt      *time.Time     `json:"ends_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
