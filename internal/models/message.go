package models

import "time"

type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BusinessID uint      `gorm:"index;not null" json:"business_id"`
	ProjectID  uint      `gorm:"index;not null" json:"project_id"`
	AuthorID   uint      `gorm:"not null" json:"author_id"`
	AuthorName string    `gorm:"size:100" json:"author_name"`
	Body       string    `gorm:"size:4000;not null" json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}
