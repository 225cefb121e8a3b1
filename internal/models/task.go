package models

import (
	"time"

	"gorm.io/datatypes"
)

// TaskTemplate is a reusable process: an ordered list of step titles.
type TaskTemplate struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	BusinessID  uint           `gorm:"index;not null" json:"business_id"`
	Name        string         `gorm:"size:150;not null" json:"name"`
	Description string         `gorm:"size:1000" json:"description"`
	Steps       datatypes.JSON `json:"steps"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

type Task struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	BusinessID uint       `gorm:"index;not null" json:"business_id"`
	ProjectID  uint       `gorm:"index;not null" json:"project_id"`
	TemplateID *uint      `json:"template_id"`
	Title      string     `gorm:"size:255;not null" json:"title"`
	Status     TaskStatus `gorm:"size:20;not null;default:'TODO'" json:"status"`
	Position   int        `gorm:"not null;default:0" json:"position"`
	AssigneeID *uint      `json:"assignee_id"`
	DueAt      *time.Time `json:"due_at"`
	DoneAt     *time.Time `json:"done_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
