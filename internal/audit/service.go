package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"atelier-backend/internal/auth"
	"atelier-backend/internal/database"
	"atelier-backend/internal/logger"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAlreadyUndone = errors.New("cette opération a déjà été annulée")
	ErrNotUndoable   = errors.New("cette opération ne peut pas être annulée")
)

type LogOptions struct {
	BusinessID  uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func marshalOrNull(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func WriteLog(opts LogOptions) error {
	log := models.AuditLog{
		BusinessID:  opts.BusinessID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  marshalOrNull(opts.Before),
		AfterData:   marshalOrNull(opts.After),
	}

	if err := database.DB.Create(&log).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Entry is what a handler knows about a change; Record fills in who did it.
type Entry struct {
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// Record writes an audit log for the authenticated user. It runs after the
// change committed, so failures are logged and swallowed.
func Record(c *fiber.Ctx, e Entry) {
	user, err := auth.CurrentUser(c)
	if err != nil {
		logger.FromCtx(c).Warn("audit log skipped: unknown user", zap.String("entity_type", e.EntityType))
		return
	}

	if err := WriteLog(LogOptions{
		BusinessID:  user.BusinessID,
		UserID:      user.ID,
		UserName:    user.Name,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Description: e.Description,
		Before:      e.Before,
		After:       e.After,
	}); err != nil {
		logger.FromCtx(c).Warn("audit log not written", zap.String("entity_type", e.EntityType), zap.Uint("entity_id", e.EntityID), zap.Error(err))
	}
}

// Only catalog and CRM records can be undone; financial documents never.
var undoable = map[string]func() any{
	"client":  func() any { return &models.Client{} },
	"project": func() any { return &models.Project{} },
	"product": func() any { return &models.Product{} },
	"task":    func() any { return &models.Task{} },
}

func IsUndoable(entityType string) bool {
	_, ok := undoable[entityType]
	return ok
}

type scope struct {
	ID         uint `json:"id"`
	BusinessID uint `json:"business_id"`
}

// decode rebuilds the entity stored in a log snapshot, checking it belongs
// to the log's business.
func decode(log *models.AuditLog, data string) (any, error) {
	var s scope
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	if s.ID != log.EntityID || s.BusinessID != log.BusinessID {
		return nil, fmt.Errorf("snapshot does not match %s #%d", log.EntityType, log.EntityID)
	}
	obj := undoable[log.EntityType]()
	if err := json.Unmarshal([]byte(data), obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// UndoLog reverts the change recorded by a log and writes an undo log.
func UndoLog(businessID, logID, userID uint, userName string) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		var log models.AuditLog
		if err := tx.Where("id = ? AND business_id = ?", logID, businessID).First(&log).Error; err != nil {
			return err
		}
		if log.IsUndone {
			return ErrAlreadyUndone
		}
		if !IsUndoable(log.EntityType) || log.Action == models.AuditActionUndo {
			return ErrNotUndoable
		}

		switch log.Action {
		case models.AuditActionCreate:
			res := tx.Where("id = ? AND business_id = ?", log.EntityID, businessID).Delete(undoable[log.EntityType]())
			if res.Error != nil {
				return res.Error
			}

		case models.AuditActionUpdate:
			obj, err := decode(&log, log.BeforeData)
			if err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Save(obj).Error; err != nil {
				return err
			}

		case models.AuditActionDelete:
			obj, err := decode(&log, log.BeforeData)
			if err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Create(obj).Error; err != nil {
				return err
			}

		default:
			return ErrNotUndoable
		}

		now := time.Now()
		if err := tx.Model(&log).Updates(map[string]any{
			"is_undone": true,
			"undone_by": userID,
			"undone_at": now,
		}).Error; err != nil {
			return err
		}

		undoLog := models.AuditLog{
			BusinessID:  businessID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  log.EntityType,
			EntityID:    log.EntityID,
			Action:      models.AuditActionUndo,
			Description: fmt.Sprintf("Annulation : %s", log.Description),
			BeforeData:  log.AfterData,
			AfterData:   log.BeforeData,
			Undone:      true,
		}
		return tx.Create(&undoLog).Error
	})
}
