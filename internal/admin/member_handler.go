package admin

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
	"gorm.io/gorm/clause"
)

type CreateMemberRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UpdateMemberRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

func parseRole(raw string) (models.UserRole, error) {
	role := models.UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fiber.NewError(fiber.StatusBadRequest, "Rôle invalide (OWNER, ADMIN, MEMBER ou VIEWER).")
	}
	return role, nil
}

// GET /api/business/members
func ListMembersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var users []models.User
		if err := database.DB.Where("business_id = ?", auth.BusinessID(c)).Order("name ASC").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de lister les membres.")
		}

		res := make([]auth.UserResponse, 0, len(users))
		for i := range users {
			res = append(res, auth.NewUserResponse(&users[i]))
		}
		return c.JSON(res)
	}
}

// POST /api/business/members
func CreateMemberHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateMemberRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		body.Name = strings.TrimSpace(body.Name)
		body.Email = auth.NormalizeEmail(body.Email)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Le nom est obligatoire.")
		}
		if err := auth.ValidateCredentials(body.Email, body.Password); err != nil {
			return err
		}
		role, err := parseRole(body.Role)
		if err != nil {
			return err
		}

		taken, err := auth.EmailTaken(database.DB, body.Email)
		if err != nil {
			return err
		}
		if taken {
			return fiber.NewError(fiber.StatusBadRequest, "Cette adresse email est déjà utilisée.")
		}

		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de créer le membre.")
		}

		u := models.User{
			BusinessID:   auth.BusinessID(c),
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: hash,
			Role:         role,
		}
		if err := database.DB.Create(&u).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de créer le membre.")
		}

		audit.Record(c, audit.Entry{
			EntityType:  "user",
			EntityID:    u.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Membre ajouté : %s (%s)", u.Name, u.Role),
			After:       auth.NewUserResponse(&u),
		})
		return c.Status(fiber.StatusCreated).JSON(auth.NewUserResponse(&u))
	}
}

// PATCH /api/business/members/:id
// The business always keeps at least one OWNER.
func UpdateMemberHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := api.ParamID(c, "id")
		if err != nil {
			return err
		}
		businessID := auth.BusinessID(c)

		var body UpdateMemberRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		var u models.User
		var before auth.UserResponse
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			found, err := api.FindScoped[models.User](tx, businessID, id, "Membre introuvable.")
			if err != nil {
				return err
			}
			u = *found
			before = auth.NewUserResponse(&u)

			if body.Name != nil {
				name := strings.TrimSpace(*body.Name)
				if name == "" {
					return fiber.NewError(fiber.StatusBadRequest, "Le nom est obligatoire.")
				}
				u.Name = name
			}
			if body.Role != nil {
				role, err := parseRole(*body.Role)
				if err != nil {
					return err
				}
				if u.Role == models.RoleOwner && role != models.RoleOwner {
					var owners []models.User
					if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
						Where("business_id = ? AND role = ?", businessID, models.RoleOwner).
						Find(&owners).Error; err != nil {
						return err
					}
					if len(owners) <= 1 {
						return fiber.NewError(fiber.StatusBadRequest, "L'entreprise doit conserver au moins un propriétaire.")
					}
				}
				u.Role = role
			}
			return tx.Model(&u).Select("name", "role").Updates(&u).Error
		})
		if err != nil {
			return err
		}

		audit.Record(c, audit.Entry{
			EntityType:  "user",
			EntityID:    u.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Membre modifié : %s (%s)", u.Name, u.Role),
			Before:      before,
			After:       auth.NewUserResponse(&u),
		})
		return c.JSON(auth.NewUserResponse(&u))
	}
}
