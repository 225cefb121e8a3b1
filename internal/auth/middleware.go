package auth

import (
	"fmt"
	"strings"

	"atelier-backend/internal/config"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey     = "user_id"
	CtxUserRoleKey   = "user_role"
	CtxBusinessIDKey = "business_id"
	CtxEmailKey      = "user_email"
)

// Role groups used by the router.
var (
	AllRoles     = []models.UserRole{models.RoleOwner, models.RoleAdmin, models.RoleMember, models.RoleViewer}
	EditorRoles  = []models.UserRole{models.RoleOwner, models.RoleAdmin, models.RoleMember}
	ManagerRoles = []models.UserRole{models.RoleOwner, models.RoleAdmin}
	OwnerRoles   = []models.UserRole{models.RoleOwner}
)

func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "En-tête Authorization manquant.")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Le format attendu est 'Bearer <token>'.")
		}

		token, err := jwt.ParseWithClaims(parts[1], &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "Jeton invalide ou expiré.")
		}

		claims, ok := token.Claims.(*JWTCustomClaims)
		if !ok || claims.BusinessID == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "Jeton invalide ou expiré.")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxBusinessIDKey, claims.BusinessID)
		c.Locals(CtxEmailKey, claims.Email)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Action non autorisée.")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "Action non autorisée.")
	}
}

// BusinessID is the tenant of the authenticated request, 0 when absent.
func BusinessID(c *fiber.Ctx) uint {
	id, _ := c.Locals(CtxBusinessIDKey).(uint)
	return id
}

func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(CtxUserIDKey).(uint)
	return id
}

func Role(c *fiber.Ctx) models.UserRole {
	r, _ := c.Locals(CtxUserRoleKey).(models.UserRole)
	return r
}

// CurrentUser loads the authenticated user from the database.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	userID := UserID(c)
	if userID == 0 {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Utilisateur non authentifié.")
	}
	var user models.User
	if err := database.DB.Where("id = ? AND business_id = ?", userID, BusinessID(c)).First(&user).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Utilisateur introuvable.")
	}
	return &user, nil
}
