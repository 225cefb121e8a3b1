package auth

import (
	"errors"
	"net/mail"
	"strings"

	"atelier-backend/internal/config"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 8

type RegisterRequest struct {
	BusinessName string `json:"business_name"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID         uint            `json:"id"`
	BusinessID uint            `json:"business_id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Role       models.UserRole `json:"role"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		BusinessID: u.BusinessID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
	}
}

func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// ValidateCredentials checks the email format and password length.
func ValidateCredentials(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Adresse email invalide.")
	}
	if len(password) < minPasswordLen {
		return fiber.NewError(fiber.StatusBadRequest, "Le mot de passe doit contenir au moins 8 caractères.")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// EmailTaken reports whether a user already uses the address.
func EmailTaken(db *gorm.DB, email string) (bool, error) {
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// POST /api/auth/register
func RegisterHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		body.Email = NormalizeEmail(body.Email)
		body.Name = strings.TrimSpace(body.Name)
		body.BusinessName = strings.TrimSpace(body.BusinessName)

		if body.BusinessName == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Le nom de l'entreprise et le nom sont obligatoires.")
		}
		if err := ValidateCredentials(body.Email, body.Password); err != nil {
			return err
		}

		taken, err := EmailTaken(database.DB, body.Email)
		if err != nil {
			return err
		}
		if taken {
			return fiber.NewError(fiber.StatusBadRequest, "Cet email est déjà utilisé.")
		}

		hash, err := HashPassword(body.Password)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de chiffrer le mot de passe.")
		}

		business := models.Business{Name: body.BusinessName, LegalName: body.BusinessName, Currency: cfg.DefaultCurrency}
		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: hash,
			Role:         models.RoleOwner,
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&business).Error; err != nil {
				return err
			}
			user.BusinessID = business.ID
			return tx.Create(&user).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de créer le compte.")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de générer le jeton.")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"token":    token,
			"user":     NewUserResponse(&user),
			"business": business,
		})
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corps de requête invalide.")
		}

		body.Email = NormalizeEmail(body.Email)

		var user models.User
		if err := database.DB.Where("email = ?", body.Email).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "Email ou mot de passe incorrect.")
			}
			return err
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email ou mot de passe incorrect.")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Impossible de générer le jeton.")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  NewUserResponse(&user),
		})
	}
}

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c)
		if err != nil {
			return err
		}

		var business models.Business
		if err := database.DB.First(&business, user.BusinessID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Entreprise introuvable.")
		}

		return c.JSON(fiber.Map{
			"user":     NewUserResponse(user),
			"business": business,
		})
	}
}
