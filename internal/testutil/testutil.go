// Package testutil wires an in-memory SQLite database and fixtures for tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"atelier-backend/internal/auth"
	"atelier-backend/internal/config"
	"atelier-backend/internal/database"
	"atelier-backend/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const Password = "motdepasse-solide"

// Config is a valid configuration with every optional integration off.
func Config() *config.Config {
	return &config.Config{
		HTTPPort:        "0",
		AppEnv:          "test",
		LogLevel:        "error",
		CORSOrigins:     "http://localhost:5173",
		JWTSecret:       "test-secret-test-secret-test-secret-0123",
		JWTTTL:          time.Hour,
		DefaultCurrency: "EUR",
		CacheTTL:        time.Minute,
	}
}

// NewDB opens a private in-memory database, migrates it and installs it as
// database.DB for the duration of the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

type Fixture struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Business models.Business
	Owner    models.User
	Client   models.Client
	Project  models.Project
}

// NewFixture seeds a business with an owner, one client and one project.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	db := NewDB(t)

	f := &Fixture{DB: db, Cfg: Config()}
	f.Business = models.Business{
		Name:             "Atelier Lune",
		LegalName:        "Atelier Lune SARL",
		Siret:            "12345678900011",
		VatNumber:        "FR12345678901",
		AddressLine:      "3 rue des Lilas",
		PostalCode:       "69001",
		City:             "Lyon",
		Country:          "FR",
		Email:            "contact@atelier-lune.fr",
		Currency:         "EUR",
		PaymentTermsDays: 30,
	}
	require.NoError(t, db.Create(&f.Business).Error)

	f.Owner = f.User(t, models.RoleOwner)

	f.Client = models.Client{BusinessID: f.Business.ID, Name: "Claire Martin", Company: "Martin & Fils", Email: "claire@martin.fr", City: "Paris"}
	require.NoError(t, db.Create(&f.Client).Error)

	f.Project = models.Project{
		BusinessID:  f.Business.ID,
		ClientID:    &f.Client.ID,
		Name:        "Refonte boutique",
		Status:      models.ProjectActive,
		Prestations: []byte(`["Maquettes","Intégration"]`),
	}
	require.NoError(t, db.Create(&f.Project).Error)
	return f
}

// User creates a user with the given role in the fixture business.
func (f *Fixture) User(t *testing.T, role models.UserRole) models.User {
	t.Helper()
	hash, err := auth.HashPassword(Password)
	require.NoError(t, err)

	var n int64
	f.DB.Model(&models.User{}).Count(&n)
	u := models.User{
		BusinessID:   f.Business.ID,
		Name:         fmt.Sprintf("%s %d", strings.ToLower(string(role)), n+1),
		Email:        fmt.Sprintf("%s%d@atelier-lune.fr", strings.ToLower(string(role)), n+1),
		PasswordHash: hash,
		Role:         role,
	}
	require.NoError(t, f.DB.Create(&u).Error)
	return u
}

func (f *Fixture) Token(t *testing.T, u models.User) string {
	t.Helper()
	tok, err := auth.GenerateToken(f.Cfg.JWTSecret, f.Cfg.JWTTTL, &u)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (f *Fixture) OwnerToken(t *testing.T) string {
	return f.Token(t, f.Owner)
}

// Product creates a product; a non-nil unit cost marks it as stocked.
func (f *Fixture) Product(t *testing.T, name string, price int64, unitCost *int64) models.Product {
	t.Helper()
	p := models.Product{
		BusinessID:    f.Business.ID,
		Name:          name,
		Unit:          "unit",
		PriceCents:    price,
		UnitCostCents: unitCost,
		IsStocked:     unitCost != nil,
	}
	require.NoError(t, f.DB.Create(&p).Error)
	return p
}

// Invoice creates an invoice with a single line worth total.
func (f *Fixture) Invoice(t *testing.T, status models.InvoiceStatus, total int64) models.Invoice {
	t.Helper()
	inv := models.Invoice{
		BusinessID:   f.Business.ID,
		ProjectID:    f.Project.ID,
		ClientID:     &f.Client.ID,
		Status:       status,
		Currency:     "EUR",
		TotalCents:   total,
		BalanceCents: total,
		Items: []models.InvoiceItem{{
			Label:          "Prestation",
			Quantity:       1,
			UnitPriceCents: total,
			DiscountType:   models.DiscountNone,
			TotalCents:     total,
		}},
	}
	require.NoError(t, f.DB.Create(&inv).Error)
	return inv
}

func (f *Fixture) Payment(t *testing.T, inv models.Invoice, amount int64) models.Payment {
	t.Helper()
	p := models.Payment{
		BusinessID:  inv.BusinessID,
		InvoiceID:   inv.ID,
		ProjectID:   inv.ProjectID,
		ClientID:    inv.ClientID,
		AmountCents: amount,
		PaidAt:      time.Now(),
		Method:      models.PaymentTransfer,
	}
	require.NoError(t, f.DB.Create(&p).Error)
	return p
}

func Int64(v int64) *int64 { return &v }

func Uint(v uint) *uint { return &v }
