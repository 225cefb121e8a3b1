package server

import (
	"strings"

	"atelier-backend/internal/admin"
	"atelier-backend/internal/audit"
	"atelier-backend/internal/auth"
	"atelier-backend/internal/billing"
	"atelier-backend/internal/cache"
	"atelier-backend/internal/config"
	"atelier-backend/internal/crm"
	"atelier-backend/internal/dashboard"
	"atelier-backend/internal/events"
	"atelier-backend/internal/finance"
	"atelier-backend/internal/inventory"
	"atelier-backend/internal/invoice"
	"atelier-backend/internal/ledger"
	"atelier-backend/internal/logger"
	"atelier-backend/internal/messaging"
	"atelier-backend/internal/metrics"
	"atelier-backend/internal/quote"
	"atelier-backend/internal/tasks"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// Deps are the optional integrations handed to the handlers. Nil fields fall
// back to no-op implementations.
type Deps struct {
	Cache  cache.Store
	Events events.Publisher
}

func errorHandler(c *fiber.Ctx, err error) error {
	err = billing.HTTPError(err)
	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			"error": e.Message,
		})
	}
	logger.FromCtx(c).Error("unexpected error", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Erreur interne du serveur",
	})
}

// New builds the application with every route mounted. The database must be
// initialised before the first request is served.
func New(cfg *config.Config, deps Deps) *fiber.App {
	store := deps.Cache
	if store == nil {
		store = cache.Nop{}
	}
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}
	ttl := cfg.CacheTTL

	app := fiber.New(fiber.Config{
		AppName:      "atelier-backend",
		ErrorHandler: errorHandler,
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	metrics.Register()

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    requestIDHeader,
		Generator: uuid.NewString,
	}))
	app.Use(logger.Middleware(requestIDHeader))
	app.Use(metrics.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + requestIDHeader,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register", auth.RegisterHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	read := auth.RequireRole(auth.AllRoles...)
	edit := auth.RequireRole(auth.EditorRoles...)
	manage := auth.RequireRole(auth.ManagerRoles...)
	own := auth.RequireRole(auth.OwnerRoles...)

	protected.Get("/auth/me", auth.MeHandler())

	// Business settings and members
	protected.Get("/business", read, admin.GetBusinessHandler())
	protected.Put("/business", manage, admin.UpdateBusinessHandler(store))
	protected.Get("/business/members", read, admin.ListMembersHandler())
	protected.Post("/business/members", own, admin.CreateMemberHandler())
	protected.Patch("/business/members/:id", own, admin.UpdateMemberHandler())

	// Clients
	protected.Get("/clients", read, crm.ListClientsHandler())
	protected.Post("/clients", edit, crm.CreateClientHandler())
	protected.Get("/clients/:id", read, crm.GetClientHandler())
	protected.Put("/clients/:id", edit, crm.UpdateClientHandler())
	protected.Delete("/clients/:id", edit, crm.DeleteClientHandler())

	// Projects, their tasks and message thread
	protected.Get("/projects", read, crm.ListProjectsHandler())
	protected.Post("/projects", edit, crm.CreateProjectHandler(store))
	protected.Get("/projects/:id", read, crm.GetProjectHandler())
	protected.Put("/projects/:id", edit, crm.UpdateProjectHandler(store))
	protected.Delete("/projects/:id", edit, crm.DeleteProjectHandler(store))
	protected.Post("/projects/:id/apply-template", edit, tasks.ApplyTemplateHandler())
	protected.Get("/projects/:id/tasks", read, tasks.ListTasksHandler())
	protected.Post("/projects/:id/tasks", edit, tasks.CreateTaskHandler())
	protected.Get("/projects/:id/messages", read, messaging.ListMessagesHandler())
	protected.Post("/projects/:id/messages", edit, messaging.PostMessageHandler())

	protected.Patch("/tasks/:id", edit, tasks.UpdateTaskHandler())
	protected.Delete("/tasks/:id", edit, tasks.DeleteTaskHandler())

	protected.Get("/task-templates", read, tasks.ListTemplatesHandler())
	protected.Post("/task-templates", edit, tasks.CreateTemplateHandler())
	protected.Get("/task-templates/:id", read, tasks.GetTemplateHandler())
	protected.Put("/task-templates/:id", edit, tasks.UpdateTemplateHandler())
	protected.Delete("/task-templates/:id", edit, tasks.DeleteTemplateHandler())

	// Catalog and stock
	protected.Get("/products", read, inventory.ListProductsHandler())
	protected.Post("/products", edit, inventory.CreateProductHandler())
	protected.Get("/products/:id", read, inventory.GetProductHandler())
	protected.Get("/products/:id/stock", read, inventory.ProductStockHandler())
	protected.Put("/products/:id", edit, inventory.UpdateProductHandler())
	protected.Delete("/products/:id", edit, inventory.DeleteProductHandler())

	protected.Get("/inventory/movements", read, inventory.ListMovementsHandler())
	protected.Post("/inventory/movements", manage, inventory.CreateMovementHandler(store))
	protected.Patch("/inventory/movements/:id", manage, inventory.UpdateMovementHandler(store))
	protected.Delete("/inventory/movements/:id", manage, inventory.DeleteMovementHandler(store))

	// Quotes
	protected.Get("/quotes", read, quote.ListQuotesHandler())
	protected.Post("/quotes", manage, quote.CreateQuoteHandler(store))
	protected.Get("/quotes/:id", read, quote.GetQuoteHandler())
	protected.Patch("/quotes/:id", manage, quote.UpdateQuoteHandler(store, pub))
	protected.Put("/quotes/:id/items", manage, quote.ReplaceItemsHandler())
	protected.Delete("/quotes/:id", manage, quote.DeleteQuoteHandler(store))
	protected.Post("/quotes/:id/convert", manage, quote.ConvertQuoteHandler(store))

	// Invoices and payments
	protected.Get("/invoices", read, invoice.ListInvoicesHandler())
	protected.Post("/invoices", manage, invoice.CreateInvoiceHandler())
	protected.Get("/invoices/:id", read, invoice.GetInvoiceHandler())
	protected.Patch("/invoices/:id", manage, invoice.UpdateInvoiceHandler(store, pub))
	protected.Put("/invoices/:id/items", manage, invoice.ReplaceItemsHandler())
	protected.Delete("/invoices/:id", manage, invoice.DeleteInvoiceHandler(store))
	protected.Get("/invoices/:id/payments", read, invoice.ListPaymentsHandler())
	protected.Post("/invoices/:id/payments", manage, invoice.CreatePaymentHandler(store, pub))
	protected.Delete("/invoices/:id/payments/:paymentId", manage, invoice.DeletePaymentHandler(store, pub))
	protected.Post("/invoices/:id/mark-paid", manage, invoice.MarkPaidHandler(store, pub))

	// Finance records
	protected.Get("/finances/summary", read, finance.SummaryHandler(store, ttl))
	protected.Get("/finances/export", manage, finance.ExportHandler())
	protected.Get("/finances", read, finance.ListFinancesHandler())
	protected.Post("/finances", manage, finance.CreateFinanceHandler(store))
	protected.Get("/finances/:id", read, finance.GetFinanceHandler())
	protected.Patch("/finances/:id", manage, finance.UpdateFinanceHandler(store))
	protected.Delete("/finances/:id", manage, finance.DeleteFinanceHandler(store))

	// Ledger
	protected.Get("/ledger/export", manage, ledger.ExportHandler())
	protected.Get("/ledger", read, ledger.ListEntriesHandler())

	// Dashboard
	protected.Get("/dashboard/summary", read, dashboard.SummaryHandler(store, ttl))
	protected.Get("/dashboard/revenue-chart", read, dashboard.RevenueChartHandler())

	// Audit logs
	protected.Get("/audit-logs", read, audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", manage, audit.UndoAuditLogHandler(store))

	return app
}
