// Package main provides the routepack API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/routepack/routepack/pkg/actions"
	"github.com/routepack/routepack/pkg/eventbus"
	"github.com/routepack/routepack/pkg/integrity"
	"github.com/routepack/routepack/pkg/notifications"
	"github.com/routepack/routepack/pkg/persistence"
	"github.com/routepack/routepack/pkg/routing"
	"github.com/routepack/routepack/pkg/signatures"
	"github.com/routepack/routepack/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	notifier := notifications.NewEventBusNotifier(a.eventBus, a.logger)
	executor := actions.NewExecutor(a.persistence, notifier, notifier, a.logger)
	engine := routing.NewEngine(a.persistence, executor, notifier, a.eventBus, a.logger)
	signatureService := signatures.NewService(a.persistence, a.logger)
	detector := integrity.NewDetector(a.persistence, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(a.persistence, engine, signatureService, detector, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("routepack API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Patch("/:id", handlers.UpdateTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)

	p := app.Group("/packages")
	p.Get("/", handlers.ListPackages)
	p.Post("/", handlers.CreatePackage)
	p.Get("/:id", handlers.GetPackage)
	p.Post("/:id/submit", handlers.SubmitPackage)
	p.Post("/:id/actions", handlers.TakeAction)
	p.Post("/:id/hold", handlers.HoldPackage)
	p.Post("/:id/resume", handlers.ResumePackage)
	p.Get("/:id/history", handlers.GetHistory)
	p.Get("/:id/return-nodes", handlers.GetReturnNodes)
	p.Get("/:id/pending-offices", handlers.GetPendingOffices)
	p.Get("/:id/can-act", handlers.CanAct)

	p.Post("/:id/tabs", handlers.AddTab)
	p.Post("/:id/tabs/:tab/documents", handlers.UploadDocument)

	p.Get("/:id/signatures", handlers.ListSignatures)
	p.Post("/:id/signatures", handlers.CreateSignature)
	p.Post("/:id/signatures/:signatureId/verify", handlers.VerifySignature)

	p.Get("/:id/violations", handlers.ListViolations)
	p.Post("/:id/violations/:violationId/resolve", handlers.ResolveViolation)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
