// Package main provides the Sagaflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/ispforge/sagaflow/pkg/eventbus"
	"github.com/ispforge/sagaflow/pkg/persistence"
	"github.com/ispforge/sagaflow/pkg/saga"
	"github.com/ispforge/sagaflow/pkg/services"
	"github.com/ispforge/sagaflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *saga.Registry
	eventBus    eventbus.EventBus
	lock        saga.RunLock
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *saga.Registry,
	eventBus eventbus.EventBus,
	lock saga.RunLock,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		lock:        lock,
	}
}

func (a *API) App() *fiber.App {
	executorOpts := []saga.ExecutorOption{saga.WithRunLock(a.lock)}
	orchestrationOpts := []services.OrchestrationOption{}

	if a.eventBus != nil {
		executorOpts = append(executorOpts, saga.WithEventPublisher(a.eventBus))
		orchestrationOpts = append(orchestrationOpts, services.WithPublisher(a.eventBus))
	}

	executor := saga.NewExecutor(a.persistence, a.logger, executorOpts...)
	orchestration := services.NewOrchestration(a.persistence, a.registry, executor, a.logger, orchestrationOpts...)
	exporter := services.NewExporter(a.persistence)

	handlers := web.NewAPIHandlers(orchestration, exporter)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Sagaflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.StartWorkflow)
	w.Get("/stats", handlers.GetStatistics)
	w.Get("/export", handlers.ExportWorkflows)
	w.Post("/provision", handlers.ProvisionSubscriber)
	w.Post("/deprovision", handlers.DeprovisionSubscriber)
	w.Post("/activate", handlers.ActivateService)
	w.Post("/suspend", handlers.SuspendService)
	w.Post("/change-plan", handlers.ChangeServicePlan)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/retry", handlers.RetryWorkflow)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
