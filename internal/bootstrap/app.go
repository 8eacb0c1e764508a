// Package bootstrap assembles the service graph shared by the API server and
// the operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"

	"github.com/spec-kit/helpdesk-intake/internal/adapters/llm"
	"github.com/spec-kit/helpdesk-intake/internal/adapters/mailbox"
	"github.com/spec-kit/helpdesk-intake/internal/adapters/mailer"
	"github.com/spec-kit/helpdesk-intake/internal/adapters/ticketing/jira"
	"github.com/spec-kit/helpdesk-intake/internal/adapters/ticketing/servicenow"
	httptransport "github.com/spec-kit/helpdesk-intake/internal/api/http"
	"github.com/spec-kit/helpdesk-intake/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-intake/internal/auth"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/persistence"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	"github.com/spec-kit/helpdesk-intake/internal/service"
	"github.com/spec-kit/helpdesk-intake/internal/tracking"
	"github.com/spec-kit/helpdesk-intake/internal/worker"
	"github.com/spec-kit/helpdesk-intake/pkg/clock"
)

const memoryRunCapacity = 200

// Overrides replaces adapters that would otherwise be built from config.
// Nil fields use the configured backend.
type Overrides struct {
	Source     service.MailSource
	Filter     service.AutoReplyFilter
	Classifier service.Classifier
	Ticketing  service.Ticketing
	Mailer     service.Mailer
	Clock      clock.Clock
}

// App is the assembled service graph.
type App struct {
	Config     *config.Config
	Settings   *config.Settings
	Logger     *zap.Logger
	Clock      clock.Clock
	Metrics    *observability.Metrics
	Dispatcher events.Dispatcher
	Store      *tracking.Store
	Runs       repository.CycleRunRepository
	Intake     *service.IntakeService
	Reconcile  *service.ReconcileService
	Scheduler  *worker.Scheduler
	Tokens     *auth.TokenManager

	postgres *persistence.Postgres
	redis    *persistence.Redis
}

// Build connects storage and adapters and wires the services.
func Build(ctx context.Context, cfg *config.Config, settings *config.Settings, logger *zap.Logger, ov Overrides) (*App, error) {
	clk := ov.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	app := &App{
		Config:     cfg,
		Settings:   settings,
		Logger:     logger,
		Clock:      clk,
		Metrics:    observability.NewMetrics(),
		Dispatcher: events.NewInMemoryDispatcher(),
		Store:      tracking.NewStore(),
		Tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, clk),
	}

	if err := app.connectStorage(ctx); err != nil {
		app.Close()
		return nil, err
	}

	var gmailSvc *gmail.Service
	needGmail := ov.Source == nil || (ov.Mailer == nil && cfg.Notification.Backend == config.NotifyGmail)
	if needGmail {
		svc, err := mailbox.NewGmailService(ctx, cfg.Gmail)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("gmail: %w", err)
		}
		gmailSvc = svc
	}

	source := ov.Source
	if source == nil {
		seen := repository.NewMemorySeenMessageRepository(cfg.Gmail.SeenTTL, clk.Now)
		if app.redis.Enabled() {
			seen = repository.NewSeenMessageRepository(app.redis.Client, cfg.Gmail.SeenTTL)
		}
		source = mailbox.NewGmailSource(gmailSvc, cfg.Gmail, seen, logger)
	}

	filter := ov.Filter
	if filter == nil {
		filter = mailbox.AutoReplyDetector{}
	}

	classifier := ov.Classifier
	if classifier == nil {
		classifier = llm.NewClassifier(cfg.LLM, settings, logger)
	}

	ticketing := ov.Ticketing
	if ticketing == nil {
		t, err := newTicketing(cfg, settings, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		ticketing = t
	}

	mail := ov.Mailer
	if mail == nil {
		mail = newMailer(cfg, gmailSvc, logger)
	}
	notifier, err := service.NewNotificationService(mail, cfg.Notification, settings, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("notification templates: %w", err)
	}

	timeouts := service.Timeouts{
		Classify:  cfg.Timeouts.Classify,
		Ticketing: cfg.Timeouts.Ticketing,
		Create:    cfg.Timeouts.Create,
		Notify:    cfg.Timeouts.Notify,
	}

	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		Ticketing: ticketing,
		Fallback:  settings.Fallback(),
		Timeout:   cfg.Timeouts.Ticketing,
		Metrics:   app.Metrics,
		Logger:    logger,
	})

	app.Intake = service.NewIntakeService(service.IntakeConfig{
		SupportThreshold:  settings.Thresholds.Support,
		CategoryThreshold: settings.Thresholds.Category,
		DefaultCategory:   settings.DefaultCategory,
		Concurrency:       cfg.Scheduler.Concurrency,
		Timeouts:          timeouts,
	}, service.IntakeDependencies{
		Filter:     filter,
		Classifier: classifier,
		Ticketing:  ticketing,
		Assignment: assignment,
		Notifier:   notifier,
		Store:      app.Store,
		Dispatcher: app.Dispatcher,
		Metrics:    app.Metrics,
		Logger:     logger,
		Clock:      clk,
	})

	app.Reconcile = service.NewReconcileService(service.ReconcileConfig{
		Retention:         cfg.Scheduler.Retention,
		SendStatusUpdates: settings.SendStatusUpdates,
		Timeouts:          timeouts,
	}, service.ReconcileDependencies{
		Ticketing:  ticketing,
		Notifier:   notifier,
		Store:      app.Store,
		Dispatcher: app.Dispatcher,
		Metrics:    app.Metrics,
		Logger:     logger,
		Clock:      clk,
	})

	service.NewAuditService(app.Dispatcher, app.Metrics, logger).RegisterHandlers()

	app.Scheduler = worker.NewScheduler(worker.SchedulerConfig{
		FetchInterval:     cfg.Scheduler.FetchInterval,
		ReconcileInterval: cfg.Scheduler.ReconcileInterval,
		TickInterval:      cfg.Scheduler.TickInterval,
		InitialLookback:   cfg.Scheduler.InitialLookback,
		FetchTimeout:      cfg.Timeouts.Fetch,
	}, worker.SchedulerDependencies{
		Source:     source,
		Intake:     app.Intake,
		Reconcile:  app.Reconcile,
		Store:      app.Store,
		Runs:       app.Runs,
		Dispatcher: app.Dispatcher,
		Metrics:    app.Metrics,
		Logger:     logger,
		Clock:      clk,
	})

	logger.Info("service graph ready",
		zap.String("ticketing", cfg.Ticketing.Backend),
		zap.String("notify", cfg.Notification.Backend),
		zap.Bool("postgres", app.postgres.Enabled()),
		zap.Bool("redis", app.redis.Enabled()))
	return app, nil
}

func (a *App) connectStorage(ctx context.Context) error {
	pg, err := persistence.NewPostgres(ctx, a.Config.Postgres, a.Logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	a.postgres = pg

	if pg.Enabled() {
		if a.Config.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), a.Logger); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
		}
		a.Runs = repository.NewCycleRunRepository(pg.PoolHandle())
	} else {
		a.Runs = repository.NewMemoryCycleRunRepository(memoryRunCapacity)
	}

	a.redis = persistence.NewRedis(ctx, a.Config.Redis, a.Logger)
	return nil
}

func newTicketing(cfg *config.Config, settings *config.Settings, logger *zap.Logger) (service.Ticketing, error) {
	switch cfg.Ticketing.Backend {
	case config.TicketingJira:
		client, err := jira.New(cfg.Ticketing.Jira, settings, &http.Client{}, logger)
		if err != nil {
			return nil, fmt.Errorf("jira: %w", err)
		}
		return client, nil
	default:
		return servicenow.New(cfg.Ticketing.ServiceNow, settings, &http.Client{}, logger), nil
	}
}

func newMailer(cfg *config.Config, gmailSvc *gmail.Service, logger *zap.Logger) service.Mailer {
	switch cfg.Notification.Backend {
	case config.NotifyGmail:
		return mailer.NewGmailMailer(gmailSvc, cfg.Gmail.User, logger)
	case config.NotifyLog:
		return mailer.NewLogMailer(logger)
	default:
		return mailer.NewSMTPMailer(cfg.Notification, logger)
	}
}

// HTTP builds the fiber app serving the operator API.
func (a *App) HTTP() *fiber.App {
	server := httptransport.NewApp(a.Config.App.Name)
	httptransport.RegisterMiddlewares(server, a.Logger, a.Metrics, a.Config.App.RequestTimeout())

	deps := map[string]handlers.Pinger{"postgres": a.postgres, "redis": a.redis}
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(a.Config.App.Name, a.Config.App.Version, a.Scheduler, deps, a.Logger),
		Metrics:        handlers.NewMetricsHandler(a.Metrics),
		Auth:           handlers.NewAuthHandler(a.Tokens, a.Config.Auth.OperatorKeyHash),
		Cycles:         handlers.NewCyclesHandler(a.Scheduler, a.Runs),
		Tickets:        handlers.NewTicketsHandler(a.Store, a.Scheduler, a.Clock),
		AuthMiddleware: auth.NewAuthMiddleware(a.Tokens, a.Config.Auth.Enabled()),
	})
	return server
}

// Close releases storage connections.
func (a *App) Close() {
	a.redis.Close()
	a.postgres.Close()
}
