package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/backend"
	"github.com/ternarybob/cookiepool/internal/browser/chrome"
	"github.com/ternarybob/cookiepool/internal/browser/memory"
	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/handlers"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/logs"
	"github.com/ternarybob/cookiepool/internal/services/analytics"
	"github.com/ternarybob/cookiepool/internal/services/auth"
	"github.com/ternarybob/cookiepool/internal/services/cleanup"
	"github.com/ternarybob/cookiepool/internal/services/credentials"
	"github.com/ternarybob/cookiepool/internal/services/events"
	"github.com/ternarybob/cookiepool/internal/services/gate"
	"github.com/ternarybob/cookiepool/internal/services/occupancy"
	"github.com/ternarybob/cookiepool/internal/services/scheduler"
	"github.com/ternarybob/cookiepool/internal/services/sessions"
	"github.com/ternarybob/cookiepool/internal/services/state"
	"github.com/ternarybob/cookiepool/internal/storage"
)

// Job names registered with the scheduler
const (
	JobValidate       = "session-validate"
	JobGatePoll       = "session-gate-poll"
	JobAnalyticsFlush = "analytics-flush"
	JobLogPrune       = "operation-log-prune"
)

// shutdownTimeout bounds the suspend cleanup on Close
const shutdownTimeout = 20 * time.Second

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager
	Clock          clockwork.Clock

	Browser interfaces.Browser
	Backend *backend.Client

	// Session services
	StateService     *state.Service
	AuthService      *auth.Service
	AnalyticsService *analytics.Service
	SessionManager   *sessions.Manager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Operation logs
	LogService  *logs.Service
	LogConsumer *logs.Consumer

	// HTTP handlers
	APIHandler           *handlers.APIHandler
	SessionHandler       *handlers.SessionHandler
	OperationLogsHandler *handlers.OperationLogsHandler
	SchedulerHandler     *handlers.SchedulerHandler
	WSHandler            *handlers.WebSocketHandler
	EventSubscriber      *handlers.EventSubscriber
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
		Clock:     clockwork.NewRealClock(),
	}

	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)

	// Operation logs: every logger derived with a correlation id feeds the consumer
	app.LogService = logs.NewService(app.StorageManager.OperationLogStorage(), logs.DefaultRetention, app.Logger)
	app.LogConsumer = logs.NewConsumer(
		app.StorageManager.OperationLogStorage(),
		app.EventService,
		app.Logger,
		app.Config.Logging.MinEventLevel,
	)
	if err := app.LogConsumer.Start(); err != nil {
		app.closePartial()
		return nil, fmt.Errorf("failed to start log consumer: %w", err)
	}
	app.Logger.SetChannel("context", app.LogConsumer.GetChannel())

	if err := app.initServices(); err != nil {
		app.closePartial()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.initScheduler(); err != nil {
		app.closePartial()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	logger.Info().
		Str("browser_mode", cfg.Browser.Mode).
		Bool("analytics_enabled", cfg.Analytics.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger) and resolves {key}
// references in the config from the seeded key/value store
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	common.ApplyKeyReplacements(a.ctx, a.Config, storageManager.KeyValueStorage(), a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Bool("in_memory", a.Config.Storage.Badger.InMemory).
		Msg("Storage layer initialized")
	return nil
}

// initServices builds the session stack bottom-up and starts the manager
func (a *App) initServices() error {
	browser, err := a.newBrowser()
	if err != nil {
		return err
	}
	a.Browser = browser

	vault := storage.NewTokenVault(a.Logger, a.Config, a.StorageManager)

	a.Backend = backend.NewClient(
		backend.WithBaseURL(a.Config.Backend.BaseURL),
		backend.WithTimeout(common.ParseDuration(a.Config.Backend.RequestTimeout, 15*time.Second)),
		backend.WithRateLimit(a.Config.Backend.RateLimit),
		backend.WithLogger(a.Logger),
		backend.WithTokenSource(vault.GetToken),
		backend.WithUnauthorizedHandler(func(ctx context.Context) {
			// Any 401 ends the login; the manager tears down before the token goes
			if a.SessionManager != nil {
				a.SessionManager.TokenRejected()
			}
		}),
	)

	a.StateService = state.NewService(a.StorageManager.StateStorage(), a.Clock, a.Logger)
	a.AuthService = auth.NewService(a.Backend, vault, a.Logger)
	a.AnalyticsService = analytics.NewService(a.Backend, a.StateService, a.Config.Analytics, a.Clock, a.Logger)

	injector := credentials.NewInjector(a.Browser, a.StateService, a.Config.Session, a.Clock, a.Logger)
	a.SessionManager = sessions.NewManager(sessions.Deps{
		Browser:      a.Browser,
		Backend:      a.Backend,
		Events:       a.EventService,
		State:        a.StateService,
		Auth:         a.AuthService,
		Injector:     injector,
		Tracker:      occupancy.NewTracker(a.Browser, a.StateService, a.Logger),
		Gate:         gate.NewGate(a.Backend, a.Config.Session.DefaultMaxSessions, a.Logger),
		Cleanup:      cleanup.NewOrchestrator(a.Browser, a.Backend, a.StateService, a.Logger),
		Analytics:    a.AnalyticsService,
		OpenOnSwitch: a.Config.Browser.OpenOnSwitch,
	}, a.Logger)

	if err := a.SessionManager.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start session manager: %w", err)
	}
	return nil
}

func (a *App) newBrowser() (interfaces.Browser, error) {
	switch a.Config.Browser.Mode {
	case "memory":
		a.Logger.Warn().Msg("Using in-memory browser, no real browser is driven")
		return memory.New(), nil
	default:
		browser, err := chrome.New(a.ctx, a.Config.Browser, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		return browser, nil
	}
}

// initHandlers builds the control surface
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(a.SessionManager, a.Logger)
	a.OperationLogsHandler = handlers.NewOperationLogsHandler(a.LogService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.SessionManager, a.Logger)
	a.EventSubscriber = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)
}

// initScheduler registers the interval triggers and starts the cron runner
func (a *App) initScheduler() error {
	svc := scheduler.NewService(a.Logger)
	a.SchedulerService = svc
	a.SchedulerHandler = handlers.NewSchedulerHandler(svc)

	jobs := []struct {
		name     string
		schedule string
		desc     string
		enabled  bool
		run      func(ctx context.Context) error
	}{
		{JobValidate, a.Config.Session.ValidateSchedule, "Validate the auth token and the current account's session", true,
			func(ctx context.Context) error {
				_, err := a.SessionManager.RunValidation(ctx)
				return err
			}},
		{JobGatePoll, a.Config.Session.GateSchedule, "Evict the current account when its quota is exceeded", true,
			a.SessionManager.PollGate},
		{JobAnalyticsFlush, a.Config.Analytics.FlushSchedule, "Send queued analytics events", a.Config.Analytics.Enabled,
			func(ctx context.Context) error {
				_, err := a.AnalyticsService.Flush(ctx)
				return err
			}},
		{JobLogPrune, "@every 10m", "Trim stored operation logs and compact the database", true,
			func(ctx context.Context) error {
				if err := a.LogService.Prune(ctx); err != nil {
					return err
				}
				return a.StorageManager.Compact()
			}},
	}

	for _, job := range jobs {
		if !job.enabled {
			continue
		}
		run := job.run
		if err := svc.RegisterJob(job.name, job.schedule, job.desc, func() error {
			return run(a.ctx)
		}); err != nil {
			return fmt.Errorf("register %s: %w", job.name, err)
		}
	}

	return svc.Start()
}

// Close drives the suspend trigger, then releases everything in reverse order
// of construction
func (a *App) Close() error {
	var errs []error

	if a.SessionManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.SessionManager.Suspend(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Suspend cleanup incomplete")
		}
		cancel()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}

	if a.AnalyticsService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := a.AnalyticsService.Flush(ctx); err != nil {
			a.Logger.Debug().Err(err).Msg("Final analytics flush failed")
		}
		cancel()
	}

	if a.SessionManager != nil {
		a.SessionManager.Stop()
	}

	if a.EventSubscriber != nil {
		a.EventSubscriber.Close()
	}

	a.closePartial()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}

// closePartial releases the lower layers; it is also the unwind path of a failed New
func (a *App) closePartial() {
	if a.Browser != nil {
		if err := a.Browser.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close browser")
		}
		a.Browser = nil
	}

	if a.LogConsumer != nil {
		if err := a.LogConsumer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log consumer")
		}
		a.LogConsumer = nil
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
		a.EventService = nil
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.StorageManager = nil
	}

	a.cancelCtx()
}
