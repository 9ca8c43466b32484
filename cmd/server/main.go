package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/govindrajpootecosoul/project-tracker/internal/authz"
	"github.com/govindrajpootecosoul/project-tracker/internal/cache"
	"github.com/govindrajpootecosoul/project-tracker/internal/collab"
	"github.com/govindrajpootecosoul/project-tracker/internal/config"
	"github.com/govindrajpootecosoul/project-tracker/internal/department"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/handlers"
	"github.com/govindrajpootecosoul/project-tracker/internal/middleware"
	"github.com/govindrajpootecosoul/project-tracker/internal/migration"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/notification"
	"github.com/govindrajpootecosoul/project-tracker/internal/realtime"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository/memory"
	"github.com/govindrajpootecosoul/project-tracker/internal/request"
	"github.com/govindrajpootecosoul/project-tracker/internal/routes"
	"github.com/govindrajpootecosoul/project-tracker/internal/task"
	"github.com/govindrajpootecosoul/project-tracker/internal/temporal"
	"github.com/govindrajpootecosoul/project-tracker/internal/temporal/activities"
	"github.com/govindrajpootecosoul/project-tracker/internal/temporal/workflows"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// repositories is the storage surface the services run on, whichever
// driver backs it.
type repositories struct {
	requests      repository.RequestRepository
	tasks         repository.TaskRepository
	invites       repository.InviteRepository
	targets       repository.TargetRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
}

type application struct {
	config         *config.Config
	db             *sql.DB
	repos          repositories
	bus            eventbus.Bus
	temporalClient tc.Client
	logger         zerolog.Logger
	notifications  notification.Service
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	app := &application{
		config: cfg,
		bus:    eventbus.New(logger),
		logger: logger,
	}

	if err := app.openStorage(); err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to initialise storage")
	}
	if app.db != nil {
		defer app.db.Close()
	}

	// Initialize notification service.
	notifiers := []notification.Notifier{notification.NewBusNotifier(app.bus)}
	if cfg.Email.NotifyUsers {
		emailNotifier, err := notification.NewEmailNotifier(cfg.Email, app.repos.users, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure email notifier")
		}
		notifiers = append(notifiers, emailNotifier)
	}
	app.notifications = notification.NewService(app.repos.notifications, logger, notifiers...)

	router, hub, temporalWorker := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, hub, temporalWorker, logger)

	if app.temporalClient != nil {
		app.temporalClient.Close()
	}
	logger.Info().Msg("Application terminated.")
}

// openStorage connects the configured storage driver.
func (app *application) openStorage() error {
	switch app.config.Storage.Driver {
	case "memory":
		repos := memory.NewRepositories()
		seedDirectory(repos, app.config.Seed, app.logger)
		app.repos = repositories{
			requests:      repos.Requests,
			tasks:         repos.Tasks,
			invites:       repos.Invites,
			targets:       repos.Targets,
			users:         repos.Users,
			notifications: repos.Notifications,
		}
		app.logger.Warn().Msg("Running on the in-memory store; data is lost on restart")
		return nil
	default:
		db, err := sql.Open("postgres", app.config.DatabaseURL)
		if err != nil {
			return err
		}
		if err := pingWithRetry(db, app.logger); err != nil {
			db.Close()
			return err
		}
		if err := migration.Up(db, app.logger); err != nil {
			db.Close()
			return err
		}
		app.db = db
		app.repos = repositories{
			requests:      repository.NewRequestRepository(db),
			tasks:         repository.NewTaskRepository(db),
			invites:       repository.NewInviteRepository(db),
			targets:       repository.NewTargetRepository(db),
			users:         repository.NewUserRepository(db),
			notifications: repository.NewNotificationRepository(db),
		}
		return nil
	}
}

func pingWithRetry(db *sql.DB, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backoff := retry.WithMaxRetries(6, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn().Err(err).Msg("Database not reachable yet")
			return retry.RetryableError(err)
		}
		return nil
	})
}

// initRouter wires the services and returns the router together with the
// realtime hub and the Temporal worker (nil when Temporal is disabled).
func (app *application) initRouter(logger zerolog.Logger) (http.Handler, *realtime.Hub, worker.Worker) {
	cfg := app.config

	var store cache.Store = cache.NewMemoryStore()
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		client, err := cache.Connect(cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		store = cache.NewRedisStore(client, cfg.Cache.TTL*4)
	}
	roster := department.NewRoster(app.repos.users, cache.New[[]models.User]("departments", store, cfg.Cache.TTL, logger), cfg.Cache.TTL)

	// Mailer for invites
	inviteMailer, err := notification.NewInviteMailer(cfg.Email, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure invite mailer")
	}

	// Services
	requestService := request.NewService(app.repos.requests, app.repos.tasks, app.repos.users, roster, app.notifications, app.bus, logger)
	var reflector task.Reflector = task.NewDirectReflector(requestService)
	var temporalWorker worker.Worker
	if cfg.Temporal.Enabled {
		temporalWorker = app.startTemporalWorker(requestService, logger)
		reflector = temporal.NewWorkflowReflector(app.temporalClient, workflows.TaskStatusSyncWorkflow, reflector, logger)
	}
	taskService := task.NewService(app.repos.tasks, reflector, app.bus, logger)
	inviteService := collab.NewService(app.repos.invites, app.repos.targets, app.repos.users, app.notifications, inviteMailer, app.bus,
		collab.Options{InviteURLTemplate: cfg.Email.InviteURLTemplate}, logger)

	hub := realtime.NewHub(app.bus, authz.UserIDFromRequest, originChecker(cfg.AllowedOrigins), logger)

	var ready http.HandlerFunc
	if app.db != nil {
		ready = handlers.ReadinessCheck(app.db)
	} else {
		ready = handlers.ReadinessCheck(nil)
	}

	router := routes.NewRouter(routes.Handlers{
		Auth:          handlers.NewAuthHandler(app.repos.users, cfg.JWTSecret, logger),
		Requests:      handlers.NewRequestHandler(requestService, logger),
		Tasks:         handlers.NewTaskHandler(taskService, logger),
		Invites:       handlers.NewInviteHandler(inviteService, logger),
		Notifications: handlers.NewNotificationHandler(app.notifications, logger),
		Departments:   handlers.NewDepartmentHandler(roster, logger),
		Events:        hub,
		Ready:         ready,
	})
	return router, hub, temporalWorker
}

func (app *application) startTemporalWorker(requests request.Service, logger zerolog.Logger) worker.Worker {
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  app.config.Temporal.HostPort,
		Namespace: app.config.Temporal.Namespace,
		Logger:    temporal.NewTemporalAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	app.temporalClient = temporalClient

	w := worker.New(temporalClient, temporal.TaskQueueName, worker.Options{})

	w.RegisterWorkflow(workflows.TaskStatusSyncWorkflow)
	w.RegisterActivity(&activities.Activities{Requests: requests})

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, hub *realtime.Hub, temporalWorker worker.Worker, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Websocket connections are hijacked and not tracked by Shutdown.
	hub.Close()

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	if temporalWorker != nil {
		logger.Info().Msg("Stopping Temporal worker...")
		temporalWorker.Stop()
		logger.Info().Msg("Temporal worker stopped.")
	}
}
