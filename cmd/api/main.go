package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/triage-service/internal/api/http"
	"github.com/spec-kit/triage-service/internal/api/http/handlers"
	"github.com/spec-kit/triage-service/internal/audit"
	"github.com/spec-kit/triage-service/internal/auth"
	"github.com/spec-kit/triage-service/internal/changelog"
	"github.com/spec-kit/triage-service/internal/config"
	"github.com/spec-kit/triage-service/internal/domain"
	"github.com/spec-kit/triage-service/internal/events"
	"github.com/spec-kit/triage-service/internal/observability"
	"github.com/spec-kit/triage-service/internal/persistence"
	"github.com/spec-kit/triage-service/internal/repository"
	"github.com/spec-kit/triage-service/internal/service"
	"github.com/spec-kit/triage-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	patientRepo := repository.NewPatientRepository(pool)
	caseRepo := repository.NewTriageCaseRepository(pool)

	var auditStore audit.Store
	if pool != nil {
		auditStore = repository.NewAuditLogRepository(pool)
	} else {
		logger.Warn("audit ledger running in-memory; entries will not survive restart")
		auditStore = audit.NewMemoryStore()
	}

	validator := audit.NewValidator()
	validator.Register(domain.ResourceTypeUser, userRepo.Exists)
	validator.Register(domain.ResourceTypePatient, patientRepo.Exists)
	validator.Register(domain.ResourceTypeTriageCase, caseRepo.Exists)

	appender := audit.NewAppender(auditStore, validator, logger,
		audit.WithMaxAttempts(cfg.Audit.AppendMaxAttempts))

	projector := changelog.NewProjector(auditStore, func(ctx context.Context, actorID string) string {
		user, err := userRepo.GetByID(ctx, actorID)
		if err != nil {
			return ""
		}
		return user.Email
	})
	changelogService := service.NewChangelogService(projector, caseRepo, redis.Client,
		cfg.Audit.ChangelogCacheTTL(), logger)

	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: userRepo,
		Recorder: appender,
		Logger:   logger,
	})
	patientService := service.NewPatientService(patientRepo, appender, changelogService, logger)
	caseService := service.NewCaseService(service.CaseDependencies{
		CaseRepo:    caseRepo,
		PatientRepo: patientRepo,
		Recorder:    appender,
		Dispatcher:  dispatcher,
		Cache:       changelogService,
		Logger:      logger,
	})
	auditQueryService := service.NewAuditQueryService(auditStore, appender, logger)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)
	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics,
		time.Duration(cfg.App.RequestTimeoutSeconds)*time.Second)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, auditStore),
		Users:          handlers.NewUsersHandler(authService),
		Patients:       handlers.NewPatientsHandler(patientService, changelogService),
		Cases:          handlers.NewCasesHandler(caseService, changelogService),
		Audit:          handlers.NewAuditHandler(auditQueryService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
