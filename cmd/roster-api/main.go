package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/class-roster-api/api/swagger"
	"github.com/noah-isme/class-roster-api/internal/handler"
	internalmiddleware "github.com/noah-isme/class-roster-api/internal/middleware"
	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/internal/repository"
	"github.com/noah-isme/class-roster-api/internal/repository/memory"
	"github.com/noah-isme/class-roster-api/internal/service"
	"github.com/noah-isme/class-roster-api/pkg/cache"
	"github.com/noah-isme/class-roster-api/pkg/config"
	"github.com/noah-isme/class-roster-api/pkg/database"
	"github.com/noah-isme/class-roster-api/pkg/jobs"
	"github.com/noah-isme/class-roster-api/pkg/logger"
	"github.com/noah-isme/class-roster-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/class-roster-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/class-roster-api/pkg/middleware/requestid"
)

// @title Class Roster API
// @version 1.0.0
// @description Seat-limited class enrollment, entitlement ledger and roll-call.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type rosterBackend interface {
	FindSession(ctx context.Context, id string) (*models.ClassSession, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error)
	ExistsParticipant(ctx context.Context, sessionID, participantID string) (bool, error)
	Insert(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	CompareAndSetStatus(ctx context.Context, id string, expected, next models.EnrollmentStatus) error
}

type ledgerBackend interface {
	FindByID(ctx context.Context, id string) (*models.Entitlement, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Entitlement, error)
	ListByOwner(ctx context.Context, customerID string, today time.Time) ([]models.Entitlement, error)
	Consume(ctx context.Context, id string, today time.Time) (*models.Entitlement, error)
	Refund(ctx context.Context, id string) (*models.Entitlement, error)
}

type directoryBackend interface {
	Lookup(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Participant, error)
}

type tierBackend interface {
	GetTierName(ctx context.Context, tierID string) (string, error)
}

type backends struct {
	roster       rosterBackend
	ledger       ledgerBackend
	participants directoryBackend
	tiers        tierBackend
	checks       []handler.ReadinessCheck
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackends(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open storage", zap.String("driver", cfg.Storage), zap.Error(err))
	}
	defer store.close()

	metricsSvc := service.NewMetricsService()
	clock := service.NewClock(nil, cfg.Location())

	var rosterCache *service.CacheService
	if cfg.Roster.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("roster cache disabled: redis unavailable", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close() //nolint:errcheck
			rosterCache = service.NewCacheService(cacheRepo, metricsSvc, cfg.Roster.CacheTTL, logr, true)
			store.checks = append(store.checks, handler.ReadinessCheck{Name: "cache", Check: cacheRepo.Ping})
		}
	}

	publisher := messaging.Publisher(messaging.NopPublisher{Logger: logr})
	if cfg.Events.Enabled {
		producer, err := messaging.NewProducer(cfg.Events.AMQPURL, cfg.Events.Exchange, logr)
		if err != nil {
			logr.Warn("roster events disabled: broker unavailable", zap.Error(err))
		} else {
			publisher = producer
		}
	}

	events := service.NewRosterEvents(publisher, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: 256,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr,
	}, clock, metricsSvc, logr)

	events.Start(ctx)
	defer events.Stop()

	entitlementSvc := service.NewEntitlementService(store.ledger, store.tiers, clock, metricsSvc, logr)
	var rosterSvc *service.RosterService
	if rosterCache != nil {
		rosterSvc = service.NewRosterService(store.roster, store.participants, entitlementSvc, rosterCache, cfg.Roster.CacheTTL, clock, logr)
	} else {
		rosterSvc = service.NewRosterService(store.roster, store.participants, entitlementSvc, nil, 0, clock, logr)
	}
	hooks := service.RosterHooks{Cache: rosterSvc, Events: events, Metrics: metricsSvc}
	enrollmentSvc := service.NewEnrollmentService(store.roster, entitlementSvc, clock, hooks, validator.New(), logr)
	attendanceSvc := service.NewAttendanceService(store.roster, clock, hooks, cfg.Attendance.BatchConcurrency, logr)
	participantSvc := service.NewParticipantService(store.participants, logr)
	exportSvc := service.NewRollCallExportService(rosterSvc, nil, clock)
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, authSvc, handler.Handlers{
		Roster:       handler.NewRosterHandler(rosterSvc, exportSvc),
		Enrollments:  handler.NewEnrollmentHandler(enrollmentSvc),
		Attendance:   handler.NewAttendanceHandler(attendanceSvc),
		Entitlements: handler.NewEntitlementHandler(entitlementSvc),
		Participants: handler.NewParticipantHandler(participantSvc),
		Metrics:      handler.NewMetricsHandler(metricsSvc, store.checks...),
	}, logr)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openBackends(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*backends, error) {
	switch cfg.Storage {
	case config.StorageDriverMemory:
		roster := memory.NewRosterStore()
		ledger := memory.NewEntitlementStore()
		dir := memory.NewDirectory()
		if cfg.SeedFile != "" {
			if err := memory.LoadSeed(cfg.SeedFile, roster, ledger, dir); err != nil {
				return nil, fmt.Errorf("load seed %s: %w", cfg.SeedFile, err)
			}
			logr.Info("memory storage seeded", zap.String("path", cfg.SeedFile))
		}
		return &backends{roster: roster, ledger: ledger, participants: dir, tiers: dir, close: func() {}}, nil
	case config.StorageDriverPostgres, "":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			ran, err := database.Migrate(ctx, db, cfg.Database.MigrationsDir)
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logr.Info("migrations applied", zap.Strings("versions", ran))
		}
		return &backends{
			roster:       repository.NewEnrollmentRepository(db),
			ledger:       repository.NewEntitlementRepository(db),
			participants: repository.NewParticipantRepository(db),
			tiers:        repository.NewTierRepository(db),
			checks:       []handler.ReadinessCheck{{Name: "database", Check: db.PingContext}},
			close:        func() { _ = db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage)
	}
}
