package main // Entry point package

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/trip-report-tracker/internal/bootstrap"
	"github.com/iliyamo/trip-report-tracker/internal/config"
	"github.com/iliyamo/trip-report-tracker/internal/database"
	"github.com/iliyamo/trip-report-tracker/internal/external"
	"github.com/iliyamo/trip-report-tracker/internal/handler"
	"github.com/iliyamo/trip-report-tracker/internal/middleware"
	"github.com/iliyamo/trip-report-tracker/internal/queue"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
	"github.com/iliyamo/trip-report-tracker/internal/router"
	"github.com/iliyamo/trip-report-tracker/internal/service"
	"github.com/iliyamo/trip-report-tracker/internal/storage"
)

func main() {
	resetAdmin := flag.Bool("reset-admin-password", false, "reset the default admin password and exit")
	verifyAdmin := flag.String("verify-admin-password", "", "check a password against the default admin and exit")
	flag.Parse()

	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *resetAdmin, *verifyAdmin, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.IsDev() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Str("service", "trip-report").Logger()
}

func run(ctx context.Context, cfg config.Config, resetAdmin bool, verifyAdmin string, log zerolog.Logger) error {
	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil && db == nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err != nil {
		log.Warn().Err(err).Msg("database not reachable yet; migration will retry")
	}

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)

	if verifyAdmin != "" {
		ok, err := bootstrap.VerifyAdminPassword(ctx, users, verifyAdmin)
		if err != nil {
			return err
		}
		fmt.Printf("admin password matches: %t\n", ok)
		return nil
	}

	if err := bootstrap.Initialize(ctx, database.NewMigrator(db), users, roles, bootstrap.Options{
		BcryptCost:         cfg.BcryptCost,
		ResetAdminPassword: resetAdmin,
	}, log); err != nil {
		return err
	}
	if resetAdmin {
		return nil
	}

	// Redis: revocation, rate limit and cache all degrade to no-ops without it
	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable; logout clears the cookie only, no rate limit or cache")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}
	sessions := repository.NewSessionRepo(rdb, "")

	qcfg := config.LoadQueueConfig()
	publisher := queue.NewPublisher(qcfg.URL, qcfg.Queue, log)
	if qcfg.URL != "" && qcfg.AuditConsumer {
		consumer := queue.NewAuditConsumer(qcfg.URL, qcfg.Queue, qcfg.AuditLogPath, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("audit consumer stopped")
			}
		}()
	}

	ecfg, err := config.LoadExternalConfig()
	if err != nil {
		return err
	}
	gateway, err := external.Open(ecfg)
	if err != nil {
		log.Warn().Err(err).Msg("master data gateway not configured")
		gateway = nil
	}
	defer gateway.Close()

	scfg, err := config.LoadStorageConfig()
	if err != nil {
		return err
	}
	blobs, err := storage.New(scfg, log)
	if err != nil {
		return fmt.Errorf("attachment storage: %w", err)
	}

	threadRepo := repository.NewThreadRepo(db)
	commentRepo := repository.NewCommentRepo(db)
	attachmentRepo := repository.NewAttachmentRepo(db)

	authSvc := service.NewAuthService(users, roles, sessions, service.AuthOptions{
		Secret:      cfg.SessionSecret,
		TTL:         cfg.SessionTTL,
		BcryptCost:  cfg.BcryptCost,
		StrictRoles: cfg.StrictRoles,
	}, log)
	reportSvc := service.NewReportService(service.ReportDeps{
		Reports:     repository.NewReportRepo(db),
		Reads:       repository.NewReadStatusRepo(db),
		Threads:     threadRepo,
		Comments:    commentRepo,
		Attachments: attachmentRepo,
		Blobs:       blobs,
		Events:      publisher,
	}, log)
	threadSvc := service.NewThreadService(threadRepo, commentRepo, attachmentRepo, blobs, log)
	userSvc := service.NewUserService(users, gateway, log)

	metrics := middleware.NewMetrics()
	cacheCfg := config.LoadCacheConfig()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(metrics.Middleware())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", 10*scfg.MaxUpload)))

	router.Register(e, router.Deps{
		Auth:        handler.NewAuthHandler(authSvc, cfg.CookieSecure),
		Admin:       handler.NewAdminHandler(authSvc),
		Reports:     handler.NewReportHandler(reportSvc, threadSvc, blobs, scfg.MaxUpload),
		Threads:     handler.NewThreadHandler(threadSvc, blobs, scfg.MaxUpload),
		Attachments: handler.NewAttachmentHandler(threadSvc, blobs),
		Equipment:   handler.NewEquipmentHandler(repository.NewEquipmentRepo(db)),
		Master:      handler.NewMasterHandler(gateway),
		UserStaff:   handler.NewUserStaffHandler(userSvc),
		DB:          db,
		Metrics:     metrics,
		Session: middleware.Session(middleware.SessionOptions{
			Secret:  cfg.SessionSecret,
			TTL:     cfg.SessionTTL,
			Secure:  cfg.CookieSecure,
			Revoked: sessions,
			Log:     log,
		}),
		RateLimit:      middleware.NewTokenBucket(config.LoadRateLimitConfig(), scripter(rdb), log),
		LoginRateLimit: middleware.NewTokenBucket(config.LoadLoginRateLimitConfig(), scripter(rdb), log),
		Cache:          middleware.NewRedisCache(cacheCfg, cmdable(rdb), log),
		RequestTimeout: cfg.RequestTimeout,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// scripter and cmdable keep a nil client an untyped nil interface.
func scripter(rdb *redis.Client) redis.Scripter {
	if rdb == nil {
		return nil
	}
	return rdb
}

func cmdable(rdb *redis.Client) redis.Cmdable {
	if rdb == nil {
		return nil
	}
	return rdb
}
