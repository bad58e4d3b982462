package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"profilehub/internal/account"
	"profilehub/internal/auth"
	"profilehub/internal/db"
	"profilehub/internal/maintenance"
	"profilehub/internal/media"
	"profilehub/internal/observability"
	"profilehub/internal/profile"
	"profilehub/internal/respond"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	accessSecret, err := mustEnv("ACCESS_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}
	refreshSecret, err := mustEnv("REFRESH_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}
	cloudinaryURL, err := mustEnv("CLOUDINARY_URL")
	if err != nil {
		return nil, err
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	cloudinaryClient, err := media.NewCloudinary(cloudinaryURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}

	accountRepo := account.NewRepository(database)
	hasher := auth.NewPasswordHasher(envIntOrDefault("BCRYPT_COST", 0))
	issuer := auth.NewTokenIssuer(accessSecret, refreshSecret).WithTTLs(
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 240),
	)

	sessionService := auth.NewService(accountRepo, hasher, issuer, cloudinaryClient)
	sessionHandler := auth.NewHandler(sessionService)
	gate := auth.NewGate(issuer, accountRepo)

	profileService := profile.NewService(accountRepo, cloudinaryClient)
	profileHandler := profile.NewHandler(profileService)

	cleanupHandler := maintenance.NewCleanupHandler(
		accountRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/register", sessionHandler.Register)
	mux.HandleFunc("POST /users/login", sessionHandler.Login)
	mux.HandleFunc("POST /users/refresh-token", sessionHandler.Refresh)
	mux.Handle("POST /users/logout", gate.Middleware(http.HandlerFunc(sessionHandler.Logout)))
	mux.Handle("POST /users/change-password", gate.Middleware(http.HandlerFunc(sessionHandler.ChangePassword)))
	mux.Handle("GET /users/current-user", gate.Middleware(http.HandlerFunc(profileHandler.CurrentUser)))
	mux.Handle("PATCH /users/update-account", gate.Middleware(http.HandlerFunc(profileHandler.UpdateDetails)))
	mux.Handle("PATCH /users/avatar", gate.Middleware(http.HandlerFunc(profileHandler.UpdateAvatar)))
	mux.Handle("DELETE /users/avatar", gate.Middleware(http.HandlerFunc(profileHandler.DeleteAvatar)))
	mux.Handle("PATCH /users/cover-image", gate.Middleware(http.HandlerFunc(profileHandler.UpdateCoverImage)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			respond.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"}, "database unreachable")
			return
		}

		respond.JSON(w, http.StatusOK, map[string]any{"status": "ok"}, "healthy")
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
