package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"novachat/internal/config"
	"novachat/internal/jwtsigner"
	"novachat/internal/observability/logging"
	"novachat/internal/observability/metrics"
	"novachat/internal/service"
	"novachat/internal/store"
	transport "novachat/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "novachat",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	cfg := config.Load()
	metrics.MustRegister("novachat")

	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseURL)
	default:
		dialector = sqlite.Open(cfg.DatabaseURL)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}

	st, err := store.NewDB(gdb, logger)
	if err != nil {
		logger.Error("store init", "error", err)
		os.Exit(1)
	}

	signer, err := jwtsigner.NewFromBase64(cfg.SigningKey, cfg.SigningKeyID, cfg.Issuer)
	if err != nil {
		logger.Error("signer init", "error", err)
		os.Exit(1)
	}

	svc := service.New(st, logger)
	handler := transport.NewRouter(svc, st, logger, transport.Options{
		Signer:      signer,
		SessionTTL:  cfg.SessionTTL,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("novachat listening", "addr", srv.Addr, "driver", cfg.DatabaseDriver)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
