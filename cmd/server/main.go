package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"crypto-platform/internal/api"
	"crypto-platform/internal/auth"
	"crypto-platform/internal/config"
	"crypto-platform/internal/gateway"
	"crypto-platform/internal/handlers"
	"crypto-platform/internal/session"
	"crypto-platform/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.Logging.Level, cfg.Logging.File); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("config loaded",
		"addr", cfg.Addr(),
		"auth_url", cfg.API.AuthURL,
		"crypto_url", cfg.API.CryptoURL,
		"admin_url", cfg.API.AdminURL,
		"request_timeout", cfg.API.RequestTimeout,
		"signed_identity", cfg.API.SigningKey != "",
		"db_path", cfg.Session.DBPath,
		"log_level", cfg.Logging.Level,
	)

	db, err := storage.NewDB(cfg.Session.DBPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sessions := session.NewStore(db, cfg.Session.TTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sessions.RunJanitor(ctx, cfg.Session.PurgeInterval)

	opts := []gateway.Option{gateway.WithTimeout(cfg.API.RequestTimeout)}
	if cfg.API.SigningKey != "" {
		opts = append(opts, gateway.WithIdentitySigner(auth.NewSigner([]byte(cfg.API.SigningKey), auth.DefaultIdentityTTL)))
	}
	gw := gateway.New(gateway.Endpoints{
		Auth:   cfg.API.AuthURL,
		Crypto: cfg.API.CryptoURL,
		Admin:  cfg.API.AdminURL,
	}, opts...)

	h := handlers.NewHandlers(sessions, gw, handlers.Options{
		TemplateDir:  cfg.Server.TemplateDir,
		SecureCookie: cfg.Server.SecureCookie,
		TradeContact: cfg.Trade.Contact,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(h, gw, cfg.Trade.Contact, cfg.Server.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "docs", "/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}

func setupRouter(h *handlers.Handlers, catalog api.Catalog, contact, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(api.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.LoadSession)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	h.Routes(r)
	api.Register(r, catalog, handlers.SessionFromContext, contact)

	return r
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
	return nil
}
