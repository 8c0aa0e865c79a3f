package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/Vovarama1992/market-messaging/internal/config"
	"github.com/Vovarama1992/market-messaging/internal/messaging"
	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
	"github.com/Vovarama1992/market-messaging/internal/realtime"
)

func main() {
	cfg, cfgErr := config.LoadServer()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if cfgErr != nil {
		log.Fatal("invalid configuration", "error", cfgErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	repo, closeRepo := openRepo(ctx, cfg, log)
	defer closeRepo()

	// --- Realtime ---
	hub := realtime.NewHub(log)
	g, gctx := errgroup.WithContext(ctx)

	var bus realtime.Bus = realtime.NewLocalBus(hub)
	if cfg.RedisAddr != "" {
		rb, err := realtime.NewRedisBus(ctx, log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			log.Fatal("redis bus init failed", "error", err)
		}
		defer rb.Close()
		if err := rb.Forward(gctx, hub); err != nil {
			log.Fatal("redis forwarder failed", "error", err)
		}
		bus = rb
		log.Info("realtime events fan out through redis", "channel", cfg.RedisChannel)
	}

	// --- Messaging module wiring ---
	svc := messaging.NewService(repo, realtime.NewPublisher(bus), log)
	handler := messaging.NewHandler(svc, log)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	messaging.RegisterRoutes(r, handler, cfg.JWTSecret, realtime.StreamHandler(hub))

	// --- health ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// open event streams would otherwise hold Shutdown until its timeout
	srv.RegisterOnShutdown(hub.CloseAll)

	g.Go(func() error {
		log.Info("listening", "port", cfg.Port, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openRepo(ctx context.Context, cfg config.Server, log *logger.Logger) (messaging.Repo, func()) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage; messages are lost on restart")
		return messaging.NewMemoryRepo(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db open error", "error", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatal("db ping error", "error", err)
	}
	if err := messaging.EnsureSchema(pingCtx, db); err != nil {
		log.Fatal("db schema error", "error", err)
	}
	return messaging.NewRepo(db), func() { _ = db.Close() }
}
