package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/chat/internal/config"
	"github.com/cwrk-planet/chat/internal/migrations"
	"github.com/cwrk-planet/chat/internal/pg"
	"github.com/cwrk-planet/chat/internal/repository"
	"github.com/cwrk-planet/chat/internal/repository/badgerdb"
	"github.com/cwrk-planet/chat/internal/repository/postgres"
	"github.com/cwrk-planet/chat/internal/security"
	"github.com/cwrk-planet/chat/internal/service"
	grpcx "github.com/cwrk-planet/chat/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat/internal/transport/http"
	"github.com/cwrk-planet/chat/internal/transport/ws"
	"github.com/cwrk-planet/chat/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging.level: %v", err)
	}
	env := logger.ParseEnv(cfg.Logging.Env)
	logger.Init(logger.Config{
		Env:       env,
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat",
		"env", env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)
	if cfg.UsesDevSecrets() && env != logger.EnvDev {
		slog.Warn("jwt signing key is the built-in development key; set CHAT_SECURITY_JWT_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- storage ---
	store, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("storage init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.close()

	// --- services ---
	jwtCfg := cfg.Security.JWT
	tokens, err := security.NewTokenIssuer([]byte(jwtCfg.Key), jwtCfg.Issuer, jwtCfg.Audience, jwtCfg.AccessTTL)
	if err != nil {
		slog.Error("token issuer", slog.Any("err", err))
		os.Exit(1)
	}
	authSvc := service.NewAuthService(store.users, tokens, cfg.Security.Password.ToPolicy(), nil)
	chatSvc := service.NewChatService(store.messages, service.ChatConfig{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		HistoryLimit:     cfg.Chat.HistoryLimit,
		StorageTimeout:   cfg.Storage.Timeout,
	})

	// --- WS hub ---
	hub := ws.NewHub(authSvc, chatSvc, ws.NewRegistry(), ws.HubConfig{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		SendBuffer:       cfg.Chat.SendBuffer,
		MaxFrameBytes:    cfg.Chat.MaxFrameBytes,
		WriteWait:        cfg.Chat.WriteWait,
		PongWait:         cfg.Chat.PongWait,
		PingInterval:     cfg.Chat.PingInterval,
	})

	// --- HTTP ---
	router := httpx.NewRouter(httpx.NewHandler(authSvc, chatSvc), hub, store, httpx.RouterConfig{
		AllowedOrigins:      cfg.CORS.AllowedOrigins,
		RequestTimeout:      cfg.HTTP.RequestTimeout,
		HistoryRequiresAuth: cfg.Chat.HistoryRequiresAuth,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- gRPC health (опционально) ---
	var grpcSrv *grpcx.Server
	if cfg.GRPC.Addr != "" {
		grpcSrv = grpcx.New(cfg.GRPC.Addr, store, 10*time.Second)
		if err := grpcSrv.Start(ctx); err != nil {
			errCh <- fmt.Errorf("grpc listen: %w", err)
			grpcSrv = nil
		}
	}

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal")
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// сначала перестаём принимать новые соединения, затем закрываем сокеты
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Error("http shutdown", slog.Any("err", err))
	}
	if err := hub.Shutdown(ctxShutdown); err != nil {
		slog.Error("hub shutdown", slog.Any("err", err))
	}
	if grpcSrv != nil {
		grpcSrv.Stop(ctxShutdown)
	}
	slog.Info("stopped")
}

type storage struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	ping     func(ctx context.Context) error
	close    func()
}

func (s *storage) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverBadger:
		db, err := badgerdb.Open(badgerdb.Options{
			Path:     cfg.Badger.Path,
			InMemory: cfg.Badger.InMemory,
			Log:      slog.Default(),
		})
		if err != nil {
			return nil, fmt.Errorf("badger: %w", err)
		}
		return &storage{
			users:    db.Users(),
			messages: db.Messages(),
			ping:     db.Ping,
			close: func() {
				if err := db.Close(); err != nil {
					slog.Error("badger close", slog.Any("err", err))
				}
			},
		}, nil

	default:
		pool, err := pg.NewPool(ctx, cfg.Postgres.ToPGConfig())
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Postgres.AutoMigrate {
			if err := migrations.Up(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return &storage{
			users:    postgres.NewUserRepoFromPool(pool),
			messages: postgres.NewMessageRepoFromPool(pool),
			ping: func(ctx context.Context) error {
				return pg.Ping(ctx, pool)
			},
			close: pool.Close,
		}, nil
	}
}
