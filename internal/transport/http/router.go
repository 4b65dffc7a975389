package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/cwrk-planet/chat/internal/transport/http/middleware"
)

type RouterConfig struct {
	AllowedOrigins      []string
	RequestTimeout      time.Duration
	HistoryRequiresAuth bool
}

// Pinger: проверка готовности хранилища для /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(h *Handler, hub http.Handler, store Pinger, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(httpmw.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.RequestLogger)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httpmw.HeaderRequestID},
		ExposedHeaders:   []string{httpmw.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoint: без Timeout и Compress, соединение живёт долго
	r.Get("/hubs/chat", hub.ServeHTTP)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewareChi.Timeout(cfg.RequestTimeout))
		api.Use(middlewareChi.Compress(5))

		api.Post("/auth/register", h.Register)
		api.Post("/auth/login", h.Login)

		api.Group(func(pr chi.Router) {
			if cfg.HistoryRequiresAuth {
				pr.Use(httpmw.RequireAuth(h.authSvc))
			}
			pr.Get("/messages", h.Messages)
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{Code: "StorageUnavailable", Message: "storage is not ready"}})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	return r
}
