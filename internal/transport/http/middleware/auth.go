package httpmw

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cwrk-planet/chat/internal/domain"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

type Authenticator interface {
	Authenticate(token string) (domain.Identity, error)
}

// RequireAuth проверяет Bearer токен и кладёт Identity в контекст.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if len(h) <= 7 || !strings.EqualFold(h[:7], "Bearer ") {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			id, err := auth.Authenticate(strings.TrimSpace(h[7:]))
			if err != nil {
				slog.WarnContext(r.Context(), "http auth rejected", slog.String("path", r.URL.Path), slog.Any("err", err))
				writeUnauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(domain.Identity)
	return id, ok
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="chat"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"message":"` + msg + `"}}`))
}
