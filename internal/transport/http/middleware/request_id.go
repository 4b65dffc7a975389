package httpmw

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/cwrk-planet/chat/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// RequestID пробрасывает/генерирует X-Request-ID и кладёт его в контекст логгера.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)

		ctx := logger.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
