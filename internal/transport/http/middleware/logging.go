package httpmw

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cwrk-planet/chat/pkg/logger"
)

// RequestLogger: логирование HTTP запросов с редактированием чувствительных полей.
// Обёртка chi сохраняет http.Hijacker, иначе апгрейд websocket не пройдёт.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		reqDump := safeReadBodyOnce(r)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		// токен в query не пишем в лог
		query := r.URL.Query()
		if query.Has("access_token") {
			query.Set("access_token", redacted)
		}

		attrs := append(logger.Args(ctx),
			"method", r.Method,
			"path", r.URL.Path,
			"query", query.Encode(),
			"ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"req", clip(redactJSON([]byte(reqDump)), 2048),
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "http request", attrs...)
	})
}

const redacted = "***REDACTED***"

var redactKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"passwordhash":  {},
	"access_token":  {},
	"token":         {},
	"jwt":           {},
	"authorization": {},
}

func redactJSON(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return "(non-json body)"
	}
	redactWalk(&v)
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(out)
}

func redactWalk(v *any) {
	switch t := (*v).(type) {
	case map[string]any:
		for k, val := range t {
			if _, ok := redactKeys[strings.ToLower(k)]; ok {
				t[k] = redacted
				continue
			}
			redactWalk(&val)
			t[k] = val
		}
	case []any:
		for i := range t {
			redactWalk(&t[i])
		}
	}
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}

	return s[:n] + "...(truncated)"
}

func safeReadBodyOnce(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return ""
	}
	const max = 1 << 20 // 1 MiB
	limited := http.MaxBytesReader(nil, r.Body, max)
	b, err := io.ReadAll(limited)
	if err != nil && !errors.Is(err, io.EOF) {
		r.Body = io.NopCloser(bytes.NewReader(b))
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(b))

	return string(b)
}
