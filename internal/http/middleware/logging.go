package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logging escreve logs estruturados por requisição e injeta no contexto um logger com o
// request_id. Só o path é registrado: a query do callback carrega o token do Hub.
func Logging(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			lctx := base.With()
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				lctx = lctx.Str("request_id", reqID)
			}
			logger := lctx.Logger()

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event = event.Str("method", r.Method).Str("path", r.URL.Path).
				Int("status", status).Dur("duration", time.Since(start))

			event = event.Str("ip", RemoteHost(r))

			if ua := r.Header.Get("User-Agent"); ua != "" {
				event = event.Str("user_agent", ua)
			}

			event.Msg("http_request")
		})
	}
}
