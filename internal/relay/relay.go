package relay

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Config define para onde o navegador é mandado quando chega com parâmetros de SSO.
type Config struct {
	// CallbackPath é a rota do callback no backend (ex.: /sso/callback).
	CallbackPath string
	// DevAPIBase, quando preenchido, aponta o callback para outro host (ex.: http://localhost:8080).
	DevAPIBase string
	Logger     zerolog.Logger
}

// Middleware envolve o handler da SPA. Com sso e token na query, responde 302 para o callback;
// o token é repassado como veio, sem ser decodificado aqui.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	callback := strings.TrimRight(strings.TrimSpace(cfg.DevAPIBase), "/") + cfg.CallbackPath
	logger := cfg.Logger.With().Str("component", "relay").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if r.URL.Path == cfg.CallbackPath {
				next.ServeHTTP(w, r)
				return
			}

			q := r.URL.Query()
			token := q.Get("token")
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if q.Get("sso") == "" {
				logger.Warn().Str("path", r.URL.Path).Msg("relay: token sem sso, ignorando")
				next.ServeHTTP(w, r)
				return
			}

			forward := url.Values{}
			forward.Set("sso", q.Get("sso"))
			forward.Set("token", token)
			if ts := q.Get("ts"); ts != "" {
				forward.Set("ts", ts)
			}

			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Referrer-Policy", "no-referrer")
			http.Redirect(w, r, callback+"?"+forward.Encode(), http.StatusFound)
		})
	}
}
