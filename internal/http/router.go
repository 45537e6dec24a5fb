package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vendaseguro/chatsso/internal/config"
	httpmiddleware "github.com/vendaseguro/chatsso/internal/http/middleware"
	"github.com/vendaseguro/chatsso/internal/linkhydrate"
	"github.com/vendaseguro/chatsso/internal/observability"
	"github.com/vendaseguro/chatsso/internal/relay"
	"github.com/vendaseguro/chatsso/internal/repo"
	"github.com/vendaseguro/chatsso/internal/service"
	"github.com/vendaseguro/chatsso/internal/sso"
)

type exchanger interface {
	Exchange(ctx context.Context, req sso.Request) (*sso.Outcome, error)
}

type sessionStore interface {
	httpmiddleware.Authenticator
	Profile(ctx context.Context, p service.Principal) (repo.Profile, error)
	DestroyCookieSession(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, rawToken string) (*service.TokenPair, error)
	RevokeRefresh(ctx context.Context, rawToken string) error
	Ping(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps reúne os serviços que o roteador expõe.
type Deps struct {
	Orchestrator exchanger
	Sessions     sessionStore
	DB           pinger
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
}

type Handler struct {
	cfg             *config.Config
	orchestrator    exchanger
	sessions        sessionStore
	db              pinger
	publicLimiter   *httpmiddleware.RateLimiter
	callbackLimiter *httpmiddleware.RateLimiter
	userLimiter     *httpmiddleware.RateLimiter
}

// NewRouter devolve roteador configurado.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	h := &Handler{
		cfg:             cfg,
		orchestrator:    deps.Orchestrator,
		sessions:        deps.Sessions,
		db:              deps.DB,
		publicLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		callbackLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitCallback.RequestsPerSecond, cfg.RateLimitCallback.Burst),
		userLimiter:     httpmiddleware.NewRateLimiter(cfg.RateLimitUser.RequestsPerSecond, cfg.RateLimitUser.Burst),
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(httpmiddleware.Logging(deps.Logger))
	r.Use(httpmiddleware.Recover)
	r.Use(observability.HTTPMiddleware(deps.Metrics))
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.With(httpmiddleware.IPRateLimit(h.callbackLimiter)).Get(cfg.SSO.CallbackPath, h.SSOCallback)
	r.Method(http.MethodGet, "/static/isw-sso.js", linkhydrate.ScriptHandler())

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		api.Post("/auth/refresh", h.Refresh)
		api.Post("/logout", h.Logout)

		api.Group(func(private chi.Router) {
			private.Use(httpmiddleware.Auth(h.sessions, cfg.SSO.CookieName))
			private.Use(httpmiddleware.UserRateLimit(h.userLimiter))
			private.Get("/me", h.Me)
		})
	})

	// Qualquer rota não mapeada é da SPA; o relay intercepta antes os links de SSO.
	spa := relay.Middleware(relay.Config{
		CallbackPath: cfg.SSO.CallbackPath,
		DevAPIBase:   cfg.SSO.DevAPIBase,
		Logger:       deps.Logger,
	})(newSPAHandler(cfg.StaticDir))
	r.NotFound(spa.ServeHTTP)

	return r
}

// Health indica que o processo está de pé.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var dbErr, redisErr error
	if h.db != nil {
		dbErr = h.db.Ping(ctx)
	}
	if h.sessions != nil {
		redisErr = h.sessions.Ping(ctx)
	}

	if dbErr != nil || redisErr != nil {
		zerolog.Ctx(r.Context()).Error().AnErr("db", dbErr).AnErr("redis", redisErr).Msg("ready: dependências indisponíveis")
		WriteError(w, http.StatusServiceUnavailable, "dependências indisponíveis")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
