package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vendaseguro/chatsso/internal/auth"
	"github.com/vendaseguro/chatsso/internal/config"
	"github.com/vendaseguro/chatsso/internal/hub"
	"github.com/vendaseguro/chatsso/internal/observability"
	"github.com/vendaseguro/chatsso/internal/repo"
	"github.com/vendaseguro/chatsso/internal/service"
	"github.com/vendaseguro/chatsso/internal/sso"
	"github.com/vendaseguro/chatsso/internal/ssotoken"
)

const (
	testKey    = "isw_venda_seguro"
	cookieName = "isw_chat_session"
)

type memProfiles struct {
	mu   sync.Mutex
	byID map[uuid.UUID]repo.Profile
}

func (m *memProfiles) Provision(ctx context.Context, email string) (repo.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(email)
	for _, p := range m.byID {
		if p.Email == email {
			return p, nil
		}
	}
	p := repo.Profile{ID: uuid.New(), Email: email, Nickname: strings.Split(email, "@")[0], Role: repo.DefaultRole}
	m.byID[p.ID] = p
	return p, nil
}

func (m *memProfiles) GetProfileByID(ctx context.Context, id uuid.UUID) (repo.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		return p, nil
	}
	return repo.Profile{}, repo.ErrNotFound
}

type env struct {
	handler  http.Handler
	sessions *service.SessionService
	profiles *memProfiles
	redis    *miniredis.Miniredis
	hubCalls *int
}

func newEnv(t *testing.T, hubBody string, opts ...func(*config.Config)) *env {
	t.Helper()

	var mu sync.Mutex
	calls := 0
	hubSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		_, _ = io.WriteString(w, hubBody)
	}))
	t.Cleanup(hubSrv.Close)

	hubClient, err := hub.New(hub.Config{BaseURL: hubSrv.URL, Timeout: time.Second})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>chat</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "app.js"), []byte("console.log(1)"), 0o644))

	cfg := &config.Config{
		AppEnv:    "test",
		StaticDir: static,
		SSO: config.SSOConfig{
			DecryptKey:   testKey,
			SessionMode:  sso.ModeCookie,
			CookieName:   cookieName,
			CookieTTL:    2 * time.Hour,
			LandingPath:  "/",
			FailurePath:  "/login",
			CallbackPath: "/sso/callback",
		},
		RateLimitPublic:   config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		RateLimitCallback: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		RateLimitUser:     config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	profiles := &memProfiles{byID: map[uuid.UUID]repo.Profile{}}
	sessions := service.NewSessionService(rdb, auth.NewJWTManager(strings.Repeat("j", 32), 15*time.Minute), profiles, service.SessionConfig{
		CookieTTL:  cfg.SSO.CookieTTL,
		RefreshTTL: 24 * time.Hour,
	})
	metrics := observability.NewMetrics()

	issuer := &sso.CookieIssuer{Sessions: sessions, CookieName: cookieName, TTL: cfg.SSO.CookieTTL, Landing: cfg.SSO.LandingPath}
	orch, err := sso.NewOrchestrator(testKey, hubClient, profiles, issuer, metrics, zerolog.Nop())
	require.NoError(t, err)

	h := NewRouter(cfg, Deps{
		Orchestrator: orch,
		Sessions:     sessions,
		Metrics:      metrics,
		Logger:       zerolog.Nop(),
	})

	return &env{handler: h, sessions: sessions, profiles: profiles, redis: mr, hubCalls: &calls}
}

func (e *env) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func callbackURL(t *testing.T, email string) string {
	t.Helper()
	token, err := ssotoken.Encrypt(ssotoken.Payload{OpaqueID: "tok123", UserID: "u1", Email: email}, testKey, "iv1234567890123")
	require.NoError(t, err)
	return "/sso/callback?" + url.Values{"sso": {"1"}, "token": {token}, "ts": {"1700000000"}}.Encode()
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("cookie %s ausente", cookieName)
	return nil
}

func TestCallbackIssuesSessionAndMeResolvesIt(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado")

	rec := e.do(t, httptest.NewRequest(http.MethodGet, callbackURL(t, "Alice@Example.com"), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	cookie := sessionCookie(t, rec)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, 7200, cookie.MaxAge)
	require.True(t, e.redis.Exists(auth.SessionRedisKey(cookie.Value)))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie.Value})
	rec = e.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OK   bool `json:"ok"`
		User struct {
			ID       string `json:"id"`
			Email    string `json:"email"`
			Nickname string `json:"nickname"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.True(t, body.OK)
	require.Equal(t, "alice@example.com", body.User.Email)
	require.Equal(t, "alice", body.User.Nickname)
	require.NotEmpty(t, body.User.ID)
}

func TestCallbackFailuresReturnJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hubBody string
		target  string
		status  int
		message string
		hubHit  int
	}{
		{name: "sem token", hubBody: "liberado", target: "/sso/callback?sso=1", status: http.StatusBadRequest, message: "token ausente"},
		{name: "token ilegivel", hubBody: "liberado", target: "/sso/callback?sso=1&token=%21%21%21", status: http.StatusUnauthorized, message: "token inválido"},
		{name: "hub nega", hubBody: "negado", status: http.StatusUnauthorized, hubHit: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t, tt.hubBody)
			target := tt.target
			if target == "" {
				target = callbackURL(t, "bob@example.com")
			}

			rec := e.do(t, httptest.NewRequest(http.MethodGet, target, nil))
			require.Equal(t, tt.status, rec.Code)
			require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			require.Empty(t, rec.Result().Cookies())

			var body ErrorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.False(t, body.OK)
			require.NotEmpty(t, body.Error)
			if tt.message != "" {
				require.Equal(t, tt.message, body.Error)
			}
			require.Equal(t, tt.hubHit, *e.hubCalls)
			require.Empty(t, e.redis.Keys())
		})
	}
}

func TestCallbackFailureForBrowserPointsToLogin(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "negado")

	req := httptest.NewRequest(http.MethodGet, callbackURL(t, "bob@example.com"), nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := e.do(t, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), `url=/login?sso=erro`)
	require.Empty(t, rec.Result().Cookies())
}

func TestRelayForwardsSSOLinksToCallback(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado")

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/conversas?sso=1&token=abc%2Bdef&ts=1700000000&utm=x", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/sso/callback?sso=1&token=abc%2Bdef&ts=1700000000", rec.Header().Get("Location"))
	require.Zero(t, *e.hubCalls)
}

func TestSPAFallback(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado")

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/conversas/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "chat")

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "console.log")

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/nada", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMeRequiresSession(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado")

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "inexistente"})
	rec = e.do(t, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado")

	rec := e.do(t, httptest.NewRequest(http.MethodGet, callbackURL(t, "carol@example.com"), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	cookie := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie.Value})
	rec = e.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, -1, sessionCookie(t, rec).MaxAge)
	require.False(t, e.redis.Exists(auth.SessionRedisKey(cookie.Value)))

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie.Value})
	require.Equal(t, http.StatusUnauthorized, e.do(t, req).Code)
}

func TestRefreshRotatesOnce(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado")
	ctx := context.Background()

	profile, err := e.profiles.Provision(ctx, "dave@example.com")
	require.NoError(t, err)
	pair, err := e.sessions.IssueTokens(ctx, profile)
	require.NoError(t, err)

	body := `{"refresh_token":"` + pair.RefreshToken + `"}`
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var got tokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.True(t, got.OK)
	require.NotEmpty(t, got.AccessToken)
	require.NotEqual(t, pair.RefreshToken, got.RefreshToken)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+got.AccessToken)
	require.Equal(t, http.StatusOK, e.do(t, req).Code)

	rec = e.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthReadyAndScript(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado")

	require.Equal(t, http.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	require.Equal(t, http.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)

	e.redis.SetError("ERR redis caiu 10.1.2.3")
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "caiu")
	require.NotContains(t, rec.Body.String(), "10.1.2.3")
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.OK)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/static/isw-sso.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ISW_SSO")

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestMeIsRateLimitedPerUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado", func(cfg *config.Config) {
		cfg.RateLimitUser = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	})

	rec := e.do(t, httptest.NewRequest(http.MethodGet, callbackURL(t, "erin@example.com"), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	cookie := sessionCookie(t, rec)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.RemoteAddr = fmt.Sprintf("203.0.113.%d:1234", i+1)
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie.Value})
		codes = append(codes, e.do(t, req).Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCallbackLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "liberado", func(cfg *config.Config) {
		cfg.RateLimitCallback = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/sso/callback?sso=1", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))
		codes = append(codes, e.do(t, req).Code)
	}
	require.Equal(t, []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
