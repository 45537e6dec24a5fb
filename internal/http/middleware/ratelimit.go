package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	limiterCapacity = 10_000
	limiterMaxAge   = 10 * time.Minute
)

// RateLimiter mantém um limiter por chave; chaves ociosas expiram sozinhas.
type RateLimiter struct {
	limit rate.Limit
	burst int
	mu    sync.Mutex
	store *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter cria instância compatível com múltiplas chaves.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit: rate.Limit(reqPerSec),
		burst: burst,
		store: expirable.NewLRU[string, *rate.Limiter](limiterCapacity, nil, limiterMaxAge),
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.store.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(r.limit, r.burst)
	r.store.Add(key, lim)
	return lim
}

// Allow consome uma ficha da chave.
func (r *RateLimiter) Allow(key string) bool {
	return r.get(key).Allow()
}

// LimitByKey aplica rate limit por chave arbitrária.
func (r *RateLimiter) LimitByKey(next http.Handler, keyFunc func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key, ok := keyFunc(req)
		if !ok || key == "" {
			next.ServeHTTP(w, req)
			return
		}

		if !r.Allow(key) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "limite de requisições excedido")
			return
		}

		next.ServeHTTP(w, req)
	})
}

// IPRateLimit utiliza IP remoto como chave. Cabeçalhos de proxy não entram aqui: quem confia
// neles monta chi middleware.RealIP antes, que reescreve RemoteAddr.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			return RemoteHost(r), true
		})
	}
}

// UserRateLimit utiliza o usuário autenticado como chave.
func UserRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			subject := GetSubject(r.Context())
			return subject, subject != ""
		})
	}
}

// RemoteHost devolve o host de RemoteAddr, sem a porta.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
