package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vendaseguro/chatsso/internal/service"
)

type contextKey string

const ContextKeyPrincipal contextKey = "principal"

// Authenticator resolve o usuário a partir do cookie de sessão ou do Bearer.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID, bearer string) (service.Principal, error)
}

// Auth exige sessão válida (cookie) ou JWT de acesso e injeta o usuário no contexto.
func Auth(auth Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionID(r, cookieName)
			principal, err := auth.Authenticate(r.Context(), sessionID, BearerToken(r))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "não autenticado")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal recupera o usuário autenticado do contexto.
func GetPrincipal(ctx context.Context) (service.Principal, bool) {
	val, ok := ctx.Value(ContextKeyPrincipal).(service.Principal)
	return val, ok
}

// GetSubject recupera o id do usuário como string.
func GetSubject(ctx context.Context) string {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return ""
	}
	return p.UserID.String()
}

// SessionID lê o cookie de sessão.
func SessionID(r *http.Request, cookieName string) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// BearerToken extrai o token do cabeçalho Authorization.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": message,
	})
}
