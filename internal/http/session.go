package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	httpmiddleware "github.com/vendaseguro/chatsso/internal/http/middleware"
	"github.com/vendaseguro/chatsso/internal/service"
	"github.com/vendaseguro/chatsso/internal/sso"
)

type meUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

type meResponse struct {
	OK   bool   `json:"ok"`
	User meUser `json:"user"`
}

type tokenResponse struct {
	OK           bool   `json:"ok"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Me retorna informações do usuário autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := httpmiddleware.GetPrincipal(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "não autenticado")
		return
	}

	profile, err := h.sessions.Profile(r.Context(), principal)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			WriteError(w, http.StatusUnauthorized, "não autenticado")
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("me: perfil indisponível")
		WriteError(w, http.StatusInternalServerError, "não foi possível carregar perfil")
		return
	}

	WriteJSON(w, http.StatusOK, meResponse{
		OK:   true,
		User: meUser{ID: profile.ID.String(), Email: profile.Email, Nickname: profile.Nickname},
	})
}

// Logout destrói a sessão do cookie, revoga o refresh informado e limpa o cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	if id := httpmiddleware.SessionID(r, h.cfg.SSO.CookieName); id != "" {
		if err := h.sessions.DestroyCookieSession(ctx, id); err != nil {
			logger.Warn().Err(err).Msg("logout: falha ao apagar sessão")
		}
	}
	if token := readRefreshToken(r); token != "" {
		if err := h.sessions.RevokeRefresh(ctx, token); err != nil {
			logger.Warn().Err(err).Msg("logout: falha ao revogar refresh")
		}
	}

	http.SetCookie(w, sso.SessionCookie(h.cfg.SSO.CookieName, "", 0, h.cfg.SSO.CookieSecure))
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Refresh rotaciona o par de tokens do modo token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := readRefreshToken(r)
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "refresh ausente")
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrRefreshInvalid) {
			WriteError(w, http.StatusUnauthorized, "refresh inválido")
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("refresh: falha")
		WriteError(w, http.StatusInternalServerError, "erro ao renovar sessão")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, tokenResponse{
		OK:           true,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func readRefreshToken(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	var req refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}
