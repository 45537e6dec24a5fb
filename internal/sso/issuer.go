package sso

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vendaseguro/chatsso/internal/repo"
	"github.com/vendaseguro/chatsso/internal/service"
)

const (
	ModeCookie = "cookie"
	ModeToken  = "token"
)

// Grant é o resultado da emissão: para onde redirecionar e, no modo cookie, o cookie.
type Grant struct {
	Mode        string
	RedirectURL string
	Cookie      *http.Cookie
}

// Issuer cria a sessão local depois que a identidade foi confirmada.
type Issuer interface {
	Issue(ctx context.Context, profile repo.Profile) (*Grant, error)
}

type cookieSessions interface {
	CreateCookieSession(ctx context.Context, profile repo.Profile) (string, error)
}

// CookieIssuer grava sessão no Redis e entrega só um id opaco em cookie HttpOnly.
type CookieIssuer struct {
	Sessions   cookieSessions
	CookieName string
	TTL        time.Duration
	Secure     bool
	Landing    string
}

// Issue implementa Issuer.
func (i *CookieIssuer) Issue(ctx context.Context, profile repo.Profile) (*Grant, error) {
	id, err := i.Sessions.CreateCookieSession(ctx, profile)
	if err != nil {
		return nil, err
	}
	return &Grant{
		Mode:        ModeCookie,
		RedirectURL: i.Landing,
		Cookie:      SessionCookie(i.CookieName, id, i.TTL, i.Secure),
	}, nil
}

// SessionCookie monta o cookie de sessão; ttl <= 0 gera cookie de remoção.
func SessionCookie(name, value string, ttl time.Duration, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
		c.Expires = time.Now().Add(ttl)
	} else {
		c.Value = ""
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

type tokenSessions interface {
	IssueTokens(ctx context.Context, profile repo.Profile) (*service.TokenPair, error)
}

// TokenIssuer entrega o par de tokens no fragmento da URL de destino.
type TokenIssuer struct {
	Sessions tokenSessions
	Landing  string
}

// Issue implementa Issuer.
func (i *TokenIssuer) Issue(ctx context.Context, profile repo.Profile) (*Grant, error) {
	pair, err := i.Sessions.IssueTokens(ctx, profile)
	if err != nil {
		return nil, err
	}

	fragment := url.Values{}
	fragment.Set("access_token", pair.AccessToken)
	fragment.Set("refresh_token", pair.RefreshToken)
	fragment.Set("token_type", pair.TokenType)
	fragment.Set("expires_in", strconv.FormatInt(pair.ExpiresIn, 10))

	return &Grant{
		Mode:        ModeToken,
		RedirectURL: i.Landing + "#" + fragment.Encode(),
	}, nil
}
