package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vendaseguro/chatsso/internal/auth"
	"github.com/vendaseguro/chatsso/internal/repo"
)

var (
	// ErrSessionNotFound indica sessão ausente, expirada ou destruída.
	ErrSessionNotFound = errors.New("sessão não encontrada")
	// ErrRefreshInvalid indica refresh token inválido, expirado ou já usado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
	// ErrUnauthenticated indica requisição sem credencial válida.
	ErrUnauthenticated = errors.New("não autenticado")
)

const sessionIDBytes = 32

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

type profileReader interface {
	GetProfileByID(ctx context.Context, id uuid.UUID) (repo.Profile, error)
}

// Principal é o usuário autenticado em uma requisição.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// TokenPair é o par emitido no modo token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// SessionConfig define os tempos de vida das sessões.
type SessionConfig struct {
	CookieTTL  time.Duration
	RefreshTTL time.Duration
}

// SessionService guarda sessões por cookie e tokens de refresh no Redis.
type SessionService struct {
	redis      redisCommander
	jwt        *auth.JWTManager
	profiles   profileReader
	cookieTTL  time.Duration
	refreshTTL time.Duration
}

// NewSessionService cria o serviço de sessões.
func NewSessionService(redisClient redisCommander, jwtMgr *auth.JWTManager, profiles profileReader, cfg SessionConfig) *SessionService {
	return &SessionService{
		redis:      redisClient,
		jwt:        jwtMgr,
		profiles:   profiles,
		cookieTTL:  cfg.CookieTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

// CookieTTL devolve a validade da sessão por cookie.
func (s *SessionService) CookieTTL() time.Duration {
	return s.cookieTTL
}

// Ping confirma que o Redis responde.
func (s *SessionService) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// CreateCookieSession grava a sessão e devolve o id opaco que vai no cookie.
func (s *SessionService) CreateCookieSession(ctx context.Context, profile repo.Profile) (string, error) {
	id, err := auth.RandomSecret(sessionIDBytes)
	if err != nil {
		return "", err
	}

	if err := s.store(ctx, auth.SessionRedisKey(id), principalOf(profile), s.cookieTTL); err != nil {
		return "", fmt.Errorf("gravar sessão: %w", err)
	}
	return id, nil
}

// ResolveCookieSession devolve o usuário dono da sessão.
func (s *SessionService) ResolveCookieSession(ctx context.Context, sessionID string) (Principal, error) {
	if sessionID == "" {
		return Principal{}, ErrSessionNotFound
	}
	return s.load(s.redis.Get(ctx, auth.SessionRedisKey(sessionID)), ErrSessionNotFound)
}

// DestroyCookieSession apaga a sessão; sessão inexistente não é erro.
func (s *SessionService) DestroyCookieSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.redis.Del(ctx, auth.SessionRedisKey(sessionID)).Err()
}

// IssueTokens emite access token e refresh token de uso único.
func (s *SessionService) IssueTokens(ctx context.Context, profile repo.Profile) (*TokenPair, error) {
	access, _, err := s.jwt.GenerateAccessToken(profile.ID.String(), profile.Email, profile.Role)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	key := auth.RefreshRedisKey(auth.Audience, refreshHash)
	if err := s.store(ctx, key, principalOf(profile), s.refreshTTL); err != nil {
		return nil, fmt.Errorf("gravar refresh: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.jwt.AccessTTL().Seconds()),
	}, nil
}

// Refresh consome o refresh token (GETDEL) e emite um par novo. Reusar o mesmo token falha.
func (s *SessionService) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	key := auth.RefreshRedisKey(auth.Audience, auth.HashRefreshToken(rawToken))
	principal, err := s.load(s.redis.GetDel(ctx, key), ErrRefreshInvalid)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetProfileByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	return s.IssueTokens(ctx, profile)
}

// RevokeRefresh invalida o refresh token informado.
func (s *SessionService) RevokeRefresh(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	key := auth.RefreshRedisKey(auth.Audience, auth.HashRefreshToken(rawToken))
	if err := s.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Authenticate aceita Bearer JWT ou cookie de sessão, nessa ordem.
func (s *SessionService) Authenticate(ctx context.Context, sessionID, bearer string) (Principal, error) {
	if bearer != "" {
		claims, err := s.jwt.ParseAndValidate(bearer)
		if err != nil {
			return Principal{}, ErrUnauthenticated
		}
		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{UserID: id, Email: claims.Email}, nil
	}

	principal, err := s.ResolveCookieSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	return principal, err
}

// Profile carrega o perfil atual do usuário autenticado.
func (s *SessionService) Profile(ctx context.Context, p Principal) (repo.Profile, error) {
	profile, err := s.profiles.GetProfileByID(ctx, p.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return repo.Profile{}, ErrUnauthenticated
	}
	return profile, err
}

func (s *SessionService) store(ctx context.Context, key string, p Principal, ttl time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, payload, ttl).Err()
}

func (s *SessionService) load(cmd *redis.StringCmd, missing error) (Principal, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Principal{}, missing
	}
	if err != nil {
		return Principal{}, err
	}

	var p Principal
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == uuid.Nil {
		return Principal{}, missing
	}
	return p, nil
}

func principalOf(profile repo.Profile) Principal {
	return Principal{UserID: profile.ID, Email: profile.Email}
}
