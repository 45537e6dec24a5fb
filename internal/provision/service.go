package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendaseguro/chatsso/internal/auth"
	"github.com/vendaseguro/chatsso/internal/observability"
	"github.com/vendaseguro/chatsso/internal/repo"
	"github.com/vendaseguro/chatsso/internal/util"
)

var (
	// ErrInvalidEmail indica e-mail ausente ou malformado no token.
	ErrInvalidEmail = errors.New("provision: email inválido")
)

const passwordBytes = 32

type profileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (repo.Profile, error)
	UpsertUserProfile(ctx context.Context, arg repo.UpsertUserProfileParams) (repo.Profile, bool, error)
}

// Service garante que todo e-mail vindo do Hub tenha usuário e perfil locais.
type Service struct {
	store   profileStore
	hash    func(string) (string, error)
	now     func() time.Time
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// New cria o serviço de provisionamento.
func New(store profileStore, metrics *observability.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		hash:    auth.Hash,
		now:     util.Now,
		metrics: metrics,
		logger:  logger.With().Str("component", "provision").Logger(),
	}
}

// Provision devolve o perfil do e-mail, criando usuário e perfil no primeiro acesso.
// Chamadas concorrentes para o mesmo e-mail (em qualquer caixa) convergem para o mesmo perfil.
func (s *Service) Provision(ctx context.Context, email string) (repo.Profile, error) {
	email = util.NormalizeEmail(email)
	if err := util.ValidateEmail(email); err != nil {
		return repo.Profile{}, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return repo.Profile{}, fmt.Errorf("buscar perfil: %w", err)
	}

	// senha aleatória: a conta só entra pelo SSO
	secret, err := auth.RandomSecret(passwordBytes)
	if err != nil {
		return repo.Profile{}, err
	}
	hash, err := s.hash(secret)
	if err != nil {
		return repo.Profile{}, fmt.Errorf("hash: %w", err)
	}

	profile, created, err := s.store.UpsertUserProfile(ctx, repo.UpsertUserProfileParams{
		Email:        email,
		Nickname:     util.EmailLocalPart(email),
		PasswordHash: hash,
		Role:         repo.DefaultRole,
		ConfirmedAt:  s.now(),
	})
	if err != nil {
		return repo.Profile{}, fmt.Errorf("criar perfil: %w", err)
	}

	if created {
		s.metrics.ObserveProfileCreated()
		s.logger.Info().Str("user_id", profile.ID.String()).Msg("perfil criado via sso")
	}

	return profile, nil
}
