package sso

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendaseguro/chatsso/internal/hub"
	"github.com/vendaseguro/chatsso/internal/observability"
	"github.com/vendaseguro/chatsso/internal/repo"
	"github.com/vendaseguro/chatsso/internal/ssotoken"
)

// Validator confirma com o Hub que o token ainda vale.
type Validator interface {
	Validate(ctx context.Context, rawToken string) (bool, error)
}

// Provisioner garante a identidade local para o e-mail.
type Provisioner interface {
	Provision(ctx context.Context, email string) (repo.Profile, error)
}

// Request é o que chega no callback.
type Request struct {
	Token string
	TS    string
}

// Outcome é o resultado de uma troca bem-sucedida.
type Outcome struct {
	Stage   Stage
	Trail   []Stage
	Profile repo.Profile
	Grant   *Grant
}

// Orchestrator encadeia decifrar, validar, provisionar e emitir sessão.
type Orchestrator struct {
	key         string
	hub         Validator
	provisioner Provisioner
	issuer      Issuer
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewOrchestrator cria o orquestrador; a chave vem da configuração.
func NewOrchestrator(key string, hubClient Validator, provisioner Provisioner, issuer Issuer, metrics *observability.Metrics, logger zerolog.Logger) (*Orchestrator, error) {
	if key == "" {
		return nil, errors.New("sso: chave de decifragem obrigatória")
	}
	return &Orchestrator{
		key:         key,
		hub:         hubClient,
		provisioner: provisioner,
		issuer:      issuer,
		metrics:     metrics,
		logger:      logger.With().Str("component", "sso").Logger(),
	}, nil
}

// Exchange troca o token do Hub por uma sessão local. Não há retentativa: qualquer falha
// termina em failed e nada é emitido; a sessão é sempre o último passo.
func (o *Orchestrator) Exchange(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{Stage: StageReceived, Trail: []Stage{StageReceived}}
	logger := o.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = l.With().Str("component", "sso").Logger()
	}

	advance := func(s Stage) {
		out.Stage = s
		out.Trail = append(out.Trail, s)
	}
	failed := func(reason, cause error) (*Outcome, error) {
		err := fail(out.Stage, reason, cause)
		o.metrics.ObserveExchange("failed", string(out.Stage))
		logger.Warn().Str("stage", string(out.Stage)).Str("reason", reason.Error()).AnErr("cause", cause).Msg("sso: troca falhou")
		return nil, err
	}

	// base64 não tem espaço: espaço aqui é um "+" que chegou sem encode na query
	raw := strings.ReplaceAll(strings.TrimSpace(req.Token), " ", "+")
	if raw == "" {
		return failed(ErrMissingToken, nil)
	}

	payload, err := ssotoken.Decrypt(raw, o.key)
	if err != nil {
		return failed(ErrDecryptFailure, err)
	}
	advance(StageDecrypted)

	logger = logger.With().Str("hub_user_id", payload.UserID).Str("opaque_id", payload.OpaqueID).Logger()

	start := time.Now()
	ok, err := o.hub.Validate(ctx, raw)
	o.metrics.ObserveHub(hubResult(ok, err), time.Since(start))
	if !ok {
		if err == nil {
			err = hub.ErrRejected
		}
		return failed(ErrHubRejected, err)
	}
	advance(StageValidated)

	profile, err := o.provisioner.Provision(ctx, payload.Email)
	if err != nil {
		return failed(ErrProvisioning, err)
	}
	out.Profile = profile
	advance(StageProvisioned)

	grant, err := o.issuer.Issue(ctx, profile)
	if err != nil {
		return failed(ErrSessionIssuance, err)
	}
	out.Grant = grant
	advance(StageSessionIssued)

	o.metrics.ObserveSession(grant.Mode)
	o.metrics.ObserveExchange("success", string(out.Stage))
	logger.Info().Str("user_id", profile.ID.String()).Str("mode", grant.Mode).Msg("sso: sessão emitida")

	return out, nil
}

// MarkRedirected registra que o navegador recebeu o redirecionamento final.
func (o *Outcome) MarkRedirected() {
	o.Stage = StageRedirected
	o.Trail = append(o.Trail, StageRedirected)
}

func hubResult(ok bool, err error) string {
	switch {
	case ok:
		return "liberado"
	case err == nil, errors.Is(err, hub.ErrRejected):
		return "negado"
	default:
		return "erro"
	}
}
