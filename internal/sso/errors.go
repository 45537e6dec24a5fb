package sso

import (
	"errors"
	"fmt"
	"net/http"
)

// Stage é um estado do pipeline de troca do token.
type Stage string

const (
	StageReceived      Stage = "received"
	StageDecrypted     Stage = "decrypted"
	StageValidated     Stage = "validated"
	StageProvisioned   Stage = "provisioned"
	StageSessionIssued Stage = "session_issued"
	StageRedirected    Stage = "redirected"
	StageFailed        Stage = "failed"
)

var (
	// ErrMissingToken indica callback sem token.
	ErrMissingToken = errors.New("token ausente")
	// ErrDecryptFailure indica token que não abriu ou veio malformado.
	ErrDecryptFailure = errors.New("token inválido")
	// ErrHubRejected indica que o Hub não liberou o token (ou não respondeu).
	ErrHubRejected = errors.New("token não autorizado pelo hub")
	// ErrProvisioning indica falha ao criar ou localizar o usuário local.
	ErrProvisioning = errors.New("falha ao preparar usuário")
	// ErrSessionIssuance indica falha ao emitir a sessão.
	ErrSessionIssuance = errors.New("falha ao criar sessão")
)

// Error descreve uma troca que terminou em failed. Stage é o último estado alcançado.
type Error struct {
	Stage  Stage
	Reason error
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sso: %s (%s)", e.Reason, e.Stage)
	}
	return fmt.Sprintf("sso: %s (%s): %v", e.Reason, e.Stage, e.Err)
}

// Unwrap permite errors.Is tanto com o motivo quanto com a causa.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

func fail(stage Stage, reason, cause error) *Error {
	return &Error{Stage: stage, Reason: reason, Err: cause}
}

// StatusCode traduz o motivo da falha para o status HTTP.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken):
		return http.StatusBadRequest
	case errors.Is(err, ErrDecryptFailure), errors.Is(err, ErrHubRejected):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage devolve a mensagem genérica mostrada ao usuário.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != nil {
		return e.Reason.Error()
	}
	return "erro interno"
}
