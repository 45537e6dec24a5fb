package repo

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRole é o papel atribuído a quem entra pelo SSO.
const DefaultRole = "default"

// Profile representa a identidade local usada pelo chat.
type Profile struct {
	ID        uuid.UUID
	Email     string
	Nickname  string
	Role      string
	CreatedAt time.Time
}

// UpsertUserProfileParams reúne os dados para criar usuário e perfil juntos.
type UpsertUserProfileParams struct {
	Email        string
	Nickname     string
	PasswordHash string
	Role         string
	ConfirmedAt  time.Time
}
