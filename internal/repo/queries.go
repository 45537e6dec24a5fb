package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendaseguro/chatsso/internal/db"
)

const profileColumns = `id, email, nickname, role, created_at`

// Queries agrupa o acesso a usuários e perfis.
type Queries struct {
	pool *pgxpool.Pool
}

// New cria as queries sobre o pool informado.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// Ping confirma que o banco responde.
func (q *Queries) Ping(ctx context.Context) error {
	return q.pool.Ping(ctx)
}

// GetProfileByEmail busca perfil pelo e-mail (comparação sem diferenciar maiúsculas).
func (q *Queries) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE email = lower($1)`
	return scanProfile(q.pool.QueryRow(ctx, query, email))
}

// GetProfileByID busca perfil pelo identificador.
func (q *Queries) GetProfileByID(ctx context.Context, id uuid.UUID) (Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(q.pool.QueryRow(ctx, query, id))
}

// UpsertUserProfile cria usuário e perfil numa transação. Se outro login já criou o e-mail,
// o usuário existente é reaproveitado; created=true só quando o perfil nasceu nesta chamada.
// Um auth_users sem perfil (perfil apagado) ganha um perfil novo com o mesmo id.
func (q *Queries) UpsertUserProfile(ctx context.Context, arg UpsertUserProfileParams) (Profile, bool, error) {
	const insertUser = `
        INSERT INTO auth_users (email, password_hash, email_confirmed_at)
        VALUES (lower($1), $2, $3)
        ON CONFLICT (email) DO NOTHING
        RETURNING id
    `
	const selectUserID = `SELECT id FROM auth_users WHERE email = lower($1)`
	const insertProfile = `
        INSERT INTO profiles (id, email, nickname, role)
        VALUES ($1, lower($2), $3, $4)
        ON CONFLICT DO NOTHING
        RETURNING ` + profileColumns
	const selectExisting = `SELECT ` + profileColumns + ` FROM profiles WHERE email = lower($1)`

	var (
		profile Profile
		created bool
	)

	err := db.WithTx(ctx, q.pool, func(ctx context.Context, tx pgx.Tx) error {
		var userID uuid.UUID
		err := tx.QueryRow(ctx, insertUser, arg.Email, arg.PasswordHash, arg.ConfirmedAt).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(ctx, selectUserID, arg.Email).Scan(&userID)
		}
		if err != nil {
			return fmt.Errorf("inserir usuário: %w", err)
		}

		p, err := scanProfile(tx.QueryRow(ctx, insertProfile, userID, arg.Email, arg.Nickname, arg.Role))
		if errors.Is(err, ErrNotFound) {
			p, err = scanProfile(tx.QueryRow(ctx, selectExisting, arg.Email))
			if err != nil {
				return fmt.Errorf("perfil existente: %w", err)
			}
			profile = p
			return nil
		}
		if err != nil {
			return fmt.Errorf("inserir perfil: %w", err)
		}
		profile = p
		created = true
		return nil
	})
	if err != nil {
		return Profile{}, false, err
	}

	return profile, created, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.Email, &p.Nickname, &p.Role, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}
