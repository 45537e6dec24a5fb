//go:build integration

package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/vendaseguro/chatsso/internal/db"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("chatsso_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool, "up"))
	return pool
}

func TestUpsertUserProfileConcurrent(t *testing.T) {
	pool := setupPool(t)
	q := New(pool)
	ctx := context.Background()

	emails := []string{"Alice@Example.com", "alice@example.com", "ALICE@EXAMPLE.COM", "alice@Example.com"}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		profiles []Profile
		errs     []error
		created  int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			p, ok, err := q.UpsertUserProfile(ctx, UpsertUserProfileParams{
				Email:        email,
				Nickname:     "alice",
				PasswordHash: "hash",
				Role:         DefaultRole,
				ConfirmedAt:  time.Now(),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			profiles = append(profiles, p)
			if ok {
				created++
			}
		}(emails[i%len(emails)])
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 1, created)
	for _, p := range profiles {
		require.Equal(t, profiles[0].ID, p.ID)
		require.Equal(t, "alice@example.com", p.Email)
		require.Equal(t, DefaultRole, p.Role)
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM profiles`).Scan(&count))
	require.Equal(t, 1, count)

	got, err := q.GetProfileByEmail(ctx, "ALICE@example.COM")
	require.NoError(t, err)
	require.Equal(t, profiles[0].ID, got.ID)

	byID, err := q.GetProfileByID(ctx, got.ID)
	require.NoError(t, err)
	require.Equal(t, got, byID)
}

func TestUpsertUserProfileRepairsMissingProfile(t *testing.T) {
	pool := setupPool(t)
	q := New(pool)
	ctx := context.Background()

	params := UpsertUserProfileParams{
		Email:        "Bob@Example.com",
		Nickname:     "bob",
		PasswordHash: "hash",
		Role:         DefaultRole,
		ConfirmedAt:  time.Now(),
	}
	first, created, err := q.UpsertUserProfile(ctx, params)
	require.NoError(t, err)
	require.True(t, created)

	_, err = pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, first.ID)
	require.NoError(t, err)

	again, created, err := q.UpsertUserProfile(ctx, params)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, "bob@example.com", again.Email)

	_, created, err = q.UpsertUserProfile(ctx, params)
	require.NoError(t, err)
	require.False(t, created)

	var users int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM auth_users`).Scan(&users))
	require.Equal(t, 1, users)
}

func TestGetProfileNotFound(t *testing.T) {
	pool := setupPool(t)
	_, err := New(pool).GetProfileByEmail(context.Background(), "ninguem@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}
