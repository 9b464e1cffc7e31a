package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users        *UserRepository
	Security     *SecurityRepository
	TwoFactor    *TwoFactorRepository
	Tokens       *TokenLedgerRepository
	Applications *ApplicationRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:        NewUserRepository(pool),
		Security:     NewSecurityRepository(pool),
		TwoFactor:    NewTwoFactorRepository(pool),
		Tokens:       NewTokenLedgerRepository(pool),
		Applications: NewApplicationRepository(pool),
	}
}
