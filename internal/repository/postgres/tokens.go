package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

// TokenLedgerRepository implements port.TokenLedger backed by PostgreSQL.
// The auth.tokens table is the authority on token liveness: a JTI missing
// from it is revoked no matter how valid the signature is.
type TokenLedgerRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenLedgerRepository constructs a token ledger repository.
func NewTokenLedgerRepository(pool *pgxpool.Pool) *TokenLedgerRepository {
	return &TokenLedgerRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenLedgerRepository) WithTx(tx pgx.Tx) *TokenLedgerRepository {
	if tx == nil {
		return r
	}
	return &TokenLedgerRepository{pool: r.pool, exec: tx, builder: r.builder}
}

// Insert records a freshly issued token. Exactly one of audience_value and
// application_id is written, matching the sides of the audience sum.
func (r *TokenLedgerRepository) Insert(ctx context.Context, record domain.TokenRecord) error {
	if record.Audience.IsZero() {
		return domain.ErrEmptyAudience
	}

	var audienceValue, applicationID *string
	if record.Audience.IsApplication() {
		v := record.Audience.ApplicationID()
		applicationID = &v
	} else {
		v := record.Audience.Value()
		audienceValue = &v
	}

	stmt, args, err := r.builder.Insert("auth.tokens").
		Columns("jti", "user_id", "kind", "audience_value", "application_id", "created_at", "expires_at").
		Values(record.JTI, record.UserID, string(record.Kind), audienceValue, applicationID, record.CreatedAt, record.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert token record: %w", err)
	}

	return nil
}

// Exists reports whether the JTI is live for the subject and bound to the
// supplied audience claim. The claim string carries either the free-text
// audience value or a registered application id, so it is matched against
// both columns; since exactly one is populated per row this cannot match
// across purposes.
func (r *TokenLedgerRepository) Exists(ctx context.Context, userID, jti, audience string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From("auth.tokens").
		Where(squirrel.Eq{"user_id": userID, "jti": jti}).
		Where(squirrel.Or{
			squirrel.Eq{"audience_value": audience},
			squirrel.Eq{"application_id": audience},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select token sql: %w", err)
	}

	var one int
	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan token existence: %w", err)
	}

	return true, nil
}

// Delete removes the given JTIs from the ledger, revoking them.
func (r *TokenLedgerRepository) Delete(ctx context.Context, jtis []string) error {
	if len(jtis) == 0 {
		return nil
	}

	stmt, args, err := r.builder.Delete("auth.tokens").
		Where(squirrel.Eq{"jti": jtis}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete tokens sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete token records: %w", err)
	}

	return nil
}

// DeleteAll removes every token for the user, optionally narrowed by kind
// and/or audience claim.
func (r *TokenLedgerRepository) DeleteAll(ctx context.Context, userID string, kind *domain.TokenKind, audience *string) error {
	del := r.builder.Delete("auth.tokens").
		Where(squirrel.Eq{"user_id": userID})
	if kind != nil {
		del = del.Where(squirrel.Eq{"kind": string(*kind)})
	}
	if audience != nil {
		del = del.Where(squirrel.Or{
			squirrel.Eq{"audience_value": *audience},
			squirrel.Eq{"application_id": *audience},
		})
	}

	stmt, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete user tokens sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete user token records: %w", err)
	}

	return nil
}

// Prune loads the user's ledger rows, removes the expired ones plus the
// rotated-out oldJTI in a single delete, and returns the survivors
// partitioned by kind. Pruning twice with the same arguments yields the
// same partition, so the operation is safe to retry.
func (r *TokenLedgerRepository) Prune(ctx context.Context, userID string, oldJTI string, now time.Time) (*domain.PruneResult, error) {
	records, err := r.listByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &domain.PruneResult{}
	for _, record := range records {
		if record.IsExpired(now) || (oldJTI != "" && record.JTI == oldJTI) {
			result.Removed = append(result.Removed, record.JTI)
			continue
		}
		switch record.Kind {
		case domain.TokenKindApplication:
			result.Application = append(result.Application, record)
		case domain.TokenKindTemporary:
			result.Temporary = append(result.Temporary, record)
		case domain.TokenKindAccess:
			result.Access = append(result.Access, record)
		}
	}

	if err := r.Delete(ctx, result.Removed); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *TokenLedgerRepository) listByUser(ctx context.Context, userID string) ([]domain.TokenRecord, error) {
	stmt, args, err := r.builder.Select("jti", "user_id", "kind", "audience_value", "application_id", "created_at", "expires_at").
		From("auth.tokens").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user token records: %w", err)
	}
	defer rows.Close()

	var records []domain.TokenRecord
	for rows.Next() {
		var (
			record        domain.TokenRecord
			kind          string
			audienceValue sql.NullString
			applicationID sql.NullString
		)
		if err := rows.Scan(&record.JTI, &record.UserID, &kind, &audienceValue, &applicationID, &record.CreatedAt, &record.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan token record: %w", err)
		}
		record.Kind = domain.TokenKind(kind)

		switch {
		case applicationID.Valid:
			record.Audience, err = domain.AudienceApplication(applicationID.String)
		case audienceValue.Valid:
			record.Audience, err = domain.AudienceValue(audienceValue.String)
		default:
			err = domain.ErrEmptyAudience
		}
		if err != nil {
			return nil, fmt.Errorf("decode token audience: %w", err)
		}

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token records: %w", err)
	}

	return records, nil
}

var _ port.TokenLedger = (*TokenLedgerRepository)(nil)
