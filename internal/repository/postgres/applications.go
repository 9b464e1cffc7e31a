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

// ApplicationRepository implements port.ApplicationRepository backed by PostgreSQL.
type ApplicationRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewApplicationRepository constructs a registered application repository.
func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *ApplicationRepository) WithTx(tx pgx.Tx) *ApplicationRepository {
	if tx == nil {
		return r
	}
	return &ApplicationRepository{pool: r.pool, exec: tx, builder: r.builder}
}

const applicationColumns = "id, user_id, name, type, last_location, created_at, updated_at"

// Create inserts a registered application. (user_id, name) is unique, so a
// second registration under the same descriptor surfaces as ErrDuplicate.
func (r *ApplicationRepository) Create(ctx context.Context, app domain.RegisteredApplication) error {
	stmt, args, err := r.builder.Insert("auth.applications").
		Columns("id", "user_id", "name", "type", "last_location", "created_at", "updated_at").
		Values(app.ID, app.UserID, app.Name, string(app.Type), app.LastLocation, app.CreatedAt, app.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert application sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert application: %w", err)
	}

	return nil
}

// GetByID fetches an application by id.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*domain.RegisteredApplication, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByUserAndName fetches the user's application with the given descriptor name.
func (r *ApplicationRepository) GetByUserAndName(ctx context.Context, userID, name string) (*domain.RegisteredApplication, error) {
	return r.getOne(ctx, squirrel.Eq{"user_id": userID, "name": name})
}

// UpdateLastLocation refreshes the application's last seen location.
func (r *ApplicationRepository) UpdateLastLocation(ctx context.Context, id, location string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.applications").
		Set("last_location", location).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update application sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update application location: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes an application record.
func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("auth.applications").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete application sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *ApplicationRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.RegisteredApplication, error) {
	stmt, args, err := r.builder.Select(applicationColumns).
		From("auth.applications").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select application sql: %w", err)
	}

	var (
		app     domain.RegisteredApplication
		appType string
	)

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&app.ID, &app.UserID, &app.Name, &appType, &app.LastLocation, &app.CreatedAt, &app.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}
	app.Type = domain.ApplicationType(appType)

	return &app, nil
}

var _ port.ApplicationRepository = (*ApplicationRepository)(nil)
