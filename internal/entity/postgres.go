package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 10 * time.Second

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// Options represents an optional function to override NewPostgres default values.
type Options func(*options)

// NewPostgres connects to the PostgreSQL database at dsn. The schema must
// already be migrated.
func NewPostgres(ctx context.Context, dsn string, args ...Options) (*Repository, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	pool, err := opts.newPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	slog.Info("Connected to PostgreSQL database")

	return &Repository{
		Customers:       &pgTable[Customer]{pool: pool, schema: customerSchema},
		Management:      &pgTable[Management]{pool: pool, schema: managementSchema},
		CustomerUsers:   &pgTable[CustomerUser]{pool: pool, schema: customerUserSchema},
		ManagementUsers: &pgTable[ManagementUser]{pool: pool, schema: managementUserSchema},
		Machines:        &pgTable[MachineModel]{pool: pool, schema: machineSchema},
		Serials:         &pgTable[SerialNumber]{pool: pool, schema: serialSchema},
		ping:            pool.Ping,
		close: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

type pgTable[T any] struct {
	pool   dbPool
	schema schema[T]
}

func (t *pgTable[T]) table() string {
	return pgx.Identifier{t.schema.table}.Sanitize()
}

func (t *pgTable[T]) columnList() string {
	cols := make([]string, len(t.schema.columns))
	for i, c := range t.schema.columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(cols, ", ")
}

func (t *pgTable[T]) Create(ctx context.Context, v *T) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	placeholders := make([]string, len(t.schema.columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		t.table(), t.columnList(), strings.Join(placeholders, ", "))

	err := t.pool.QueryRow(ctx, query, t.schema.fields(v)...).Scan(t.schema.id(v))
	return t.mapError("insert", 0, err)
}

func (t *pgTable[T]) Get(ctx context.Context, id int64) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var v T
	query := fmt.Sprintf("SELECT id, %s FROM %s WHERE id = $1", t.columnList(), t.table())
	dest := append([]any{t.schema.id(&v)}, t.schema.fields(&v)...)
	if err := t.pool.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		var zero T
		return zero, t.mapError("select", id, err)
	}
	return v, nil
}

func (t *pgTable[T]) List(ctx context.Context, filters ...Filter) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		where []string
		args  []any
	)
	for _, f := range filters {
		if _, err := t.schema.columnIndex(f.Column); err != nil {
			return nil, err
		}
		args = append(args, normalize(f.Value))
		where = append(where, fmt.Sprintf("%s = $%d", pgx.Identifier{f.Column}.Sanitize(), len(args)))
	}

	query := fmt.Sprintf("SELECT id, %s FROM %s", t.columnList(), t.table())
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := t.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, t.mapError("select", 0, err)
	}
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		var v T
		dest := append([]any{t.schema.id(&v)}, t.schema.fields(&v)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, t.mapError("scan", 0, err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, t.mapError("select", 0, err)
	}
	return result, nil
}

func (t *pgTable[T]) Update(ctx context.Context, id int64, v *T) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sets := make([]string, len(t.schema.columns))
	for i, c := range t.schema.columns {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
	}
	args := append(t.schema.fields(v), id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", t.table(), strings.Join(sets, ", "), len(args))

	tag, err := t.pool.Exec(ctx, query, args...)
	if err != nil {
		return t.mapError("update", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", t.schema.table, id, ErrNotFound)
	}
	*t.schema.id(v) = id
	return nil
}

func (t *pgTable[T]) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := t.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.table()), id)
	if err != nil {
		return t.mapError("delete", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", t.schema.table, id, ErrNotFound)
	}
	return nil
}

// mapError turns driver errors into the package sentinels.
func (t *pgTable[T]) mapError(op string, id int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", t.schema.table, id, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Detail)
		}
	}
	return fmt.Errorf("%s %s: %w", op, t.schema.table, err)
}
