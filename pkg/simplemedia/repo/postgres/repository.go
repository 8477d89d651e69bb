package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// beginner is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// DefaultOwnerTable is the table OwnerExists checks
const DefaultOwnerTable = "products"

// Repository implements simplemedia.Repository using PostgreSQL
type Repository struct {
	db         DBTX
	ownerTable string
}

// Option configures the repository
type Option func(*Repository)

// WithOwnerTable sets the (optionally schema-qualified) owner table used by OwnerExists
func WithOwnerTable(table string) Option {
	return func(r *Repository) {
		if table != "" {
			r.ownerTable = table
		}
	}
}

// New creates a new PostgreSQL repository
func New(db DBTX, opts ...Option) *Repository {
	r := &Repository{db: db, ownerTable: DefaultOwnerTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Repository {
	return New(pool, opts...)
}

type txKey struct{}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// conn returns the transaction carried by ctx, or the base connection
func (r *Repository) conn(ctx context.Context) DBTX {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// RunInTransaction executes fn within a database transaction. If ctx already
// carries one, fn joins it and the outer call commits or rolls back.
func (r *Repository) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	b, ok := r.db.(beginner)
	if !ok {
		return errors.New("database handle does not support transactions")
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", operation, simplemedia.ErrDuplicateStorageKey)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const mediaColumns = `id, media_type, storage_key, file_name, content_type, size, owner_id, created_at, updated_at`

func (r *Repository) Insert(ctx context.Context, media *simplemedia.MediaObject) error {
	query := `
		INSERT INTO media_object (media_type, storage_key, file_name, content_type, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.conn(ctx).QueryRow(ctx, query,
		string(media.MediaType), media.StorageKey, media.FileName, media.ContentType, media.Size,
	).Scan(&media.ID, &media.CreatedAt, &media.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("insert media", err)
	}

	media.OwnerID = nil
	return nil
}

func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]*simplemedia.MediaObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + mediaColumns + ` FROM media_object WHERE id = ANY($1) ORDER BY id`
	return r.queryMedia(ctx, "find media by ids", query, ids)
}

func (r *Repository) FindByOwner(ctx context.Context, ownerID int64) ([]*simplemedia.MediaObject, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_object WHERE owner_id = $1 ORDER BY id`
	return r.queryMedia(ctx, "find media by owner", query, ownerID)
}

// FindUnownedBefore locks the returned rows when called inside a
// transaction, so a concurrent owner assignment waits for the caller to
// finish with them.
func (r *Repository) FindUnownedBefore(ctx context.Context, before time.Time) ([]*simplemedia.MediaObject, error) {
	query := `SELECT ` + mediaColumns + `
		FROM media_object
		WHERE owner_id IS NULL AND created_at < $1
		ORDER BY created_at`
	if _, ok := txFromContext(ctx); ok {
		query += ` FOR UPDATE`
	}
	return r.queryMedia(ctx, "find unowned media", query, before)
}

func (r *Repository) BulkSetOwner(ctx context.Context, ownerID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE media_object SET owner_id = $1, updated_at = NOW() WHERE id = ANY($2)`
	tag, err := r.conn(ctx).Exec(ctx, query, ownerID, ids)
	if err != nil {
		return 0, r.handlePostgresError("set owner", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimUnowned only updates rows that have no owner at the time of the update
func (r *Repository) ClaimUnowned(ctx context.Context, ownerID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE media_object SET owner_id = $1, updated_at = NOW() WHERE id = ANY($2) AND owner_id IS NULL`
	tag, err := r.conn(ctx).Exec(ctx, query, ownerID, ids)
	if err != nil {
		return 0, r.handlePostgresError("claim media", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) BulkClearOwner(ctx context.Context, ownerID int64) (int64, error) {
	query := `UPDATE media_object SET owner_id = NULL, updated_at = NOW() WHERE owner_id = $1`
	tag, err := r.conn(ctx).Exec(ctx, query, ownerID)
	if err != nil {
		return 0, r.handlePostgresError("clear owner", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteAll(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM media_object WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, r.handlePostgresError("delete media", err)
	}
	return tag.RowsAffected(), nil
}

// OwnerExists implements simplemedia.OwnerDirectory against the owner table
func (r *Repository) OwnerExists(ctx context.Context, ownerID int64) (bool, error) {
	table := pgx.Identifier(strings.Split(r.ownerTable, ".")).Sanitize()
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE id = $1)`

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, query, ownerID).Scan(&exists); err != nil {
		return false, r.handlePostgresError("owner exists", err)
	}
	return exists, nil
}

func (r *Repository) queryMedia(ctx context.Context, operation, query string, args ...interface{}) ([]*simplemedia.MediaObject, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	defer rows.Close()

	var result []*simplemedia.MediaObject
	for rows.Next() {
		var (
			m         simplemedia.MediaObject
			mediaType string
		)
		if err := rows.Scan(
			&m.ID, &mediaType, &m.StorageKey, &m.FileName, &m.ContentType,
			&m.Size, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		m.MediaType = simplemedia.MediaType(mediaType)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError(operation, err)
	}

	return result, nil
}
