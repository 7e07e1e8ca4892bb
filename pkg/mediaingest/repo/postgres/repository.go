package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// Schema creates the tables used by the repository. The album table belongs to
// the album domain; only tenant_id and album_id are read from it.
const Schema = `
CREATE TABLE IF NOT EXISTS album (
    tenant_id   TEXT NOT NULL,
    album_id    TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, album_id)
);

CREATE TABLE IF NOT EXISTS image (
    tenant_id    TEXT NOT NULL,
    id           TEXT NOT NULL,
    album_id     TEXT NOT NULL,
    filename     TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    size_bytes   BIGINT NOT NULL DEFAULT 0,
    width        INTEGER NOT NULL DEFAULT 0,
    height       INTEGER NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL,
    original_key TEXT NOT NULL DEFAULT '',
    variants     JSONB NOT NULL DEFAULT '[]'::jsonb,
    processed_at TIMESTAMPTZ,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS image_album_idx ON image (tenant_id, album_id);
`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements mediaingest.ImageMetadataStore and
// mediaingest.AlbumLookup using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate creates the schema if it does not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return r.handlePostgresError("migrate", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// GetAlbum returns the album or mediaingest.ErrAlbumNotFound
func (r *Repository) GetAlbum(ctx context.Context, tenantID, albumID string) (*mediaingest.Album, error) {
	query := `SELECT tenant_id, album_id, name FROM album WHERE tenant_id = $1 AND album_id = $2`

	var album mediaingest.Album
	err := r.db.QueryRow(ctx, query, tenantID, albumID).Scan(&album.TenantID, &album.AlbumID, &album.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaingest.ErrAlbumNotFound
		}
		return nil, r.handlePostgresError("get album", err)
	}
	return &album, nil
}

// GetImage returns the record or mediaingest.ErrImageNotFound
func (r *Repository) GetImage(ctx context.Context, tenantID, imageID string) (*mediaingest.ImageRecord, error) {
	query := `
		SELECT id, tenant_id, album_id, filename, content_type, size_bytes,
		       width, height, created_at, original_key, variants, processed_at
		FROM image WHERE tenant_id = $1 AND id = $2`

	var rec mediaingest.ImageRecord
	var variants []byte
	var processedAt *time.Time
	err := r.db.QueryRow(ctx, query, tenantID, imageID).Scan(
		&rec.ID, &rec.TenantID, &rec.AlbumID, &rec.Filename, &rec.ContentType, &rec.SizeBytes,
		&rec.Width, &rec.Height, &rec.CreatedAt, &rec.OriginalKey, &variants, &processedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediaingest.ErrImageNotFound
		}
		return nil, r.handlePostgresError("get image", err)
	}

	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &rec.Variants); err != nil {
			return nil, fmt.Errorf("decode variants for image %s: %w", imageID, err)
		}
	}
	rec.ProcessedAt = processedAt
	return &rec, nil
}

// PutImage upserts the record. The last writer wins; there is no version check.
func (r *Repository) PutImage(ctx context.Context, rec *mediaingest.ImageRecord) error {
	variants := rec.Variants
	if variants == nil {
		variants = []mediaingest.Variant{}
	}
	encoded, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("encode variants for image %s: %w", rec.ID, err)
	}

	query := `
		INSERT INTO image (
			id, tenant_id, album_id, filename, content_type, size_bytes,
			width, height, created_at, original_key, variants, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			album_id = EXCLUDED.album_id,
			filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			created_at = EXCLUDED.created_at,
			original_key = EXCLUDED.original_key,
			variants = EXCLUDED.variants,
			processed_at = EXCLUDED.processed_at`

	_, err = r.db.Exec(ctx, query,
		rec.ID, rec.TenantID, rec.AlbumID, rec.Filename, rec.ContentType, rec.SizeBytes,
		rec.Width, rec.Height, rec.CreatedAt, rec.OriginalKey, string(encoded), rec.ProcessedAt)
	if err != nil {
		return r.handlePostgresError("put image", err)
	}
	return nil
}
