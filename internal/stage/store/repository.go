package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	apperrors "github.com/leadforge/lead-processing-pipeline/pkg/errors"
	"github.com/leadforge/lead-processing-pipeline/pkg/postgres"
)

// schema mirrors the lead shape with email as the unique key. created_at and
// score are indexed for the reporting surface that reads this table.
const schema = `
CREATE TABLE IF NOT EXISTS leads (
	email        TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	company      TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	ip           TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	geolocation  JSONB,
	company_info JSONB,
	created_at   TIMESTAMPTZ,
	cleaned_at   TIMESTAMPTZ,
	enriched_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS leads_created_at_idx ON leads (created_at);
CREATE INDEX IF NOT EXISTS leads_score_idx ON leads (score);
`

const upsertQuery = `
INSERT INTO leads (
	email, name, phone, company, website, source, notes, ip, score,
	geolocation, company_info, created_at, cleaned_at, enriched_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (email) DO UPDATE SET
	name         = EXCLUDED.name,
	phone        = EXCLUDED.phone,
	company      = EXCLUDED.company,
	website      = EXCLUDED.website,
	source       = EXCLUDED.source,
	notes        = EXCLUDED.notes,
	ip           = EXCLUDED.ip,
	score        = EXCLUDED.score,
	geolocation  = EXCLUDED.geolocation,
	company_info = EXCLUDED.company_info,
	created_at   = EXCLUDED.created_at,
	cleaned_at   = EXCLUDED.cleaned_at,
	enriched_at  = EXCLUDED.enriched_at
RETURNING (xmax = 0) AS inserted
`

// Repository persists leads in PostgreSQL keyed by email.
type Repository struct {
	db *postgres.Client
}

// NewRepository creates a lead repository over the given database client.
func NewRepository(db *postgres.Client) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the leads table and its indexes when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensuring leads schema: %w", err)
	}
	return nil
}

// Upsert writes the lead, replacing the stored document when one already
// exists for the email. It reports whether a new row was inserted. Failures
// are classified as transient so the consumer engine retries instead of
// losing the lead.
func (r *Repository) Upsert(ctx context.Context, l *lead.Lead) (bool, error) {
	geo, err := marshalNullable(l.Geolocation)
	if err != nil {
		return false, fmt.Errorf("encoding geolocation: %w", err)
	}
	company, err := marshalNullable(l.CompanyInfo)
	if err != nil {
		return false, fmt.Errorf("encoding company info: %w", err)
	}

	var inserted bool
	err = r.db.DB.QueryRowContext(ctx, upsertQuery,
		l.Email, l.Name, l.Phone, l.Company, l.Website, l.Source, l.Notes, l.IP, l.Score,
		geo, company, nullableTime(l.CreatedAt), nullableTime(l.CleanedAt), nullableTime(l.EnrichedAt),
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("%w: upserting lead %s: %v", apperrors.ErrStorageUnavailable, l.Email, err)
	}
	return inserted, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
