// File: internal/store/templates_pg.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const templateSchema = `
CREATE TABLE IF NOT EXISTS form_templates (
    url         TEXT        NOT NULL,
    version     INT         NOT NULL,
    form_type   TEXT        NOT NULL,
    definition  JSONB       NOT NULL,
    learned_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (url, version)
)`

// PGTemplateStore persists form templates in PostgreSQL. Every save inserts
// a new version row; lookups return the newest version for a URL.
type PGTemplateStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.TemplateStore = (*PGTemplateStore)(nil)

// NewPGTemplateStore verifies the connection and ensures the schema exists.
func NewPGTemplateStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PGTemplateStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, templateSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure template schema: %w", err)
	}
	return &PGTemplateStore{pool: pool, log: logger.Named("template_store")}, nil
}

// GetTemplate returns the newest template version for url.
func (s *PGTemplateStore) GetTemplate(ctx context.Context, rawURL string) (schemas.FormTemplate, error) {
	normalized := normalizeURL(rawURL)

	var (
		definition []byte
		version    int
	)
	row := s.pool.QueryRow(ctx,
		`SELECT version, definition FROM form_templates WHERE url = $1 ORDER BY version DESC LIMIT 1`,
		normalized,
	)
	if err := row.Scan(&version, &definition); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schemas.FormTemplate{}, schemas.ErrTemplateNotFound
		}
		return schemas.FormTemplate{}, fmt.Errorf("failed to query template for %q: %w", rawURL, err)
	}

	var tpl schemas.FormTemplate
	if err := json.Unmarshal(definition, &tpl); err != nil {
		return schemas.FormTemplate{}, fmt.Errorf("corrupt template row for %q: %w", rawURL, err)
	}
	tpl.Version = version
	return tpl, nil
}

// SaveTemplate inserts tpl as the next version for its URL.
func (s *PGTemplateStore) SaveTemplate(ctx context.Context, tpl schemas.FormTemplate) error {
	if tpl.URL == "" {
		return fmt.Errorf("cannot save a template without a URL")
	}
	normalized := normalizeURL(tpl.URL)
	if tpl.LearnedAt.IsZero() {
		tpl.LearnedAt = time.Now().UTC()
	}

	var next int
	row := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM form_templates WHERE url = $1`,
		normalized,
	)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("failed to determine next template version for %q: %w", tpl.URL, err)
	}
	tpl.Version = next

	definition, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("failed to serialize template for %q: %w", tpl.URL, err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO form_templates (url, version, form_type, definition, learned_at) VALUES ($1, $2, $3, $4, $5)`,
		normalized, tpl.Version, string(tpl.FormType), definition, tpl.LearnedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert template for %q: %w", tpl.URL, err)
	}

	s.log.Debug("Template saved",
		zap.String("url", normalized),
		zap.Int("version", tpl.Version),
	)
	return nil
}
