package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/db"
	"github.com/sells-group/annual-report-eval/internal/model"
)

// PostgresIndex implements Index with Postgres full-text search.
type PostgresIndex struct {
	pool db.Pool
}

// NewPostgres creates an index over pool. The pool is typically shared with
// the relational store.
func NewPostgres(pool db.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS document_chunks (
	id               BIGSERIAL PRIMARY KEY,
	company_name     TEXT NOT NULL,
	year             INTEGER NOT NULL DEFAULT 0,
	relative_path    TEXT NOT NULL,
	chunk_index      INTEGER NOT NULL,
	chunk_text       TEXT NOT NULL,
	language         TEXT NOT NULL DEFAULT '',
	upload_timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
	tsv              TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', chunk_text)) STORED,
	UNIQUE (relative_path, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_tsv ON document_chunks USING GIN (tsv);
CREATE INDEX IF NOT EXISTS idx_document_chunks_company ON document_chunks(company_name);
`

var chunkColumns = []string{
	"company_name", "year", "relative_path", "chunk_index", "chunk_text", "language", "upload_timestamp",
}

func (p *PostgresIndex) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "index: postgres migrate")
}

// AddChunks upserts chunks keyed by (relative_path, chunk_index).
func (p *PostgresIndex) AddChunks(ctx context.Context, chunks []model.DocumentChunk) (int, error) {
	rows := make([][]any, 0, len(chunks))
	now := time.Now().UTC()
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return 0, err
		}
		ts := c.UploadTimestamp
		if ts.IsZero() {
			ts = now
		}
		rows = append(rows, []any{c.CompanyName, c.Year, c.RelativePath, c.ChunkIndex, c.ChunkText, c.Language, ts})
	}

	n, err := db.BulkUpsert(ctx, p.pool, db.UpsertConfig{
		Table:        "document_chunks",
		Columns:      chunkColumns,
		ConflictKeys: []string{"relative_path", "chunk_index"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "index: add chunks")
	}
	return int(n), nil
}

// TSQuery builds an OR tsquery from free text. An empty result means the
// text had no searchable terms.
func TSQuery(text string) string {
	return strings.Join(Terms(text), " | ")
}

func (p *PostgresIndex) Search(ctx context.Context, query string, filter Filter, limit int) ([]Hit, error) {
	tsq := TSQuery(query)
	if tsq == "" {
		return nil, nil
	}

	sql := `SELECT company_name, year, relative_path, chunk_index, chunk_text, language, upload_timestamp,
	ts_rank_cd(tsv, q) AS score
FROM document_chunks, to_tsquery('english', $1) q
WHERE tsv @@ q`
	args := []any{tsq}
	argIdx := 2

	if filter.CompanyName != "" {
		sql += fmt.Sprintf(` AND company_name = $%d`, argIdx)
		args = append(args, filter.CompanyName)
		argIdx++
	}
	if filter.Year != 0 {
		sql += fmt.Sprintf(` AND year = $%d`, argIdx)
		args = append(args, filter.Year)
		argIdx++
	}
	sql += fmt.Sprintf(` ORDER BY score DESC, relative_path, chunk_index LIMIT $%d`, argIdx)
	args = append(args, normLimit(limit))

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "index: postgres search")
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.CompanyName, &h.Year, &h.RelativePath, &h.ChunkIndex, &h.ChunkText,
			&h.Language, &h.UploadTimestamp, &h.Score); err != nil {
			return nil, eris.Wrap(err, "index: scan hit")
		}
		hits = append(hits, h)
	}
	return hits, eris.Wrap(rows.Err(), "index: postgres search iterate")
}

func (p *PostgresIndex) Companies(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT company_name FROM document_chunks ORDER BY company_name`)
	if err != nil {
		return nil, eris.Wrap(err, "index: list companies")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "index: scan company")
		}
		out = append(out, name)
	}
	return out, eris.Wrap(rows.Err(), "index: list companies iterate")
}
