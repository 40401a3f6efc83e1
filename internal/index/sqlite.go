package index

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/model"
)

// SQLiteIndex implements Index with an FTS5 table ranked by bm25.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLite creates an index over an open SQLite handle.
func NewSQLite(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS document_chunks (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	company_name     TEXT NOT NULL,
	year             INTEGER NOT NULL DEFAULT 0,
	relative_path    TEXT NOT NULL,
	chunk_index      INTEGER NOT NULL,
	chunk_text       TEXT NOT NULL,
	language         TEXT NOT NULL DEFAULT '',
	upload_timestamp DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (relative_path, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_company ON document_chunks(company_name);

CREATE VIRTUAL TABLE IF NOT EXISTS document_chunks_fts USING fts5(
	chunk_text,
	content='document_chunks',
	content_rowid='id',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS document_chunks_ai AFTER INSERT ON document_chunks BEGIN
	INSERT INTO document_chunks_fts(rowid, chunk_text) VALUES (new.id, new.chunk_text);
END;

CREATE TRIGGER IF NOT EXISTS document_chunks_ad AFTER DELETE ON document_chunks BEGIN
	INSERT INTO document_chunks_fts(document_chunks_fts, rowid, chunk_text) VALUES ('delete', old.id, old.chunk_text);
END;

CREATE TRIGGER IF NOT EXISTS document_chunks_au AFTER UPDATE ON document_chunks BEGIN
	INSERT INTO document_chunks_fts(document_chunks_fts, rowid, chunk_text) VALUES ('delete', old.id, old.chunk_text);
	INSERT INTO document_chunks_fts(rowid, chunk_text) VALUES (new.id, new.chunk_text);
END;
`

func (s *SQLiteIndex) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "index: sqlite migrate")
}

// AddChunks upserts chunks keyed by (relative_path, chunk_index).
func (s *SQLiteIndex) AddChunks(ctx context.Context, chunks []model.DocumentChunk) (int, error) {
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "index: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, c := range chunks {
		ts := c.UploadTimestamp
		if ts.IsZero() {
			ts = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO document_chunks (company_name, year, relative_path, chunk_index, chunk_text, language, upload_timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (relative_path, chunk_index) DO UPDATE SET
			 	company_name = excluded.company_name, year = excluded.year, chunk_text = excluded.chunk_text,
			 	language = excluded.language, upload_timestamp = excluded.upload_timestamp`,
			c.CompanyName, c.Year, c.RelativePath, c.ChunkIndex, c.ChunkText, c.Language, ts,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "index: insert chunk %s#%d", c.RelativePath, c.ChunkIndex)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "index: commit chunks")
	}
	return len(chunks), nil
}

// MatchQuery builds an FTS5 OR query of quoted terms.
func MatchQuery(text string) string {
	terms := Terms(text)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

func (s *SQLiteIndex) Search(ctx context.Context, query string, filter Filter, limit int) ([]Hit, error) {
	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}

	q := `SELECT c.company_name, c.year, c.relative_path, c.chunk_index, c.chunk_text, c.language, c.upload_timestamp,
	bm25(document_chunks_fts) AS rank
FROM document_chunks_fts
JOIN document_chunks c ON c.id = document_chunks_fts.rowid
WHERE document_chunks_fts MATCH ?`
	args := []any{match}
	if filter.CompanyName != "" {
		q += ` AND c.company_name = ?`
		args = append(args, filter.CompanyName)
	}
	if filter.Year != 0 {
		q += ` AND c.year = ?`
		args = append(args, filter.Year)
	}
	q += ` ORDER BY rank, c.relative_path, c.chunk_index LIMIT ?`
	args = append(args, normLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "index: sqlite search")
	}
	defer rows.Close() //nolint:errcheck

	var hits []Hit
	for rows.Next() {
		var h Hit
		var rank float64
		if err := rows.Scan(&h.CompanyName, &h.Year, &h.RelativePath, &h.ChunkIndex, &h.ChunkText,
			&h.Language, &h.UploadTimestamp, &rank); err != nil {
			return nil, eris.Wrap(err, "index: scan hit")
		}
		// bm25 ranks lower-is-better.
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, eris.Wrap(rows.Err(), "index: sqlite search iterate")
}

func (s *SQLiteIndex) Companies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT company_name FROM document_chunks ORDER BY company_name`)
	if err != nil {
		return nil, eris.Wrap(err, "index: list companies")
	}
	defer rows.Close() //nolint:errcheck

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
