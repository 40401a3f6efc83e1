package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/annual-report-eval/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single writer avoids SQLITE_BUSY under concurrent result appends.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying handle so the document index can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS criteria (
	id           TEXT NOT NULL,
	version      TEXT NOT NULL DEFAULT '1.0',
	question     TEXT NOT NULL DEFAULT '',
	cluster      TEXT NOT NULL DEFAULT '[]',
	role         TEXT NOT NULL DEFAULT '',
	instructions TEXT NOT NULL DEFAULT '',
	output_spec  TEXT NOT NULL DEFAULT '',
	prompt       TEXT NOT NULL DEFAULT '',
	weight       REAL NOT NULL DEFAULT 1.0 CHECK (weight >= 0),
	active       INTEGER NOT NULL DEFAULT 1,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (id, version)
);

CREATE TABLE IF NOT EXISTS disqualifications (
	company_name TEXT PRIMARY KEY,
	topic        TEXT NOT NULL,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id        TEXT PRIMARY KEY,
	criteria_ids  TEXT NOT NULL,
	company_names TEXT NOT NULL,
	analysis_type TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS evaluation_results (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL,
	criteria_id      TEXT NOT NULL,
	criteria_version TEXT NOT NULL,
	company_name     TEXT NOT NULL,
	question         TEXT NOT NULL DEFAULT '',
	prompt_used      TEXT NOT NULL,
	result           TEXT NOT NULL,
	justification    TEXT NOT NULL DEFAULT '',
	evidence         TEXT NOT NULL DEFAULT '',
	raw_output       TEXT NOT NULL DEFAULT '',
	output           TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (run_id, criteria_id, company_name)
);

CREATE INDEX IF NOT EXISTS idx_results_company ON evaluation_results(company_name);
CREATE INDEX IF NOT EXISTS idx_results_criteria ON evaluation_results(criteria_id, criteria_version);

CREATE TABLE IF NOT EXISTS cell_failures (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL,
	criteria_id      TEXT NOT NULL,
	criteria_version TEXT NOT NULL,
	company_name     TEXT NOT NULL,
	kind             TEXT NOT NULL,
	error_class      TEXT NOT NULL DEFAULT 'permanent',
	message          TEXT NOT NULL,
	raw_output       TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (run_id, criteria_id, company_name)
);

CREATE INDEX IF NOT EXISTS idx_cell_failures_run ON cell_failures(run_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Criteria ---

func (s *SQLiteStore) UpsertCriteria(ctx context.Context, criteria []model.Criterion) (int, error) {
	if len(criteria) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range criteria {
			cluster, err := marshalList(c.Cluster)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO criteria (id, version, question, cluster, role, instructions, output_spec, prompt, weight, active, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id, version) DO UPDATE SET
				 	question = excluded.question, cluster = excluded.cluster, role = excluded.role,
				 	instructions = excluded.instructions, output_spec = excluded.output_spec,
				 	prompt = excluded.prompt, weight = excluded.weight, active = excluded.active,
				 	updated_at = excluded.updated_at`,
				c.ID, c.Version, c.Question, cluster, c.Role, c.Instructions,
				c.OutputSpec, c.Prompt, c.Weight, c.Active, now, now,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert criterion %s", c.Key())
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(criteria), nil
}

const sqliteCriteriaSelect = `SELECT id, version, question, cluster, role, instructions, output_spec, prompt, weight, active, created_at, updated_at FROM criteria`

func (s *SQLiteStore) GetCriterion(ctx context.Context, id, version string) (*model.Criterion, error) {
	query := sqliteCriteriaSelect + ` WHERE id = ?`
	args := []any{id}
	if version != "" {
		query += ` AND version = ?`
		args = append(args, version)
	}
	query += ` ORDER BY updated_at DESC, version DESC LIMIT 1`

	c, err := scanSQLiteCriterion(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: criterion %s@%s", id, version)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get criterion %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCriteria(ctx context.Context, filter CriteriaFilter) ([]model.Criterion, error) {
	query := sqliteCriteriaSelect + ` WHERE 1=1`
	var args []any

	switch filter.Status {
	case CriteriaActive:
		query += ` AND active = 1`
	case CriteriaInactive:
		query += ` AND active = 0`
	}
	if filter.Version != "" {
		query += ` AND version = ?`
		args = append(args, filter.Version)
	}
	if filter.Role != "" {
		query += ` AND role = ?`
		args = append(args, filter.Role)
	}
	if filter.IDPrefix != "" {
		query += ` AND substr(id, 1, length(?)) = ?`
		args = append(args, filter.IDPrefix, filter.IDPrefix)
	}
	if len(filter.IDs) > 0 {
		query += ` AND id IN (` + placeholders(len(filter.IDs)) + `)`
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id, version`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list criteria")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Criterion
	for rows.Next() {
		c, err := scanSQLiteCriterion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan criterion")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list criteria iterate")
}

func (s *SQLiteStore) SetCriterionActive(ctx context.Context, id, version string, active bool) (int, error) {
	query := `UPDATE criteria SET active = ?, updated_at = ? WHERE id = ?`
	args := []any{active, time.Now().UTC(), id}
	if version != "" {
		query += ` AND version = ?`
		args = append(args, version)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: set criterion %s active", id)
	}
	return affected(res, "criterion", id)
}

func (s *SQLiteStore) DeleteCriterion(ctx context.Context, id, version string) (int, error) {
	query := `DELETE FROM criteria WHERE id = ?`
	args := []any{id}
	if version != "" {
		query += ` AND version = ?`
		args = append(args, version)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete criterion %s", id)
	}
	return affected(res, "criterion", id)
}

func scanSQLiteCriterion(row scannable) (*model.Criterion, error) {
	var c model.Criterion
	var cluster string
	err := row.Scan(&c.ID, &c.Version, &c.Question, &cluster, &c.Role, &c.Instructions,
		&c.OutputSpec, &c.Prompt, &c.Weight, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cluster), &c.Cluster); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cluster")
	}
	if len(c.Cluster) == 0 {
		c.Cluster = nil
	}
	return &c, nil
}

// --- Media scan ---

func (s *SQLiteStore) UpsertDisqualifications(ctx context.Context, records []model.DisqualificationRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO disqualifications (company_name, topic, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT (company_name) DO UPDATE SET topic = excluded.topic, updated_at = excluded.updated_at`,
				r.CompanyName, r.Topic, now,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert disqualification %s", r.CompanyName)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *SQLiteStore) ListDisqualifications(ctx context.Context) ([]model.DisqualificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT company_name, topic, updated_at FROM disqualifications ORDER BY company_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list disqualifications")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DisqualificationRecord
	for rows.Next() {
		var r model.DisqualificationRecord
		if err := rows.Scan(&r.CompanyName, &r.Topic, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan disqualification")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list disqualifications iterate")
}

func (s *SQLiteStore) DeleteDisqualification(ctx context.Context, companyName string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM disqualifications WHERE company_name = ?`, companyName)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete disqualification %s", companyName)
	}
	_, err = affected(res, "disqualification", companyName)
	return err
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.AnalysisRun) error {
	criteriaIDs, err := marshalList(run.CriteriaIDs)
	if err != nil {
		return err
	}
	companies, err := marshalList(run.CompanyNames)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (run_id, criteria_ids, company_names, analysis_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, criteriaIDs, companies, run.AnalysisType, run.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error) {
	var r model.AnalysisRun
	var criteriaIDs, companies string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, criteria_ids, company_names, analysis_type, created_at FROM analysis_runs WHERE run_id = ?`,
		runID,
	).Scan(&r.ID, &criteriaIDs, &companies, &r.AnalysisType, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if err := json.Unmarshal([]byte(criteriaIDs), &r.CriteriaIDs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal criteria ids")
	}
	if err := json.Unmarshal([]byte(companies), &r.CompanyNames); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal company names")
	}
	return &r, nil
}

func (s *SQLiteStore) ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = defaultSummaryLimit
	}
	rows, err := s.db.QueryContext(ctx, runSummaryQuery+`?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run summaries")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RunSummary
	for rows.Next() {
		var rs model.RunSummary
		var started any
		if err := rows.Scan(&rs.RunID, &rs.CriteriaCount, &rs.CompanyCount, &rs.ResultCount, &rs.FailureCount, &started); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run summary")
		}
		if rs.StartedAt, err = parseSQLiteTime(started); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list run summaries iterate")
}

func (s *SQLiteStore) Overview(ctx context.Context) (*model.Overview, error) {
	var o model.Overview
	if err := s.db.QueryRowContext(ctx, overviewQuery).Scan(&o.Runs, &o.Analyses, &o.Companies, &o.Criteria); err != nil {
		return nil, eris.Wrap(err, "sqlite: overview")
	}
	return &o, nil
}

// --- Results ---

func (s *SQLiteStore) AppendResult(ctx context.Context, r model.EvaluationResult) error {
	output, err := json.Marshal(r.Output)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal output snapshot")
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluation_results (run_id, criteria_id, criteria_version, company_name, question, prompt_used, result, justification, evidence, raw_output, output, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.CriteriaID, r.CriteriaVersion, r.CompanyName, r.Question, r.PromptUsed,
		r.Result, r.Justification, r.Evidence, r.RawOutput, string(output), createdAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return eris.Wrapf(ErrDuplicateResult, "sqlite: result %s/%s/%s", r.RunID, r.CriteriaID, r.CompanyName)
	}
	return eris.Wrapf(err, "sqlite: insert result %s/%s", r.CriteriaID, r.CompanyName)
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, f model.CellFailure) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cell_failures (run_id, criteria_id, criteria_version, company_name, kind, error_class, message, raw_output, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, criteria_id, company_name) DO UPDATE SET
		 	criteria_version = excluded.criteria_version, kind = excluded.kind, error_class = excluded.error_class,
		 	message = excluded.message, raw_output = excluded.raw_output, created_at = excluded.created_at`,
		f.RunID, f.CriteriaID, f.CriteriaVersion, f.CompanyName, string(f.Kind),
		f.ErrorClass, f.Message, f.RawOutput, createdAt,
	)
	return eris.Wrapf(err, "sqlite: record failure %s/%s", f.CriteriaID, f.CompanyName)
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.EvaluationResult, error) {
	query := `SELECT run_id, criteria_id, criteria_version, company_name, question, prompt_used, result, justification, evidence, raw_output, output, created_at FROM evaluation_results WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.CompanyName != "" {
		query += ` AND company_name = ?`
		args = append(args, filter.CompanyName)
	}
	if len(filter.CriteriaIDs) > 0 {
		query += ` AND criteria_id IN (` + placeholders(len(filter.CriteriaIDs)) + `)`
		for _, id := range filter.CriteriaIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY criteria_id, company_name, created_at`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EvaluationResult
	for rows.Next() {
		var r model.EvaluationResult
		var output string
		if err := rows.Scan(&r.RunID, &r.CriteriaID, &r.CriteriaVersion, &r.CompanyName, &r.Question, &r.PromptUsed,
			&r.Result, &r.Justification, &r.Evidence, &r.RawOutput, &output, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		if err := json.Unmarshal([]byte(output), &r.Output); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal output snapshot")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) ListFailures(ctx context.Context, runID string) ([]model.CellFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, criteria_id, criteria_version, company_name, kind, error_class, message, raw_output, created_at
		 FROM cell_failures WHERE run_id = ? ORDER BY criteria_id, company_name`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list failures %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CellFailure
	for rows.Next() {
		var f model.CellFailure
		if err := rows.Scan(&f.RunID, &f.CriteriaID, &f.CriteriaVersion, &f.CompanyName, &f.Kind,
			&f.ErrorClass, &f.Message, &f.RawOutput, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func affected(res sql.Result, entity, id string) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return 0, eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return int(n), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal list")
	}
	return string(b), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// parseSQLiteTime converts aggregate time values, which SQLite returns
// without their declared column type.
func parseSQLiteTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case nil:
		return time.Time{}, nil
	case []byte:
		return parseSQLiteTime(string(t))
	case string:
		// modernc appends a monotonic clock suffix when formatting time.Time.
		if i := strings.Index(t, " m="); i > 0 {
			t = t[:i]
		}
		for _, layout := range sqliteTimeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, eris.Errorf("sqlite: unrecognized time %q", t)
	default:
		return time.Time{}, eris.Errorf("sqlite: unexpected time type %T", v)
	}
}
