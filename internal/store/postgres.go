package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/db"
	"github.com/sells-group/annual-report-eval/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertResultSQL = `INSERT INTO evaluation_results (run_id, criteria_id, criteria_version, company_name, question, prompt_used, result, justification, evidence, raw_output, output, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	upsertFailureSQL = `INSERT INTO cell_failures (run_id, criteria_id, criteria_version, company_name, kind, error_class, message, raw_output, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id, criteria_id, company_name) DO UPDATE SET
	criteria_version = EXCLUDED.criteria_version, kind = EXCLUDED.kind, error_class = EXCLUDED.error_class,
	message = EXCLUDED.message, raw_output = EXCLUDED.raw_output, created_at = EXCLUDED.created_at`
	listDisqualificationsSQL = `SELECT company_name, topic, updated_at FROM disqualifications ORDER BY company_name`
)

// preparedStatements lists queries to prepare on each new connection. These
// run once per evaluated cell.
var preparedStatements = map[string]string{
	"insert_result":          insertResultSQL,
	"upsert_failure":         upsertFailureSQL,
	"list_disqualifications": listDisqualificationsSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool so the document index can share
// connections with the store.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS criteria (
	id           TEXT NOT NULL,
	version      TEXT NOT NULL DEFAULT '1.0',
	question     TEXT NOT NULL DEFAULT '',
	cluster      TEXT[] NOT NULL DEFAULT '{}',
	role         TEXT NOT NULL DEFAULT '',
	instructions TEXT NOT NULL DEFAULT '',
	output_spec  TEXT NOT NULL DEFAULT '',
	prompt       TEXT NOT NULL DEFAULT '',
	weight       DOUBLE PRECISION NOT NULL DEFAULT 1.0 CHECK (weight >= 0),
	active       BOOLEAN NOT NULL DEFAULT true,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_criteria_active ON criteria(active);

CREATE TABLE IF NOT EXISTS disqualifications (
	company_name TEXT PRIMARY KEY,
	topic        TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id        TEXT PRIMARY KEY,
	criteria_ids  TEXT[] NOT NULL,
	company_names TEXT[] NOT NULL,
	analysis_type TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS evaluation_results (
	id               BIGSERIAL PRIMARY KEY,
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
	output           JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (run_id, criteria_id, company_name)
);

CREATE INDEX IF NOT EXISTS idx_results_company ON evaluation_results(company_name);
CREATE INDEX IF NOT EXISTS idx_results_criteria ON evaluation_results(criteria_id, criteria_version);

CREATE TABLE IF NOT EXISTS cell_failures (
	id               BIGSERIAL PRIMARY KEY,
	run_id           TEXT NOT NULL,
	criteria_id      TEXT NOT NULL,
	criteria_version TEXT NOT NULL,
	company_name     TEXT NOT NULL,
	kind             TEXT NOT NULL,
	error_class      TEXT NOT NULL DEFAULT 'permanent',
	message          TEXT NOT NULL,
	raw_output       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (run_id, criteria_id, company_name)
);

CREATE INDEX IF NOT EXISTS idx_cell_failures_run ON cell_failures(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Criteria ---

var criteriaColumns = []string{
	"id", "version", "question", "cluster", "role", "instructions",
	"output_spec", "prompt", "weight", "active", "created_at", "updated_at",
}

const criteriaSelect = `SELECT id, version, question, cluster, role, instructions, output_spec, prompt, weight, active, created_at, updated_at FROM criteria`

func (s *PostgresStore) UpsertCriteria(ctx context.Context, criteria []model.Criterion) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(criteria))
	for _, c := range criteria {
		cluster := c.Cluster
		if cluster == nil {
			cluster = []string{}
		}
		rows = append(rows, []any{
			c.ID, c.Version, c.Question, cluster, c.Role, c.Instructions,
			c.OutputSpec, c.Prompt, c.Weight, c.Active, now, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "criteria",
		Columns:      criteriaColumns,
		ConflictKeys: []string{"id", "version"},
		UpdateCols:   []string{"question", "cluster", "role", "instructions", "output_spec", "prompt", "weight", "active", "updated_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert criteria")
	}
	return int(n), nil
}

func (s *PostgresStore) GetCriterion(ctx context.Context, id, version string) (*model.Criterion, error) {
	query := criteriaSelect + ` WHERE id = $1`
	args := []any{id}
	if version != "" {
		query += ` AND version = $2`
		args = append(args, version)
	}
	query += ` ORDER BY updated_at DESC, version DESC LIMIT 1`

	c, err := scanCriterion(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: criterion %s@%s", id, version)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get criterion %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCriteria(ctx context.Context, filter CriteriaFilter) ([]model.Criterion, error) {
	query := criteriaSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	switch filter.Status {
	case CriteriaActive:
		query += ` AND active`
	case CriteriaInactive:
		query += ` AND NOT active`
	}
	if filter.Version != "" {
		query += fmt.Sprintf(` AND version = $%d`, argIdx)
		args = append(args, filter.Version)
		argIdx++
	}
	if filter.Role != "" {
		query += fmt.Sprintf(` AND role = $%d`, argIdx)
		args = append(args, filter.Role)
		argIdx++
	}
	if filter.IDPrefix != "" {
		query += fmt.Sprintf(` AND starts_with(id, $%d)`, argIdx)
		args = append(args, filter.IDPrefix)
		argIdx++
	}
	if len(filter.IDs) > 0 {
		query += fmt.Sprintf(` AND id = ANY($%d)`, argIdx)
		args = append(args, filter.IDs)
	}
	query += ` ORDER BY id, version`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list criteria")
	}
	defer rows.Close()

	var out []model.Criterion
	for rows.Next() {
		c, err := scanCriterion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan criterion")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list criteria iterate")
}

func (s *PostgresStore) SetCriterionActive(ctx context.Context, id, version string, active bool) (int, error) {
	query := `UPDATE criteria SET active = $1, updated_at = $2 WHERE id = $3`
	args := []any{active, time.Now().UTC(), id}
	if version != "" {
		query += ` AND version = $4`
		args = append(args, version)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: set criterion %s active", id)
	}
	if tag.RowsAffected() == 0 {
		return 0, eris.Wrapf(ErrNotFound, "postgres: criterion %s", id)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteCriterion(ctx context.Context, id, version string) (int, error) {
	query := `DELETE FROM criteria WHERE id = $1`
	args := []any{id}
	if version != "" {
		query += ` AND version = $2`
		args = append(args, version)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete criterion %s", id)
	}
	if tag.RowsAffected() == 0 {
		return 0, eris.Wrapf(ErrNotFound, "postgres: criterion %s", id)
	}
	return int(tag.RowsAffected()), nil
}

func scanCriterion(row scannable) (*model.Criterion, error) {
	var c model.Criterion
	err := row.Scan(&c.ID, &c.Version, &c.Question, &c.Cluster, &c.Role, &c.Instructions,
		&c.OutputSpec, &c.Prompt, &c.Weight, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(c.Cluster) == 0 {
		c.Cluster = nil
	}
	return &c, nil
}

// --- Media scan ---

func (s *PostgresStore) UpsertDisqualifications(ctx context.Context, records []model.DisqualificationRecord) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{r.CompanyName, r.Topic, now})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "disqualifications",
		Columns:      []string{"company_name", "topic", "updated_at"},
		ConflictKeys: []string{"company_name"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert disqualifications")
	}
	return int(n), nil
}

func (s *PostgresStore) ListDisqualifications(ctx context.Context) ([]model.DisqualificationRecord, error) {
	rows, err := s.pool.Query(ctx, listDisqualificationsSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list disqualifications")
	}
	defer rows.Close()

	var out []model.DisqualificationRecord
	for rows.Next() {
		var r model.DisqualificationRecord
		if err := rows.Scan(&r.CompanyName, &r.Topic, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan disqualification")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list disqualifications iterate")
}

func (s *PostgresStore) DeleteDisqualification(ctx context.Context, companyName string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM disqualifications WHERE company_name = $1`, companyName)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete disqualification %s", companyName)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: disqualification %s", companyName)
	}
	return nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run model.AnalysisRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (run_id, criteria_ids, company_names, analysis_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.CriteriaIDs, run.CompanyNames, run.AnalysisType, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error) {
	var r model.AnalysisRun
	err := s.pool.QueryRow(ctx,
		`SELECT run_id, criteria_ids, company_names, analysis_type, created_at FROM analysis_runs WHERE run_id = $1`,
		runID,
	).Scan(&r.ID, &r.CriteriaIDs, &r.CompanyNames, &r.AnalysisType, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = defaultSummaryLimit
	}
	rows, err := s.pool.Query(ctx, runSummaryQuery+`$1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run summaries")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var rs model.RunSummary
		if err := rows.Scan(&rs.RunID, &rs.CriteriaCount, &rs.CompanyCount, &rs.ResultCount, &rs.FailureCount, &rs.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run summary")
		}
		out = append(out, rs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list run summaries iterate")
}

func (s *PostgresStore) Overview(ctx context.Context) (*model.Overview, error) {
	var o model.Overview
	if err := s.pool.QueryRow(ctx, overviewQuery).Scan(&o.Runs, &o.Analyses, &o.Companies, &o.Criteria); err != nil {
		return nil, eris.Wrap(err, "postgres: overview")
	}
	return &o, nil
}

// --- Results ---

func (s *PostgresStore) AppendResult(ctx context.Context, r model.EvaluationResult) error {
	output, err := json.Marshal(r.Output)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal output snapshot")
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, insertResultSQL,
		r.RunID, r.CriteriaID, r.CriteriaVersion, r.CompanyName, r.Question, r.PromptUsed,
		r.Result, r.Justification, r.Evidence, r.RawOutput, output, createdAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return eris.Wrapf(ErrDuplicateResult, "postgres: result %s/%s/%s", r.RunID, r.CriteriaID, r.CompanyName)
	}
	return eris.Wrapf(err, "postgres: insert result %s/%s", r.CriteriaID, r.CompanyName)
}

func (s *PostgresStore) RecordFailure(ctx context.Context, f model.CellFailure) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, upsertFailureSQL,
		f.RunID, f.CriteriaID, f.CriteriaVersion, f.CompanyName, string(f.Kind),
		f.ErrorClass, f.Message, f.RawOutput, createdAt,
	)
	return eris.Wrapf(err, "postgres: record failure %s/%s", f.CriteriaID, f.CompanyName)
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.EvaluationResult, error) {
	query := `SELECT run_id, criteria_id, criteria_version, company_name, question, prompt_used, result, justification, evidence, raw_output, output, created_at FROM evaluation_results WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.CompanyName != "" {
		query += fmt.Sprintf(` AND company_name = $%d`, argIdx)
		args = append(args, filter.CompanyName)
		argIdx++
	}
	if len(filter.CriteriaIDs) > 0 {
		query += fmt.Sprintf(` AND criteria_id = ANY($%d)`, argIdx)
		args = append(args, filter.CriteriaIDs)
		argIdx++
	}
	query += ` ORDER BY criteria_id, company_name, created_at`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.EvaluationResult
	for rows.Next() {
		var r model.EvaluationResult
		var output []byte
		if err := rows.Scan(&r.RunID, &r.CriteriaID, &r.CriteriaVersion, &r.CompanyName, &r.Question, &r.PromptUsed,
			&r.Result, &r.Justification, &r.Evidence, &r.RawOutput, &output, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		if err := json.Unmarshal(output, &r.Output); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal output snapshot")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) ListFailures(ctx context.Context, runID string) ([]model.CellFailure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, criteria_id, criteria_version, company_name, kind, error_class, message, raw_output, created_at
		 FROM cell_failures WHERE run_id = $1 ORDER BY criteria_id, company_name`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list failures %s", runID)
	}
	defer rows.Close()

	var out []model.CellFailure
	for rows.Next() {
		var f model.CellFailure
		if err := rows.Scan(&f.RunID, &f.CriteriaID, &f.CriteriaVersion, &f.CompanyName, &f.Kind,
			&f.ErrorClass, &f.Message, &f.RawOutput, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}
