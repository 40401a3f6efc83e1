package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/sheet"
)

func newTestSQLiteIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	idx := NewSQLite(db)
	require.NoError(t, idx.Migrate(context.Background()))
	return idx
}

func chunk(company, path string, i int, text string) model.DocumentChunk {
	return model.DocumentChunk{CompanyName: company, Year: 2024, RelativePath: path, ChunkIndex: i, ChunkText: text, Language: "en"}
}

func TestTerms(t *testing.T) {
	got := Terms("Does the company disclose Scope-1 emissions? Scope 1, emissions!")
	assert.Equal(t, []string{"disclose", "scope", "emissions"}, got)
	assert.Empty(t, Terms("Is it a? The!"))
}

func TestQueryBuilders(t *testing.T) {
	assert.Equal(t, "board | diversity", TSQuery("Board diversity?"))
	assert.Equal(t, `"board" OR "diversity"`, MatchQuery("Board diversity?"))
	assert.Equal(t, "", MatchQuery("the"))
}

func TestSQLiteIndex_SearchFiltersByCompany(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	ctx := context.Background()

	n, err := idx.AddChunks(ctx, []model.DocumentChunk{
		chunk("Acme Corp", "acme/2024.pdf", 0, "Scope 1 emissions fell by 10 percent during the year."),
		chunk("Acme Corp", "acme/2024.pdf", 1, "The board met eleven times."),
		chunk("Acme Corp", "acme/2024.pdf", 2, "Emissions reporting follows the GHG protocol. Scope 1 and scope 2 emissions are audited."),
		chunk("Beta Ltd", "beta/2024.pdf", 0, "Scope 1 emissions are not reported."),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	hits, err := idx.Search(ctx, "Does the company report scope 1 emissions?", Filter{CompanyName: "Acme Corp"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "Acme Corp", h.CompanyName)
		assert.Contains(t, strings.ToLower(h.ChunkText), "emissions")
	}
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	limited, err := idx.Search(ctx, "emissions", Filter{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := idx.Search(ctx, "emissions", Filter{CompanyName: "Gamma"}, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteIndex_UpsertReplacesChunkText(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	ctx := context.Background()

	_, err := idx.AddChunks(ctx, []model.DocumentChunk{chunk("Acme", "a.pdf", 0, "old wording about dividends")})
	require.NoError(t, err)
	_, err = idx.AddChunks(ctx, []model.DocumentChunk{chunk("Acme", "a.pdf", 0, "new wording about buybacks")})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "dividends", Filter{}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "buybacks", Filter{}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSQLiteIndex_Companies(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	ctx := context.Background()

	_, err := idx.AddChunks(ctx, []model.DocumentChunk{
		chunk("Beta", "b.pdf", 0, "text"),
		chunk("Acme", "a.pdf", 0, "text"),
		chunk("Acme", "a.pdf", 1, "more"),
	})
	require.NoError(t, err)

	got, err := idx.Companies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Beta"}, got)
}

func TestSQLiteIndex_RejectsInvalidChunk(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	_, err := idx.AddChunks(context.Background(), []model.DocumentChunk{chunk("Acme", "a.pdf", 0, "  ")})
	assert.Error(t, err)
}

func TestPostgresIndex_Search(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)ts_rank_cd\(tsv, q\).*to_tsquery\('english', \$1\).*AND company_name = \$2 AND year = \$3 ORDER BY score DESC.*LIMIT \$4`).
		WithArgs("scope | emissions", "Acme", 2024, DefaultLimit).
		WillReturnRows(pgxmock.NewRows([]string{"company_name", "year", "relative_path", "chunk_index", "chunk_text", "language", "upload_timestamp", "score"}).
			AddRow("Acme", 2024, "a.pdf", 3, "Scope 1 emissions", "en", now, 0.4))

	idx := NewPostgres(mock)
	hits, err := idx.Search(context.Background(), "Scope emissions", Filter{CompanyName: "Acme", Year: 2024}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 3, hits[0].ChunkIndex)
	assert.InDelta(t, 0.4, hits[0].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIndex_SearchWithoutTermsSkipsQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hits, err := NewPostgres(mock).Search(context.Background(), "the", Filter{}, 5)
	require.NoError(t, err)
	assert.Nil(t, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIndex_AddChunks(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_document_chunks"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_document_chunks"}, chunkColumns).
		WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("relative_path", "chunk_index"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := NewPostgres(mock).AddChunks(context.Background(), []model.DocumentChunk{chunk("Acme", "a.pdf", 0, "text")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeJSONL(t *testing.T) {
	input := `{"company_name":"Acme","year":2024,"relative_path":"a.pdf","chunk_index":0,"chunk_text":"hello"}

{"company_name":"Acme","year":2024,"relative_path":"a.pdf","chunk_index":1,"chunk_text":"world"}
`
	got, err := DecodeJSONL(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "world", got[1].ChunkText)

	_, err = DecodeJSONL(strings.NewReader(`{"company_name":"Acme","relative_path":"a.pdf","chunk_text":""}`))
	assert.Error(t, err)
}

func TestDecodeRows_AssignsMissingChunkIndex(t *testing.T) {
	input := "COMPANY_NAME,YEAR,RELATIVE_PATH,CHUNK,UPLOAD_TIMESTAMP\n" +
		"Acme,2024,a.pdf,first,2024-05-01T10:00:00Z\n" +
		"Acme,2024,a.pdf,second,\n" +
		"Beta,,b.pdf,only,2024-05-02\n"
	got, err := DecodeRows(sheet.NewCSVReader(strings.NewReader(input), sheet.CSVOptions{}))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 1, 0}, []int{got[0].ChunkIndex, got[1].ChunkIndex, got[2].ChunkIndex})
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got[0].UploadTimestamp)
	assert.Equal(t, 0, got[2].Year)

	_, err = DecodeRows(sheet.NewCSVReader(strings.NewReader("COMPANY_NAME,YEAR,RELATIVE_PATH,CHUNK\nAcme,soon,a.pdf,x\n"), sheet.CSVOptions{}))
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	idx := newTestSQLiteIndex(t)
	dir := t.TempDir()

	jsonl := filepath.Join(dir, "acme.jsonl")
	require.NoError(t, os.WriteFile(jsonl, []byte(`{"company_name":"Acme","relative_path":"a.pdf","chunk_index":0,"chunk_text":"revenue grew"}`+"\n"), 0o600))
	csvPath := filepath.Join(dir, "beta.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("COMPANY_NAME,RELATIVE_PATH,CHUNK\nBeta,b.pdf,revenue fell\nBeta,b.pdf,costs rose\n"), 0o600))

	n, err := LoadFiles(context.Background(), idx, []string{jsonl, csvPath}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = LoadFiles(context.Background(), idx, []string{filepath.Join(dir, "missing.csv")}, 1)
	assert.Error(t, err)
}
