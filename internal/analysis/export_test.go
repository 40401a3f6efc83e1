package analysis

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/sheet"
)

func TestExportCSV(t *testing.T) {
	r := result("analysis_1", "A.1", "1.0", "Acme, Inc.", "YES", t0)
	r.Justification = "Said \"net zero\""
	r.Evidence = `["p. 3"]`

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, []model.EvaluationResult{r}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{
		"RUN_ID", "CRITERIA_ID", "CRITERIA_VERSION", "COMPANY_NAME", "QUESTION",
		"RESULT", "JUSTIFICATION", "EVIDENCE", "PROMPT_USED", "CREATED_AT",
	}, records[0])
	assert.Equal(t, "Acme, Inc.", records[1][3])
	assert.Equal(t, `Said "net zero"`, records[1][6])
	assert.Equal(t, "2025-01-01T00:00:00Z", records[1][9])
}

func TestExportCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, nil))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "RUN_ID", records[0][0])
}

func TestExportXLSX(t *testing.T) {
	rs := []model.EvaluationResult{
		result("analysis_1", "B.1", "1.0", "Acme", "NO", t0),
		result("analysis_1", "A.1", "1.0", "Acme", "YES", t0),
	}
	path := filepath.Join(t.TempDir(), "out.xlsx")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, ExportXLSX(f, rs))
	require.NoError(t, f.Close())

	rr, closeFn, err := sheet.Open(path)
	require.NoError(t, err)
	defer closeFn() //nolint:errcheck

	header, err := rr.Read()
	require.NoError(t, err)
	assert.Equal(t, "RUN_ID", header[0])
	first, err := rr.Read()
	require.NoError(t, err)
	assert.Equal(t, "A.1", first[1])
}
