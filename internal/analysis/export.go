package analysis

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/sheet"
)

type exportRow struct {
	RunID           string `csv:"RUN_ID"`
	CriteriaID      string `csv:"CRITERIA_ID"`
	CriteriaVersion string `csv:"CRITERIA_VERSION"`
	CompanyName     string `csv:"COMPANY_NAME"`
	Question        string `csv:"QUESTION"`
	Result          string `csv:"RESULT"`
	Justification   string `csv:"JUSTIFICATION"`
	Evidence        string `csv:"EVIDENCE"`
	PromptUsed      string `csv:"PROMPT_USED"`
	CreatedAt       string `csv:"CREATED_AT"`
}

func toExportRow(r model.EvaluationResult) exportRow {
	return exportRow{
		RunID:           r.RunID,
		CriteriaID:      r.CriteriaID,
		CriteriaVersion: r.CriteriaVersion,
		CompanyName:     r.CompanyName,
		Question:        r.Question,
		Result:          r.Result,
		Justification:   r.Justification,
		Evidence:        r.Evidence,
		PromptUsed:      r.PromptUsed,
		CreatedAt:       r.EvaluatedAt().UTC().Format(time.RFC3339),
	}
}

func (e exportRow) values() []string {
	return []string{
		e.RunID, e.CriteriaID, e.CriteriaVersion, e.CompanyName, e.Question,
		e.Result, e.Justification, e.Evidence, e.PromptUsed, e.CreatedAt,
	}
}

// ExportCSV writes results as CSV with a header row, in SortResults order.
func ExportCSV(w io.Writer, results []model.EvaluationResult) error {
	rows := exportRows(results)

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(exportRow{}); err != nil {
			return eris.Wrap(err, "analysis: encode export header")
		}
	} else if err := enc.Encode(rows); err != nil {
		return eris.Wrap(err, "analysis: encode export")
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "analysis: flush export")
}

// ExportXLSX writes results as a single-sheet workbook.
func ExportXLSX(w io.Writer, results []model.EvaluationResult) error {
	header, err := csvutil.Header(exportRow{}, "csv")
	if err != nil {
		return eris.Wrap(err, "analysis: export header")
	}
	rows := exportRows(results)
	values := make([][]string, len(rows))
	for i, r := range rows {
		values[i] = r.values()
	}
	return sheet.WriteXLSX(w, "results", header, values)
}

func exportRows(results []model.EvaluationResult) []exportRow {
	sorted := append([]model.EvaluationResult(nil), results...)
	SortResults(sorted)
	rows := make([]exportRow, len(sorted))
	for i, r := range sorted {
		rows[i] = toExportRow(r)
	}
	return rows
}
