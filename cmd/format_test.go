package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
)

func TestFormatRunSummaries(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatRunSummaries(&buf, []model.RunSummary{
		{RunID: "analysis_aaaaaaaaaaaa_20250615_103000", CriteriaCount: 4, CompanyCount: 2, ResultCount: 7, FailureCount: 1, StartedAt: now},
	})

	out := buf.String()
	assert.Contains(t, out, "RUN_ID")
	assert.Contains(t, out, "FAILURES")
	assert.Contains(t, out, "analysis_aaaaaaaaaaaa_20250615_103000")
	assert.Contains(t, out, "2025-06-15 10:30")
}

func TestFormatScores(t *testing.T) {
	var buf bytes.Buffer
	formatScores(&buf, []analysis.CompanyScore{
		{Company: "Acme Co", Score: 2, MaxScore: 3, Percent: 66.67, Evaluated: 2, Affirmative: 1, Stale: 1},
	})

	out := buf.String()
	assert.Contains(t, out, "Acme Co")
	assert.Contains(t, out, "2.00")
	assert.Contains(t, out, "66.7%")
}

func TestFormatCriteria_TruncatesQuestion(t *testing.T) {
	var buf bytes.Buffer
	long := "Does the company disclose a board-approved climate transition plan with interim targets and capital allocation?"
	formatCriteria(&buf, []model.Criterion{{ID: "env_1", Version: "1.0", Active: true, Weight: 1.5, Question: long}})

	out := buf.String()
	assert.Contains(t, out, "env_1")
	assert.Contains(t, out, "1.50")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, long)
}

func TestFormatFailures_FlattensMessage(t *testing.T) {
	var buf bytes.Buffer
	formatFailures(&buf, []model.CellFailure{{
		CriteriaID:      "gov_1",
		CriteriaVersion: "2.0",
		CompanyName:     "Bolt Ltd",
		Kind:            model.FailureMalformedOutput,
		Message:         "no JSON\nobject   found",
	}})

	out := buf.String()
	assert.Contains(t, out, "gov_1@2.0")
	assert.Contains(t, out, "malformed_output")
	assert.Contains(t, out, "no JSON object found")
}

func TestFormatOutcome_HidesZeroCounts(t *testing.T) {
	var buf bytes.Buffer
	formatOutcome(&buf, &analysis.Outcome{RunID: "r1", Cells: make([]analysis.Cell, 3), Succeeded: 2, Failed: 1})

	out := buf.String()
	assert.Contains(t, out, "Succeeded:")
	assert.NotContains(t, out, "Unsaved:")
	assert.NotContains(t, out, "Skipped:")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "Zürich ...", truncate("Zürich Insurance Group", 10))
}
