package analysis

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/annual-report-eval/internal/index"
	"github.com/sells-group/annual-report-eval/internal/mediascan"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/store"
)

func TestRun_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "eval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	idx := index.NewSQLite(st.DB())
	require.NoError(t, idx.Migrate(ctx))
	_, err = idx.AddChunks(ctx, []model.DocumentChunk{
		{CompanyName: "Acme Co", Year: 2024, RelativePath: "acme/2024.pdf", ChunkIndex: 0, ChunkText: "Acme Co targets net zero emissions by 2040."},
		{CompanyName: "Bolt Ltd", Year: 2024, RelativePath: "bolt/2024.pdf", ChunkIndex: 0, ChunkText: "Bolt Ltd grew revenue in 2024."},
	})
	require.NoError(t, err)

	_, err = st.UpsertDisqualifications(ctx, []model.DisqualificationRecord{
		{CompanyName: "Acme Co (NZX:ACM)", Topic: "Nothing negative"},
	})
	require.NoError(t, err)

	cs := []model.Criterion{criterion("A.1", 2.0, "Does the report mention emissions targets?")}
	_, err = st.UpsertCriteria(ctx, cs)
	require.NoError(t, err)

	completer := &fakeCompleter{
		answers:  map[string]string{"net zero": yesAnswer},
		fallback: noAnswer,
	}
	o := NewOrchestrator(
		NewAssembler(idx, mediascan.NewFinder(st, nil), 5, true),
		NewInvoker(completer, "test-model"),
		st,
		Options{Concurrency: 2},
	)

	plan, err := o.Prepare(cs, []string{"Acme Co", "Bolt Ltd"})
	require.NoError(t, err)
	out, err := o.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Succeeded)
	assert.Equal(t, 1, out.Failed, "Bolt Ltd has no chunk matching the query terms")

	results, err := st.ListResults(ctx, store.ResultFilter{RunID: out.RunID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].PromptUsed, "<company_name>Acme Co (NZX:ACM)</company_name>")

	failures, err := st.ListFailures(ctx, out.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, model.FailureRetrieval, failures[0].Kind)

	active, err := st.ListCriteria(ctx, store.CriteriaFilter{Status: store.CriteriaActive})
	require.NoError(t, err)
	scores := Score(results, active)
	require.Len(t, scores, 1)
	assert.InDelta(t, 100.0, scores[0].Percent, 1e-9)

	run, err := st.GetRun(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Co", "Bolt Ltd"}, run.CompanyNames)
}
