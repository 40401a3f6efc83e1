package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsAffirmative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"YES", true},
		{"yes", true},
		{"  Yes \n", true},
		{"NO", false},
		{"", false},
		{"Yes, partially", false},
		{"Y", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsAffirmative(tt.in))
		})
	}
}

func TestCriterion_SearchText(t *testing.T) {
	assert.Equal(t, "Does it report emissions?", Criterion{Question: "Does it report emissions?", Prompt: "p"}.SearchText())
	assert.Equal(t, "fallback prompt", Criterion{Question: "  ", Prompt: " fallback prompt "}.SearchText())
}

func TestCriterionKey_String(t *testing.T) {
	assert.Equal(t, "A.1@1.0", Criterion{ID: "A.1", Version: "1.0"}.Key().String())
}

func TestDisqualificationRecord_NothingFound(t *testing.T) {
	assert.True(t, DisqualificationRecord{Topic: "Nothing negative"}.NothingFound())
	assert.True(t, DisqualificationRecord{Topic: "No relevant media."}.NothingFound())
	assert.True(t, DisqualificationRecord{Topic: ""}.NothingFound())
	assert.False(t, DisqualificationRecord{Topic: "Fined for greenwashing in 2023"}.NothingFound())
}

func TestDocumentChunk_Validate(t *testing.T) {
	ok := DocumentChunk{CompanyName: "Acme Co", RelativePath: "acme/2023.pdf", ChunkText: "text"}
	assert.NoError(t, ok.Validate())

	empty := ok
	empty.ChunkText = "   "
	assert.ErrorContains(t, empty.Validate(), "empty chunk text")

	noCompany := ok
	noCompany.CompanyName = ""
	assert.ErrorContains(t, noCompany.Validate(), "missing company name")
}

func TestEvaluationResult_EvaluatedAt(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stamped := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	r := EvaluationResult{CreatedAt: created}
	assert.Equal(t, created, r.EvaluatedAt())

	r.Output.Timestamp = stamped
	assert.Equal(t, stamped, r.EvaluatedAt())
}
