// Package index stores document chunks and runs full-text search over them,
// filtered by company.
package index

import (
	"context"
	"strings"
	"unicode"

	"github.com/sells-group/annual-report-eval/internal/model"
)

// DefaultLimit is the number of hits returned when the caller passes none.
const DefaultLimit = 5

// Filter narrows a search. CompanyName matches exactly; Year is ignored
// when zero.
type Filter struct {
	CompanyName string `json:"company_name,omitempty"`
	Year        int    `json:"year,omitempty"`
}

// Hit is one ranked search result. Higher scores rank first.
type Hit struct {
	model.DocumentChunk
	Score float64 `json:"score"`
}

// Searcher runs ranked text search.
type Searcher interface {
	Search(ctx context.Context, query string, filter Filter, limit int) ([]Hit, error)
}

// Index is a searchable chunk store.
type Index interface {
	Searcher
	AddChunks(ctx context.Context, chunks []model.DocumentChunk) (int, error)
	Companies(ctx context.Context) ([]string, error)
	Migrate(ctx context.Context) error
}

// stopwords are dropped from queries; question text is full of them and
// they only add noise to an OR query.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "does": true, "do": true, "for": true, "from": true,
	"has": true, "have": true, "how": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"their": true, "this": true, "to": true, "was": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "will": true,
	"with": true, "any": true, "there": true, "company": true,
}

// maxQueryTerms caps the OR query length for very long prompts.
const maxQueryTerms = 32

// Terms splits text into lower-cased search terms, dropping stopwords,
// single characters and duplicates. Order of first appearance is kept.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxQueryTerms {
			break
		}
	}
	return out
}

func normLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
