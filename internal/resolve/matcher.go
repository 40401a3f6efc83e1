package resolve

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NameMatcher judges whether candidate and target name the same company.
type NameMatcher interface {
	Matches(ctx context.Context, candidate, target string) (bool, error)
}

// NormalizedMatcher matches on equality of NormalizeName output. It is
// deterministic and needs no external service.
type NormalizedMatcher struct{}

// Matches implements NameMatcher.
func (NormalizedMatcher) Matches(_ context.Context, candidate, target string) (bool, error) {
	a := NormalizeName(candidate)
	return a != "" && a == NormalizeName(target), nil
}

// Completer is the completion capability the semantic matcher asks.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// SemanticMatcher asks a language model whether two names refer to the same
// company. Normalized equality short-circuits to true, and pairs that do not
// share a leading word are rejected without a model call. Answers are cached
// for the matcher's lifetime.
type SemanticMatcher struct {
	client Completer
	model  string

	mu    sync.Mutex
	cache map[string]bool
}

// NewSemanticMatcher creates a SemanticMatcher using model on client.
func NewSemanticMatcher(client Completer, model string) *SemanticMatcher {
	return &SemanticMatcher{
		client: client,
		model:  model,
		cache:  make(map[string]bool),
	}
}

// Matches implements NameMatcher.
func (m *SemanticMatcher) Matches(ctx context.Context, candidate, target string) (bool, error) {
	a, b := NormalizeName(candidate), NormalizeName(target)
	if a == "" || b == "" {
		return false, nil
	}
	if a == b {
		return true, nil
	}
	if firstToken(a) != firstToken(b) {
		return false, nil
	}

	key := a + "\x00" + b
	m.mu.Lock()
	cached, ok := m.cache[key]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	answer, err := m.client.Complete(ctx, m.model, matchPrompt(candidate, target))
	if err != nil {
		return false, eris.Wrapf(err, "resolve: semantic match %q vs %q", candidate, target)
	}
	match := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(answer)), "YES")

	zap.L().Debug("semantic name match",
		zap.String("candidate", candidate),
		zap.String("target", target),
		zap.Bool("match", match),
	)

	m.mu.Lock()
	m.cache[key] = match
	m.mu.Unlock()
	return match, nil
}

func matchPrompt(candidate, target string) string {
	return fmt.Sprintf(`Do the company names %q and %q refer to exactly the same company?
Ignore ticker symbols, stock exchange codes, punctuation and legal suffixes such as Ltd, Inc or Corp.
A different word in the name (for example "Capital" or "Group") means a different company.
Answer with YES or NO only.`, candidate, target)
}
