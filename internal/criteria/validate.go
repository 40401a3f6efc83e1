package criteria

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/model"
)

// Validate checks the invariants a stored criterion must hold.
func Validate(c model.Criterion) error {
	if strings.TrimSpace(c.ID) == "" {
		return eris.New("criteria: missing id")
	}
	if strings.TrimSpace(c.Version) == "" {
		return eris.Errorf("criteria %s: missing version", c.ID)
	}
	if strings.TrimSpace(c.Question) == "" && strings.TrimSpace(c.Prompt) == "" {
		return eris.Errorf("criteria %s: question or prompt is required", c.ID)
	}
	if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight < 0 {
		return eris.Errorf("criteria %s: weight must be a non-negative number, got %v", c.ID, c.Weight)
	}
	return nil
}
