package analysis

import (
	"sort"

	"github.com/sells-group/annual-report-eval/internal/model"
)

// CompanyScore is the weighted YES score of one company.
type CompanyScore struct {
	Company     string  `json:"company"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	Percent     float64 `json:"percent"`
	Evaluated   int     `json:"evaluated"`
	Affirmative int     `json:"affirmative"`
	Stale       int     `json:"stale"`
}

// Score computes per-company scores over results, sorted by company. The
// maximum is the sum of all active criterion weights. Results are joined to
// criteria on (id, version); rows with no active match are stale and only
// counted. When a company has several rows for one criterion version, the
// latest evaluation counts.
func Score(results []model.EvaluationResult, cs []model.Criterion) []CompanyScore {
	active := make(map[model.CriterionKey]model.Criterion, len(cs))
	var maxScore float64
	for _, c := range cs {
		if !c.Active {
			continue
		}
		active[c.Key()] = c
		maxScore += c.Weight
	}

	type cellKey struct {
		company string
		key     model.CriterionKey
	}
	latest := make(map[cellKey]model.EvaluationResult)
	scores := make(map[string]*CompanyScore)
	get := func(company string) *CompanyScore {
		s, ok := scores[company]
		if !ok {
			s = &CompanyScore{Company: company, MaxScore: maxScore}
			scores[company] = s
		}
		return s
	}

	for _, r := range results {
		s := get(r.CompanyName)
		if _, ok := active[r.Key()]; !ok {
			s.Stale++
			continue
		}
		k := cellKey{company: r.CompanyName, key: r.Key()}
		if prev, ok := latest[k]; !ok || newer(r, prev) {
			latest[k] = r
		}
	}

	for k, r := range latest {
		s := get(k.company)
		s.Evaluated++
		if r.Affirmative() {
			s.Affirmative++
			s.Score += active[k.key].Weight
		}
	}

	out := make([]CompanyScore, 0, len(scores))
	for _, s := range scores {
		if s.MaxScore > 0 {
			s.Percent = s.Score / s.MaxScore * 100
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Company < out[j].Company })
	return out
}

// LatestPerCriteria keeps, per (company, criteria id), the row with the
// latest evaluation time. Ties go to the greater run id. The output is
// ordered by SortResults.
func LatestPerCriteria(results []model.EvaluationResult) []model.EvaluationResult {
	type key struct{ company, criteriaID string }
	best := make(map[key]model.EvaluationResult)
	for _, r := range results {
		k := key{r.CompanyName, r.CriteriaID}
		if prev, ok := best[k]; !ok || newer(r, prev) {
			best[k] = r
		}
	}

	out := make([]model.EvaluationResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	SortResults(out)
	return out
}

// SortResults orders rows by criteria id, then company, then run id.
func SortResults(rs []model.EvaluationResult) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.CriteriaID != b.CriteriaID {
			return a.CriteriaID < b.CriteriaID
		}
		if a.CompanyName != b.CompanyName {
			return a.CompanyName < b.CompanyName
		}
		return a.RunID < b.RunID
	})
}

func newer(a, b model.EvaluationResult) bool {
	ta, tb := a.EvaluatedAt(), b.EvaluatedAt()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.RunID > b.RunID
}
