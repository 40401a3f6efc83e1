// Package criteria derives, validates, imports and exports evaluation criteria.
package criteria

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/sells-group/annual-report-eval/internal/model"
)

// maxRelatedQuestions bounds the related-questions block of a derived prompt.
const maxRelatedQuestions = 5

// ResponseFormat is appended to every derived prompt. The completion parser
// requires exactly these keys.
const ResponseFormat = `Respond with a single JSON object and nothing else, using exactly these keys:
{"result": "YES or NO", "explanation": "why the evidence supports the result", "supporting_evidence": ["quotes or references from the context documents"]}
Answer "NO" when the context does not contain enough evidence.`

// Parts are the fields a criterion prompt is derived from.
type Parts struct {
	ID               string
	Question         string
	Cluster          []string
	Role             string
	Instructions     string
	Output           string
	RelatedQuestions []string
}

// PartsOf returns the prompt parts of c with the given related questions.
func PartsOf(c model.Criterion, related []string) Parts {
	return Parts{
		ID:               c.ID,
		Question:         c.Question,
		Cluster:          c.Cluster,
		Role:             c.Role,
		Instructions:     c.Instructions,
		Output:           c.OutputSpec,
		RelatedQuestions: related,
	}
}

// DerivePrompt builds the full prompt text for a criterion. It is a pure
// function of its input: blocks for empty fields are omitted and the output
// is stable for equal input.
func DerivePrompt(p Parts) string {
	var sb strings.Builder

	if role := strings.TrimSpace(p.Role); role != "" {
		writeBlock(&sb, "role", role)
	}

	attrs := fmt.Sprintf(` id="%s"`, html.EscapeString(strings.TrimSpace(p.ID)))
	if tags := cleanList(p.Cluster); len(tags) > 0 {
		attrs += fmt.Sprintf(` cluster="%s"`, html.EscapeString(strings.Join(tags, ", ")))
	}
	fmt.Fprintf(&sb, "<criteria%s>\n<question>\n%s\n</question>\n</criteria>\n\n", attrs, strings.TrimSpace(p.Question))

	if instr := strings.TrimSpace(p.Instructions); instr != "" {
		writeBlock(&sb, "instructions", instr)
	}

	if related := cleanList(p.RelatedQuestions); len(related) > 0 {
		sb.WriteString("<related_questions>\n")
		for _, q := range related {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
		sb.WriteString("</related_questions>\n\n")
	}

	if out := strings.TrimSpace(p.Output); out != "" {
		writeBlock(&sb, "output", out)
	}

	sb.WriteString(ResponseFormat)
	return sb.String()
}

func writeBlock(sb *strings.Builder, tag, body string) {
	fmt.Fprintf(sb, "<%s>\n%s\n</%s>\n\n", tag, body, tag)
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RelatedQuestions returns the questions of other criteria in all that share
// a cluster tag with c, ordered by criterion id.
func RelatedQuestions(all []model.Criterion, c model.Criterion) []string {
	tags := make(map[string]bool, len(c.Cluster))
	for _, t := range cleanList(c.Cluster) {
		tags[strings.ToLower(t)] = true
	}
	if len(tags) == 0 {
		return nil
	}

	var peers []model.Criterion
	for _, other := range all {
		if other.ID == c.ID || strings.TrimSpace(other.Question) == "" {
			continue
		}
		for _, t := range other.Cluster {
			if tags[strings.ToLower(strings.TrimSpace(t))] {
				peers = append(peers, other)
				break
			}
		}
	}
	sort.SliceStable(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })

	seen := make(map[string]bool)
	var out []string
	for _, p := range peers {
		q := strings.TrimSpace(p.Question)
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == maxRelatedQuestions {
			break
		}
	}
	return out
}

// FillPrompts derives the prompt of every criterion that has none. Related
// questions are drawn from the same slice.
func FillPrompts(all []model.Criterion) {
	for i := range all {
		if strings.TrimSpace(all[i].Prompt) != "" {
			continue
		}
		all[i].Prompt = DerivePrompt(PartsOf(all[i], RelatedQuestions(all, all[i])))
	}
}
