package analysis

import (
	"context"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/index"
	"github.com/sells-group/annual-report-eval/internal/model"
)

// SignalFinder returns the media-scan records that match a company.
type SignalFinder interface {
	Find(ctx context.Context, company string) ([]model.DisqualificationRecord, error)
}

// Assembler builds the full prompt for one cell: the criterion prompt, the
// company's media-scan block and the top retrieved document chunks.
type Assembler struct {
	searcher       index.Searcher
	signals        SignalFinder
	topK           int
	requireContext bool
}

// NewAssembler creates an Assembler. topK <= 0 uses index.DefaultLimit.
func NewAssembler(searcher index.Searcher, signals SignalFinder, topK int, requireContext bool) *Assembler {
	if topK <= 0 {
		topK = index.DefaultLimit
	}
	return &Assembler{
		searcher:       searcher,
		signals:        signals,
		topK:           topK,
		requireContext: requireContext,
	}
}

// Assemble returns the prompt for c evaluated against company. Lookup
// failures, and an empty retrieval when context is required, are returned
// as *RetrievalError.
func (a *Assembler) Assemble(ctx context.Context, c model.Criterion, company string) (string, error) {
	records, err := a.signals.Find(ctx, company)
	if err != nil {
		return "", &RetrievalError{Err: eris.Wrapf(err, "analysis: media scan for %q", company)}
	}

	hits, err := a.searcher.Search(ctx, c.SearchText(), index.Filter{CompanyName: company}, a.topK)
	if err != nil {
		return "", &RetrievalError{Err: eris.Wrapf(err, "analysis: search %q for %s", company, c.ID)}
	}
	if len(hits) == 0 && a.requireContext {
		return "", &RetrievalError{Err: ErrNoContext}
	}

	var sb strings.Builder
	sb.WriteString(c.Prompt)
	sb.WriteString("\n\n")
	sb.WriteString(MediaScanBlock(records))
	sb.WriteString("\n\n")
	sb.WriteString(ContextBlock(hits))
	return sb.String(), nil
}

// MediaScanBlock renders records as a <media_scan> element. The element is
// present even when there are no records.
func MediaScanBlock(records []model.DisqualificationRecord) string {
	var sb strings.Builder
	sb.WriteString("<media_scan>\n")
	for _, r := range records {
		sb.WriteString("<record><company_name>")
		sb.WriteString(escapeXML(r.CompanyName))
		sb.WriteString("</company_name><topic>")
		sb.WriteString(escapeXML(r.Topic))
		sb.WriteString("</topic></record>\n")
	}
	sb.WriteString("</media_scan>")
	return sb.String()
}

// ContextBlock renders hits as numbered context documents in rank order.
func ContextBlock(hits []index.Hit) string {
	var sb strings.Builder
	sb.WriteString("<context>\n")
	for i, h := range hits {
		sb.WriteString("Context document ")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(": ")
		sb.WriteString(h.ChunkText)
		sb.WriteString(" \n\n")
	}
	sb.WriteString("</context>")
	return sb.String()
}

func escapeXML(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
