package analysis

import (
	"context"
	"strings"
	"sync"

	"github.com/sells-group/annual-report-eval/internal/index"
	"github.com/sells-group/annual-report-eval/internal/model"
)

// fakeSearcher returns hits per company, or err.
type fakeSearcher struct {
	hits map[string][]index.Hit
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, filter index.Filter, limit int) ([]index.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	hits := f.hits[filter.CompanyName]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func hit(company, text string) index.Hit {
	return index.Hit{DocumentChunk: model.DocumentChunk{CompanyName: company, ChunkText: text, RelativePath: company + ".pdf"}}
}

type fakeFinder struct {
	records map[string][]model.DisqualificationRecord
	err     error
}

func (f *fakeFinder) Find(_ context.Context, company string) ([]model.DisqualificationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[company], nil
}

// fakeCompleter answers by looking for a key in the prompt. The first
// matching key in order wins; otherwise fallback is returned.
type fakeCompleter struct {
	mu       sync.Mutex
	answers  map[string]string
	errs     map[string]error
	fallback string
	calls    int
	onCall   func(prompt string)
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall(prompt)
	}
	for k, err := range f.errs {
		if strings.Contains(prompt, k) {
			return "", err
		}
	}
	for k, a := range f.answers {
		if strings.Contains(prompt, k) {
			return a, nil
		}
	}
	return f.fallback, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memWriter is an in-memory ResultWriter.
type memWriter struct {
	mu        sync.Mutex
	runs      []model.AnalysisRun
	results   []model.EvaluationResult
	failures  []model.CellFailure
	createErr error
	appendErr error
}

func (m *memWriter) CreateRun(_ context.Context, run model.AnalysisRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *memWriter) AppendResult(_ context.Context, r model.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.results = append(m.results, r)
	return nil
}

func (m *memWriter) RecordFailure(_ context.Context, f model.CellFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}

func criterion(id string, weight float64, prompt string) model.Criterion {
	return model.Criterion{ID: id, Version: "1.0", Weight: weight, Prompt: prompt, Question: prompt, Active: true}
}

const (
	yesAnswer = `{"result":"YES","explanation":"Explicit target found","supporting_evidence":"chunk 1"}`
	noAnswer  = `{"result":"NO","explanation":"Nothing found","supporting_evidence":""}`
)
