// Package analysis evaluates criteria against companies: it assembles a
// retrieval-augmented prompt per cell, asks a model, parses the answer and
// records results and failures under a run id.
package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/annual-report-eval/internal/criteria"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/resilience"
)

// CellStatus is the lifecycle state of one (criterion, company) cell.
type CellStatus string

const (
	CellPending CellStatus = "pending"
	CellSuccess CellStatus = "success"
	CellUnsaved CellStatus = "unsaved"
	CellFailed  CellStatus = "failed"
	CellSkipped CellStatus = "skipped"
)

// Cell is the outcome of one (criterion, company) evaluation.
type Cell struct {
	CriteriaID      string                  `json:"criteria_id"`
	CriteriaVersion string                  `json:"criteria_version"`
	Company         string                  `json:"company"`
	Status          CellStatus              `json:"status"`
	Result          *model.EvaluationResult `json:"result,omitempty"`
	Kind            model.FailureKind       `json:"kind,omitempty"`
	Err             error                   `json:"-"`
}

// Plan is a validated run ready to execute.
type Plan struct {
	Run       model.AnalysisRun
	Criteria  []model.Criterion
	Companies []string
}

// Total is the number of cells in the plan.
func (p *Plan) Total() int {
	return len(p.Criteria) * len(p.Companies)
}

// Outcome summarises an executed plan. Cells are in plan order: criteria
// outer, companies inner.
type Outcome struct {
	RunID     string `json:"run_id"`
	Cells     []Cell `json:"cells"`
	Succeeded int    `json:"succeeded"`
	Unsaved   int    `json:"unsaved"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

// FailureRate is the share of cells that did not produce a saved result.
func (o *Outcome) FailureRate() float64 {
	if len(o.Cells) == 0 {
		return 0
	}
	return float64(o.Failed+o.Skipped+o.Unsaved) / float64(len(o.Cells))
}

// ProgressFunc receives (completed, total) after each cell finishes.
// completed never decreases.
type ProgressFunc func(completed, total int)

// ResultWriter persists runs, results and failure rows.
type ResultWriter interface {
	CreateRun(ctx context.Context, run model.AnalysisRun) error
	AppendResult(ctx context.Context, result model.EvaluationResult) error
	RecordFailure(ctx context.Context, failure model.CellFailure) error
}

// PromptAssembler builds the prompt for one cell.
type PromptAssembler interface {
	Assemble(ctx context.Context, c model.Criterion, company string) (string, error)
}

// AnswerInvoker asks the model and parses its answer.
type AnswerInvoker interface {
	Invoke(ctx context.Context, prompt string) (*ModelAnswer, error)
}

// Options tune an Orchestrator.
type Options struct {
	Concurrency int
	Progress    ProgressFunc
	Metrics     *Metrics
	Now         func() time.Time
}

// Orchestrator runs the criteria x company matrix.
type Orchestrator struct {
	assembler PromptAssembler
	invoker   AnswerInvoker
	results   ResultWriter
	opts      Options
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(assembler PromptAssembler, invoker AnswerInvoker, results ResultWriter, opts Options) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{assembler: assembler, invoker: invoker, results: results, opts: opts}
}

// Prepare validates the inputs and assigns a run id. Criteria without a
// prompt get one derived from their parts; a criterion needs a question or
// a prompt of its own for that.
func (o *Orchestrator) Prepare(cs []model.Criterion, companies []string) (*Plan, error) {
	if len(cs) == 0 {
		return nil, &ConfigurationError{Reason: "no criteria selected"}
	}
	if len(companies) == 0 {
		return nil, &ConfigurationError{Reason: "no companies selected"}
	}

	for _, c := range cs {
		if strings.TrimSpace(c.Question) == "" && strings.TrimSpace(c.Prompt) == "" {
			return nil, &ConfigurationError{Reason: "criterion " + c.Key().String() + " has no question or prompt"}
		}
	}

	selected := make([]model.Criterion, len(cs))
	copy(selected, cs)
	criteria.FillPrompts(selected)

	seen := make(map[model.CriterionKey]bool, len(selected))
	ids := make([]string, 0, len(selected))
	for _, c := range selected {
		switch {
		case !c.Active:
			return nil, &ConfigurationError{Reason: "criterion " + c.Key().String() + " is inactive"}
		case seen[c.Key()]:
			return nil, &ConfigurationError{Reason: "criterion " + c.Key().String() + " selected twice"}
		}
		seen[c.Key()] = true
		ids = append(ids, c.ID)
	}

	seenCompany := make(map[string]bool, len(companies))
	for _, name := range companies {
		if name == "" {
			return nil, &ConfigurationError{Reason: "empty company name"}
		}
		if seenCompany[name] {
			return nil, &ConfigurationError{Reason: "company " + name + " selected twice"}
		}
		seenCompany[name] = true
	}

	now := o.opts.Now().UTC()
	return &Plan{
		Run: model.AnalysisRun{
			ID:           NewRunID(now),
			CriteriaIDs:  ids,
			CompanyNames: append([]string(nil), companies...),
			AnalysisType: model.AnalysisTypeCriteriaRAG,
			CreatedAt:    now,
		},
		Criteria:  selected,
		Companies: append([]string(nil), companies...),
	}, nil
}

// Execute evaluates every cell of plan. A failing cell is recorded and the
// run continues; cancellation is observed between cells and marks the rest
// skipped. The returned error is non-nil only when the run record could not
// be created.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan) (*Outcome, error) {
	log := zap.L().With(zap.String("run_id", plan.Run.ID))

	if err := o.results.CreateRun(ctx, plan.Run); err != nil {
		return nil, &PersistenceError{Err: eris.Wrap(err, "analysis: create run")}
	}

	if m := o.opts.Metrics; m != nil {
		m.RunsInFlight.Inc()
		defer m.RunsInFlight.Dec()
	}

	total := plan.Total()
	cells := make([]Cell, total)
	for ci, c := range plan.Criteria {
		for ki, company := range plan.Companies {
			cells[ci*len(plan.Companies)+ki] = Cell{
				CriteriaID:      c.ID,
				CriteriaVersion: c.Version,
				Company:         company,
				Status:          CellPending,
			}
		}
	}

	log.Info("analysis: run started",
		zap.Int("criteria", len(plan.Criteria)),
		zap.Int("companies", len(plan.Companies)),
		zap.Int("concurrency", o.opts.Concurrency),
	)

	var (
		completed atomic.Int64
		progMu    sync.Mutex
		reported  int
	)
	report := func() {
		n := int(completed.Add(1))
		if o.opts.Progress == nil {
			return
		}
		progMu.Lock()
		defer progMu.Unlock()
		if n > reported {
			reported = n
			o.opts.Progress(n, total)
		}
	}

	runCell := func(ci, ki int) {
		idx := ci*len(plan.Companies) + ki
		if ctx.Err() != nil {
			cells[idx] = o.skip(ctx, plan.Run, plan.Criteria[ci], plan.Companies[ki])
		} else {
			cells[idx] = o.EvaluateCell(ctx, plan.Run, plan.Criteria[ci], plan.Companies[ki])
		}
		report()
	}

	if o.opts.Concurrency == 1 {
		for ci := range plan.Criteria {
			for ki := range plan.Companies {
				runCell(ci, ki)
			}
		}
	} else {
		// One worker per company; criteria stay sequential within it.
		g := new(errgroup.Group)
		g.SetLimit(o.opts.Concurrency)
		for ki := range plan.Companies {
			g.Go(func() error {
				for ci := range plan.Criteria {
					runCell(ci, ki)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	out := &Outcome{RunID: plan.Run.ID, Cells: cells}
	for _, c := range cells {
		switch c.Status {
		case CellSuccess:
			out.Succeeded++
		case CellUnsaved:
			out.Unsaved++
		case CellFailed:
			out.Failed++
		case CellSkipped:
			out.Skipped++
		}
	}

	log.Info("analysis: run finished",
		zap.Int("succeeded", out.Succeeded),
		zap.Int("unsaved", out.Unsaved),
		zap.Int("failed", out.Failed),
		zap.Int("skipped", out.Skipped),
	)
	return out, nil
}

// EvaluateCell runs one cell end to end: assemble, invoke, persist. It never
// returns an error; failures are reflected in the cell and a failure row.
func (o *Orchestrator) EvaluateCell(ctx context.Context, run model.AnalysisRun, c model.Criterion, company string) (cell Cell) {
	start := o.opts.Now()
	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("criteria_id", c.ID),
		zap.String("company", company),
	)
	cell = Cell{CriteriaID: c.ID, CriteriaVersion: c.Version, Company: company, Status: CellPending}

	defer func() {
		if m := o.opts.Metrics; m != nil {
			m.Cells.WithLabelValues(string(cell.Status)).Inc()
			m.CellDuration.Observe(o.opts.Now().Sub(start).Seconds())
		}
	}()

	prompt, err := o.assembler.Assemble(ctx, c, company)
	if err != nil {
		return o.fail(ctx, log, run, c, company, err)
	}

	ans, err := o.invoker.Invoke(ctx, prompt)
	if err != nil {
		return o.fail(ctx, log, run, c, company, err)
	}

	result, err := buildResult(run, c, company, prompt, ans, o.opts.Now().UTC())
	if err != nil {
		return o.fail(ctx, log, run, c, company, err)
	}

	if err := o.results.AppendResult(ctx, *result); err != nil {
		perr := &PersistenceError{Err: eris.Wrap(err, "analysis: append result")}
		log.Error("analysis: result not saved", zap.Error(perr))
		cell.Status = CellUnsaved
		cell.Result = result
		cell.Kind = model.FailurePersistence
		cell.Err = perr
		return cell
	}

	log.Debug("analysis: cell evaluated", zap.String("result", result.Result))
	cell.Status = CellSuccess
	cell.Result = result
	return cell
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, run model.AnalysisRun, c model.Criterion, company string, err error) Cell {
	kind := KindOf(err)
	if ctx.Err() != nil {
		kind = model.FailureCancelled
	}
	log.Warn("analysis: cell failed",
		zap.String("kind", string(kind)),
		zap.String("error_class", string(resilience.Classify(err))),
		zap.Error(err),
	)
	status := CellFailed
	if kind == model.FailureCancelled {
		status = CellSkipped
	}
	o.recordFailure(context.WithoutCancel(ctx), log, run, c, company, kind, err)
	return Cell{
		CriteriaID:      c.ID,
		CriteriaVersion: c.Version,
		Company:         company,
		Status:          status,
		Kind:            kind,
		Err:             err,
	}
}

func (o *Orchestrator) skip(ctx context.Context, run model.AnalysisRun, c model.Criterion, company string) Cell {
	err := ctx.Err()
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("criteria_id", c.ID), zap.String("company", company))
	// The run context is done; the failure row is written without it.
	o.recordFailure(context.WithoutCancel(ctx), log, run, c, company, model.FailureCancelled, err)
	if m := o.opts.Metrics; m != nil {
		m.Cells.WithLabelValues(string(CellSkipped)).Inc()
	}
	return Cell{
		CriteriaID:      c.ID,
		CriteriaVersion: c.Version,
		Company:         company,
		Status:          CellSkipped,
		Kind:            model.FailureCancelled,
		Err:             err,
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, log *zap.Logger, run model.AnalysisRun, c model.Criterion, company string, kind model.FailureKind, err error) {
	f := model.CellFailure{
		RunID:           run.ID,
		CriteriaID:      c.ID,
		CriteriaVersion: c.Version,
		CompanyName:     company,
		Kind:            kind,
		ErrorClass:      string(resilience.Classify(err)),
		Message:         err.Error(),
		RawOutput:       RawOutputOf(err),
		CreatedAt:       o.opts.Now().UTC(),
	}
	if rerr := o.results.RecordFailure(ctx, f); rerr != nil {
		log.Error("analysis: failure row not saved", zap.Error(rerr))
	}
}

func buildResult(run model.AnalysisRun, c model.Criterion, company, prompt string, ans *ModelAnswer, now time.Time) (*model.EvaluationResult, error) {
	answerJSON, err := json.Marshal(ans)
	if err != nil {
		return nil, &MalformedModelOutputError{Raw: ans.Raw, Reason: "re-encode answer", Err: err}
	}
	return &model.EvaluationResult{
		RunID:           run.ID,
		CriteriaID:      c.ID,
		CriteriaVersion: c.Version,
		CompanyName:     company,
		Question:        c.Question,
		PromptUsed:      prompt,
		Result:          ans.Result,
		Justification:   ans.Explanation,
		Evidence:        ans.SupportingEvidence,
		RawOutput:       ans.Raw,
		Output: model.OutputSnapshot{
			Company:         company,
			CriteriaID:      c.ID,
			CriteriaVersion: c.Version,
			Question:        c.Question,
			Prompt:          prompt,
			Result:          answerJSON,
			Timestamp:       now,
			RunID:           run.ID,
			AnalysisType:    model.AnalysisTypeCriteriaRAG,
		},
		CreatedAt: now,
	}, nil
}
