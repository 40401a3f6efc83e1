package workflows

import (
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Register adds the run workflow and its activities to w.
func Register(w worker.Worker, a *Activities) {
	w.RegisterWorkflow(AnalysisRunWorkflow)
	w.RegisterActivity(a.CreateRunActivity)
	w.RegisterActivity(a.EvaluateCellActivity)
	w.RegisterActivity(a.FinishRunActivity)
}

// NewWorker creates a worker on taskQueue with everything registered.
func NewWorker(c tclient.Client, taskQueue string, a *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w, a)
	return w
}
