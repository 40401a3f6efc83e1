package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/monitoring"
	"github.com/sells-group/annual-report-eval/internal/workflows"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker for durable analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		orch, err := newOrchestrator(ctx, b, prometheus.DefaultRegisterer, analysis.Options{})
		if err != nil {
			return err
		}

		c, err := tclient.Dial(tclient.Options{HostPort: cfg.Temporal.HostPort, Namespace: cfg.Temporal.Namespace})
		if err != nil {
			return eris.Wrap(err, "worker: dial temporal")
		}
		defer c.Close()

		acts := workflows.NewActivities(orch, b.Store,
			monitoring.NewCollector(b.Store), monitoring.NewAlerter(cfg.Monitoring))
		w := workflows.NewWorker(c, cfg.Temporal.TaskQueue, acts)

		zap.L().Info("worker started",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "worker: run")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
