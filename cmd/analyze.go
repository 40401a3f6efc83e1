package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/monitoring"
	"github.com/sells-group/annual-report-eval/internal/store"
	"github.com/sells-group/annual-report-eval/internal/workflows"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Evaluate criteria against companies",
	Long: "Runs every selected criterion against every selected company. Without --criteria all active criteria are used; " +
		"without --companies every company in the document index is used.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ids, _ := cmd.Flags().GetStringSlice("criteria")
		companies, _ := cmd.Flags().GetStringSlice("companies")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		outPath, _ := cmd.Flags().GetString("out")
		durable, _ := cmd.Flags().GetBool("durable")

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		cs, err := b.Store.ListCriteria(ctx, store.CriteriaFilter{Status: store.CriteriaActive, IDs: ids})
		if err != nil {
			return eris.Wrap(err, "analyze: list criteria")
		}
		if len(companies) == 0 {
			if companies, err = b.Index.Companies(ctx); err != nil {
				return eris.Wrap(err, "analyze: list companies")
			}
		}

		if durable {
			plan, err := analysis.NewOrchestrator(nil, nil, nil, analysis.Options{}).Prepare(cs, companies)
			if err != nil {
				return err
			}
			return startDurable(cmd, plan)
		}

		orch, err := newOrchestrator(ctx, b, nil, analysis.Options{
			Concurrency: concurrency,
			Progress: func(done, total int) {
				fmt.Fprintf(os.Stderr, "\r%d/%d cells", done, total)
				if done == total {
					fmt.Fprintln(os.Stderr)
				}
			},
		})
		if err != nil {
			return err
		}

		plan, err := orch.Prepare(cs, companies)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		outcome, err := orch.Execute(ctx, plan)
		if err != nil {
			return err
		}
		formatOutcome(out, outcome)

		results, err := b.Store.ListResults(ctx, store.ResultFilter{RunID: plan.Run.ID})
		if err != nil {
			return eris.Wrap(err, "analyze: list results")
		}
		_, _ = fmt.Fprintln(out)
		formatScores(out, analysis.Score(results, plan.Criteria))

		if outPath != "" {
			if err := exportResults(outPath, results); err != nil {
				return err
			}
			zap.L().Info("results exported", zap.String("path", outPath), zap.Int("rows", len(results)))
		}

		monitoring.NewAlerter(cfg.Monitoring).Notify(ctx, monitoring.FromOutcome(outcome))
		return nil
	},
}

// startDurable hands plan to the Temporal worker instead of running it here.
func startDurable(cmd *cobra.Command, plan *analysis.Plan) error {
	if err := cfg.Validate("worker"); err != nil {
		return err
	}
	c, err := tclient.Dial(tclient.Options{HostPort: cfg.Temporal.HostPort, Namespace: cfg.Temporal.Namespace})
	if err != nil {
		return eris.Wrap(err, "analyze: dial temporal")
	}
	defer c.Close()

	id, err := workflows.NewStarter(c, cfg.Temporal.TaskQueue, cfg.Temporal.CompanyWindow).Start(cmd.Context(), plan)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Started %s (%d cells) as workflow %s\n", plan.Run.ID, plan.Total(), id)
	return nil
}

// exportResults writes results as CSV or XLSX depending on the extension.
func exportResults(path string, results []model.EvaluationResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		err = analysis.ExportXLSX(f, results)
	case ".csv":
		err = analysis.ExportCSV(f, results)
	default:
		return eris.Errorf("unsupported export format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func init() {
	analyzeCmd.Flags().StringSlice("criteria", nil, "criteria ids to evaluate (default: all active)")
	analyzeCmd.Flags().StringSlice("companies", nil, "companies to evaluate (default: all indexed)")
	analyzeCmd.Flags().Int("concurrency", 0, "companies evaluated in parallel (default from config)")
	analyzeCmd.Flags().String("out", "", "export results to a .csv or .xlsx file")
	analyzeCmd.Flags().Bool("durable", false, "start the run on the Temporal worker and return")
	rootCmd.AddCommand(analyzeCmd)
}
