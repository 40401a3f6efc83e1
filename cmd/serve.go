package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/api"
	"github.com/sells-group/annual-report-eval/internal/monitoring"
	"github.com/sells-group/annual-report-eval/internal/workflows"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Serves run, score and criteria queries over HTTP. Starting runs requires a reachable Temporal frontend and a running worker.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		deps := api.Deps{
			Store:       b.Store,
			Companies:   b.Index,
			Planner:     analysis.NewOrchestrator(nil, nil, nil, analysis.Options{}),
			Gatherer:    prometheus.DefaultGatherer,
			CORSOrigins: cfg.Server.CORSOrigins,
		}

		if cfg.Temporal.HostPort != "" {
			c, err := tclient.Dial(tclient.Options{HostPort: cfg.Temporal.HostPort, Namespace: cfg.Temporal.Namespace})
			if err != nil {
				zap.L().Warn("temporal unavailable, run submission disabled", zap.Error(err))
			} else {
				defer c.Close()
				deps.Launcher = workflows.NewStarter(c, cfg.Temporal.TaskQueue, cfg.Temporal.CompanyWindow)
			}
		}

		checker := monitoring.NewChecker(monitoring.NewCollector(b.Store), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("runs_enabled", deps.Launcher != nil))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
