package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/analysis"
	"github.com/sells-group/annual-report-eval/internal/completion"
	"github.com/sells-group/annual-report-eval/internal/index"
	"github.com/sells-group/annual-report-eval/internal/mediascan"
	"github.com/sells-group/annual-report-eval/internal/resolve"
	"github.com/sells-group/annual-report-eval/internal/store"
)

// backends holds the store and the document index over the same database.
type backends struct {
	Store store.Store
	Index index.Index
}

// Close releases the database connection.
func (b *backends) Close() {
	if b.Store != nil {
		_ = b.Store.Close()
	}
}

// initStore opens the configured store without migrating it.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openBackends opens and migrates the store and the index. Callers should
// defer Close.
func openBackends(ctx context.Context) (*backends, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	b := &backends{Store: st}

	switch s := st.(type) {
	case *store.SQLiteStore:
		b.Index = index.NewSQLite(s.DB())
	case *store.PostgresStore:
		b.Index = index.NewPostgres(s.Pool())
	}

	if err := st.Migrate(ctx); err != nil {
		b.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	if err := b.Index.Migrate(ctx); err != nil {
		b.Close()
		return nil, eris.Wrap(err, "migrate index")
	}
	return b, nil
}

// newMatcher builds the configured company-name matcher.
func newMatcher(client resolve.Completer) (resolve.NameMatcher, error) {
	switch cfg.Analysis.Matcher {
	case "", "normalized":
		return resolve.NormalizedMatcher{}, nil
	case "semantic":
		return resolve.NewSemanticMatcher(client, cfg.Analysis.MatcherModel), nil
	default:
		return nil, eris.Errorf("unknown matcher %q", cfg.Analysis.Matcher)
	}
}

// newOrchestrator wires completion, retrieval and the media-scan finder
// into an Orchestrator writing to b.Store. reg may be nil.
func newOrchestrator(ctx context.Context, b *backends, reg prometheus.Registerer, opts analysis.Options) (*analysis.Orchestrator, error) {
	if err := cfg.Validate("analyze"); err != nil {
		return nil, err
	}

	client, err := completion.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	matcher, err := newMatcher(client)
	if err != nil {
		return nil, err
	}

	assembler := analysis.NewAssembler(b.Index, mediascan.NewFinder(b.Store, matcher), cfg.Index.TopK, cfg.Analysis.RequireContext)
	invoker := analysis.NewInvoker(client, cfg.Completion.Model)
	if reg != nil {
		opts.Metrics = analysis.NewMetrics(reg)
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = cfg.Analysis.Concurrency
	}

	zap.L().Info("orchestrator ready",
		zap.String("provider", client.Name()),
		zap.String("model", cfg.Completion.Model),
		zap.String("matcher", cfg.Analysis.Matcher),
		zap.Int("concurrency", opts.Concurrency),
	)
	return analysis.NewOrchestrator(assembler, invoker, b.Store, opts), nil
}
