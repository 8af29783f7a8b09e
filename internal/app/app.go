// Package app wires configuration into a running dash instance: the
// knowledge store pool, the target database, the genkit model surface,
// and the pipeline built from them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/dash/db"
	"github.com/koopa0/dash/internal/agent"
	"github.com/koopa0/dash/internal/config"
	"github.com/koopa0/dash/internal/eval"
	"github.com/koopa0/dash/internal/export"
	"github.com/koopa0/dash/internal/knowledge"
	"github.com/koopa0/dash/internal/learning"
	"github.com/koopa0/dash/internal/loader"
	"github.com/koopa0/dash/internal/log"
	"github.com/koopa0/dash/internal/target"
)

// embedRPS throttles bulk embedding against the API's per-minute quota.
const (
	embedRPS   = 5.0
	embedBurst = 10
)

// App is a fully wired dash instance.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Pool     *pgxpool.Pool
	Target   *target.DB
	System   *knowledge.System
	Pipeline *agent.Pipeline
	Eval     *eval.Engine
	Exporter *export.Exporter
	Loader   *loader.Loader

	genkit *genkit.Genkit
}

// Setup builds an App from configuration. The returned cleanup closes
// the pool and the target connection; callers must run it.
func Setup(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	if cfg == nil {
		return nil, nil, config.ErrConfigNil
	}

	logger := log.New(log.Config{Level: parseLevel(cfg.LogLevel)})

	pool, poolCleanup, err := providePool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := knowledge.RateLimitEmbedder(
		googlegenai.GoogleAIEmbedder(g, cfg.AI.EmbedderModel), embedRPS, embedBurst)

	system, err := knowledge.NewSystem(pool, embedder, cfg.AI.EmbedderDimension, logger)
	if err != nil {
		poolCleanup()
		return nil, nil, fmt.Errorf("creating knowledge system: %w", err)
	}

	targetDB, err := target.Open(cfg.Target.Driver, cfg.Target.DSN, logger)
	if err != nil {
		poolCleanup()
		return nil, nil, fmt.Errorf("opening target database: %w", err)
	}
	exec := withTimeout(targetDB, cfg.Recovery.ExecTimeout)

	curated := system.Knowledge.(*knowledge.Space)
	learned := system.Learnings.(*knowledge.Space)

	intro := target.NewIntrospector(targetDB, true, logger)
	persistor := learning.NewPersistor(learned, logger)
	fixer := learning.NewGenkitFixer(g, cfg.AI.Model)
	loop := learning.NewLoop(exec, intro, system, fixer, persistor, cfg.Recovery.MaxCycles, logger)

	gen := withGenerateTimeout(agent.NewGenkitGenerator(g, cfg.AI.Model), cfg.AI.GenerateTimeout)
	pipeline := agent.NewPipeline(system, gen, exec, loop, curated, cfg.Retrieval.TopK, logger)

	grader := eval.NewGenkitGrader(g, cfg.AI.GraderModel)
	engine := eval.NewEngine(pipeline, exec, grader, logger)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Target:   targetDB,
		System:   system,
		Pipeline: pipeline,
		Eval:     engine,
		Exporter: export.NewExporter(exec, "outputs/exports", logger),
		Loader:   loader.New(curated, logger),
		genkit:   g,
	}

	cleanup := func() {
		_ = targetDB.Close()
		poolCleanup()
	}
	return app, cleanup, nil
}

// providePool runs migrations and opens the knowledge store pool.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.Storage.URL); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Storage.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing storage URL: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging knowledge store: %w", err)
	}

	return pool, pool.Close, nil
}

// timeoutExecer applies the configured per-query budget so a slow
// target surfaces as Timeout rather than hanging a task.
type timeoutExecer struct {
	inner target.Execer
	d     time.Duration
}

func withTimeout(inner target.Execer, d time.Duration) target.Execer {
	if d <= 0 {
		return inner
	}
	return &timeoutExecer{inner: inner, d: d}
}

func (t *timeoutExecer) Execute(ctx context.Context, query string) (*target.ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.Execute(ctx, query)
}

// timeoutGenerator bounds each model call with the configured budget.
type timeoutGenerator struct {
	inner agent.Generator
	d     time.Duration
}

func withGenerateTimeout(inner agent.Generator, d time.Duration) agent.Generator {
	if d <= 0 {
		return inner
	}
	return &timeoutGenerator{inner: inner, d: d}
}

func (t *timeoutGenerator) Generate(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.Generate(ctx, text)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
