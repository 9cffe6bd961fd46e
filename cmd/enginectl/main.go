// Command enginectl is a minimal harness for driving one diagram file to
// completion — explicitly not the product CLI (out of scope per spec.md's
// Non-goals), which would parse diagrams through the template/codegen
// subsystem and talk to the GraphQL/REST API surfaces. This exists only
// so the engine core can be exercised end-to-end from a checked-out
// diagram directory, the same role examples/*/main.go plays in the
// teacher repo.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dipeo/engine/bus"
	"github.com/dipeo/engine/config"
	"github.com/dipeo/engine/cost"
	"github.com/dipeo/engine/diagram"
	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/handler"
	"github.com/dipeo/engine/llm"
	"github.com/dipeo/engine/registry"
	"github.com/dipeo/engine/router"
	"github.com/dipeo/engine/state"
	"github.com/dipeo/engine/store"
)

func main() {
	diagramPath := flag.String("diagram", "", "path to a YAML or JSON diagram file")
	resume := flag.Bool("resume", false, "skip the orphan-reconciliation crash-safety sweep (G5)")
	flag.Parse()

	if *diagramPath == "" {
		fmt.Fprintln(os.Stderr, "usage: enginectl -diagram path/to/diagram.yaml")
		os.Exit(2)
	}

	if err := run(*diagramPath, *resume); err != nil {
		fmt.Fprintln(os.Stderr, "enginectl:", err)
		os.Exit(1)
	}
}

func run(diagramPath string, resume bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := config.NewLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := loadDiagram(diagramPath)
	if err != nil {
		return fmt.Errorf("load diagram: %w", err)
	}
	logger.Info().Str("diagram_id", d.ID).Int("nodes", len(d.AllNodes())).Msg("diagram compiled")

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if !resume {
		orphaned, err := st.ReconcileOrphans(ctx)
		if err != nil {
			return fmt.Errorf("reconcile orphans (G5): %w", err)
		}
		if len(orphaned) > 0 {
			logger.Warn().Strs("execution_ids", orphaned).Msg("marked RUNNING executions orphaned at startup")
		}
	}

	executionID := state.NewExecutionID()
	reg := buildRegistry(cfg, executionID)
	defer func() {
		if db := reg.DB(); db != nil {
			db.Close()
		}
	}()

	deps := handler.Deps{
		Model:   reg.Model(),
		Tracker: reg.Tracker(),
		DB:      reg.DB(),
		Prompts: reg.Router().Prompts,
	}
	handlers := handler.Register(deps)

	eng, err := engine.New(d, handlers, reg.Bus(),
		engine.WithMaxConcurrentNodes(cfg.ExecutionParallelism),
		engine.WithMaxIterations(cfg.MaxIterations),
		engine.WithDefaultNodeTimeout(cfg.NodeTimeout),
	)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	eng.Checkpoint = st.Save

	runCtx, runCancel := context.WithTimeout(ctx, cfg.ExecutionTimeout)
	defer runCancel()

	initial := state.New(executionID, d.ID, nodeIDs(d), nil)
	if err := st.Create(runCtx, initial); err != nil {
		return fmt.Errorf("create execution record: %w", err)
	}

	logger.Info().Str("execution_id", executionID).Msg("execution starting")
	final, runErr := eng.Resume(runCtx, initial)

	if err := st.Save(context.Background(), final); err != nil {
		logger.Error().Err(err).Msg("final checkpoint failed")
	}

	summary := fmt.Sprintf("execution %s: status=%s", executionID, final.Status)
	if tracker := reg.Tracker(); tracker != nil {
		summary += fmt.Sprintf(" cost_usd=%.4f", tracker.TotalCost())
	}
	fmt.Println(summary)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func loadDiagram(path string) (*diagram.Diagram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id := path
	switch {
	case hasSuffix(path, ".json"):
		return diagram.LoadJSON(id, data)
	default:
		return diagram.LoadYAML(id, data)
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// runningStore bundles store.Store with the backend connection's Close,
// so cmd/enginectl has one handle to defer-close regardless of which
// Backend config.StorageBackend selected.
type runningStore struct {
	store.Store
	backend store.Backend
}

func (rs runningStore) Close() error {
	if rs.backend == nil {
		return nil
	}
	return rs.backend.Close()
}

func openStore(cfg *config.Config) (runningStore, error) {
	var (
		backend store.Backend
		err     error
	)
	switch cfg.StorageBackend {
	case config.BackendMySQL:
		backend, err = store.NewMySQLBackend(os.Getenv("DIPEO_MYSQL_DSN"))
	default:
		backend, err = store.NewSQLiteBackend(cfg.BaseDir + "/enginectl.db")
	}
	if err != nil {
		return runningStore{}, err
	}

	cache, err := store.NewCacheStore(backend, cfg.StateCacheSize, cfg.StateCheckpointInterval)
	if err != nil {
		return runningStore{}, err
	}
	if err := cache.ScheduleCleanup("@daily", 30*24*time.Hour); err != nil {
		return runningStore{}, fmt.Errorf("schedule cleanup: %w", err)
	}

	return runningStore{Store: cache, backend: backend}, nil
}

func buildRegistry(cfg *config.Config, executionID string) *registry.Registry {
	b := bus.New(cfg.EventQueueSize)
	r := router.New(b)
	r.HeartbeatInterval = time.Duration(cfg.WSKeepaliveSec) * time.Second

	model := buildModel()
	tracker := cost.New(executionID, "USD")

	reg := registry.New()
	reg.Register(registry.ServiceBus, b)
	reg.Register(registry.ServiceRouter, r)
	if model != nil {
		reg.Register(registry.ServiceModel, model)
	}
	reg.Register(registry.ServiceTracker, tracker)
	return reg.Freeze()
}

// buildModel picks a real provider adapter if credentials are present in
// the environment, falling back to llm.MockModel so enginectl can drive
// person_job-bearing diagrams in CI/demo settings without API keys.
func buildModel() llm.Model {
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		return llm.NewAnthropicModel(os.Getenv("ANTHROPIC_API_KEY"), envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"))
	case os.Getenv("OPENAI_API_KEY") != "":
		return llm.NewOpenAIModel(os.Getenv("OPENAI_API_KEY"), envOr("OPENAI_MODEL", "gpt-4o-mini"))
	case os.Getenv("GOOGLE_API_KEY") != "":
		return llm.NewGoogleModel(os.Getenv("GOOGLE_API_KEY"), envOr("GOOGLE_MODEL", "gemini-1.5-flash"))
	default:
		return &llm.MockModel{Responses: []llm.Output{{Text: "(no LLM credentials configured; mock response)"}}}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func nodeIDs(d *diagram.Diagram) []string {
	nodes := d.AllNodes()
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
