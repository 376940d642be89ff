// Command cadre runs a recruitment workflow from a definition file.
//
// It wires the orchestrator from cadre.toml (or CADRE_CONFIG), registers the
// built-in agent types, executes the workflow, and prints the per-step
// results as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	cadre "github.com/cadrehq/cadre"
	"github.com/cadrehq/cadre/gateway/httpgw"
	"github.com/cadrehq/cadre/ingest/resume"
	"github.com/cadrehq/cadre/internal/config"
	"github.com/cadrehq/cadre/observer"
	"github.com/cadrehq/cadre/services/nymeria"
	"github.com/cadrehq/cadre/services/profilepage"
	pgstore "github.com/cadrehq/cadre/store/postgres"
	"github.com/cadrehq/cadre/store/sqlite"
)

func main() {
	var (
		workflowPath = flag.String("workflow", "", "path to a workflow definition JSON file (required)")
		userID       = flag.String("user", "cli", "user id recorded on the workflow instance")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()
	if *workflowPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg := config.Load(os.Getenv("CADRE_CONFIG"))

	// 2. Metrics sink
	sink, cleanup, err := buildSink(ctx, cfg)
	if err != nil {
		log.Fatalf("metrics sink: %v", err)
	}
	defer cleanup()

	// 3. Observability
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		instruments, shutdown, err := observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
		inst = instruments
		sink = observer.WrapSink(sink, inst)
	}

	// 4. Model gateway
	var gw cadre.ModelGateway
	if cfg.Gateway.BaseURL != "" {
		gw = httpgw.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Model,
			httpgw.WithLogger(logger))
		if inst != nil {
			gw = observer.WrapGateway(gw, cfg.Gateway.Model, inst)
		}
		gw = cadre.WithGatewayRetry(gw,
			cadre.RetryMaxAttempts(cfg.Orchestrator.Retry.MaxAttempts),
			cadre.RetryBaseDelay(time.Duration(cfg.Orchestrator.Retry.BackoffMs)*time.Millisecond),
			cadre.RetryLogger(logger))
	}

	// 5. External services
	svc := cadre.Services{
		Search:   map[string]cadre.SearchClient{},
		Profiles: profilepage.New(),
		Resumes:  resume.NewExtractor(),
	}
	if cfg.Enrichment.NymeriaAPIKey != "" {
		svc.Enrichment = nymeria.New(cfg.Enrichment.NymeriaAPIKey)
	}

	// 6. Orchestrator
	orch := cadre.NewOrchestrator(
		cadre.WithConfig(cadre.Config{
			MaxConcurrentAgents: cfg.Orchestrator.MaxConcurrentAgents,
			DefaultTimeout:      time.Duration(cfg.Orchestrator.DefaultTimeoutMs) * time.Millisecond,
			Retry: cadre.RetryConfig{
				MaxAttempts: cfg.Orchestrator.Retry.MaxAttempts,
				Backoff:     time.Duration(cfg.Orchestrator.Retry.BackoffMs) * time.Millisecond,
			},
			Monitoring: cadre.MonitoringConfig{
				Enabled:         cfg.Orchestrator.Monitoring.Enabled,
				MetricsInterval: time.Duration(cfg.Orchestrator.Monitoring.MetricsIntervalMs) * time.Millisecond,
			},
			Bus: cadre.BusConfig{MaxLogSize: cfg.Orchestrator.MessageBus.MaxLogSize},
		}),
		cadre.WithLogger(logger),
		cadre.WithMetricsSink(sink),
	)
	orch.RegisterAgentType(cadre.AgentSourcing, func() (cadre.Agent, error) {
		return cadre.NewSourcingAgent(gw, svc, cadre.WithAgentLogger(logger)), nil
	})
	orch.RegisterAgentType(cadre.AgentEnrichment, func() (cadre.Agent, error) {
		return cadre.NewEnrichmentAgent(svc, cadre.WithAgentLogger(logger)), nil
	})
	orch.RegisterAgentType(cadre.AgentPlanning, func() (cadre.Agent, error) {
		return cadre.NewPlanningAgent(gw, cadre.WithAgentLogger(logger)), nil
	})

	if err := orch.Initialize(ctx); err != nil {
		log.Fatalf("initialize: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = orch.Shutdown(shutdownCtx)
	}()

	// 7. Load and run the workflow
	def, err := loadWorkflow(*workflowPath)
	if err != nil {
		log.Fatalf("workflow: %v", err)
	}

	instance, err := orch.ExecuteWorkflow(ctx, def, cadre.AgentContext{
		UserID:    *userID,
		SessionID: cadre.NewID(),
	})
	if err != nil {
		log.Fatalf("execute: %v", err)
	}

	printInstance(instance)
	if instance.Status() != cadre.WorkflowCompleted {
		os.Exit(1)
	}
}

// buildSink selects the metrics backend from config.
func buildSink(ctx context.Context, cfg config.Config) (cadre.MetricsSink, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		s := sqlite.New(cfg.Database.SQLitePath)
		if err := s.Init(ctx); err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		s := pgstore.New(pool)
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return cadre.NewMemorySink(), func() {}, nil
	}
}

// workflowFile is the on-disk JSON shape of a workflow definition.
type workflowFile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Steps   []struct {
		ID           string         `json:"id"`
		Name         string         `json:"name"`
		AgentType    string         `json:"agent_type"`
		TaskType     string         `json:"task_type"`
		Input        map[string]any `json:"input"`
		TimeoutMs    int            `json:"timeout_ms"`
		MaxAttempts  int            `json:"max_attempts"`
		Dependencies []string       `json:"dependencies"`
		Parallel     bool           `json:"parallel"`
		OnFailure    []string       `json:"on_failure"`
	} `json:"steps"`
}

func loadWorkflow(path string) (cadre.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cadre.WorkflowDefinition{}, err
	}
	var wf workflowFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return cadre.WorkflowDefinition{}, fmt.Errorf("parse %s: %w", path, err)
	}

	def := cadre.WorkflowDefinition{ID: wf.ID, Name: wf.Name, Version: wf.Version}
	for _, s := range wf.Steps {
		def.Steps = append(def.Steps, cadre.WorkflowStep{
			ID:        s.ID,
			Name:      s.Name,
			AgentType: cadre.AgentType(s.AgentType),
			Task: cadre.TaskTemplate{
				Type:        s.TaskType,
				Input:       cadre.Payload(s.Input),
				Timeout:     time.Duration(s.TimeoutMs) * time.Millisecond,
				MaxAttempts: s.MaxAttempts,
			},
			Dependencies: s.Dependencies,
			Parallel:     s.Parallel,
			OnFailure:    s.OnFailure,
		})
	}
	return def, nil
}

func printInstance(instance *cadre.WorkflowInstance) {
	type stepOut struct {
		Status cadre.ResultStatus `json:"status"`
		Error  string             `json:"error,omitempty"`
		Output cadre.Payload      `json:"output,omitempty"`
	}
	out := struct {
		InstanceID string             `json:"instance_id"`
		WorkflowID string             `json:"workflow_id"`
		Status     string             `json:"status"`
		Error      string             `json:"error,omitempty"`
		Steps      map[string]stepOut `json:"steps"`
	}{
		InstanceID: instance.ID,
		WorkflowID: instance.WorkflowID,
		Status:     string(instance.Status()),
		Error:      instance.Err(),
		Steps:      map[string]stepOut{},
	}
	for id, r := range instance.Results() {
		out.Steps[id] = stepOut{Status: r.Status, Error: r.Error, Output: r.Output}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
