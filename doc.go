// Package cadre is a multi-agent orchestration engine for recruitment
// automation in Go.
//
// It provides modular, interface-driven building blocks: a lifecycle-managed
// agent runtime, a message bus with routing and an inspectable log, a
// DAG-based workflow executor with retries and failure handlers, pluggable
// metrics sinks, and a model gateway abstraction for LLM backends.
//
// # Quick Start
//
// Wire an orchestrator with agent factories and run a workflow:
//
//	gw := cadre.WithGatewayRetry(httpgw.New(baseURL, apiKey, model))
//	svc := cadre.Services{
//		Search:     map[string]cadre.SearchClient{"github": githubClient},
//		Enrichment: nymeria.New(nymeriaKey),
//		Profiles:   profilepage.New(),
//		Resumes:    resume.NewExtractor(),
//	}
//
//	orch := cadre.NewOrchestrator(cadre.WithMetricsSink(sink))
//	orch.RegisterAgentType(cadre.AgentSourcing, func() (cadre.Agent, error) {
//		return cadre.NewSourcingAgent(gw, svc), nil
//	})
//	orch.RegisterAgentType(cadre.AgentEnrichment, func() (cadre.Agent, error) {
//		return cadre.NewEnrichmentAgent(svc), nil
//	})
//	orch.RegisterAgentType(cadre.AgentPlanning, func() (cadre.Agent, error) {
//		return cadre.NewPlanningAgent(gw), nil
//	})
//
//	if err := orch.Initialize(ctx); err != nil {
//		return err
//	}
//	defer orch.Shutdown(context.Background())
//
//	inst, err := orch.ExecuteWorkflow(ctx, def, cadre.AgentContext{UserID: "u1"})
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Agent] — lifecycle-managed task executor ([BaseAgent], or custom)
//   - [ModelGateway] — LLM backend (gateway/httpgw, or [GatewayFunc])
//   - [MetricsSink] — activity/instance/snapshot persistence ([MemorySink], store/sqlite, store/postgres)
//   - [SearchClient], [EnrichmentClient], [ProfileFetcher], [ResumeExtractor] — external candidate services
//
// # Included Implementations
//
// Agents: [SourcingAgent], [EnrichmentAgent], [PlanningAgent].
// Gateways: gateway/httpgw (HTTP completion endpoints).
// Sinks: store/sqlite (local), store/postgres (shared).
// Services: services/nymeria (contact discovery), services/profilepage
// (profile text extraction), ingest/resume (PDF/plain-text documents).
//
// See the cmd/cadre directory for a complete runner.
package cadre
