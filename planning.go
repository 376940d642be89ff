package cadre

import (
	"context"
	"fmt"
)

// Task types handled by the planning agent.
const (
	TaskPlanning           = "planning"
	TaskRecruitmentPlan    = "recruitment_plan"
	TaskStrategyGeneration = "strategy_generation"
)

// PlanStage is one phase of a recruitment plan.
type PlanStage struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
}

// RecruitmentPlan is the planning agent's primary output.
type RecruitmentPlan struct {
	Role     string      `json:"role"`
	Summary  string      `json:"summary,omitempty"`
	Stages   []PlanStage `json:"stages"`
	Channels []string    `json:"channels,omitempty"`
	// Risks, Metrics, and Resources complete the plan report: what can go
	// wrong, how progress is measured, and what the plan consumes.
	Risks     []string `json:"risks,omitempty"`
	Metrics   []string `json:"metrics,omitempty"`
	Resources []string `json:"resources,omitempty"`
	// TargetCandidates is the sourcing volume the plan aims for.
	TargetCandidates int `json:"target_candidates,omitempty"`
}

// PlanningAgent turns a role and its criteria into a recruitment plan and
// outreach strategy. With a gateway the plan content is model-generated;
// without one a deterministic default plan is produced.
type PlanningAgent struct {
	*BaseAgent
	gw ModelGateway
}

// NewPlanningAgent creates a planning agent. gw may be nil.
func NewPlanningAgent(gw ModelGateway, opts ...AgentOption) *PlanningAgent {
	a := &PlanningAgent{gw: gw}
	caps := []AgentCapability{
		{Name: TaskRecruitmentPlan, Description: "staged recruitment plan with report"},
		{Name: TaskStrategyGeneration, Description: "sourcing and outreach strategy"},
		{Name: TaskPlanning, Description: "recruitment plan, alias of recruitment_plan"},
	}
	a.BaseAgent = NewBaseAgent(AgentPlanning, caps,
		[]string{TaskPlanning, TaskRecruitmentPlan, TaskStrategyGeneration},
		a.run, opts...)
	return a
}

func (a *PlanningAgent) run(ctx context.Context, task AgentTask) (Payload, error) {
	switch task.Type {
	case TaskPlanning, TaskRecruitmentPlan:
		return a.plan(ctx, task)
	case TaskStrategyGeneration:
		return a.strategy(ctx, task)
	}
	return nil, Errorf(KindNotSupported, "unexpected task type %q", task.Type)
}

func (a *PlanningAgent) plan(ctx context.Context, task AgentTask) (Payload, error) {
	role := task.Input.String("role")
	if role == "" {
		return nil, NewError(KindValidation, "planning needs a role")
	}
	target := task.Input.Int("target_candidates")
	if target <= 0 {
		target = 25
	}

	plan := defaultPlan(role, target)
	if a.gw != nil {
		out, err := a.gw.Call(ctx, promptRecruitmentPlan, Payload{
			"role":              role,
			"criteria":          task.Input.Map("criteria"),
			"target_candidates": target,
		}, task.Context)
		if err != nil {
			return nil, err
		}
		applyPlanOverrides(&plan, out)
	}

	md := PlanMarkdown(plan)
	html, err := RenderMarkdown(md)
	if err != nil {
		return nil, WrapError(KindInternal, "plan report rendering failed", err)
	}
	return Payload{
		"plan":            plan,
		"report_markdown": md,
		"report_html":     html,
	}, nil
}

func (a *PlanningAgent) strategy(ctx context.Context, task AgentTask) (Payload, error) {
	role := task.Input.String("role")
	if role == "" {
		return nil, NewError(KindValidation, "strategy generation needs a role")
	}

	channels := defaultChannels()
	messaging := fmt.Sprintf("Lead with the %s role's technical scope and growth path; personalise from profile text where available.", role)
	if a.gw != nil {
		out, err := a.gw.Call(ctx, promptStrategy, Payload{
			"role":     role,
			"criteria": task.Input.Map("criteria"),
		}, task.Context)
		if err != nil {
			return nil, err
		}
		if v := out.Strings("channels"); len(v) > 0 {
			channels = v
		}
		if v := out.String("messaging"); v != "" {
			messaging = v
		}
	}
	return Payload{
		"role":      role,
		"channels":  channels,
		"messaging": messaging,
	}, nil
}

const promptRecruitmentPlan = "Draft a staged recruitment plan (summary, stages with durations, channels) for the role."
const promptStrategy = "Suggest sourcing channels and outreach messaging for the role."

// defaultPlan is the deterministic plan used without a gateway and as the
// base the gateway output is merged onto.
func defaultPlan(role string, target int) RecruitmentPlan {
	return RecruitmentPlan{
		Role:             role,
		Summary:          fmt.Sprintf("Source, qualify, and engage %d candidates for the %s role.", target, role),
		TargetCandidates: target,
		Channels:         defaultChannels(),
		Stages: []PlanStage{
			{Name: "Sourcing", Description: "Build the boolean query and fan out across platforms.", DurationDays: 3},
			{Name: "Enrichment", Description: "Discover contact details and profile context.", DurationDays: 2},
			{Name: "Outreach", Description: "Personalised first-touch sequence.", DurationDays: 5},
			{Name: "Screening", Description: "Qualify responders against the criteria.", DurationDays: 4},
		},
		Risks: []string{
			"A niche skill set shrinks the reachable candidate pool.",
			"Generic outreach depresses response rates.",
			"Competing offers stall late-stage candidates.",
		},
		Metrics: []string{
			"Candidates sourced per platform",
			"Contact discovery rate",
			"Outreach response rate",
			"Qualified candidates per week",
		},
		Resources: []string{
			"Recruiter time for outreach and screening",
			"Search platform API quotas",
			"Contact enrichment credits",
		},
	}
}

func defaultChannels() []string {
	return []string{"github", "stackoverflow", "linkedin", "email"}
}

// applyPlanOverrides merges gateway output onto the default plan. Unknown or
// malformed fields are ignored.
func applyPlanOverrides(plan *RecruitmentPlan, out Payload) {
	if v := out.String("summary"); v != "" {
		plan.Summary = v
	}
	if v := out.Strings("channels"); len(v) > 0 {
		plan.Channels = v
	}
	if v := out.Strings("risks"); len(v) > 0 {
		plan.Risks = v
	}
	if v := out.Strings("metrics"); len(v) > 0 {
		plan.Metrics = v
	}
	if v := out.Strings("resources"); len(v) > 0 {
		plan.Resources = v
	}
	raw, ok := out["stages"].([]any)
	if !ok {
		return
	}
	var stages []PlanStage
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		p := Payload(m)
		if p.String("name") == "" {
			continue
		}
		stages = append(stages, PlanStage{
			Name:         p.String("name"),
			Description:  p.String("description"),
			DurationDays: p.Int("duration_days"),
		})
	}
	if len(stages) > 0 {
		plan.Stages = stages
	}
}
