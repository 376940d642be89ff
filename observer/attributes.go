package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for orchestration spans and metrics.
var (
	AttrAgentID   = attribute.Key("agent.id")
	AttrAgentType = attribute.Key("agent.type")

	AttrTaskID     = attribute.Key("task.id")
	AttrTaskType   = attribute.Key("task.type")
	AttrTaskStatus = attribute.Key("task.status")
	AttrErrorKind  = attribute.Key("task.error_kind")

	AttrWorkflowID     = attribute.Key("workflow.id")
	AttrInstanceID     = attribute.Key("workflow.instance_id")
	AttrWorkflowStatus = attribute.Key("workflow.status")
	AttrStepCount      = attribute.Key("workflow.step_count")

	AttrGatewayPrompt = attribute.Key("gateway.prompt")
	AttrUserID        = attribute.Key("user.id")
	AttrSessionID     = attribute.Key("session.id")
)
