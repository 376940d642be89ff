package cadre

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewAgentID generates an agent id prefixed with the agent type,
// e.g. "sourcing-0192e...".
func NewAgentID(t AgentType) string {
	return string(t) + "-" + NewID()
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
