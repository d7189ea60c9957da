package migration

import (
	"context"
	"hash/fnv"
	"strings"

	"leadrouter/internal/config"
	"leadrouter/internal/constants"
)

type Phase string

const (
	PhaseWorkflow Phase = "workflow"
	PhaseCanary   Phase = "canary"
	PhaseRollout  Phase = "rollout"
	PhaseQueue    Phase = "queue"
)

func ParsePhase(s string) Phase {
	switch Phase(strings.ToLower(strings.TrimSpace(s))) {
	case PhaseCanary:
		return PhaseCanary
	case PhaseRollout:
		return PhaseRollout
	case PhaseQueue:
		return PhaseQueue
	default:
		return PhaseWorkflow
	}
}

// Policy is the global migration control between the workflow engine and the job queue.
type Policy struct {
	QueueBackendEnabled   bool  `json:"queue_backend_enabled"`
	WorkflowEngineEnabled bool  `json:"workflow_engine_enabled"`
	TrafficPercentage     int   `json:"traffic_percentage"`
	Phase                 Phase `json:"phase"`
}

func PolicyFromConfig(cfg config.MigrationConfig) Policy {
	return Policy{
		QueueBackendEnabled:   cfg.QueueBackendEnabled,
		WorkflowEngineEnabled: cfg.WorkflowEngineEnabled,
		TrafficPercentage:     clampPercentage(cfg.TrafficPercentage),
		Phase:                 ParsePhase(cfg.Phase),
	}
}

// Decision is the per-conversation evaluation of a Policy.
type Decision struct {
	UseQueue          bool  `json:"use_queue"`
	QueueEnabled      bool  `json:"queue_enabled"`
	WorkflowEnabled   bool  `json:"workflow_enabled"`
	TrafficPercentage int   `json:"traffic_percentage"`
	Phase             Phase `json:"phase"`
}

// Bucket maps a conversation id to a stable value in [0, 100).
func Bucket(conversationID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return int(h.Sum32() % constants.DefaultPercentageSpace)
}

// SelectedForQueue reports whether the conversation falls inside the rollout percentage.
func (p Policy) SelectedForQueue(conversationID string) bool {
	pct := clampPercentage(p.TrafficPercentage)
	if pct <= 0 {
		return false
	}
	if pct >= constants.DefaultPercentageSpace {
		return true
	}
	return Bucket(conversationID) < pct
}

func (p Policy) Decide(conversationID string) Decision {
	return Decision{
		UseQueue:          p.SelectedForQueue(conversationID) || !p.WorkflowEngineEnabled,
		QueueEnabled:      p.QueueBackendEnabled,
		WorkflowEnabled:   p.WorkflowEngineEnabled,
		TrafficPercentage: clampPercentage(p.TrafficPercentage),
		Phase:             p.Phase,
	}
}

func clampPercentage(v int) int {
	if v < 0 {
		return 0
	}
	if v > constants.DefaultPercentageSpace {
		return constants.DefaultPercentageSpace
	}
	return v
}

// Source returns the policy in force. Implementations may cache briefly.
type Source interface {
	Current(ctx context.Context) (Policy, error)
}

type StaticSource struct {
	policy Policy
}

func NewStaticSource(policy Policy) *StaticSource {
	return &StaticSource{policy: policy}
}

func (s *StaticSource) Current(context.Context) (Policy, error) {
	return s.policy, nil
}
