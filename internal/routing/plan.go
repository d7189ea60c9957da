package routing

import "leadrouter/internal/migration"

type Strategy string

const (
	StrategyQueue    Strategy = "queue"
	StrategyWorkflow Strategy = "workflow"
	StrategyEscalate Strategy = "escalate"
	StrategyFatal    Strategy = "fatal"
)

// Plan returns the ordered strategies to try. The list always ends in
// StrategyEscalate or StrategyFatal. workflowEnabled is the policy flag
// combined with whether a workflow client is configured at all.
func Plan(d migration.Decision, workflowEnabled bool) []Strategy {
	switch {
	case d.UseQueue && d.QueueEnabled && workflowEnabled:
		return []Strategy{StrategyQueue, StrategyWorkflow, StrategyEscalate}
	case d.UseQueue && d.QueueEnabled:
		return []Strategy{StrategyQueue, StrategyFatal}
	case workflowEnabled:
		return []Strategy{StrategyWorkflow, StrategyEscalate}
	default:
		return []Strategy{StrategyFatal}
	}
}
