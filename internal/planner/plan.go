package planner

import (
	"time"

	"github.com/fyrsmithlabs/agentd/internal/task"
)

// Plan is an ordered decomposition of a goal. It is created once per
// planning phase and immutable once handed to execution; a retry
// produces a new Plan.
//
// DependencyGraph is descriptive metadata: steps execute in list order
// and no topological scheduling is derived from it.
type Plan struct {
	Goal  string       `json:"goal"`
	Steps []*task.Task `json:"steps"`

	DependencyGraph map[string][]string `json:"dependency_graph"`

	EstimatedTotalCost float64       `json:"estimated_total_cost"`
	EstimatedTotalTime time.Duration `json:"estimated_total_time"`
	RiskAssessment     string        `json:"risk_assessment"`
}

// planPayload is the wire shape expected inside plan text.
type planPayload struct {
	Steps              []stepPayload       `json:"steps"`
	DependencyGraph    map[string][]string `json:"dependency_graph"`
	RiskAssessment     string              `json:"risk_assessment"`
	EstimatedTotalCost float64             `json:"estimated_total_cost"`
	EstimatedTotalTime float64             `json:"estimated_total_time"` // seconds
}

type stepPayload struct {
	ID                  string   `json:"id"`
	Description         string   `json:"description"`
	Priority            string   `json:"priority"`
	EstimatedComplexity float64  `json:"estimated_complexity"`
	EstimatedCost       float64  `json:"estimated_cost"`
	Dependencies        []string `json:"dependencies"`
}

// fallbackPayload wraps text verbatim in a single-step plan.
func fallbackPayload(text string) planPayload {
	return planPayload{
		Steps: []stepPayload{{
			ID:                  "step_1",
			Description:         text,
			Priority:            "medium",
			EstimatedComplexity: 0.5,
			EstimatedCost:       0.01,
		}},
		DependencyGraph:    map[string][]string{"step_1": {}},
		RiskAssessment:     "Simple single-step plan",
		EstimatedTotalCost: 0.01,
		EstimatedTotalTime: 60,
	}
}
