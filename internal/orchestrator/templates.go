package orchestrator

import (
	"fmt"

	"github.com/atelier-ai/atelier/pkg/models"
)

// Decomposition templates build fixed work-item graphs from a single goal.
// Deterministic, no model call: the same goal always yields the same queue.

// TemplateNames lists the available templates.
func TemplateNames() []string {
	return []string{"single", "design_review", "draft_review_revise"}
}

// Decompose expands a goal into work items using the named template.
func Decompose(template, goal string) ([]models.WorkItem, error) {
	switch template {
	case "", "single":
		return []models.WorkItem{
			{ID: "main", AssignedAgent: "generalist", Goal: goal},
		}, nil

	case "design_review":
		return []models.WorkItem{
			{ID: "design", AssignedAgent: "generalist", Goal: goal},
			{
				ID:            "review",
				AssignedAgent: "reviewer",
				Goal:          "Review the proposed result for errors, omissions and unsupported claims.",
				DependsOn:     []string{OutputKey("design")},
			},
		}, nil

	case "draft_review_revise":
		return []models.WorkItem{
			{ID: "draft", AssignedAgent: "researcher", Goal: goal},
			{
				ID:            "review",
				AssignedAgent: "reviewer",
				Goal:          "Review the draft for errors, omissions and unsupported claims.",
				DependsOn:     []string{OutputKey("draft")},
			},
			{
				ID:            "revise",
				AssignedAgent: "generalist",
				Goal:          "Produce a final version of the draft that addresses every review finding.",
				DependsOn:     []string{OutputKey("draft"), OutputKey("review")},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown decomposition template %q", template)
	}
}
