package orchestrator

import (
	"fmt"
	"strings"

	"github.com/atelier-ai/atelier/pkg/models"
)

// Merge concatenates per-item answers in submission order, each wrapped with
// a boundary marker naming the work item. A single-item queue passes the
// answer through untouched, which keeps orchestrated single-goal output
// byte-identical to a direct agent run.
func Merge(queue []models.WorkItem, results map[string]models.AgentResult) string {
	if len(queue) == 1 {
		return results[queue[0].ID].FinalAnswer
	}

	sections := make([]string, 0, len(queue))
	for _, item := range queue {
		res, ok := results[item.ID]
		answer := res.FinalAnswer
		if !ok {
			answer = "(no result recorded)"
		}
		role := item.AssignedAgent
		if role == "" {
			role = "generalist"
		}
		sections = append(sections, fmt.Sprintf("[%s] %s: %s\n%s", item.ID, role, item.Goal, answer))
	}
	return strings.Join(sections, "\n\n") + "\n"
}
