package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/atelier-ai/atelier/internal/tools"
	"github.com/atelier-ai/atelier/pkg/models"
)

// Compose renders the final observation set into the user-facing answer.
// Pure function of its inputs: no tool invocation, no model call, and the
// same observations always produce the same text. Failed observations are
// surfaced, never papered over.
func Compose(p models.Plan, observations []models.Observation) string {
	toolByStep := make(map[string]string, len(p.Steps))
	for _, s := range p.Steps {
		if s.Tool != "" {
			toolByStep[s.ID] = s.Tool
		}
	}

	if len(observations) == 0 {
		return fmt.Sprintf("No results were produced for the goal %q. Every planned action was either unavailable or failed before producing output.", p.Goal)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Results for: %s\n", p.Goal)

	failures := 0
	for _, obs := range observations {
		label := obs.StepID
		if tool, found := toolByStep[obs.StepID]; found {
			label = fmt.Sprintf("%s (%s)", obs.StepID, tool)
		}

		switch obs.Status {
		case models.ObservationOK:
			fmt.Fprintf(&b, "- %s: %s\n", label, renderValue(obs.Payload))
		case models.ObservationSoftFailure:
			failures++
			fmt.Fprintf(&b, "- %s: failed (%s)\n", label, tools.SoftFailureReason(obs.Payload))
		case models.ObservationHardFailure:
			failures++
			msg := "invocation fault"
			if obs.Error != nil && obs.Error.Message != "" {
				msg = obs.Error.Message
			}
			fmt.Fprintf(&b, "- %s: error: %s\n", label, msg)
		}
	}

	switch {
	case failures == len(observations):
		b.WriteString("All planned actions failed; no result could be computed.\n")
	case failures > 0:
		b.WriteString("Some actions failed; the results above are partial.\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderValue formats a tool return value for the answer text. Whole-number
// floats print without a decimal point.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "(no output)"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}
