package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/atelier-ai/atelier/pkg/models"
)

// wireStep mirrors the external step contract. Steps are decoded leniently;
// strictness is enforced at the top level only.
type wireStep struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tool        *string        `json:"tool"`
	Args        map[string]any `json:"args"`
	Requires    any            `json:"requires"`
}

// Parse decodes raw model output into a plan. The top level must be exactly
// {goal, steps}; anything else is a SchemaError. Code fences are stripped
// and a brace-delimited JSON object is salvaged from surrounding prose.
func Parse(raw string) (models.Plan, error) {
	text := sanitizeModelJSON(strings.TrimSpace(raw))
	if text == "" {
		return models.Plan{}, &SchemaError{Reason: "planner output was empty"}
	}

	text = stripCodeFences(text)

	p, err := decodeStrict(text)
	if err == nil {
		return p, nil
	}

	// Salvage a JSON object embedded in prose.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if p, serr := decodeStrict(sanitizeModelJSON(text[start : end+1])); serr == nil {
			return p, nil
		}
	}

	return models.Plan{}, &SchemaError{Reason: "planner output was not valid plan JSON", Err: err}
}

// decodeStrict decodes text enforcing the exact top-level shape.
func decodeStrict(text string) (models.Plan, error) {
	var top struct {
		Goal  string            `json:"goal"`
		Steps []json.RawMessage `json:"steps"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&top); err != nil {
		return models.Plan{}, err
	}
	if dec.More() {
		return models.Plan{}, fmt.Errorf("trailing data after plan object")
	}
	if top.Steps == nil {
		return models.Plan{}, fmt.Errorf("missing steps")
	}

	p := models.Plan{Goal: top.Goal}
	for i, rawStep := range top.Steps {
		var ws wireStep
		if err := json.Unmarshal(rawStep, &ws); err != nil {
			return models.Plan{}, fmt.Errorf("step %d: %w", i, err)
		}

		step := models.Step{
			ID:          ws.ID,
			Description: ws.Description,
			Args:        ws.Args,
			Requires:    coerceRequires(ws.Requires),
		}
		if ws.Tool != nil {
			step.Tool = *ws.Tool
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("step_%d", i+1)
		}
		if step.Tool == "" {
			step.Args = nil
		} else if step.Args == nil {
			step.Args = map[string]any{}
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

// coerceRequires accepts a list, a single string, or nothing.
func coerceRequires(v any) []string {
	switch r := v.(type) {
	case nil:
		return nil
	case string:
		return []string{r}
	case []any:
		var out []string
		for _, item := range r {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// sanitizeModelJSON repairs recurring model output bugs: mis-quoted URL
// schemes and typographic quotes.
func sanitizeModelJSON(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, `"https"://`, "https://")
	s = strings.ReplaceAll(s, `"http"://`, "http://")
	s = strings.ReplaceAll(s, "“", `"`)
	s = strings.ReplaceAll(s, "”", `"`)
	s = strings.ReplaceAll(s, "’", "'")
	return s
}

// stripCodeFences removes a surrounding ``` or ```json fence, if present.
func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	first := strings.Index(text, "```")
	last := strings.LastIndex(text, "```")
	if first == -1 || last <= first {
		return text
	}
	inner := strings.TrimLeft(text[first+3:last], " \t")
	if strings.HasPrefix(strings.ToLower(inner), "json") {
		if nl := strings.Index(inner, "\n"); nl != -1 {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}

// Normalize applies the deterministic cleanup pipeline to a parsed plan:
// numeric step ids become step_N, unknown tools are stripped (the step is
// kept, marked, and never executed), a missing compose_answer is appended,
// intermediate tool-free steps are pruned, and requires references are
// reduced to real, non-self ids with compose_answer depending on every tool
// step.
func Normalize(p models.Plan, known ToolSet) models.Plan {
	p = normalizeNumericIDs(p)
	p = coerceUnknownTools(p, known)
	p = ensureComposeAnswer(p)
	p = pruneIntermediateToolFree(p)
	p = sanitizeRequires(p)
	return p
}

// normalizeNumericIDs rewrites all-digit step ids ("0", "1") to stable
// step_N names and remaps requires accordingly.
func normalizeNumericIDs(p models.Plan) models.Plan {
	var numeric []string
	for _, s := range p.Steps {
		if s.ID != models.TerminalStepID && isAllDigits(s.ID) {
			numeric = append(numeric, s.ID)
		}
	}
	if len(numeric) == 0 {
		return p
	}

	sort.Slice(numeric, func(i, j int) bool {
		a, _ := strconv.Atoi(numeric[i])
		b, _ := strconv.Atoi(numeric[j])
		return a < b
	})

	idMap := make(map[string]string, len(numeric))
	for _, old := range numeric {
		n, _ := strconv.Atoi(old)
		idMap[old] = fmt.Sprintf("step_%d", n+1)
	}

	steps := make([]models.Step, len(p.Steps))
	for i, s := range p.Steps {
		if mapped, ok := idMap[s.ID]; ok {
			s.ID = mapped
		}
		reqs := make([]string, 0, len(s.Requires))
		for _, r := range s.Requires {
			if mapped, ok := idMap[r]; ok {
				r = mapped
			}
			reqs = append(reqs, r)
		}
		s.Requires = reqs
		steps[i] = s
	}
	return models.Plan{Goal: p.Goal, Steps: steps}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// coerceUnknownTools strips invented tool names instead of erroring: the
// step stays in the plan, marked, with no tool and no args, so diagnostics
// can see what the model attempted.
func coerceUnknownTools(p models.Plan, known ToolSet) models.Plan {
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Tool == "" {
			s.Args = nil
			continue
		}
		if !known.Has(s.Tool) {
			s.Tool = ""
			s.Args = nil
			s.CoercedUnknown = true
		}
	}
	return p
}

// ensureComposeAnswer appends the terminal step if the model forgot it.
func ensureComposeAnswer(p models.Plan) models.Plan {
	if p.TerminalStep() != nil {
		return p
	}
	p.Steps = append(p.Steps, models.Step{
		ID:          models.TerminalStepID,
		Description: "Reads all previous step results and produces one coherent answer.",
	})
	return p
}

// pruneIntermediateToolFree enforces that compose_answer is the only
// tool-free step, except coerced-unknown steps which are kept for
// visibility. compose_answer is forced to the end with no tool or args.
func pruneIntermediateToolFree(p models.Plan) models.Plan {
	var toolSteps, coerced []models.Step
	var compose *models.Step

	for _, s := range p.Steps {
		switch {
		case s.ID == models.TerminalStepID:
			c := s
			compose = &c
		case s.Tool != "":
			toolSteps = append(toolSteps, s)
		case s.CoercedUnknown:
			coerced = append(coerced, s)
		}
	}

	if compose == nil {
		compose = &models.Step{
			ID:          models.TerminalStepID,
			Description: "Reads all previous step results and produces one coherent answer.",
		}
	}
	compose.Tool = ""
	compose.Args = nil

	steps := make([]models.Step, 0, len(toolSteps)+len(coerced)+1)
	steps = append(steps, toolSteps...)
	steps = append(steps, coerced...)
	steps = append(steps, *compose)
	return models.Plan{Goal: p.Goal, Steps: steps}
}

// sanitizeRequires drops requires entries that reference unknown ids or the
// step itself, then rewrites compose_answer to require every tool step.
func sanitizeRequires(p models.Plan) models.Plan {
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		ids[s.ID] = true
	}

	var toolIDs []string
	for _, s := range p.Steps {
		if s.Tool != "" {
			toolIDs = append(toolIDs, s.ID)
		}
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		if s.ID == models.TerminalStepID {
			s.Requires = append([]string(nil), toolIDs...)
			continue
		}
		kept := make([]string, 0, len(s.Requires))
		for _, r := range s.Requires {
			if ids[r] && r != s.ID {
				kept = append(kept, r)
			}
		}
		s.Requires = kept
	}
	return p
}
