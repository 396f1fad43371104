package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atelier-ai/atelier/pkg/models"
)

// minKeywordLen filters connective words out of relevance scoring.
const minKeywordLen = 4

// Recall selects episodes to seed a planning prompt: the most recent ones
// plus any older episodes whose input shares keywords with the new input.
// Duplicates are removed, recency first.
func (s *Store) Recall(input string, recentN, relevantN int) ([]models.Episode, error) {
	recent, err := s.Recent(recentN)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(recent))
	for _, ep := range recent {
		seen[ep.Input] = true
	}

	if relevantN > 0 {
		all, err := s.All()
		if err != nil {
			return nil, err
		}

		want := keywords(input)
		type scored struct {
			ep    models.Episode
			score int
		}
		var candidates []scored
		for _, ep := range all {
			if seen[ep.Input] {
				continue
			}
			score := overlap(want, keywords(ep.Input))
			if score > 0 {
				candidates = append(candidates, scored{ep: ep, score: score})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
		for i := 0; i < len(candidates) && i < relevantN; i++ {
			recent = append(recent, candidates[i].ep)
			seen[candidates[i].ep.Input] = true
		}
	}

	return recent, nil
}

// RenderContext formats recalled episodes as a prompt section. Returns the
// empty string when there is nothing to recall.
func RenderContext(episodes []models.Episode) string {
	if len(episodes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant past episodes:\n")
	for _, ep := range episodes {
		var tools []string
		for _, step := range ep.Plan.ToolSteps() {
			tools = append(tools, step.Tool)
		}
		fmt.Fprintf(&b, "- goal: %s; tools used: %s; outcome: %s\n",
			ep.Input, strings.Join(tools, ", "), summarize(ep.FinalAnswer))
	}
	return b.String()
}

// summarize keeps recalled answers prompt-sized. Truncation counts runes so
// a multi-byte character is never split.
func summarize(answer string) string {
	answer = strings.ReplaceAll(answer, "\n", " ")
	const max = 200
	runes := []rune(answer)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return answer
}

func keywords(text string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?:;\"'()[]{}")
		if len(word) >= minKeywordLen {
			out[word] = true
		}
	}
	return out
}

func overlap(a, b map[string]bool) int {
	n := 0
	for word := range a {
		if b[word] {
			n++
		}
	}
	return n
}
