// Package quality implements the pure Quality Evaluator from spec §4.4: a
// deterministic (output, role, adapterID) -> confidence function, used by
// Role Workers to decide on self-retry and by the Supervisor to decide on
// concern-driven retries.
//
// Grounded on haricheung-agentic-shell's internal/roles/agentval/agentval.go
// criterion-scoring approach (accumulate evidence against a rubric, clamp to
// [0,1]) — generalized from "does output satisfy success criteria" to the
// four fixed factors spec §4.4 names.
package quality

import (
	"regexp"
	"strings"

	"github.com/taskforge/orchestrator/internal/types"
)

// Exported thresholds (spec §4.4).
const (
	QualityConcernThreshold = 0.5
	SelfRetryThreshold      = 0.3
)

// lengthTargets gives the role-dependent N for the length-score factor.
var lengthTargets = map[types.Role]int{
	types.RolePlanner:  500,
	types.RoleBuilder:  500,
	types.RoleReviewer: 300,
}

// keywordSets gives the role-specific keyword set for the keyword-presence
// factor (case-insensitive substring match).
var keywordSets = map[types.Role][]string{
	types.RolePlanner:  {"step", "plan", "goal", "approach", "first", "then"},
	types.RoleBuilder:  {"implement", "function", "return", "code", "test", "build"},
	types.RoleReviewer: {"approve", "reject", "criteria", "issue", "looks good", "confirm"},
}

// adapterReliability is a fixed per-adapter prior in [0.5, 0.85]; unknown
// adapters score 0.5.
var adapterReliability = map[string]float64{
	"echo":   0.55,
	"claude": 0.85,
	"gpt":    0.8,
	"local":  0.6,
}

var (
	codeFenceRe = regexp.MustCompile("```")
	listItemRe  = regexp.MustCompile(`(?m)^\s*[-*]\s+|^\s*\d+\.\s+`)
	headerRe    = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
)

// Evaluate computes confidence in [0,1] as the weighted sum of four factors
// (spec §4.4): length score, keyword presence, adapter reliability, and
// structural indicators. Pure and deterministic.
func Evaluate(output string, role types.Role, adapterID string) float64 {
	length := lengthScore(output, role)
	keyword := keywordScore(output, role)
	reliability := adapterScore(adapterID)
	structure := structureScore(output, role)

	// Equal weighting across the four named factors.
	score := (length + keyword + reliability + structure) / 4.0
	return clamp01(score)
}

func lengthScore(output string, role types.Role) float64 {
	n, ok := lengthTargets[role]
	if !ok || n <= 0 {
		n = 500
	}
	ratio := float64(len(output)) / float64(n)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func keywordScore(output string, role types.Role) float64 {
	keywords := keywordSets[role]
	if len(keywords) == 0 {
		return 0.5
	}
	lower := strings.ToLower(output)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func adapterScore(adapterID string) float64 {
	if v, ok := adapterReliability[adapterID]; ok {
		return v
	}
	return 0.5
}

// structureScore returns a constant for the orchestrator role (spec §4.4)
// and otherwise scores presence of code fences, list markers, and headers —
// each contributing 1.0 if present, else 0.5 — averaged across the three
// indicators.
func structureScore(output string, role types.Role) float64 {
	const orchestratorRole = types.Role("orchestrator")
	if role == orchestratorRole {
		return 0.5
	}
	indicators := []bool{
		codeFenceRe.MatchString(output),
		listItemRe.MatchString(output),
		headerRe.MatchString(output),
	}
	sum := 0.0
	for _, present := range indicators {
		if present {
			sum += 1.0
		} else {
			sum += 0.5
		}
	}
	return sum / float64(len(indicators))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
