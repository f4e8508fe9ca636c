package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskforge/orchestrator/internal/types"
)

func TestEvaluateIsDeterministic(t *testing.T) {
	out := "## Plan\n1. first step\n2. then build it\n```go\nfunc x() {}\n```"
	a := Evaluate(out, types.RolePlanner, "claude")
	b := Evaluate(out, types.RolePlanner, "claude")
	assert.Equal(t, a, b)
}

func TestEvaluateStaysWithinUnitInterval(t *testing.T) {
	longOutput := strings.Repeat("implement test build return code function ", 200)
	conf := Evaluate(longOutput, types.RoleBuilder, "claude")
	assert.GreaterOrEqual(t, conf, 0.0)
	assert.LessOrEqual(t, conf, 1.0)
}

func TestEvaluateEmptyOutputScoresLow(t *testing.T) {
	conf := Evaluate("", types.RoleBuilder, "unknown-adapter")
	assert.Less(t, conf, QualityConcernThreshold)
}

func TestEvaluateRichOutputScoresHigh(t *testing.T) {
	out := strings.Repeat("x", 600) + "\n# Header\n- item one\n- item two\n```code block```\nimplement function return test build code"
	conf := Evaluate(out, types.RoleBuilder, "claude")
	assert.Greater(t, conf, QualityConcernThreshold)
}

func TestEvaluateUnknownAdapterUsesDefaultPrior(t *testing.T) {
	out := strings.Repeat("y", 500)
	withKnown := Evaluate(out, types.RolePlanner, "claude")
	withUnknown := Evaluate(out, types.RolePlanner, "totally-unknown-adapter-id")
	assert.Greater(t, withKnown, withUnknown)
}

func TestEvaluateOrchestratorRoleUsesConstantStructureScore(t *testing.T) {
	const orchestratorRole = types.Role("orchestrator")
	withStructure := Evaluate("# Header\n- item\n```code```", orchestratorRole, "claude")
	withoutStructure := Evaluate("plain text plain text plain text", orchestratorRole, "claude")
	// Structure factor is constant for this role; only length/keyword/reliability
	// factors can differ, and keyword set is empty for this role too.
	assert.InDelta(t, withStructure, withoutStructure, 0.05)
}

func TestEvaluateThresholdsOrdering(t *testing.T) {
	assert.Less(t, SelfRetryThreshold, QualityConcernThreshold)
}
