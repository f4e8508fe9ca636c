package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionVerbsMapToInterventionActions(t *testing.T) {
	assert.Equal(t, "approve_review", actionVerbs["approve"])
	assert.Equal(t, "reject_review", actionVerbs["reject"])
	assert.Equal(t, "request_rework", actionVerbs["rework"])
	assert.Equal(t, "pause_task", actionVerbs["pause"])
	assert.Equal(t, "resume_task", actionVerbs["resume"])
}
