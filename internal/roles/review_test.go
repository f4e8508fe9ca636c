package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReviewDecisionExplicitMarkerWins(t *testing.T) {
	assert.True(t, ParseReviewDecision("Looks mostly fine.\nACTION: Reject\nMissing tests."))
	assert.False(t, ParseReviewDecision("ACTION: Approve\nThe build does not block anything further."))
}

func TestParseReviewDecisionFallbackAvoidsFalsePositive(t *testing.T) {
	assert.False(t, ParseReviewDecision("The build does not block release; nothing to reject here."))
}

func TestParseReviewDecisionFallbackCatchesPlainRejection(t *testing.T) {
	assert.True(t, ParseReviewDecision("This fails the acceptance criteria and should be reworked."))
}

func TestParseReviewDecisionDefaultsToApproveWhenSilent(t *testing.T) {
	assert.False(t, ParseReviewDecision("The implementation matches the description well."))
}
