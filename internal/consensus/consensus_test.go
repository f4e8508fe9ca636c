package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consensus result")
		return Result{}
	}
}

func TestMajorityResolvesOnTieBreakingThirdVote(t *testing.T) {
	c := New(nil, time.Minute)
	ch := c.Open("t1", 3, StrategyMajority)
	c.Vote("t1", Vote{VoterID: "a", Approved: true, Confidence: 0.9})
	c.Vote("t1", Vote{VoterID: "b", Approved: false, Confidence: 0.9})
	c.Vote("t1", Vote{VoterID: "c", Approved: true, Confidence: 0.4})

	r := awaitResult(t, ch)
	assert.True(t, r.Approved)
	assert.Len(t, r.Votes, 3)
}

func TestUnanimousRejectsOnAnyDissent(t *testing.T) {
	c := New(nil, time.Minute)
	ch := c.Open("t1", 3, StrategyUnanimous)
	c.Vote("t1", Vote{VoterID: "a", Approved: true, Confidence: 0.9})
	c.Vote("t1", Vote{VoterID: "b", Approved: false, Confidence: 0.9})
	c.Vote("t1", Vote{VoterID: "c", Approved: true, Confidence: 0.4})

	r := awaitResult(t, ch)
	assert.False(t, r.Approved)
}

func TestWeightedSumsConfidenceByApprovalSide(t *testing.T) {
	c := New(nil, time.Minute)
	ch := c.Open("t1", 3, StrategyWeighted)
	c.Vote("t1", Vote{VoterID: "a", Approved: true, Confidence: 0.9})
	c.Vote("t1", Vote{VoterID: "b", Approved: false, Confidence: 0.9})
	c.Vote("t1", Vote{VoterID: "c", Approved: true, Confidence: 0.4})

	r := awaitResult(t, ch)
	assert.True(t, r.Approved) // 0.9+0.4=1.3 > 0.9
}

func TestWeightedClampsNegativeConfidenceBeforeWeighing(t *testing.T) {
	c := New(nil, time.Minute)
	ch := c.Open("t1", 2, StrategyWeighted)
	c.Vote("t1", Vote{VoterID: "a", Approved: true, Confidence: -5})
	c.Vote("t1", Vote{VoterID: "b", Approved: false, Confidence: 0.1})

	r := awaitResult(t, ch)
	// Clamped to 0 vs 0.1: rejection wins, never sign-inverts into a huge
	// negative "approval" weight.
	assert.False(t, r.Approved)
}

func TestVotesArrivingBeforeOpenAreBufferedAndReplayed(t *testing.T) {
	c := New(nil, time.Minute)
	c.Vote("t1", Vote{VoterID: "a", Approved: true, Confidence: 0.9})
	ch := c.Open("t1", 1, StrategyMajority)

	r := awaitResult(t, ch)
	assert.True(t, r.Approved)
	require.Len(t, r.Votes, 1)
	assert.Equal(t, "a", r.Votes[0].VoterID)
}

func TestDuplicateVoterIsIgnoredWithWarning(t *testing.T) {
	var warnings []string
	c := New(func(msg string) { warnings = append(warnings, msg) }, time.Minute)
	ch := c.Open("t1", 1, StrategyMajority)
	c.Vote("t1", Vote{VoterID: "a", Approved: true, Confidence: 0.9})
	c.Vote("t1", Vote{VoterID: "a", Approved: false, Confidence: 0.1})

	r := awaitResult(t, ch)
	assert.Len(t, r.Votes, 1)
	assert.NotEmpty(t, warnings)
}

func TestDeadlineFiresWithNoVotesResolvesUnapproved(t *testing.T) {
	c := New(nil, 20*time.Millisecond)
	ch := c.Open("t1", 5, StrategyMajority)

	r := awaitResult(t, ch)
	assert.False(t, r.Approved)
	assert.Empty(t, r.Votes)
}
