package roles

import (
	"regexp"
	"strings"
)

// rejectMarkerRe matches the explicit "ACTION: Reject" marker the Reviewer
// prompt asks for. Case-insensitive, tolerant of surrounding whitespace.
var rejectMarkerRe = regexp.MustCompile(`(?i)ACTION:\s*Reject`)

// approveMarkerRe matches the explicit "ACTION: Approve" marker.
var approveMarkerRe = regexp.MustCompile(`(?i)ACTION:\s*Approve`)

// fallbackRejectRe is the last-resort heuristic used only when no explicit
// marker is present: a handful of phrases a human reviewer would use to
// reject, deliberately narrow to avoid false positives like "the build does
// not block release" or "nothing to reject here".
var fallbackRejectRe = regexp.MustCompile(`(?i)\b(rejected|rejecting|request(s|ed)? changes|does not meet|fails? (the )?(\w+ )?criteria)\b`)

// ParseReviewDecision reports whether the reviewer's output indicates
// rejection. The explicit marker is authoritative; the keyword fallback only
// applies when the output contains neither marker (Open Question decision,
// recorded in DESIGN.md).
func ParseReviewDecision(output string) (rejected bool) {
	trimmed := strings.TrimSpace(output)
	switch {
	case rejectMarkerRe.MatchString(trimmed):
		return true
	case approveMarkerRe.MatchString(trimmed):
		return false
	default:
		return fallbackRejectRe.MatchString(trimmed)
	}
}
