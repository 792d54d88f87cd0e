package llm

import (
	"strings"

	"dealdesk/internal/domain"
)

const (
	approvedToken = "APPROVED"
	rejectedToken = "REJECTED:"
)

// InterpretVerdict classifies raw completion text. Text whose trimmed form
// starts with APPROVED approves the deal; everything else rejects it, with
// the text itself (minus any leading REJECTED: token) as the reason. An
// output that follows neither convention still rejects, using the whole text
// as the reason — unparseable verdicts fail closed rather than approve.
func InterpretVerdict(raw string) domain.Verdict {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, approvedToken) {
		return domain.Verdict{Approved: true}
	}
	reason := strings.TrimSpace(strings.TrimPrefix(trimmed, rejectedToken))
	return domain.Verdict{Approved: false, Reason: &reason}
}
