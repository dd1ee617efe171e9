package linking

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// SubtaskWindow is W from §4.5: how far back a single-user-message request
// may look for the Task invocation it continues.
const SubtaskWindow = 30 * time.Second

// subtaskMatch is the result of a successful sub-task lookup.
type subtaskMatch struct {
	ParentTaskRequestID string
	ConversationID      string
	Sequence            int
	BranchID            string
}

// eligibleForSubtaskMatch reports whether a request qualifies to attempt
// sub-task matching at all: exactly one message, user role, and non-empty
// reminder-stripped text (§4.5).
func eligibleForSubtaskMatch(messages []Message) (strippedText string, ok bool) {
	if len(messages) != 1 {
		return "", false
	}
	m := messages[0]
	if m.Role != RoleUser {
		return "", false
	}
	text := flattenMessageText(m)
	stripped := strings.TrimSpace(StripReminders(text))
	if stripped == "" {
		return "", false
	}
	return stripped, true
}

// flattenMessageText extracts the raw (pre-reminder-stripping) text of a
// single-part-or-string message, which is all eligibleForSubtaskMatch and
// the compact detector ever need to look at.
func flattenMessageText(m Message) string {
	if m.Content.Str != nil {
		return *m.Content.Str
	}
	var b strings.Builder
	for _, p := range m.Content.Parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// resolveSubtask runs the §4.5 procedure against strippedText (already
// trimmed and reminder-stripped by the caller), using window as W. Returns
// (nil, nil) on a miss.
func resolveSubtask(ctx context.Context, store Store, domain, strippedText string, requestTime time.Time, window time.Duration) (*subtaskMatch, error) {
	unescaped := strings.ReplaceAll(strippedText, `\n`, "\n")

	candidates, err := store.FindTaskInvocations(ctx, domain, requestTime, window, &unescaped)
	if err != nil {
		return nil, err
	}

	var best *TaskInvocation
	for i := range candidates {
		c := &candidates[i]
		if c.Prompt != unescaped {
			continue
		}
		if requestTime.Sub(c.Timestamp) > window || c.Timestamp.After(requestTime) {
			continue
		}
		if best == nil || c.Timestamp.After(best.Timestamp) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}

	n, err := store.GetMaxSubtaskSequence(ctx, best.ConversationID, requestTime)
	if err != nil {
		return nil, err
	}
	n++

	return &subtaskMatch{
		ParentTaskRequestID: best.RequestID,
		ConversationID:      best.ConversationID,
		Sequence:            n,
		BranchID:            subtaskBranchID(n),
	}, nil
}

func subtaskBranchID(n int) string {
	return "subtask_" + strconv.Itoa(n)
}
