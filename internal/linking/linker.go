package linking

import (
	"context"
	"time"
)

// Linker composes C1-C7 into the single Link entry point, §4.8. Besides its
// configured subtask window, it holds no mutable state: all of its data
// comes from the LinkingRequest argument and the Store snapshot observed
// during the call, so it is safe to share across concurrent callers.
type Linker struct {
	store         Store
	clock         Clock
	subtaskWindow time.Duration
}

// New builds a Linker backed by store, using the §4.5 default subtask
// window W (SubtaskWindow). clock supplies "now" only when a LinkingRequest
// omits its Timestamp (§9: the linker never reads the wall clock directly —
// callers that want real-time behavior pass a Clock wrapping time.Now, and
// tests pass a fixed one).
func New(store Store, clock Clock) *Linker {
	return &Linker{store: store, clock: clock, subtaskWindow: SubtaskWindow}
}

// WithSubtaskWindow overrides W, the §4.5 sub-task lookback window, letting
// a deployment configure it (see Config.Store.SubtaskWindowSeconds) instead
// of hard-coding the spec default. A non-positive d is ignored.
func (l *Linker) WithSubtaskWindow(d time.Duration) *Linker {
	if d > 0 {
		l.subtaskWindow = d
	}
	return l
}

// Link runs the §4.8 procedure against req. The only error Link itself
// raises is ErrEmptyMessages; every other error is a Store error propagated
// unchanged (including ctx cancellation surfaced from a Store call).
func (l *Linker) Link(ctx context.Context, req LinkingRequest) (LinkResult, error) {
	if len(req.Messages) == 0 {
		return LinkResult{}, ErrEmptyMessages
	}

	requestTime := req.Timestamp
	if requestTime.IsZero() {
		requestTime = l.clock.Now()
	}

	currentHash, err := HashMessages(req.Messages)
	if err != nil {
		return LinkResult{}, err
	}
	systemHash := HashSystem(req.SystemPrompt)

	result := LinkResult{
		BranchID:           "main",
		CurrentMessageHash: currentHash,
		SystemHash:         systemHash,
	}

	// Step 3: compact-continuation path (single user message only).
	if len(req.Messages) == 1 && req.Messages[0].Role == RoleUser {
		text := flattenMessageText(req.Messages[0])
		normalizedText := normalizeText(text)
		if IsCompactContinuation(normalizedText) {
			match, err := resolveCompactContinuation(ctx, l.store, req.Domain, normalizedText, requestTime)
			if err != nil {
				return LinkResult{}, err
			}
			if match != nil {
				result.ConversationID = strPtr(match.Parent.ConversationID)
				result.ParentRequestID = strPtr(match.Parent.RequestID)
				result.BranchID = match.BranchID
				result.ParentMessageHash = strPtr(match.Parent.CurrentMessageHash)
				return result, nil
			}
			// Miss: return the fresh-conversation-root result now; sub-task
			// matching is not attempted for a sentinel-bearing request.
			return result, nil
		}

		// Step 4: sub-task path (still single user message).
		if strippedText, ok := eligibleForSubtaskMatch(req.Messages); ok {
			match, err := resolveSubtask(ctx, l.store, req.Domain, strippedText, requestTime, l.subtaskWindow)
			if err != nil {
				return LinkResult{}, err
			}
			if match != nil {
				result.ConversationID = strPtr(match.ConversationID)
				result.ParentTaskRequestID = strPtr(match.ParentTaskRequestID)
				result.IsSubtask = true
				result.SubtaskSequence = intPtr(match.Sequence)
				result.BranchID = match.BranchID
				return result, nil
			}
		}
	}

	// Step 5: ordinary linking for requests with >=2 messages.
	if len(req.Messages) >= 2 {
		parentMessages := req.Messages[:len(req.Messages)-2]
		var parentHash string
		if len(parentMessages) > 0 {
			parentHash, err = HashMessages(parentMessages)
			if err != nil {
				return LinkResult{}, err
			}
		} else {
			// Dropping the last two messages leaves nothing: a
			// parent_message_hash over zero messages is undefined, so
			// there is no parent edge to resolve (still >=2 messages
			// overall, e.g. exactly 2).
			return result, nil
		}
		result.ParentMessageHash = strPtr(parentHash)

		parent, _, err := resolveParent(ctx, l.store, resolveParentCriteria{
			Domain:            req.Domain,
			ParentMessageHash: parentHash,
			SystemHash:        systemHash,
			ExcludeRequestID:  req.RequestID,
			BeforeTimestamp:   requestTime,
			SystemPrompt:      req.SystemPrompt,
		})
		if err != nil {
			return LinkResult{}, err
		}
		if parent != nil {
			branchID, err := allocateBranch(ctx, l.store, req.Domain, *parent, req.RequestID, requestTime)
			if err != nil {
				return LinkResult{}, err
			}
			result.ConversationID = strPtr(parent.ConversationID)
			result.ParentRequestID = strPtr(parent.RequestID)
			result.BranchID = branchID
			return result, nil
		}
	}

	// Step 6: no parent found — fresh conversation root (I5).
	return result, nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
