// Package linking implements the conversation-linking core: canonical
// hashing of messages and system prompts, compact-continuation and
// sub-task detection, parent resolution, and branch allocation.
//
// The package is a pure function of its inputs plus a Store snapshot (see
// Store). It never reads the wall clock and never retries a failed stage.
package linking

import (
	"context"
	"time"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind tags the variant of a ContentPart.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
)

// ToolUse is a tool_use content part: a model-issued tool invocation.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultContent is the content carried by a tool_result part. It is
// either a plain string or an ordered list of text/image blocks, mirroring
// the string-or-parts shape of Message content itself.
type ToolResultContent struct {
	Str    *string
	Blocks []ToolResultBlock
}

// ToolResultBlock is one block of a structured tool_result content value.
// Only text carries hashable payload; image blocks are opaque.
type ToolResultBlock struct {
	Kind PartKind // PartText or PartImage
	Text string   // populated when Kind == PartText
}

// ToolResult is a tool_result content part: the outcome of a prior tool_use.
type ToolResult struct {
	ToolUseID string
	Content   ToolResultContent
}

// ContentPart is one element of a message's content, when content is given
// as an ordered sequence rather than a single string. Exactly one of the
// kind-specific fields is populated, matching Kind.
type ContentPart struct {
	Kind       PartKind
	Text       string      // populated when Kind == PartText
	ImageRef   string       // opaque blob reference, populated when Kind == PartImage
	ToolUse    *ToolUse     // populated when Kind == PartToolUse
	ToolResult *ToolResult  // populated when Kind == PartToolResult
}

// MessageContent is a message's content: either a single string, or an
// ordered sequence of content parts. Exactly one of Str or Parts is set
// (Parts may legitimately be an empty-but-non-nil slice once normalized).
type MessageContent struct {
	Str   *string
	Parts []ContentPart
}

// StringContent builds a string-form MessageContent.
func StringContent(s string) MessageContent {
	return MessageContent{Str: &s}
}

// PartsContent builds an array-form MessageContent.
func PartsContent(parts []ContentPart) MessageContent {
	return MessageContent{Parts: parts}
}

// Message is one tagged entry of a request's message list.
type Message struct {
	Role    Role
	Content MessageContent
}

// SystemPromptPart is one text element of an array-form system prompt. The
// cache-control marker is accepted for shape fidelity but ignored for
// hashing, per spec.
type SystemPromptPart struct {
	Text         string
	CacheControl string
}

// SystemPrompt is a request's optional system prompt: absent, a single
// string, or an ordered sequence of text parts.
type SystemPrompt struct {
	Present bool
	Str     *string
	Parts   []SystemPromptPart
}

// StringSystemPrompt builds a string-form, present SystemPrompt.
func StringSystemPrompt(s string) *SystemPrompt {
	return &SystemPrompt{Present: true, Str: &s}
}

// PartsSystemPrompt builds an array-form, present SystemPrompt.
func PartsSystemPrompt(parts []SystemPromptPart) *SystemPrompt {
	return &SystemPrompt{Present: true, Parts: parts}
}

// LinkingRequest is the public input to Link.
type LinkingRequest struct {
	Domain       string
	Messages     []Message
	SystemPrompt *SystemPrompt // nil means absent
	RequestID    string
	MessageCount int // redundant with len(Messages); Link does not read or check it
	Timestamp    time.Time
}

// LinkResult is the public output of Link.
type LinkResult struct {
	ConversationID      *string
	ParentRequestID     *string
	BranchID            string
	CurrentMessageHash  string
	ParentMessageHash   *string
	SystemHash          *string
	IsSubtask           bool
	ParentTaskRequestID *string
	SubtaskSequence     *int
}

// StoredRequestSummary is the subset of a stored request the linker needs
// back from the store. Implementations may embed additional fields (the
// interface requires these "at minimum"); TaskInvocation.ConversationID
// below is one such addition this package relies on.
type StoredRequestSummary struct {
	RequestID          string
	ConversationID     string
	BranchID           string
	CurrentMessageHash string
	SystemHash         *string
	Timestamp          time.Time
}

// TaskInvocation is a Task-tool invocation captured from a stored request's
// response. ConversationID is an addition beyond the spec's stated minimum
// fields: the sub-task matcher needs the invoking request's conversation to
// assign the new sub-task request's conversation_id and to scope
// GetMaxSubtaskSequence, and the store is the only place that can supply it.
type TaskInvocation struct {
	RequestID      string
	ToolUseID      string
	Prompt         string
	Timestamp      time.Time
	ConversationID string
}

// SystemHashCriterion models the tri-state system_hash filter of
// FindParentsCriteria: unspecified (ignored), explicitly null (match rows
// with a null system_hash), or a concrete value.
type SystemHashCriterion struct {
	Specified bool
	Value     *string // nil with Specified==true means "match null"
}

// SystemHashOmitted is the zero value: the criterion is not applied.
var SystemHashOmitted = SystemHashCriterion{}

// SystemHashIsNull builds a criterion matching only null system_hash rows.
func SystemHashIsNull() SystemHashCriterion {
	return SystemHashCriterion{Specified: true, Value: nil}
}

// SystemHashEquals builds a criterion matching a specific system_hash.
func SystemHashEquals(hash string) SystemHashCriterion {
	return SystemHashCriterion{Specified: true, Value: &hash}
}

// FindParentsCriteria parameterizes Store.FindParents.
type FindParentsCriteria struct {
	Domain             string
	MessageCount       *int
	CurrentMessageHash *string
	ParentMessageHash  *string
	SystemHash         SystemHashCriterion
	ExcludeRequestID   *string
	BeforeTimestamp    *time.Time
	ConversationID     *string
}

// Store is the set of read capabilities the linker needs from external
// persistence. Implementations may be backed by SQL, an in-memory map, or a
// network RPC; the linker is generic over any of them. All methods must
// respect ctx cancellation and perform no writes.
type Store interface {
	// FindParents returns up to 100 matching rows, newest first.
	FindParents(ctx context.Context, criteria FindParentsCriteria) ([]StoredRequestSummary, error)

	// FindCompactParent performs the response-content prefix match used by
	// the compact-continuation detector. beforeTimestamp, when non-nil,
	// bounds the search from above in addition to afterTimestamp's lower
	// bound.
	FindCompactParent(ctx context.Context, domain, summaryPrefix string, afterTimestamp time.Time, beforeTimestamp *time.Time) (*StoredRequestSummary, error)

	// FindTaskInvocations returns Task-tool invocations within
	// [referenceTime-window, referenceTime] for domain. promptFilter is an
	// optional optimisation hint; a store MAY use it only when it is exact
	// equality on prompt, never as a substitute for the caller's own
	// matching.
	FindTaskInvocations(ctx context.Context, domain string, referenceTime time.Time, window time.Duration, promptFilter *string) ([]TaskInvocation, error)

	// GetMaxSubtaskSequence returns the largest N such that a row with
	// branch_id = subtask_N exists in conversationID before beforeTimestamp,
	// or 0 if none exists.
	GetMaxSubtaskSequence(ctx context.Context, conversationID string, beforeTimestamp time.Time) (int, error)
}

// Clock supplies the linker's notion of "now" when a LinkingRequest omits
// its Timestamp. The linker never reads the wall clock directly; see
// DESIGN.md for why this indirection exists (deterministic tests).
type Clock interface {
	Now() time.Time
}
