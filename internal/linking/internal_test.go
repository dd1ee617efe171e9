package linking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal, hand-rolled Store used only to unit-test the
// unexported per-stage helpers in this package. Cross-stage behavior is
// covered end-to-end in linker_test.go against linkstore.MemoryStore.
type fakeStore struct {
	parents           []StoredRequestSummary
	compactParent     *StoredRequestSummary
	taskInvocations   []TaskInvocation
	maxSubtaskSeq     int
}

func (f *fakeStore) FindParents(ctx context.Context, criteria FindParentsCriteria) ([]StoredRequestSummary, error) {
	return f.parents, nil
}

func (f *fakeStore) FindCompactParent(ctx context.Context, domain, summaryPrefix string, after time.Time, before *time.Time) (*StoredRequestSummary, error) {
	return f.compactParent, nil
}

func (f *fakeStore) FindTaskInvocations(ctx context.Context, domain string, referenceTime time.Time, window time.Duration, promptFilter *string) ([]TaskInvocation, error) {
	return f.taskInvocations, nil
}

func (f *fakeStore) GetMaxSubtaskSequence(ctx context.Context, conversationID string, beforeTimestamp time.Time) (int, error) {
	return f.maxSubtaskSeq, nil
}

func userMessage(text string) Message {
	return Message{Role: RoleUser, Content: StringContent(text)}
}

func assistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: StringContent(text)}
}

func TestExtractSummaryRegion_NoStartMarker(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", extractSummaryRegion("no markers here"))
}

func TestExtractSummaryRegion_BetweenMarkers(t *testing.T) {
	t.Parallel()
	text := "prefix The conversation is summarized below: the summary text Please continue now"
	assert.Equal(t, " the summary text ", extractSummaryRegion(text))
}

func TestNormalizeSummaryRegion_CollapsesWhitespaceAndLowercases(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "we did a thing", normalizeSummaryRegion("  We   did\n\na  THING  "))
}

func TestCompactBranchID_FormatsHHMMSS(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "compact_030405", compactBranchID(ts))
}

func TestResolveCompactContinuation_EmptySummaryIsMiss(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	match, err := resolveCompactContinuation(context.Background(), store, "d1", CompactSentinel, time.Now())
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolveCompactContinuation_Hit(t *testing.T) {
	t.Parallel()
	store := &fakeStore{compactParent: &StoredRequestSummary{RequestID: "p1", ConversationID: "c1", CurrentMessageHash: "H"}}
	text := CompactSentinel + "\n\nThe conversation is summarized below:\nsome summary\nPlease continue"
	match, err := resolveCompactContinuation(context.Background(), store, "d1", text, time.Now())
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "p1", match.Parent.RequestID)
	assert.Regexp(t, `^compact_\d{6}$`, match.BranchID)
}

func TestEligibleForSubtaskMatch_RequiresExactlyOneUserMessage(t *testing.T) {
	t.Parallel()
	_, ok := eligibleForSubtaskMatch([]Message{userMessage("a"), userMessage("b")})
	assert.False(t, ok)

	_, ok = eligibleForSubtaskMatch([]Message{assistantMessage("a")})
	assert.False(t, ok)

	text, ok := eligibleForSubtaskMatch([]Message{userMessage("  do it  ")})
	assert.True(t, ok)
	assert.Equal(t, "do it", text)
}

func TestEligibleForSubtaskMatch_ReminderOnlyIsIneligible(t *testing.T) {
	t.Parallel()
	_, ok := eligibleForSubtaskMatch([]Message{userMessage("<system-reminder>x</system-reminder>")})
	assert.False(t, ok)
}

func TestResolveSubtask_NoInvocationsIsMiss(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	match, err := resolveSubtask(context.Background(), store, "d1", "do it", time.Now(), SubtaskWindow)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolveSubtask_AssignsNextSequence(t *testing.T) {
	t.Parallel()
	now := time.Now()
	store := &fakeStore{
		taskInvocations: []TaskInvocation{
			{RequestID: "p1", Prompt: "do it", Timestamp: now.Add(-5 * time.Second), ConversationID: "c1"},
		},
		maxSubtaskSeq: 2,
	}
	match, err := resolveSubtask(context.Background(), store, "d1", "do it", now, SubtaskWindow)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "p1", match.ParentTaskRequestID)
	assert.Equal(t, 3, match.Sequence)
	assert.Equal(t, "subtask_3", match.BranchID)
}

func TestResolveSubtask_OutsideWindowIsMiss(t *testing.T) {
	t.Parallel()
	now := time.Now()
	store := &fakeStore{
		taskInvocations: []TaskInvocation{
			{RequestID: "p1", Prompt: "do it", Timestamp: now.Add(-SubtaskWindow - time.Second), ConversationID: "c1"},
		},
	}
	match, err := resolveSubtask(context.Background(), store, "d1", "do it", now, SubtaskWindow)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolveParent_ExactMatchWins(t *testing.T) {
	t.Parallel()
	now := time.Now()
	store := &fakeStore{parents: []StoredRequestSummary{{RequestID: "p1", Timestamp: now}}}
	parent, kind, err := resolveParent(context.Background(), store, resolveParentCriteria{
		Domain: "d1", ParentMessageHash: "H", BeforeTimestamp: now.Add(time.Second),
	})
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, MatchExact, kind)
}

func TestResolveParent_NoneFound(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	parent, kind, err := resolveParent(context.Background(), store, resolveParentCriteria{
		Domain: "d1", ParentMessageHash: "H", BeforeTimestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, parent)
	assert.Equal(t, MatchNone, kind)
}

func TestPickNewest_TiesBreakOnRequestID(t *testing.T) {
	t.Parallel()
	ts := time.Now()
	best := pickNewest([]StoredRequestSummary{
		{RequestID: "a", Timestamp: ts},
		{RequestID: "z", Timestamp: ts},
		{RequestID: "m", Timestamp: ts.Add(-time.Hour)},
	})
	require.NotNil(t, best)
	assert.Equal(t, "z", best.RequestID)
}

func TestAllocateBranch_InheritsWhenNoSiblings(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	branch, err := allocateBranch(context.Background(), store, "d1", StoredRequestSummary{BranchID: "main"}, "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestAllocateBranch_ForksWhenSiblingExists(t *testing.T) {
	t.Parallel()
	store := &fakeStore{parents: []StoredRequestSummary{{RequestID: "sibling"}}}
	branch, err := allocateBranch(context.Background(), store, "d1", StoredRequestSummary{BranchID: "main"}, "", time.Now())
	require.NoError(t, err)
	assert.Regexp(t, `^branch_\d+$`, branch)
}
