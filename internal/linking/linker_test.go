package linking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonsong-labs/conversation-linker/internal/linking"
	"github.com/moonsong-labs/conversation-linker/internal/linkstore"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func userMessage(text string) linking.Message {
	return linking.Message{Role: linking.RoleUser, Content: linking.StringContent(text)}
}

func assistantMessage(text string) linking.Message {
	return linking.Message{Role: linking.RoleAssistant, Content: linking.StringContent(text)}
}

func TestLink_FreshConversation(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	linker := linking.New(store, fixedClock{time.Now()})

	result, err := linker.Link(context.Background(), linking.LinkingRequest{
		Domain:   "d1",
		Messages: []linking.Message{userMessage("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "main", result.BranchID)
	assert.Nil(t, result.ConversationID)
	assert.Nil(t, result.ParentRequestID)
	assert.Nil(t, result.ParentMessageHash)
	assert.NotEmpty(t, result.CurrentMessageHash)
}

func TestLink_EmptyMessages(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	linker := linking.New(store, fixedClock{time.Now()})

	_, err := linker.Link(context.Background(), linking.LinkingRequest{Domain: "d1"})
	assert.ErrorIs(t, err, linking.ErrEmptyMessages)
}

func TestLink_FollowUpOnMain(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	now := time.Now()
	linker := linking.New(store, fixedClock{now})

	parentMsgs := []linking.Message{userMessage("hi")}
	h1, err := linking.HashMessages(parentMsgs)
	require.NoError(t, err)

	store.Put(linkstore.Row{
		RequestID:          "p1",
		Domain:             "d1",
		Timestamp:          now.Add(-time.Minute),
		ConversationID:     "conv-1",
		BranchID:           "main",
		CurrentMessageHash: h1,
		MessageCount:       1,
		RequestType:        "inference",
	})

	result, err := linker.Link(context.Background(), linking.LinkingRequest{
		Domain:    "d1",
		RequestID: "r2",
		Timestamp: now,
		Messages: []linking.Message{
			userMessage("hi"),
			assistantMessage("hi back"),
			userMessage("follow up"),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.ConversationID)
	assert.Equal(t, "conv-1", *result.ConversationID)
	require.NotNil(t, result.ParentRequestID)
	assert.Equal(t, "p1", *result.ParentRequestID)
	assert.Equal(t, "main", result.BranchID)
	require.NotNil(t, result.ParentMessageHash)
	assert.Equal(t, h1, *result.ParentMessageHash)
}

func TestLink_Branching(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	now := time.Now()
	linker := linking.New(store, fixedClock{now})

	parentMsgs := []linking.Message{userMessage("hi")}
	h1, err := linking.HashMessages(parentMsgs)
	require.NoError(t, err)

	store.Put(linkstore.Row{
		RequestID:          "p1",
		Domain:             "d1",
		Timestamp:          now.Add(-2 * time.Minute),
		ConversationID:     "conv-1",
		BranchID:           "main",
		CurrentMessageHash: h1,
		MessageCount:       1,
		RequestType:        "inference",
	})
	// An existing child of p1 on "main" means the next child must fork.
	existingChildMsgs := []linking.Message{userMessage("hi"), assistantMessage("hi back"), userMessage("first reply")}
	h1Child, err := linking.HashMessages(existingChildMsgs)
	require.NoError(t, err)
	store.Put(linkstore.Row{
		RequestID:          "c1",
		Domain:             "d1",
		Timestamp:          now.Add(-time.Minute),
		ConversationID:     "conv-1",
		BranchID:           "main",
		CurrentMessageHash: h1Child,
		ParentMessageHash:  strp(h1),
		MessageCount:       3,
		RequestType:        "inference",
	})

	result, err := linker.Link(context.Background(), linking.LinkingRequest{
		Domain:    "d1",
		RequestID: "r3",
		Timestamp: now,
		Messages: []linking.Message{
			userMessage("hi"),
			assistantMessage("hi back"),
			userMessage("second reply"),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.ConversationID)
	assert.Equal(t, "conv-1", *result.ConversationID)
	assert.Regexp(t, `^branch_\d+$`, result.BranchID)
}

func TestLink_CompactContinuation(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	now := time.Now()
	linker := linking.New(store, fixedClock{now})

	summary := "We discussed the refactor and agreed on the plan."
	store.Put(linkstore.Row{
		RequestID:          "p1",
		Domain:             "d1",
		Timestamp:          now.Add(-10 * time.Minute),
		ConversationID:     "conv-1",
		BranchID:           "main",
		CurrentMessageHash: "H",
		MessageCount:       4,
		RequestType:        "inference",
		ResponseText:       summary,
	})

	text := linking.CompactSentinel + "\n\nThe conversation is summarized below:\n" + summary + "\nPlease continue from here."

	result, err := linker.Link(context.Background(), linking.LinkingRequest{
		Domain:    "d1",
		RequestID: "r2",
		Timestamp: now,
		Messages:  []linking.Message{userMessage(text)},
	})
	require.NoError(t, err)
	require.NotNil(t, result.ConversationID)
	assert.Equal(t, "conv-1", *result.ConversationID)
	require.NotNil(t, result.ParentRequestID)
	assert.Equal(t, "p1", *result.ParentRequestID)
	assert.Regexp(t, `^compact_\d{6}$`, result.BranchID)
	require.NotNil(t, result.ParentMessageHash)
	assert.Equal(t, "H", *result.ParentMessageHash)
}

func TestLink_CompactMiss_IsFreshRoot(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	now := time.Now()
	linker := linking.New(store, fixedClock{now})

	text := linking.CompactSentinel + "\n\nThe conversation is summarized below:\nnever seen before\nPlease continue from here."
	result, err := linker.Link(context.Background(), linking.LinkingRequest{
		Domain:    "d1",
		Timestamp: now,
		Messages:  []linking.Message{userMessage(text)},
	})
	require.NoError(t, err)
	assert.Equal(t, "main", result.BranchID)
	assert.Nil(t, result.ConversationID)
	assert.False(t, result.IsSubtask)
}

func TestLink_Subtask(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	now := time.Now()
	linker := linking.New(store, fixedClock{now})

	prompt := "Investigate the failing test and report back."
	store.Put(linkstore.Row{
		RequestID:      "p1",
		Domain:         "d1",
		Timestamp:      now.Add(-5 * time.Second),
		ConversationID: "conv-1",
		BranchID:       "main",
		CurrentMessageHash: "H",
		MessageCount:       2,
		RequestType:        "inference",
		TaskToolInvocations: []linkstore.TaskToolInvocation{
			{ID: "tu_1", Name: "Task", Prompt: prompt},
		},
	})

	result, err := linker.Link(context.Background(), linking.LinkingRequest{
		Domain:    "d1",
		Timestamp: now,
		Messages:  []linking.Message{userMessage(prompt)},
	})
	require.NoError(t, err)
	require.NotNil(t, result.ConversationID)
	assert.Equal(t, "conv-1", *result.ConversationID)
	assert.True(t, result.IsSubtask)
	require.NotNil(t, result.ParentTaskRequestID)
	assert.Equal(t, "p1", *result.ParentTaskRequestID)
	assert.Equal(t, "subtask_1", result.BranchID)
	require.NotNil(t, result.SubtaskSequence)
	assert.Equal(t, 1, *result.SubtaskSequence)
}

func TestLink_SummarizationRelaxation(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	now := time.Now()
	linker := linking.New(store, fixedClock{now})

	parentMsgs := []linking.Message{userMessage("hi")}
	h1, err := linking.HashMessages(parentMsgs)
	require.NoError(t, err)

	// Parent row was stored under the normal system prompt (non-nil hash).
	origSystemHash := "orig-system-hash"
	store.Put(linkstore.Row{
		RequestID:          "p1",
		Domain:             "d1",
		Timestamp:          now.Add(-time.Minute),
		ConversationID:     "conv-1",
		BranchID:           "main",
		CurrentMessageHash: h1,
		SystemHash:         &origSystemHash,
		MessageCount:       1,
		RequestType:        "inference",
	})

	result, err := linker.Link(context.Background(), linking.LinkingRequest{
		Domain:       "d1",
		Timestamp:    now,
		SystemPrompt: linking.StringSystemPrompt("You are a summarization assistant. Summarize the conversation so far."),
		Messages: []linking.Message{
			userMessage("hi"),
			assistantMessage("hi back"),
			userMessage("summarize please"),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.ConversationID)
	assert.Equal(t, "conv-1", *result.ConversationID)
	require.NotNil(t, result.ParentRequestID)
	assert.Equal(t, "p1", *result.ParentRequestID)
}

func strp(s string) *string { return &s }
