package linking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonsong-labs/conversation-linker/internal/linking"
)

func TestHashMessages_Deterministic(t *testing.T) {
	t.Parallel()
	messages := []linking.Message{userMessage("hi"), assistantMessage("hello")}
	h1, err := linking.HashMessages(messages)
	require.NoError(t, err)
	h2, err := linking.HashMessages(messages)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashMessages_EncodingInvariant(t *testing.T) {
	t.Parallel()
	asString, err := linking.HashMessages([]linking.Message{userMessage("hello")})
	require.NoError(t, err)
	asParts, err := linking.HashMessages([]linking.Message{
		{Role: linking.RoleUser, Content: linking.PartsContent([]linking.ContentPart{{Kind: linking.PartText, Text: "hello"}})},
	})
	require.NoError(t, err)
	assert.Equal(t, asString, asParts)
}

func TestHashMessages_IgnoresReminders(t *testing.T) {
	t.Parallel()
	plain, err := linking.HashMessages([]linking.Message{userMessage("do the thing")})
	require.NoError(t, err)
	withReminder, err := linking.HashMessages([]linking.Message{
		userMessage("do the thing<system-reminder>context the model should ignore</system-reminder>"),
	})
	require.NoError(t, err)
	assert.Equal(t, plain, withReminder)
}

func TestHashMessages_DifferentContentDiffers(t *testing.T) {
	t.Parallel()
	h1, err := linking.HashMessages([]linking.Message{userMessage("a")})
	require.NoError(t, err)
	h2, err := linking.HashMessages([]linking.Message{userMessage("b")})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashSystem_AbsentIsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, linking.HashSystem(nil))
}

func TestHashSystem_SameTextSameHash(t *testing.T) {
	t.Parallel()
	h1 := linking.HashSystem(linking.StringSystemPrompt("be helpful"))
	h2 := linking.HashSystem(linking.PartsSystemPrompt([]linking.SystemPromptPart{{Text: "be helpful"}}))
	require.NotNil(t, h1)
	require.NotNil(t, h2)
	assert.Equal(t, *h1, *h2)
}
