package linking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moonsong-labs/conversation-linker/internal/linking"
)

func TestStripReminders_RemovesCompletePair(t *testing.T) {
	t.Parallel()
	got := linking.StripReminders("before <system-reminder>hidden</system-reminder> after")
	assert.Equal(t, "before after", got)
}

func TestStripReminders_CaseInsensitiveAndMultiline(t *testing.T) {
	t.Parallel()
	got := linking.StripReminders("x <SYSTEM-REMINDER>\nline one\nline two\n</SYSTEM-REMINDER> y")
	assert.Equal(t, "x y", got)
}

func TestStripReminders_LeavesUnclosedTagAlone(t *testing.T) {
	t.Parallel()
	input := "before <system-reminder>never closed"
	assert.Equal(t, input, linking.StripReminders(input))
}

func TestStripReminders_RemovesMultipleSpans(t *testing.T) {
	t.Parallel()
	got := linking.StripReminders("a<system-reminder>1</system-reminder>b<system-reminder>2</system-reminder>c")
	assert.Equal(t, "abc", got)
}

func TestStripReminders_NonStringYieldsEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", linking.StripReminders(42))
}

func TestContainsReminder(t *testing.T) {
	t.Parallel()
	assert.True(t, linking.ContainsReminder("<system-reminder>x</system-reminder>"))
	assert.False(t, linking.ContainsReminder("<system-reminder>unterminated"))
	assert.False(t, linking.ContainsReminder(123))
}
