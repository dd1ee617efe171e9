package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/moonsong-labs/conversation-linker/internal/linking"
)

type resultDoc struct {
	ConversationID      *string `json:"conversation_id"`
	ParentRequestID     *string `json:"parent_request_id"`
	BranchID            string  `json:"branch_id"`
	CurrentMessageHash  string  `json:"current_message_hash"`
	ParentMessageHash   *string `json:"parent_message_hash"`
	SystemHash          *string `json:"system_hash"`
	IsSubtask           bool    `json:"is_subtask"`
	ParentTaskRequestID *string `json:"parent_task_request_id"`
	SubtaskSequence     *int    `json:"subtask_sequence,omitempty"`
}

// EncodeLinkResult renders result as the JSON shape callers of linkctl and
// any future HTTP front-end receive.
func EncodeLinkResult(result linking.LinkResult) ([]byte, error) {
	doc := resultDoc{
		ConversationID:      result.ConversationID,
		ParentRequestID:     result.ParentRequestID,
		BranchID:            result.BranchID,
		CurrentMessageHash:  result.CurrentMessageHash,
		ParentMessageHash:   result.ParentMessageHash,
		SystemHash:          result.SystemHash,
		IsSubtask:           result.IsSubtask,
		ParentTaskRequestID: result.ParentTaskRequestID,
		SubtaskSequence:     result.SubtaskSequence,
	}
	return json.MarshalIndent(doc, "", "  ")
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
