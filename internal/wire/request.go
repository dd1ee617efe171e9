// Package wire decodes the JSON request/response shapes linkctl and any
// future HTTP front-end exchange with callers into and out of the
// linking package's domain types. The linking package itself stays free of
// encoding concerns; this is the only place in the module that knows what a
// LinkingRequest looks like on the wire.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/moonsong-labs/conversation-linker/internal/linking"
)

type requestDoc struct {
	Domain       string          `json:"domain"`
	RequestID    string          `json:"request_id"`
	Messages     []messageDoc    `json:"messages"`
	SystemPrompt json.RawMessage `json:"system_prompt,omitempty"`
	MessageCount int             `json:"message_count,omitempty"`
	Timestamp    string          `json:"timestamp,omitempty"`
}

type messageDoc struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type partDoc struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    json.RawMessage `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// DecodeLinkingRequest parses data into a linking.LinkingRequest. Content
// fields accept either a plain string or an Anthropic-style array of typed
// parts, matching §1's wire description.
func DecodeLinkingRequest(data []byte) (linking.LinkingRequest, error) {
	var doc requestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return linking.LinkingRequest{}, fmt.Errorf("decode request: %w", err)
	}

	req := linking.LinkingRequest{
		Domain:       doc.Domain,
		RequestID:    doc.RequestID,
		MessageCount: doc.MessageCount,
	}
	if doc.Timestamp != "" {
		ts, err := parseTimestamp(doc.Timestamp)
		if err != nil {
			return linking.LinkingRequest{}, err
		}
		req.Timestamp = ts
	}

	for _, m := range doc.Messages {
		content, err := decodeContent(m.Content)
		if err != nil {
			return linking.LinkingRequest{}, err
		}
		req.Messages = append(req.Messages, linking.Message{
			Role:    linking.Role(m.Role),
			Content: content,
		})
	}

	if len(doc.SystemPrompt) > 0 && string(doc.SystemPrompt) != "null" {
		sp, err := decodeSystemPrompt(doc.SystemPrompt)
		if err != nil {
			return linking.LinkingRequest{}, err
		}
		req.SystemPrompt = sp
	}

	return req, nil
}

func decodeContent(raw json.RawMessage) (linking.MessageContent, error) {
	if len(raw) == 0 {
		return linking.MessageContent{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return linking.StringContent(s), nil
	}

	var docs []partDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return linking.MessageContent{}, fmt.Errorf("decode content: %w", err)
	}
	parts := make([]linking.ContentPart, 0, len(docs))
	for _, d := range docs {
		part, err := decodePart(d)
		if err != nil {
			return linking.MessageContent{}, err
		}
		parts = append(parts, part)
	}
	return linking.PartsContent(parts), nil
}

func decodePart(d partDoc) (linking.ContentPart, error) {
	switch d.Type {
	case "text":
		return linking.ContentPart{Kind: linking.PartText, Text: d.Text}, nil
	case "image":
		return linking.ContentPart{Kind: linking.PartImage, ImageRef: string(d.Source)}, nil
	case "tool_use":
		return linking.ContentPart{
			Kind: linking.PartToolUse,
			ToolUse: &linking.ToolUse{
				ID:    d.ID,
				Name:  d.Name,
				Input: d.Input,
			},
		}, nil
	case "tool_result":
		content, err := decodeToolResultContent(d.Content)
		if err != nil {
			return linking.ContentPart{}, err
		}
		return linking.ContentPart{
			Kind: linking.PartToolResult,
			ToolResult: &linking.ToolResult{
				ToolUseID: d.ToolUseID,
				Content:   content,
			},
		}, nil
	default:
		return linking.ContentPart{}, fmt.Errorf("decode content: unknown part type %q", d.Type)
	}
}

func decodeToolResultContent(raw json.RawMessage) (linking.ToolResultContent, error) {
	if len(raw) == 0 {
		return linking.ToolResultContent{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return linking.ToolResultContent{Str: &s}, nil
	}
	var docs []partDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return linking.ToolResultContent{}, fmt.Errorf("decode tool_result content: %w", err)
	}
	blocks := make([]linking.ToolResultBlock, 0, len(docs))
	for _, d := range docs {
		switch d.Type {
		case "text":
			blocks = append(blocks, linking.ToolResultBlock{Kind: linking.PartText, Text: d.Text})
		case "image":
			blocks = append(blocks, linking.ToolResultBlock{Kind: linking.PartImage})
		default:
			return linking.ToolResultContent{}, fmt.Errorf("decode tool_result content: unknown block type %q", d.Type)
		}
	}
	return linking.ToolResultContent{Blocks: blocks}, nil
}

func decodeSystemPrompt(raw json.RawMessage) (*linking.SystemPrompt, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return linking.StringSystemPrompt(s), nil
	}
	var docs []struct {
		Text         string `json:"text"`
		CacheControl string `json:"cache_control,omitempty"`
	}
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode system_prompt: %w", err)
	}
	parts := make([]linking.SystemPromptPart, len(docs))
	for i, d := range docs {
		parts[i] = linking.SystemPromptPart{Text: d.Text, CacheControl: d.CacheControl}
	}
	return linking.PartsSystemPrompt(parts), nil
}
