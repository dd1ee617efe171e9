package linking

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizedPart is one canonicalized, hashable element of a normalized
// message. Kind is always PartText, PartToolUse, or PartToolResult — images
// are dropped during normalization (rule 5 of §4.1) and never appear here.
type NormalizedPart struct {
	Kind PartKind

	Text string // PartText

	ToolUseID    string // PartToolUse
	ToolUseName  string
	ToolUseInput map[string]any

	ToolResultUseID  string // PartToolResult
	ToolResultString string // canonicalized content, ready to hash
}

// NormalizedMessage is a message after the §4.1 normalization rules have
// been applied. Its canonical serialization (Canonicalize) is what feeds
// the hasher.
type NormalizedMessage struct {
	Role  Role
	Parts []NormalizedPart
}

func normalizeText(s string) string {
	s = StripReminders(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// NormalizeMessages applies the §4.1 rules to every message in order.
// It fails with ErrEmptyMessages when given a zero-length list.
func NormalizeMessages(messages []Message) ([]NormalizedMessage, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyMessages
	}
	out := make([]NormalizedMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, normalizeMessage(m))
	}
	return out, nil
}

func normalizeMessage(m Message) NormalizedMessage {
	// Rule 1: string content becomes a one-element [text{S}] sequence.
	rawParts := m.Content.Parts
	if m.Content.Str != nil {
		rawParts = []ContentPart{{Kind: PartText, Text: *m.Content.Str}}
	}

	// Rules 2-3: strip reminders (discarding emptied text parts) and trim
	// surviving text parts.
	trimmed := make([]ContentPart, 0, len(rawParts))
	for _, p := range rawParts {
		if p.Kind == PartText {
			normalized := normalizeText(p.Text)
			if normalized == "" {
				continue
			}
			p.Text = normalized
		}
		trimmed = append(trimmed, p)
	}

	// Rule 4: dedup consecutive tool_use parts sharing an id, and
	// consecutive tool_result parts sharing a tool_use_id. "Consecutive"
	// means adjacent in the part list.
	deduped := make([]ContentPart, 0, len(trimmed))
	for i, p := range trimmed {
		if i > 0 {
			prev := trimmed[i-1]
			if p.Kind == PartToolUse && prev.Kind == PartToolUse &&
				p.ToolUse != nil && prev.ToolUse != nil && p.ToolUse.ID == prev.ToolUse.ID {
				continue
			}
			if p.Kind == PartToolResult && prev.Kind == PartToolResult &&
				p.ToolResult != nil && prev.ToolResult != nil && p.ToolResult.ToolUseID == prev.ToolResult.ToolUseID {
				continue
			}
		}
		deduped = append(deduped, p)
	}

	// Rule 5: drop images and any other non-hashable part kind.
	out := make([]NormalizedPart, 0, len(deduped))
	for _, p := range deduped {
		switch p.Kind {
		case PartText:
			out = append(out, NormalizedPart{Kind: PartText, Text: p.Text})
		case PartToolUse:
			if p.ToolUse == nil {
				continue
			}
			out = append(out, NormalizedPart{
				Kind:         PartToolUse,
				ToolUseID:    p.ToolUse.ID,
				ToolUseName:  p.ToolUse.Name,
				ToolUseInput: p.ToolUse.Input,
			})
		case PartToolResult:
			if p.ToolResult == nil {
				continue
			}
			out = append(out, NormalizedPart{
				Kind:             PartToolResult,
				ToolResultUseID:  p.ToolResult.ToolUseID,
				ToolResultString: canonicalToolResultContent(p.ToolResult.Content),
			})
		case PartImage:
			// dropped
		}
	}

	// Rule 6: a message with zero remaining parts is retained — its role
	// alone still contributes to the hash.
	return NormalizedMessage{Role: m.Role, Parts: out}
}

// canonicalToolResultContent renders a tool_result's content to a single
// hashable string: a plain string is normalized directly; a structured
// (block) content concatenates its normalized text blocks with "\n",
// dropping image blocks, by the same text rules §4.1 applies elsewhere.
// The spec does not define this nested case further; this is a documented
// design decision (see DESIGN.md).
func canonicalToolResultContent(c ToolResultContent) string {
	if c.Str != nil {
		return normalizeText(*c.Str)
	}
	texts := make([]string, 0, len(c.Blocks))
	for _, b := range c.Blocks {
		if b.Kind != PartText {
			continue
		}
		if t := normalizeText(b.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}

// canonicalJSON sorts object keys lexicographically and emits no
// whitespace. encoding/json already serializes map[string]any keys in
// sorted order and produces compact output by default, so a plain Marshal
// satisfies the contract.
func canonicalJSON(v map[string]any) string {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		// Inputs are caller-constructed tool_use payloads; a marshal
		// failure here means non-JSON-able Go values were placed in them,
		// which is a caller bug, not a runtime condition to recover from.
		panic(fmt.Sprintf("linking: tool_use input not JSON-serializable: %v", err))
	}
	return string(b)
}

// Canonicalize renders a normalized message to the byte sequence fed to the
// hasher: role + "\n" + for each part i (0-based): "[i]" + kind + ":" +
// payload + "\n".
func (m NormalizedMessage) Canonicalize() string {
	var b strings.Builder
	b.WriteString(string(m.Role))
	b.WriteByte('\n')
	for i, p := range m.Parts {
		fmt.Fprintf(&b, "[%d]%s:%s\n", i, p.Kind, canonicalizePart(p))
	}
	return b.String()
}

func canonicalizePart(p NormalizedPart) string {
	switch p.Kind {
	case PartText:
		return p.Text
	case PartToolUse:
		return p.ToolUseID + "|" + p.ToolUseName + "|" + canonicalJSON(p.ToolUseInput)
	case PartToolResult:
		return p.ToolResultUseID + "|" + p.ToolResultString
	default:
		return ""
	}
}

// NormalizeSystemPrompt flattens a system prompt to its ordered text
// elements, applying the §4.1 strip/trim rules (steps 2-3) to each. Cache
// control markers are accepted but ignored. A nil or absent prompt yields
// no elements.
func NormalizeSystemPrompt(prompt *SystemPrompt) []string {
	if prompt == nil || !prompt.Present {
		return nil
	}
	var raw []string
	if prompt.Str != nil {
		raw = []string{*prompt.Str}
	} else {
		for _, p := range prompt.Parts {
			raw = append(raw, p.Text)
		}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if t := normalizeText(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
