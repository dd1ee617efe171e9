package linking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashMessages computes the 64-hex-character digest of a message list per
// §4.2: SHA-256 over the concatenation of each message's canonical
// serialization, in request order. System prompt changes never affect this
// hash (see HashSystem for the independent half of the split).
func HashMessages(messages []Message) (string, error) {
	normalized, err := NormalizeMessages(messages)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, m := range normalized {
		b.WriteString(m.Canonicalize())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// HashSystem computes the digest of a system prompt per §4.2, or nil when
// the prompt is absent or normalizes to nothing.
func HashSystem(prompt *SystemPrompt) *string {
	elements := NormalizeSystemPrompt(prompt)
	joined := strings.TrimSpace(strings.Join(elements, "\n"))
	if joined == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(joined))
	hash := hex.EncodeToString(sum[:])
	return &hash
}

// isSummarizationPrompt implements the §4.6 heuristic: the normalized
// system prompt text contains "summariz" case-insensitively.
func isSummarizationPrompt(prompt *SystemPrompt) bool {
	elements := NormalizeSystemPrompt(prompt)
	joined := strings.ToLower(strings.Join(elements, "\n"))
	return strings.Contains(joined, "summariz")
}
