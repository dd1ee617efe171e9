// Package linkstore provides linking.Store implementations: an in-memory
// fixture store for tests and local use, a Postgres-backed store for
// production, and an optional Redis cache in front of parent resolution.
// New wraps whichever is built in observability.TracedStore for
// OpenTelemetry tracing.
package linkstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moonsong-labs/conversation-linker/internal/linking"
)

// Row is the full external-store row the core operates over (§3's
// StoredRequest), as held by MemoryStore. Production stores persist the
// same shape in Postgres; see postgres.go.
type Row struct {
	RequestID           string
	Domain              string
	Timestamp           time.Time
	ConversationID       string
	BranchID             string
	CurrentMessageHash   string
	ParentMessageHash    *string
	SystemHash           *string
	MessageCount         int
	IsSubtask            bool
	ParentTaskRequestID  *string
	TaskToolInvocations  []TaskToolInvocation
	ResponseText         string // first textual response-content block, used by compact-parent search
	RequestType          string // e.g. "inference"; filters compact-parent search
}

// TaskToolInvocation mirrors §3's task_tool_invocation entries.
type TaskToolInvocation struct {
	ID     string
	Name   string
	Prompt string // resolved from input.prompt or input.description
}

// MemoryStore is a mutex-guarded, in-memory linking.Store. It exists for
// tests and for running this service without Postgres; linear scans are
// fine at its intended scale.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Row // by request_id
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Row{}}
}

// Put inserts or replaces a row. Tests use this to seed fixtures; it is not
// part of the linking.Store interface.
func (s *MemoryStore) Put(row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.RequestID] = row
}

// Insert implements Writer, persisting a row built from a LinkResult.
func (s *MemoryStore) Insert(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Put(row)
	return nil
}

func (s *MemoryStore) snapshot() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out
}

func toSummary(r Row) linking.StoredRequestSummary {
	return linking.StoredRequestSummary{
		RequestID:          r.RequestID,
		ConversationID:     r.ConversationID,
		BranchID:           r.BranchID,
		CurrentMessageHash: r.CurrentMessageHash,
		SystemHash:         r.SystemHash,
		Timestamp:          r.Timestamp,
	}
}

// FindParents implements linking.Store.
func (s *MemoryStore) FindParents(ctx context.Context, criteria linking.FindParentsCriteria) ([]linking.StoredRequestSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var matched []Row
	for _, r := range s.snapshot() {
		if r.Domain != criteria.Domain {
			continue
		}
		if criteria.ExcludeRequestID != nil && r.RequestID == *criteria.ExcludeRequestID {
			continue
		}
		if criteria.ConversationID != nil && r.ConversationID != *criteria.ConversationID {
			continue
		}
		if criteria.MessageCount != nil && r.MessageCount != *criteria.MessageCount {
			continue
		}
		if criteria.CurrentMessageHash != nil && r.CurrentMessageHash != *criteria.CurrentMessageHash {
			continue
		}
		if criteria.ParentMessageHash != nil {
			if r.ParentMessageHash == nil || *r.ParentMessageHash != *criteria.ParentMessageHash {
				continue
			}
		}
		if criteria.SystemHash.Specified {
			if criteria.SystemHash.Value == nil {
				if r.SystemHash != nil {
					continue
				}
			} else {
				if r.SystemHash == nil || *r.SystemHash != *criteria.SystemHash.Value {
					continue
				}
			}
		}
		if criteria.BeforeTimestamp != nil && !r.Timestamp.Before(*criteria.BeforeTimestamp) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	if len(matched) > 100 {
		matched = matched[:100]
	}
	out := make([]linking.StoredRequestSummary, len(matched))
	for i, r := range matched {
		out[i] = toSummary(r)
	}
	return out, nil
}

// FindCompactParent implements linking.Store per §4.4.
func (s *MemoryStore) FindCompactParent(ctx context.Context, domain, summaryPrefix string, afterTimestamp time.Time, beforeTimestamp *time.Time) (*linking.StoredRequestSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var best *Row
	for _, r := range s.snapshot() {
		r := r
		if r.Domain != domain || r.RequestType != "inference" {
			continue
		}
		if r.Timestamp.Before(afterTimestamp) {
			continue
		}
		if beforeTimestamp != nil && !r.Timestamp.Before(*beforeTimestamp) {
			continue
		}
		lowered := strings.ToLower(strings.TrimSpace(r.ResponseText))
		if lowered == "" {
			continue
		}
		if !(strings.HasPrefix(lowered, summaryPrefix) || strings.HasPrefix(summaryPrefix, lowered)) {
			continue
		}
		if best == nil || r.Timestamp.After(best.Timestamp) {
			best = &r
		}
	}
	if best == nil {
		return nil, nil
	}
	summary := toSummary(*best)
	return &summary, nil
}

// FindTaskInvocations implements linking.Store per §4.5. promptFilter, when
// given, is applied as an exact-equality narrowing (the spec's only
// sanctioned store-side filter); callers must still verify equality
// themselves since the filter is only an optimisation hint.
func (s *MemoryStore) FindTaskInvocations(ctx context.Context, domain string, referenceTime time.Time, window time.Duration, promptFilter *string) ([]linking.TaskInvocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	windowStart := referenceTime.Add(-window)
	var out []linking.TaskInvocation
	for _, r := range s.snapshot() {
		if r.Domain != domain || len(r.TaskToolInvocations) == 0 {
			continue
		}
		if r.Timestamp.Before(windowStart) || r.Timestamp.After(referenceTime) {
			continue
		}
		for _, inv := range r.TaskToolInvocations {
			if inv.Name != "Task" {
				continue
			}
			if promptFilter != nil && inv.Prompt != *promptFilter {
				continue
			}
			out = append(out, linking.TaskInvocation{
				RequestID:      r.RequestID,
				ToolUseID:      inv.ID,
				Prompt:         inv.Prompt,
				Timestamp:      r.Timestamp,
				ConversationID: r.ConversationID,
			})
		}
	}
	return out, nil
}

// GetMaxSubtaskSequence implements linking.Store per §4.5/§4.7.
func (s *MemoryStore) GetMaxSubtaskSequence(ctx context.Context, conversationID string, beforeTimestamp time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	max := 0
	for _, r := range s.snapshot() {
		if r.ConversationID != conversationID || !r.Timestamp.Before(beforeTimestamp) {
			continue
		}
		if n, ok := parseSubtaskSequence(r.BranchID); ok && n > max {
			max = n
		}
	}
	return max, nil
}

func parseSubtaskSequence(branchID string) (int, bool) {
	const prefix = "subtask_"
	if !strings.HasPrefix(branchID, prefix) {
		return 0, false
	}
	n := 0
	digits := branchID[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

var _ linking.Store = (*MemoryStore)(nil)
var _ Writer = (*MemoryStore)(nil)
