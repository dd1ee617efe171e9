package linking

import (
	"context"
	"time"
)

// MatchKind records which §4.6 priority tier resolved a parent, purely for
// callers that want to log or assert on it; it never affects LinkResult.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchSummarizationRelaxed
	MatchMessageOnly
)

// resolveParentCriteria are the resolver's inputs, §4.6.
type resolveParentCriteria struct {
	Domain            string
	ParentMessageHash string
	SystemHash        *string
	ExcludeRequestID  string
	BeforeTimestamp   time.Time
	SystemPrompt      *SystemPrompt
}

// resolveParent runs the §4.6 priority chain: exact (hash+system) match,
// then summarization-relaxed (system hash ignored) when the incoming system
// prompt looks like a summarization prompt, then an unconditional
// message-only fallback (the same relaxed query, run at most once).
func resolveParent(ctx context.Context, store Store, c resolveParentCriteria) (*StoredRequestSummary, MatchKind, error) {
	exactCriteria := FindParentsCriteria{
		Domain:             c.Domain,
		CurrentMessageHash: &c.ParentMessageHash,
		ExcludeRequestID:   nonEmptyPtr(c.ExcludeRequestID),
		BeforeTimestamp:    &c.BeforeTimestamp,
	}
	if c.SystemHash != nil {
		exactCriteria.SystemHash = SystemHashEquals(*c.SystemHash)
	} else {
		exactCriteria.SystemHash = SystemHashIsNull()
	}

	candidates, err := store.FindParents(ctx, exactCriteria)
	if err != nil {
		return nil, MatchNone, err
	}
	if picked := pickNewest(candidates); picked != nil {
		return picked, MatchExact, nil
	}

	relaxedCriteria := exactCriteria
	relaxedCriteria.SystemHash = SystemHashOmitted

	relaxedTried := false
	if isSummarizationPrompt(c.SystemPrompt) {
		candidates, err = store.FindParents(ctx, relaxedCriteria)
		if err != nil {
			return nil, MatchNone, err
		}
		relaxedTried = true
		if picked := pickNewest(candidates); picked != nil {
			return picked, MatchSummarizationRelaxed, nil
		}
	}

	if !relaxedTried {
		candidates, err = store.FindParents(ctx, relaxedCriteria)
		if err != nil {
			return nil, MatchNone, err
		}
	}
	if picked := pickNewest(candidates); picked != nil {
		return picked, MatchMessageOnly, nil
	}

	return nil, MatchNone, nil
}

// pickNewest selects the candidate with the greatest timestamp, breaking
// ties by lexicographically greatest request_id, per §4.6.
func pickNewest(candidates []StoredRequestSummary) *StoredRequestSummary {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Timestamp.After(best.Timestamp) {
			best = c
			continue
		}
		if c.Timestamp.Equal(best.Timestamp) && c.RequestID > best.RequestID {
			best = c
		}
	}
	return &best
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
