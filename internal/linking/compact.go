package linking

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CompactSentinel is the fixed prologue that marks a compact-continuation
// request (§4.4).
const CompactSentinel = "This session is being continued from a previous conversation that ran out of context."

const summaryStartMarker = "The conversation is summarized below:"
const summaryEndMarker = "Please continue"

// CompactSearchWindow bounds how far back Store.FindCompactParent looks for the
// summarized request. The spec calls this "a bounded time window" without
// naming a value; 24h is a generous, documented choice (see DESIGN.md) —
// wide enough to survive a weekend gap, narrow enough to keep the store
// query cheap.
const CompactSearchWindow = 24 * time.Hour

var whitespaceRun = regexp.MustCompile(`\s+`)

// IsCompactContinuation reports whether a single-message request's
// (already-normalized) text begins the compact-continuation sentinel.
func IsCompactContinuation(normalizedText string) bool {
	return strings.HasPrefix(normalizedText, CompactSentinel)
}

// extractSummaryRegion extracts the substring between the literal summary
// start marker and the next occurrence of the end marker (or end of text),
// per §4.4 step 1.
func extractSummaryRegion(text string) string {
	startIdx := strings.Index(text, summaryStartMarker)
	if startIdx < 0 {
		return ""
	}
	rest := text[startIdx+len(summaryStartMarker):]
	if endIdx := strings.Index(rest, summaryEndMarker); endIdx >= 0 {
		return rest[:endIdx]
	}
	return rest
}

// normalizeSummaryRegion lowercases the region and collapses internal
// whitespace runs to a single space, then trims, per §4.4 step 2.
func normalizeSummaryRegion(region string) string {
	collapsed := whitespaceRun.ReplaceAllString(region, " ")
	return strings.TrimSpace(strings.ToLower(collapsed))
}

// compactMatch is the result of a successful compact-continuation lookup.
type compactMatch struct {
	Parent   StoredRequestSummary
	BranchID string
}

// resolveCompactContinuation runs the §4.4 procedure: extract and normalize
// the embedded summary, then ask the store for the most recent matching
// compact parent within CompactSearchWindow. Returns (nil, nil) on a miss —
// the caller then treats the request as a fresh conversation root.
func resolveCompactContinuation(ctx context.Context, store Store, domain, normalizedText string, requestTime time.Time) (*compactMatch, error) {
	region := extractSummaryRegion(normalizedText)
	normalizedSummary := normalizeSummaryRegion(region)
	if normalizedSummary == "" {
		return nil, nil
	}
	after := requestTime.Add(-CompactSearchWindow)
	before := requestTime
	parent, err := store.FindCompactParent(ctx, domain, normalizedSummary, after, &before)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}
	return &compactMatch{
		Parent:   *parent,
		BranchID: compactBranchID(requestTime),
	}, nil
}

// compactBranchID derives compact_<HHMMSS> (UTC, zero-padded, no
// separators) from the request timestamp, per I3 and §4.4 step 4. The spec
// leaves same-second collisions unresolved; this implementation does not
// disambiguate them (see DESIGN.md and §9's Open Questions).
func compactBranchID(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("compact_%02d%02d%02d", u.Hour(), u.Minute(), u.Second())
}
