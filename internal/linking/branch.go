package linking

import (
	"context"
	"fmt"
	"time"
)

// allocateBranch implements §4.7: a child of parent with no existing
// siblings inherits the parent's branch id; a child arriving after at least
// one sibling already exists forks onto a fresh branch_<unix-ms> id.
//
// This function must never be used to re-introduce read-modify-write branch
// detection in a write path (§5): it only reads, and the caller is
// responsible for persisting the result. Two concurrent children of the
// same parent may both observe zero siblings and both inherit the parent's
// branch id — that race is accepted by design, not a bug to fix here.
func allocateBranch(ctx context.Context, store Store, domain string, parent StoredRequestSummary, excludeRequestID string, requestTime time.Time) (string, error) {
	criteria := FindParentsCriteria{
		Domain:            domain,
		ParentMessageHash: &parent.CurrentMessageHash,
		ConversationID:    &parent.ConversationID,
		ExcludeRequestID:  nonEmptyPtr(excludeRequestID),
	}
	siblings, err := store.FindParents(ctx, criteria)
	if err != nil {
		return "", err
	}
	if len(siblings) == 0 {
		return parent.BranchID, nil
	}
	return fmt.Sprintf("branch_%d", requestTime.UnixMilli()), nil
}
