package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moonsong-labs/conversation-linker/internal/linking"
)

var tracer = otel.Tracer("github.com/moonsong-labs/conversation-linker/internal/observability")

// TracedStore wraps a linking.Store and emits an OTel span per call, so a
// slow Postgres query or a cold Redis cache shows up in traces next to the
// request that triggered it.
type TracedStore struct {
	inner linking.Store
}

// NewTracedStore wraps inner so every Store method runs inside its own span.
func NewTracedStore(inner linking.Store) *TracedStore {
	return &TracedStore{inner: inner}
}

func (t *TracedStore) FindParents(ctx context.Context, criteria linking.FindParentsCriteria) ([]linking.StoredRequestSummary, error) {
	ctx, span := tracer.Start(ctx, "linker.find_parents", trace.WithAttributes(
		attribute.String("domain", criteria.Domain),
	))
	defer span.End()
	out, err := t.inner.FindParents(ctx, criteria)
	recordOutcome(span, err)
	return out, err
}

func (t *TracedStore) FindCompactParent(ctx context.Context, domain, summaryPrefix string, afterTimestamp time.Time, beforeTimestamp *time.Time) (*linking.StoredRequestSummary, error) {
	ctx, span := tracer.Start(ctx, "linker.find_compact_parent", trace.WithAttributes(
		attribute.String("domain", domain),
	))
	defer span.End()
	out, err := t.inner.FindCompactParent(ctx, domain, summaryPrefix, afterTimestamp, beforeTimestamp)
	recordOutcome(span, err)
	return out, err
}

func (t *TracedStore) FindTaskInvocations(ctx context.Context, domain string, referenceTime time.Time, window time.Duration, promptFilter *string) ([]linking.TaskInvocation, error) {
	ctx, span := tracer.Start(ctx, "linker.find_task_invocations", trace.WithAttributes(
		attribute.String("domain", domain),
	))
	defer span.End()
	out, err := t.inner.FindTaskInvocations(ctx, domain, referenceTime, window, promptFilter)
	recordOutcome(span, err)
	return out, err
}

func (t *TracedStore) GetMaxSubtaskSequence(ctx context.Context, conversationID string, beforeTimestamp time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "linker.get_max_subtask_sequence", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
	))
	defer span.End()
	out, err := t.inner.GetMaxSubtaskSequence(ctx, conversationID, beforeTimestamp)
	recordOutcome(span, err)
	return out, err
}

func recordOutcome(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

var _ linking.Store = (*TracedStore)(nil)
