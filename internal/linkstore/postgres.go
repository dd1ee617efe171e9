package linkstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moonsong-labs/conversation-linker/internal/linking"
)

// PostgresStore is a pgx-backed linking.Store. The schema it expects is
// created by Migrate; see schema.go.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresStore opens a pool against dsn and verifies connectivity.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// FindParents implements linking.Store over the linked_requests table,
// building a WHERE clause from whichever criteria fields are set.
func (s *PostgresStore) FindParents(ctx context.Context, criteria linking.FindParentsCriteria) ([]linking.StoredRequestSummary, error) {
	var b strings.Builder
	b.WriteString(`SELECT request_id, conversation_id, branch_id, current_message_hash, system_hash, "timestamp" FROM linked_requests WHERE domain = $1`)
	args := []any{criteria.Domain}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if criteria.ExcludeRequestID != nil {
		b.WriteString(" AND request_id <> " + arg(*criteria.ExcludeRequestID))
	}
	if criteria.ConversationID != nil {
		b.WriteString(" AND conversation_id = " + arg(*criteria.ConversationID))
	}
	if criteria.MessageCount != nil {
		b.WriteString(" AND message_count = " + arg(*criteria.MessageCount))
	}
	if criteria.CurrentMessageHash != nil {
		b.WriteString(" AND current_message_hash = " + arg(*criteria.CurrentMessageHash))
	}
	if criteria.ParentMessageHash != nil {
		b.WriteString(" AND parent_message_hash = " + arg(*criteria.ParentMessageHash))
	}
	if criteria.SystemHash.Specified {
		if criteria.SystemHash.Value == nil {
			b.WriteString(" AND system_hash IS NULL")
		} else {
			b.WriteString(" AND system_hash = " + arg(*criteria.SystemHash.Value))
		}
	}
	if criteria.BeforeTimestamp != nil {
		b.WriteString(` AND "timestamp" < ` + arg(*criteria.BeforeTimestamp))
	}
	b.WriteString(` ORDER BY "timestamp" DESC LIMIT 100`)

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find parents: %w", err)
	}
	defer rows.Close()

	var out []linking.StoredRequestSummary
	for rows.Next() {
		var r linking.StoredRequestSummary
		if err := rows.Scan(&r.RequestID, &r.ConversationID, &r.BranchID, &r.CurrentMessageHash, &r.SystemHash, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan parent row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindCompactParent implements linking.Store per §4.4: the newest inference
// response in [afterTimestamp, beforeTimestamp) whose response text shares a
// prefix with summaryPrefix.
func (s *PostgresStore) FindCompactParent(ctx context.Context, domain, summaryPrefix string, afterTimestamp time.Time, beforeTimestamp *time.Time) (*linking.StoredRequestSummary, error) {
	query := `
		SELECT request_id, conversation_id, branch_id, current_message_hash, system_hash, "timestamp"
		FROM linked_requests
		WHERE domain = $1 AND request_type = 'inference' AND "timestamp" >= $2
		  AND ($3::timestamptz IS NULL OR "timestamp" < $3)
		  AND (starts_with(lower(trim(response_text)), $4) OR starts_with($4, lower(trim(response_text))))
		  AND lower(trim(response_text)) <> ''
		ORDER BY "timestamp" DESC
		LIMIT 1`
	row := s.pool.QueryRow(ctx, query, domain, afterTimestamp, beforeTimestamp, summaryPrefix)
	var r linking.StoredRequestSummary
	if err := row.Scan(&r.RequestID, &r.ConversationID, &r.BranchID, &r.CurrentMessageHash, &r.SystemHash, &r.Timestamp); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("find compact parent: %w", err)
	}
	return &r, nil
}

// FindTaskInvocations implements linking.Store per §4.5.
func (s *PostgresStore) FindTaskInvocations(ctx context.Context, domain string, referenceTime time.Time, window time.Duration, promptFilter *string) ([]linking.TaskInvocation, error) {
	windowStart := referenceTime.Add(-window)
	query := `
		SELECT t.request_id, t.tool_use_id, t.prompt, t."timestamp", t.conversation_id
		FROM task_tool_invocations t
		JOIN linked_requests r ON r.request_id = t.request_id
		WHERE r.domain = $1 AND t.name = 'Task' AND t."timestamp" BETWEEN $2 AND $3
		  AND ($4::text IS NULL OR t.prompt = $4)`
	rows, err := s.pool.Query(ctx, query, domain, windowStart, referenceTime, promptFilter)
	if err != nil {
		return nil, fmt.Errorf("find task invocations: %w", err)
	}
	defer rows.Close()

	var out []linking.TaskInvocation
	for rows.Next() {
		var inv linking.TaskInvocation
		if err := rows.Scan(&inv.RequestID, &inv.ToolUseID, &inv.Prompt, &inv.Timestamp, &inv.ConversationID); err != nil {
			return nil, fmt.Errorf("scan task invocation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// GetMaxSubtaskSequence implements linking.Store per §4.5/§4.7.
func (s *PostgresStore) GetMaxSubtaskSequence(ctx context.Context, conversationID string, beforeTimestamp time.Time) (int, error) {
	query := `
		SELECT COALESCE(MAX(NULLIF(regexp_replace(branch_id, '^subtask_', ''), '')::int), 0)
		FROM linked_requests
		WHERE conversation_id = $1 AND "timestamp" < $2 AND branch_id ~ '^subtask_[0-9]+$'`
	var max int
	if err := s.pool.QueryRow(ctx, query, conversationID, beforeTimestamp).Scan(&max); err != nil {
		return 0, fmt.Errorf("get max subtask sequence: %w", err)
	}
	return max, nil
}

// Insert implements Writer, persisting row and any Task-tool invocations it
// carries in a single transaction.
func (s *PostgresStore) Insert(ctx context.Context, row Row) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO linked_requests
			(request_id, domain, "timestamp", conversation_id, branch_id, current_message_hash,
			 parent_message_hash, system_hash, message_count, is_subtask, parent_task_request_id,
			 request_type, response_text)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (request_id) DO NOTHING`,
		row.RequestID, row.Domain, row.Timestamp, row.ConversationID, row.BranchID, row.CurrentMessageHash,
		row.ParentMessageHash, row.SystemHash, row.MessageCount, row.IsSubtask, row.ParentTaskRequestID,
		row.RequestType, row.ResponseText,
	)
	if err != nil {
		return fmt.Errorf("insert linked_request: %w", err)
	}

	for _, inv := range row.TaskToolInvocations {
		_, err = tx.Exec(ctx, `
			INSERT INTO task_tool_invocations (request_id, tool_use_id, name, prompt, conversation_id, "timestamp")
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (request_id, tool_use_id) DO NOTHING`,
			row.RequestID, inv.ID, inv.Name, inv.Prompt, row.ConversationID, row.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert task_tool_invocation: %w", err)
		}
	}

	return tx.Commit(ctx)
}

var _ linking.Store = (*PostgresStore)(nil)
var _ Writer = (*PostgresStore)(nil)
