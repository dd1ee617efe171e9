package linkstore

import "context"

// Migrate creates the tables and indexes PostgresStore expects, if they do
// not already exist. It is safe to call on every startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS linked_requests (
	request_id            text PRIMARY KEY,
	domain                text NOT NULL,
	"timestamp"           timestamptz NOT NULL,
	conversation_id       text NOT NULL,
	branch_id             text NOT NULL,
	current_message_hash  text NOT NULL,
	parent_message_hash   text,
	system_hash           text,
	message_count         integer NOT NULL,
	is_subtask            boolean NOT NULL DEFAULT false,
	parent_task_request_id text,
	request_type          text NOT NULL DEFAULT 'inference',
	response_text         text NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_linked_requests_parent_lookup
	ON linked_requests (domain, parent_message_hash, system_hash, "timestamp" DESC);

CREATE INDEX IF NOT EXISTS idx_linked_requests_conversation
	ON linked_requests (conversation_id, "timestamp" DESC);

CREATE INDEX IF NOT EXISTS idx_linked_requests_compact_search
	ON linked_requests (domain, request_type, "timestamp")
	WHERE request_type = 'inference';

CREATE TABLE IF NOT EXISTS task_tool_invocations (
	request_id      text NOT NULL REFERENCES linked_requests(request_id) ON DELETE CASCADE,
	tool_use_id     text NOT NULL,
	name            text NOT NULL,
	prompt          text NOT NULL,
	conversation_id text NOT NULL,
	"timestamp"     timestamptz NOT NULL,
	PRIMARY KEY (request_id, tool_use_id)
);

CREATE INDEX IF NOT EXISTS idx_task_tool_invocations_window
	ON task_tool_invocations (conversation_id, "timestamp" DESC);
`)
	return err
}
