package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/moonsong-labs/conversation-linker/internal/config"
	"github.com/moonsong-labs/conversation-linker/internal/linking"
	"github.com/moonsong-labs/conversation-linker/internal/linkstore"
	"github.com/moonsong-labs/conversation-linker/internal/observability"
	"github.com/moonsong-labs/conversation-linker/internal/wire"
)

func newLinkCmd(cfg *config.Config) *cobra.Command {
	var inputPath string
	var persist bool
	var responseText string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a single request and print the resulting LinkResult as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cmd.Context(), *cfg, inputPath, persist, responseText)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "path to a LinkingRequest JSON file, or - for stdin")
	cmd.Flags().BoolVar(&persist, "persist", false, "write the resulting row back to the store")
	cmd.Flags().StringVar(&responseText, "response-text", "", "response text to record alongside a persisted row (used by later compact-continuation lookups)")
	return cmd
}

func runLink(ctx context.Context, cfg config.Config, inputPath string, persist bool, responseText string) error {
	var r io.Reader = os.Stdin
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	req, err := wire.DecodeLinkingRequest(data)
	if err != nil {
		return err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	store, writer, closeStore, err := linkstore.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	linker := linking.New(store, linking.SystemClock{}).
		WithSubtaskWindow(time.Duration(cfg.Store.SubtaskWindowSeconds) * time.Second)
	result, err := linker.Link(ctx, req)
	if err != nil {
		return fmt.Errorf("link request: %w", err)
	}

	logger := observability.LoggerWithTrace(ctx)
	logger.Info().Str("domain", req.Domain).Str("branch_id", result.BranchID).Msg("request_linked")

	if persist {
		if err := persistResult(ctx, writer, req, result, responseText); err != nil {
			return fmt.Errorf("persist result: %w", err)
		}
	}

	out, err := wire.EncodeLinkResult(result)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// persistResult assigns a fresh conversation_id when result starts a new
// conversation (§I5: the linker itself never generates one) and writes the
// row the store needs to serve future lookups against this request.
func persistResult(ctx context.Context, writer linkstore.Writer, req linking.LinkingRequest, result linking.LinkResult, responseText string) error {
	if writer == nil {
		return fmt.Errorf("configured store backend has no writer")
	}

	conversationID := uuid.NewString()
	if result.ConversationID != nil {
		conversationID = *result.ConversationID
	}

	row := linkstore.Row{
		RequestID:          req.RequestID,
		Domain:             req.Domain,
		Timestamp:          req.Timestamp,
		ConversationID:     conversationID,
		BranchID:           result.BranchID,
		CurrentMessageHash: result.CurrentMessageHash,
		ParentMessageHash:  result.ParentMessageHash,
		SystemHash:         result.SystemHash,
		MessageCount:       len(req.Messages),
		IsSubtask:          result.IsSubtask,
		RequestType:        "inference",
		ResponseText:       responseText,
	}
	if result.ParentTaskRequestID != nil {
		row.ParentTaskRequestID = result.ParentTaskRequestID
	}
	return writer.Insert(ctx, row)
}
