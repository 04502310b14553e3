package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bulletinapp/bulletin/internal/idempotency"
	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PublishIssueCommand carries one attempt to publish a newsletter issue.
// The caller id and idempotency key identify the attempt across retries.
type PublishIssueCommand struct {
	CallerID    uuid.UUID
	Key         idempotency.Key
	Title       string
	TextContent string
	HTMLContent string
}

func (c PublishIssueCommand) Validate() error {
	if c.CallerID == uuid.Nil {
		return errors.New("caller id is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(c.TextContent) == "" && strings.TrimSpace(c.HTMLContent) == "" {
		return errors.New("at least one of text_content or html_content is required")
	}
	return nil
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd PublishIssueCommand) (*idempotency.Response, error)
}

// IdempotentExecutor runs a computation at most once per (caller, key) and
// replays the recorded response to every retry.
type IdempotentExecutor interface {
	Execute(ctx context.Context, caller uuid.UUID, key idempotency.Key, compute idempotency.ComputeFunc) (*idempotency.Response, idempotency.Outcome, error)
}

type PublishIssueCommandHandler struct {
	issues ports.IssueRepository
	events ports.EventPublisher
	idem   IdempotentExecutor
	logger *slog.Logger
}

func NewPublishIssueCommandHandler(
	issues ports.IssueRepository,
	events ports.EventPublisher,
	idem IdempotentExecutor,
	logger *slog.Logger,
) *PublishIssueCommandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishIssueCommandHandler{
		issues: issues,
		events: events,
		idem:   idem,
		logger: logger,
	}
}

// Handle publishes the issue exactly once per (caller, key). The issue row
// and its delivery-queue fan-out are written in the transaction the
// executor opens, so a retry that lost the insert race leaves no trace.
// No email is sent and no event is emitted inside the compute: delivery
// happens asynchronously off the queue, and the published event goes out
// only after the executor reports that this invocation's writes committed.
func (h *PublishIssueCommandHandler) Handle(ctx context.Context, cmd PublishIssueCommand) (*idempotency.Response, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var issueID uuid.UUID

	resp, outcome, err := h.idem.Execute(ctx, cmd.CallerID, cmd.Key, func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		issue := domain.Issue{
			ID:          uuid.New(),
			Title:       cmd.Title,
			TextContent: cmd.TextContent,
			HTMLContent: cmd.HTMLContent,
			PublishedAt: time.Now().UTC(),
		}

		if err := issue.Validate(); err != nil {
			return nil, err
		}

		if err := h.issues.Create(ctx, tx, issue); err != nil {
			return nil, err
		}

		enqueued, err := h.issues.EnqueueDeliveries(ctx, tx, issue.ID)
		if err != nil {
			return nil, err
		}

		body, err := json.Marshal(map[string]any{
			"issue_id":            issue.ID,
			"deliveries_enqueued": enqueued,
			"published_at":        issue.PublishedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("encode publish response: %w", err)
		}

		issueID = issue.ID

		return &idempotency.Response{
			StatusCode: http.StatusAccepted,
			Headers: []idempotency.HeaderEntry{
				{Name: "Content-Type", Value: []byte("application/json")},
			},
			Body: body,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	// Emit only when this invocation's writes committed. A replay served
	// the original response and committed nothing, so the event either
	// already went out on the first execution or must not go out at all.
	// The publish itself is irreversible and therefore best-effort: the
	// issue is committed by now and a retry would only replay.
	if outcome == idempotency.OutcomeExecuted {
		if err := h.events.PublishIssuePublished(ctx, issueID.String()); err != nil {
			h.logger.WarnContext(ctx, "issue published but event emission failed",
				"error", err,
				"issue_id", issueID,
			)
		}
	}

	return resp, nil
}
