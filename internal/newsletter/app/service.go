package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bulletinapp/bulletin/internal/idempotency"
	"github.com/bulletinapp/bulletin/internal/newsletter/app/commands"
	"github.com/bulletinapp/bulletin/internal/newsletter/app/queries"
	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/bulletinapp/bulletin/internal/newsletter/metrics"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service bundles the newsletter use cases exposed over the API.
type Service struct {
	pool            *pgxpool.Pool
	subscribers     ports.SubscriberRepository
	mailer          ports.Mailer
	events          ports.EventPublisher
	logger          *slog.Logger
	baseURL         string
	publishHandler  commands.CommandHandler
	getIssueHandler *queries.GetIssueQueryHandler
}

// NewService wires required dependencies.
func NewService(
	pool *pgxpool.Pool,
	issues ports.IssueRepository,
	subscribers ports.SubscriberRepository,
	mailer ports.Mailer,
	events ports.EventPublisher,
	idem commands.IdempotentExecutor,
	logger *slog.Logger,
	m *metrics.Metrics,
	baseURL string,
) *Service {
	coreHandler := commands.NewPublishIssueCommandHandler(issues, events, idem, logger)
	observableHandler := commands.NewObservableCommandHandler(coreHandler, logger, m)

	return &Service{
		pool:            pool,
		subscribers:     subscribers,
		mailer:          mailer,
		events:          events,
		logger:          logger,
		baseURL:         baseURL,
		publishHandler:  observableHandler,
		getIssueHandler: queries.NewGetIssueQueryHandler(issues),
	}
}

// PublishIssueInput captures the payload for publishing an issue.
type PublishIssueInput struct {
	Title       string `json:"title"`
	TextContent string `json:"text_content"`
	HTMLContent string `json:"html_content"`
}

// PublishIssue publishes an issue at most once per (caller, key) and
// returns the response to serve, whether freshly computed or replayed.
func (s *Service) PublishIssue(ctx context.Context, caller uuid.UUID, key idempotency.Key, input PublishIssueInput) (*idempotency.Response, error) {
	cmd := commands.PublishIssueCommand{
		CallerID:    caller,
		Key:         key,
		Title:       input.Title,
		TextContent: input.TextContent,
		HTMLContent: input.HTMLContent,
	}

	return s.publishHandler.Handle(ctx, cmd)
}

// GetIssue retrieves a published issue by id.
func (s *Service) GetIssue(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	return s.getIssueHandler.Handle(ctx, queries.GetIssueQuery{IssueID: id})
}

// SubscribeInput captures the payload for creating a subscription.
type SubscribeInput struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,min=1,max=256"`
}

// Subscribe stores a pending subscriber together with its confirmation
// token in one transaction, then sends the confirmation email best-effort
// after commit. A failed send leaves the subscriber pending with a valid
// stored token; re-submitting the form reports the address as already
// subscribed, so the confirmation mail has to be re-sent out of band.
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (*domain.Subscriber, error) {
	subscriber := domain.Subscriber{
		ID:           uuid.New(),
		Email:        input.Email,
		Name:         input.Name,
		Status:       domain.StatusPendingConfirmation,
		SubscribedAt: time.Now().UTC(),
	}

	if err := subscriber.Validate(); err != nil {
		return nil, err
	}

	token, err := generateSubscriptionToken()
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := s.subscribers.Create(ctx, tx, subscriber); err != nil {
		return nil, err
	}

	if err := s.subscribers.StoreToken(ctx, tx, subscriber.ID, token); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	confirmLink := fmt.Sprintf("%s/subscriptions/confirm?subscription_token=%s", s.baseURL, token)
	if err := s.mailer.Send(ctx, subscriber.Email, "Welcome!",
		fmt.Sprintf(`Welcome to our newsletter! Click <a href="%s">here</a> to confirm your subscription.`, confirmLink),
		fmt.Sprintf("Welcome to our newsletter! Visit %s to confirm your subscription.", confirmLink),
	); err != nil {
		s.logger.WarnContext(ctx, "subscriber saved but confirmation email failed",
			"error", err,
			"subscriber_id", subscriber.ID,
		)
	}

	return &subscriber, nil
}

// ConfirmSubscription flips the subscriber matching the token to confirmed.
func (s *Service) ConfirmSubscription(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("subscription_token is required")
	}

	subscriberID, err := s.subscribers.ConfirmByToken(ctx, token)
	if err != nil {
		return err
	}

	if err := s.events.PublishSubscriberConfirmed(ctx, subscriberID.String()); err != nil {
		s.logger.WarnContext(ctx, "subscription confirmed but event emission failed", "error", err)
	}

	return nil
}

func generateSubscriptionToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate subscription token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
