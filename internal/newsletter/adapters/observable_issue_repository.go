package adapters

import (
	"context"
	"time"

	"github.com/bulletinapp/bulletin/internal/database"
	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/bulletinapp/bulletin/internal/telemetry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
)

// ObservableIssueRepository decorates an IssueRepository with spans and
// query-duration metrics.
type ObservableIssueRepository struct {
	repo    issueRepository
	metrics *database.Metrics
}

type issueRepository interface {
	Create(ctx context.Context, tx pgx.Tx, issue domain.Issue) error
	EnqueueDeliveries(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error)
}

func NewObservableIssueRepository(repo issueRepository, metrics *database.Metrics) *ObservableIssueRepository {
	return &ObservableIssueRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableIssueRepository) Create(ctx context.Context, tx pgx.Tx, issue domain.Issue) error {
	ctx, span := telemetry.StartSpan(ctx, "IssueRepository.Create")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("issue.id", issue.ID.String()),
		attribute.String("operation", "create"),
	)

	start := time.Now()
	err := r.repo.Create(ctx, tx, issue)
	r.metrics.RecordQuery(ctx, "create_issue", time.Since(start).Seconds())

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (r *ObservableIssueRepository) EnqueueDeliveries(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "IssueRepository.EnqueueDeliveries")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("issue.id", issueID.String()),
		attribute.String("operation", "enqueue_deliveries"),
	)

	start := time.Now()
	enqueued, err := r.repo.EnqueueDeliveries(ctx, tx, issueID)
	r.metrics.RecordQuery(ctx, "enqueue_deliveries", time.Since(start).Seconds())

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return 0, err
	}

	telemetry.AddSpanAttributes(span, attribute.Int64("deliveries.enqueued", enqueued))
	telemetry.SetSpanSuccess(span)
	return enqueued, nil
}

func (r *ObservableIssueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	ctx, span := telemetry.StartSpan(ctx, "IssueRepository.GetByID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("issue.id", id.String()),
		attribute.String("operation", "get_by_id"),
	)

	start := time.Now()
	issue, err := r.repo.GetByID(ctx, id)
	r.metrics.RecordQuery(ctx, "get_issue", time.Since(start).Seconds())

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.SetSpanSuccess(span)
	return issue, nil
}
