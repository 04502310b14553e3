package queries

import (
	"context"
	"errors"

	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/google/uuid"
)

// GetIssueQuery represents a request to retrieve a published issue by id.
type GetIssueQuery struct {
	IssueID uuid.UUID
}

// GetIssueQueryHandler executes GetIssueQuery and returns the issue if found.
type GetIssueQueryHandler struct {
	repo ports.IssueRepository
}

// NewGetIssueQueryHandler constructs a GetIssueQueryHandler.
func NewGetIssueQueryHandler(repo ports.IssueRepository) *GetIssueQueryHandler {
	return &GetIssueQueryHandler{repo: repo}
}

// Handle executes the query and retrieves the issue.
func (h *GetIssueQueryHandler) Handle(ctx context.Context, query GetIssueQuery) (*domain.Issue, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	return h.repo.GetByID(ctx, query.IssueID)
}

// Validate ensures the query has valid parameters.
func (q GetIssueQuery) Validate() error {
	if q.IssueID == uuid.Nil {
		return errors.New("issue_id is required")
	}
	return nil
}
