package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Issue is a single newsletter edition sent to every confirmed subscriber.
type Issue struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	TextContent string    `json:"text_content"`
	HTMLContent string    `json:"html_content"`
	PublishedAt time.Time `json:"published_at"`
}

// Validate ensures the issue adheres to business constraints.
func (i Issue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(i.TextContent) == "" && strings.TrimSpace(i.HTMLContent) == "" {
		return errors.New("at least one of text_content or html_content is required")
	}
	return nil
}
