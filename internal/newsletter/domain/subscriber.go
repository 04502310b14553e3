package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubscriberStatus captures the confirmation lifecycle of a subscriber.
type SubscriberStatus string

const (
	StatusPendingConfirmation SubscriberStatus = "pending_confirmation"
	StatusConfirmed           SubscriberStatus = "confirmed"
)

// Subscriber represents one mailing-list member. Issues are delivered only
// to subscribers in the confirmed state.
type Subscriber struct {
	ID           uuid.UUID        `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	Status       SubscriberStatus `json:"status"`
	SubscribedAt time.Time        `json:"subscribed_at"`
}

// Validate ensures the subscriber adheres to business constraints.
func (s Subscriber) Validate() error {
	if strings.TrimSpace(s.Email) == "" {
		return errors.New("email is required")
	}
	if !strings.Contains(s.Email, "@") {
		return errors.New("email must be valid")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// IsConfirmed indicates whether the subscriber receives published issues.
func (s Subscriber) IsConfirmed() bool {
	return s.Status == StatusConfirmed
}
