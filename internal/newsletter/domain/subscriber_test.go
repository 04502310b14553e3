package domain_test

import (
	"testing"

	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/google/uuid"
)

func TestSubscriberValidate(t *testing.T) {
	tests := []struct {
		name       string
		subscriber domain.Subscriber
		wantErr    bool
	}{
		{
			name: "valid subscriber",
			subscriber: domain.Subscriber{
				ID:     uuid.New(),
				Email:  "user@example.com",
				Name:   "Ursula",
				Status: domain.StatusPendingConfirmation,
			},
			wantErr: false,
		},
		{
			name: "missing email",
			subscriber: domain.Subscriber{
				ID:   uuid.New(),
				Name: "Ursula",
			},
			wantErr: true,
		},
		{
			name: "invalid email format",
			subscriber: domain.Subscriber{
				ID:    uuid.New(),
				Email: "notanemail",
				Name:  "Ursula",
			},
			wantErr: true,
		},
		{
			name: "missing name",
			subscriber: domain.Subscriber{
				ID:    uuid.New(),
				Email: "user@example.com",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.subscriber.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Subscriber.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscriberIsConfirmed(t *testing.T) {
	tests := []struct {
		name   string
		status domain.SubscriberStatus
		want   bool
	}{
		{"confirmed receives issues", domain.StatusConfirmed, true},
		{"pending does not", domain.StatusPendingConfirmation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := domain.Subscriber{Status: tt.status}
			if got := s.IsConfirmed(); got != tt.want {
				t.Errorf("Subscriber.IsConfirmed() = %v, want %v", got, tt.want)
			}
		})
	}
}
