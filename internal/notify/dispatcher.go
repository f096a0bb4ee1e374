package notify

import (
	"context"
	"time"
)

// EventType identifies a notification event
type EventType string

const (
	EventTeamInvite           EventType = "team-invite"
	EventApplicationSubmitted EventType = "application-submitted"
	EventApplicationAccepted  EventType = "application-accepted"
	EventApplicationRejected  EventType = "application-rejected"
	EventApplicationWithdrawn EventType = "application-withdrawn"
	EventNewApplication       EventType = "new-application"
)

// Recipient is who an event is addressed to
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Contact is the project contact disclosed to students on acceptance
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Event is the envelope queued for the mail sender. One event per
// recipient, so one failing recipient cannot affect others.
type Event struct {
	Type          EventType `json:"type"`
	Recipient     Recipient `json:"recipient"`
	ApplicationID string    `json:"application_id"`
	ProjectID     string    `json:"project_id"`
	ProjectTitle  string    `json:"project_title"`

	// NeedsConfirmation marks submitted-notifications to members whose
	// own invite is still pending
	NeedsConfirmation bool `json:"needs_confirmation,omitempty"`

	// Contact is set on acceptance events only
	Contact *Contact `json:"contact,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Dispatcher delivers lifecycle notifications. All sends are best-effort:
// callers log failures and never roll back the state transition that
// triggered them.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
	Close() error
}
