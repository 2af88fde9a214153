// Package events defines the event types published on the routepack event
// bus: notification fan-out and the package lifecycle audit stream.
package events

import (
	"time"

	"github.com/routepack/routepack/pkg/models"
)

type EventType string

// Topic carries every routepack event.
const Topic = "routepack.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Notification fan-out events, consumed by delivery workers.
	UserNotificationEvent   EventType = "notification.user"
	OfficeNotificationEvent EventType = "notification.office"
	EmailRequestedEvent     EventType = "notification.email"

	// Package lifecycle events, the supplementary audit stream. The
	// RoutingHistory table remains the durable record.
	PackageSubmittedEvent  EventType = "package.submitted"
	PackageTransitionEvent EventType = "package.transition"
	IntegrityDetectedEvent EventType = "package.integrity_violation"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	PackageID string         `json:"package_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// UserNotification asks delivery workers to notify one user in-app.
type UserNotification struct {
	BaseEvent

	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
	Comment string `json:"comment,omitempty"`
}

func (e UserNotification) GetType() EventType {
	return UserNotificationEvent
}

// OfficeNotification asks delivery workers to notify every member of an
// office, optionally excluding the acting user.
type OfficeNotification struct {
	BaseEvent

	OfficeID      string `json:"office_id"`
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	Link          string `json:"link,omitempty"`
	ExcludeUserID string `json:"exclude_user_id,omitempty"`
}

func (e OfficeNotification) GetType() EventType {
	return OfficeNotificationEvent
}

// EmailRequested asks the mailer to send a best-effort email.
type EmailRequested struct {
	BaseEvent

	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

func (e EmailRequested) GetType() EventType {
	return EmailRequestedEvent
}

// PackageSubmitted marks a package entering routing.
type PackageSubmitted struct {
	BaseEvent

	ReferenceNumber string `json:"reference_number"`
	OrganizationID  string `json:"organization_id"`
	StartNode       string `json:"start_node"`
}

func (e PackageSubmitted) GetType() EventType {
	return PackageSubmittedEvent
}

// PackageTransition mirrors one routing history entry for external audit.
type PackageTransition struct {
	BaseEvent

	ReferenceNumber string                `json:"reference_number"`
	OrganizationID  string                `json:"organization_id"`
	FromNode        string                `json:"from_node"`
	ToNode          string                `json:"to_node"`
	Transition      models.TransitionType `json:"transition"`
	Status          models.PackageStatus  `json:"status"`
	ActorID         string                `json:"actor_id,omitempty"`
}

func (e PackageTransition) GetType() EventType {
	return PackageTransitionEvent
}

// IntegrityDetected marks a new integrity violation on a package.
type IntegrityDetected struct {
	BaseEvent

	ReferenceNumber    string   `json:"reference_number"`
	TabIdentifier      string   `json:"tab_identifier"`
	AffectedSignatures []string `json:"affected_signatures"`
	UploadedBy         string   `json:"uploaded_by"`
}

func (e IntegrityDetected) GetType() EventType {
	return IntegrityDetectedEvent
}
