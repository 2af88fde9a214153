// Package notifications defines the fire-and-forget notification surface the
// routing engine and action executor call into. Delivery failures are logged,
// never propagated: a transition must not fail because an alert could not be
// sent.
package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/routepack/routepack/pkg/eventbus"
	"github.com/routepack/routepack/pkg/events"
)

// Notification is one in-app alert addressed to a user or an office.
type Notification struct {
	PackageID string
	Kind      string
	Title     string
	Message   string
	Link      string
	Comment   string

	// ExcludeUserID suppresses delivery to the acting user on office-wide
	// notifications.
	ExcludeUserID string
}

// Notifier delivers in-app notifications.
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, notification Notification)
	NotifyOffice(ctx context.Context, officeID string, notification Notification)
}

// EmailSender delivers best-effort email.
type EmailSender interface {
	SendEmail(ctx context.Context, recipients []string, subject, body string)
}

// EventBusNotifier publishes notification events for delivery workers to
// consume. It satisfies both Notifier and EmailSender.
type EventBusNotifier struct {
	bus    eventbus.EventBus
	logger *slog.Logger
}

func NewEventBusNotifier(bus eventbus.EventBus, logger *slog.Logger) *EventBusNotifier {
	return &EventBusNotifier{
		bus:    bus,
		logger: logger.With("module", "notifications"),
	}
}

func (n *EventBusNotifier) baseEvent(eventType events.EventType, packageID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        n.bus.GenerateID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PackageID: packageID,
	}
}

func (n *EventBusNotifier) NotifyUser(ctx context.Context, userID string, notification Notification) {
	event := events.UserNotification{
		BaseEvent: n.baseEvent(events.UserNotificationEvent, notification.PackageID),
		UserID:    userID,
		Kind:      notification.Kind,
		Title:     notification.Title,
		Message:   notification.Message,
		Link:      notification.Link,
		Comment:   notification.Comment,
	}

	if err := n.bus.Publish(ctx, userID, event); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish user notification",
			"user_id", userID, "package_id", notification.PackageID, "error", err)
	}
}

func (n *EventBusNotifier) NotifyOffice(ctx context.Context, officeID string, notification Notification) {
	event := events.OfficeNotification{
		BaseEvent:     n.baseEvent(events.OfficeNotificationEvent, notification.PackageID),
		OfficeID:      officeID,
		Kind:          notification.Kind,
		Title:         notification.Title,
		Message:       notification.Message,
		Link:          notification.Link,
		ExcludeUserID: notification.ExcludeUserID,
	}

	if err := n.bus.Publish(ctx, officeID, event); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish office notification",
			"office_id", officeID, "package_id", notification.PackageID, "error", err)
	}
}

func (n *EventBusNotifier) SendEmail(ctx context.Context, recipients []string, subject, body string) {
	event := events.EmailRequested{
		BaseEvent:  n.baseEvent(events.EmailRequestedEvent, ""),
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
	}

	if err := n.bus.Publish(ctx, subject, event); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish email request",
			"recipients", len(recipients), "error", err)
	}
}
