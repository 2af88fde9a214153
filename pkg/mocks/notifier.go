// Package mocks provides recording test doubles for the notification
// surfaces.
package mocks

import (
	"context"
	"sync"

	"github.com/routepack/routepack/pkg/notifications"
)

// UserNotification records one NotifyUser call.
type UserNotification struct {
	UserID       string
	Notification notifications.Notification
}

// OfficeNotification records one NotifyOffice call.
type OfficeNotification struct {
	OfficeID     string
	Notification notifications.Notification
}

// Email records one SendEmail call.
type Email struct {
	Recipients []string
	Subject    string
	Body       string
}

// RecordingNotifier captures every notification and email for assertions. It
// satisfies both notifications.Notifier and notifications.EmailSender.
type RecordingNotifier struct {
	mu      sync.Mutex
	Users   []UserNotification
	Offices []OfficeNotification
	Emails  []Email
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) NotifyUser(_ context.Context, userID string, notification notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Users = append(r.Users, UserNotification{UserID: userID, Notification: notification})
}

func (r *RecordingNotifier) NotifyOffice(_ context.Context, officeID string, notification notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Offices = append(r.Offices, OfficeNotification{OfficeID: officeID, Notification: notification})
}

func (r *RecordingNotifier) SendEmail(_ context.Context, recipients []string, subject, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Emails = append(r.Emails, Email{Recipients: recipients, Subject: subject, Body: body})
}

// UserNotified reports whether the user received at least one notification of
// the given kind.
func (r *RecordingNotifier) UserNotified(userID, kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.Users {
		if n.UserID == userID && n.Notification.Kind == kind {
			return true
		}
	}

	return false
}

// OfficeNotified reports whether the office received at least one
// notification of the given kind.
func (r *RecordingNotifier) OfficeNotified(officeID, kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.Offices {
		if n.OfficeID == officeID && n.Notification.Kind == kind {
			return true
		}
	}

	return false
}
