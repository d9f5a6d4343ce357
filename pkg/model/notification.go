package model

import (
	"fmt"
	"time"
)

// NotificationType is the severity of a transient notification.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// String returns the string representation of the notification type.
func (t NotificationType) String() string {
	return string(t)
}

// IsValid reports whether t is one of the known types.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotifyInfo, NotifySuccess, NotifyWarning, NotifyError:
		return true
	}
	return false
}

// ParseNotificationType converts a string to a NotificationType.
// The empty string maps to NotifyInfo.
func ParseNotificationType(s string) (NotificationType, error) {
	if s == "" {
		return NotifyInfo, nil
	}
	t := NotificationType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown notification type %q", s)
	}
	return t, nil
}

// Notification is a transient message shown to the user.
type Notification struct {
	ID        int64            `json:"id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
}
