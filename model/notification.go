package model

import (
	"fmt"
	"strings"
	"time"
)

// Action identifies the kind of change that a notification describes.
type Action int

// The set of supported actions.
const (
	ActionNone Action = iota
	ActionCreated
	ActionModified
	ActionDeleted
	ActionCopiedTo
	ActionCopiedFrom
	ActionMovedTo
	ActionMovedFrom
)

// String returns the name of the element used to represent the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCreated:
		return "created"
	case ActionModified:
		return "modified"
	case ActionDeleted:
		return "deleted"
	case ActionCopiedTo:
		return "copied-to"
	case ActionCopiedFrom:
		return "copied-from"
	case ActionMovedTo:
		return "moved-to"
	case ActionMovedFrom:
		return "moved-from"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction converts an action name back into an Action. Underscores are accepted in place of hyphens
// because that's how action names tend to show up in JSON message bodies.
func ParseAction(name string) (Action, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-") {
	case "none":
		return ActionNone, nil
	case "created":
		return ActionCreated, nil
	case "modified":
		return ActionModified, nil
	case "deleted":
		return ActionDeleted, nil
	case "copied-to":
		return ActionCopiedTo, nil
	case "copied-from":
		return ActionCopiedFrom, nil
	case "moved-to":
		return ActionMovedTo, nil
	case "moved-from":
		return ActionMovedFrom, nil
	}
	return ActionNone, fmt.Errorf("unrecognized action: %s", name)
}

// Details contains the optional attributes of a notification. Empty strings indicate that an attribute
// is absent.
type Details struct {
	AuthID  string
	OldETag string
	NewETag string
	OldURI  string
	NewURI  string
}

// Notification describes a single change to the contents of a collection. Notifications are passed by
// value and are not modified after they're created.
type Notification struct {
	Action    Action
	Timestamp time.Time
	Details
}

// NewNotification creates a notification for the given action, stamped with the current time in UTC.
func NewNotification(action Action, details Details) Notification {
	return Notification{
		Action:    action,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

// String returns a stable textual form of the notification.
func (n Notification) String() string {
	return fmt.Sprintf(
		"notification{action=%s timestamp=%s authid=%q old-uri=%q new-uri=%q old-etag=%q new-etag=%q}",
		n.Action,
		n.Timestamp.Format(time.RFC3339Nano),
		n.AuthID,
		n.OldURI,
		n.NewURI,
		n.OldETag,
		n.NewETag,
	)
}
