package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cyverse-de/collection-notifier/model"
	"github.com/cyverse-de/collection-notifier/notifications"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// ChangeRequest represents a deserialized collection change event.
type ChangeRequest struct {
	Action  string `json:"action"`
	Parent  string `json:"parent"`
	AuthID  string `json:"auth_id"`
	OldURI  string `json:"old_uri"`
	NewURI  string `json:"new_uri"`
	OldETag string `json:"old_etag"`
	NewETag string `json:"new_etag"`
}

// ParentLocator looks up collections that may have subscribers.
type ParentLocator interface {
	LocateParent(ctx context.Context, url string) (notifications.Parent, error)
}

// Notifier delivers notifications to the subscribers of a collection. A nil report with a nil error is
// treated as a report with nothing in it.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification, parent notifications.Parent) (*notifications.Report, error)
}

// CollectionChange is a message handler for events published when the contents of a collection change.
type CollectionChange struct {
	parents  ParentLocator
	notifier Notifier
}

// NewCollectionChange returns a new collection change event handler.
func NewCollectionChange(parents ParentLocator, notifier Notifier) *CollectionChange {
	return &CollectionChange{parents: parents, notifier: notifier}
}

// HandleMessage handles a single AMQP delivery. Failures to deliver the notification to individual
// subscribers are logged but don't cause the message to fail.
func (h *CollectionChange) HandleMessage(ctx context.Context, routingKey string, delivery amqp.Delivery) error {

	// Parse the message body.
	var request ChangeRequest
	err := json.Unmarshal(delivery.Body, &request)
	if err != nil {
		return WrapUnrecoverable(err, "unable to parse message body")
	}

	// Validate the request.
	action, err := model.ParseAction(request.Action)
	if err != nil {
		return WrapUnrecoverable(err, "invalid change event")
	}
	if action == model.ActionNone {
		return NewUnrecoverableError("invalid change event: no action specified")
	}
	if strings.TrimSpace(request.Parent) == "" {
		return NewUnrecoverableError("invalid change event: no parent collection specified")
	}
	details := model.Details{
		AuthID:  request.AuthID,
		OldETag: request.OldETag,
		NewETag: request.NewETag,
		OldURI:  request.OldURI,
		NewURI:  request.NewURI,
	}
	if err = notifications.ValidateDetails(details); err != nil {
		return WrapUnrecoverable(err, "invalid change event")
	}

	requestLog := log.WithFields(logrus.Fields{
		"routing_key": routingKey,
		"collection":  request.Parent,
		"action":      action.String(),
	})

	// Look up the parent collection.
	parent, err := h.parents.LocateParent(ctx, request.Parent)
	if err != nil {
		return WrapRecoverable(err, "unable to look up collection %s", request.Parent)
	}
	if parent == nil {
		requestLog.Info("collection not found; no notifications sent")
		return nil
	}

	// Notify the subscribers. A subscription list that can't be parsed won't get any better by retrying.
	n := model.NewNotification(action, details)
	report, err := h.notifier.Notify(ctx, n, parent)
	if errors.Is(err, notifications.ErrInvalidPrincipalList) {
		return WrapUnrecoverable(err, "invalid subscription metadata on %s", request.Parent)
	}
	if err != nil {
		return WrapRecoverable(err, "unable to notify the subscribers of %s", request.Parent)
	}
	if report == nil {
		report = &notifications.Report{}
	}

	requestLog.Infof(
		"notifications delivered: %d, skipped: %d, failed: %d",
		len(report.Delivered), len(report.Skipped), len(report.Failed),
	)
	return nil
}
