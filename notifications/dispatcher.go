package notifications

import (
	"context"
	"fmt"

	"github.com/cyverse-de/collection-notifier/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrCollectionNotFound indicates that a principal's notifications collection couldn't be located.
var ErrCollectionNotFound = errors.New("notifications collection not found")

// Report summarizes the outcome of a single call to Dispatcher.Notify.
type Report struct {
	Delivered []string
	Skipped   []string
	Failed    map[string]error
}

// Dispatcher delivers notification records to subscribed principals.
type Dispatcher struct {
	resolver *Resolver
	locator  Locator
	records  *RecordStore
	namer    *Namer
}

// NewDispatcher returns a new dispatcher.
func NewDispatcher(locator Locator, records *RecordStore, namer *Namer) *Dispatcher {
	return &Dispatcher{
		resolver: NewResolver(locator),
		locator:  locator,
		records:  records,
		namer:    namer,
	}
}

// Notify deposits a copy of the notification into the notifications collection of every principal
// subscribed to the parent collection. Recipients are processed one at a time in order of their hrefs.
// A failure to deliver to one recipient is recorded in the report and doesn't affect the others; an
// error is returned only if the set of recipients can't be determined.
func (d *Dispatcher) Notify(ctx context.Context, n model.Notification, parent Parent) (*Report, error) {
	ctx, span := tracer.Start(ctx, "Notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", parent.URL()),
		attribute.String("action", n.Action.String()),
	)

	// Determine who should be notified.
	recipients, err := d.resolver.Resolve(ctx, parent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Deliver the notification to each recipient.
	report := &Report{Failed: make(map[string]error)}
	for _, recipient := range recipients.Sorted() {
		recipientLog := log.WithFields(logrus.Fields{"collection": parent.URL(), "recipient": recipient.Href})

		url, err := d.deliver(ctx, n, recipient)
		switch {
		case err != nil:
			recipientLog.Errorf("unable to deliver notification: %s", err)
			report.Failed[recipient.Href] = err
		case url == "":
			recipientLog.Debug("recipient has no notifications collection")
			report.Skipped = append(report.Skipped, recipient.Href)
		default:
			recipientLog.Infof("delivered notification to %s", url)
			report.Delivered = append(report.Delivered, url)
		}
	}

	span.SetAttributes(
		attribute.Int("delivered", len(report.Delivered)),
		attribute.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// deliver writes a single notification record for a recipient, returning the URL of the new record. An
// empty URL and a nil error indicate that the recipient was skipped.
func (d *Dispatcher) deliver(ctx context.Context, n model.Notification, recipient model.PrincipalRef) (string, error) {
	ctx, span := tracer.Start(ctx, "deliver")
	defer span.End()
	span.SetAttributes(attribute.String("recipient", recipient.Href))

	url, err := d.deliverRecord(ctx, n, recipient)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return url, err
}

func (d *Dispatcher) deliverRecord(ctx context.Context, n model.Notification, recipient model.PrincipalRef) (string, error) {
	if !recipient.IsHRef() {
		return "", nil
	}
	wrapMsg := fmt.Sprintf("unable to deliver a notification to %s", recipient.Href)

	// Find the recipient's notifications collection.
	principal, err := d.locator.LocatePrincipal(ctx, recipient.Href)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}
	if principal == nil || principal.NotificationsURL == "" {
		return "", nil
	}
	collectionURL := principal.NotificationsURL
	collection, err := d.locator.LocateCollection(ctx, collectionURL)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}
	if collection == nil {
		return "", errors.Wrapf(ErrCollectionNotFound, "%s: %s", wrapMsg, collectionURL)
	}

	// Register the new record so that it's addressable before anything is written to it.
	name := d.namer.Name(n, collectionURL)
	if _, err = collection.CreateChild(ctx, name); err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}
	child, err := d.locator.LocateChild(ctx, collection, name)
	if err != nil {
		d.removeIncomplete(ctx, collection, name)
		return "", errors.Wrap(err, wrapMsg)
	}

	// Write the record.
	if err = d.records.Create(ctx, child, n); err != nil {
		d.removeIncomplete(ctx, collection, name)
		return "", errors.Wrap(err, wrapMsg)
	}

	return child.URL(), nil
}

// removeIncomplete makes a best-effort attempt to remove a registered record that couldn't be written, so
// that readers of the notifications collection never see an empty record.
func (d *Dispatcher) removeIncomplete(ctx context.Context, collection Collection, name string) {
	if err := collection.RemoveChild(ctx, name); err != nil {
		log.WithFields(logrus.Fields{"collection": collection.URL(), "record": name}).
			Errorf("unable to remove incomplete notification record: %s", err)
	}
}
