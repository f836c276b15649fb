// Package notifications delivers change notifications to the principals subscribed to a collection.
// Each subscriber receives its own notification record in its notifications collection. The record
// contains an XML body describing the change, and the same data is stored as properties.
package notifications

import (
	"context"

	"github.com/cyverse-de/collection-notifier/common"
	"github.com/cyverse-de/collection-notifier/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var log = common.Log.WithFields(logrus.Fields{"package": "notifications"})

var tracer = otel.Tracer("github.com/cyverse-de/collection-notifier/notifications")

// Resource is anything that can be addressed by URL.
type Resource interface {
	URL() string
}

// Collection is a resource that can contain other resources.
type Collection interface {
	Resource

	// CreateChild registers an empty, addressable child resource with the given name.
	CreateChild(ctx context.Context, name string) (Resource, error)

	// RemoveChild removes a child resource along with anything written to it.
	RemoveChild(ctx context.Context, name string) error
}

// ErrInvalidPrincipalList indicates that a subscription list stored on a collection can't be parsed.
// Retrying won't help until the list is corrected.
var ErrInvalidPrincipalList = errors.New("invalid principal list")

// Parent is a shared collection whose changes may be of interest to other principals.
type Parent interface {
	Resource

	// HasSubscriptionMetadata returns false if nobody has ever subscribed to the collection.
	HasSubscriptionMetadata(ctx context.Context) (bool, error)

	// ReadSubscribed returns the list of auto-subscribed principals.
	ReadSubscribed(ctx context.Context) ([]model.PrincipalRef, error)

	// ReadUnsubscribed returns the list of principals that have opted out. A missing list is empty.
	ReadUnsubscribed(ctx context.Context) ([]model.PrincipalRef, error)

	// ResolvePrincipal converts a subscription list entry into a concrete principal reference. A nil
	// reference is returned if the entry can't be resolved.
	ResolvePrincipal(ctx context.Context, ref model.PrincipalRef) (*model.PrincipalRef, error)
}

// Locator finds resources by URL.
type Locator interface {
	// LocatePrincipal returns nil if the URI doesn't refer to a principal.
	LocatePrincipal(ctx context.Context, uri string) (*model.Principal, error)

	// LocateCollection returns nil if there's no collection at the URL.
	LocateCollection(ctx context.Context, url string) (Collection, error)

	// LocateChild finds a child resource that was registered by Collection.CreateChild.
	LocateChild(ctx context.Context, collection Collection, name string) (Resource, error)
}

// Storage writes resource contents and properties.
type Storage interface {
	WriteBody(ctx context.Context, resource Resource, body []byte) error
	WriteProperty(ctx context.Context, resource Resource, element Element) error
}

// Transactional is implemented by storage that can group several writes into a single atomic unit.
type Transactional interface {
	Atomically(ctx context.Context, fn func(Storage) error) error
}
