package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cyverse-de/collection-notifier/common"
	"github.com/cyverse-de/collection-notifier/model"
	"github.com/cyverse-de/collection-notifier/notifications"
	"github.com/pkg/errors"
)

// Store provides access to resources, properties and principals stored in the database. Every operation
// runs in its own transaction unless it's performed through Atomically.
type Store struct {
	db *sql.DB
}

// NewStore returns a new store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin a database transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "unable to commit the database transaction")
	}
	return nil
}

// ResourceRef refers to a resource by URL.
type ResourceRef struct {
	url string
}

// URL returns the URL of the resource.
func (r *ResourceRef) URL() string {
	return r.url
}

// Collection is a collection resource stored in the database.
type Collection struct {
	store *Store
	url   string
}

// URL returns the URL of the collection.
func (c *Collection) URL() string {
	return c.url
}

// CreateChild adds an empty resource to the collection.
func (c *Collection) CreateChild(ctx context.Context, name string) (notifications.Resource, error) {
	err := c.store.inTx(ctx, func(tx *sql.Tx) error {
		_, err := CreateResource(ctx, tx, c.url, name, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ResourceRef{url: JoinURL(c.url, name)}, nil
}

// RemoveChild deletes a resource from the collection.
func (c *Collection) RemoveChild(ctx context.Context, name string) error {
	return c.store.inTx(ctx, func(tx *sql.Tx) error {
		return DeleteResource(ctx, tx, JoinURL(c.url, name))
	})
}

// LocatePrincipal looks up a principal by URI.
func (s *Store) LocatePrincipal(ctx context.Context, uri string) (*model.Principal, error) {
	var principal *model.Principal
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		principal, err = GetPrincipal(ctx, tx, uri)
		return err
	})
	return principal, err
}

func (s *Store) locateCollection(ctx context.Context, url string) (*Collection, error) {
	var resource *Resource
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		resource, err = GetResource(ctx, tx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	if resource == nil || !resource.IsCollection {
		return nil, nil
	}
	return &Collection{store: s, url: resource.URL}, nil
}

// LocateCollection looks up a collection by URL. A nil collection is returned if there's no collection
// at the URL.
func (s *Store) LocateCollection(ctx context.Context, url string) (notifications.Collection, error) {
	collection, err := s.locateCollection(ctx, url)
	if err != nil || collection == nil {
		return nil, err
	}
	return collection, nil
}

// LocateChild looks up a child of a collection.
func (s *Store) LocateChild(ctx context.Context, collection notifications.Collection, name string) (notifications.Resource, error) {
	url := JoinURL(collection.URL(), name)

	var resource *Resource
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		resource, err = GetResource(ctx, tx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, fmt.Errorf("resource not found: %s", url)
	}

	return &ResourceRef{url: resource.URL}, nil
}

// LocateParent looks up a collection that may have subscribers. A nil collection is returned if
// there's no collection at the URL.
func (s *Store) LocateParent(ctx context.Context, url string) (notifications.Parent, error) {
	collection, err := s.locateCollection(ctx, url)
	if err != nil || collection == nil {
		return nil, err
	}
	return &ParentCollection{Collection: collection}, nil
}

// txStorage writes resource data within an existing transaction.
type txStorage struct {
	tx *sql.Tx
}

func (ts *txStorage) WriteBody(ctx context.Context, resource notifications.Resource, body []byte) error {
	return WriteResourceBody(ctx, ts.tx, resource.URL(), body)
}

func (ts *txStorage) WriteProperty(ctx context.Context, resource notifications.Resource, element notifications.Element) error {
	value, err := notifications.MarshalProperty(element)
	if err != nil {
		return err
	}
	name := element.Name()
	return WriteProperty(ctx, ts.tx, resource.URL(), name.Space, name.Local, value)
}

// WriteBody replaces the content of a resource.
func (s *Store) WriteBody(ctx context.Context, resource notifications.Resource, body []byte) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return (&txStorage{tx: tx}).WriteBody(ctx, resource, body)
	})
}

// WriteProperty stores an element as a property of a resource.
func (s *Store) WriteProperty(ctx context.Context, resource notifications.Resource, element notifications.Element) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return (&txStorage{tx: tx}).WriteProperty(ctx, resource, element)
	})
}

// Atomically performs all of the writes made by fn in a single transaction.
func (s *Store) Atomically(ctx context.Context, fn func(notifications.Storage) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStorage{tx: tx})
	})
}

// ParentCollection is a collection whose subscription lists are stored as properties. Both lists are
// read in a single transaction the first time either one is needed and reused after that, so a
// ParentCollection reflects the subscriptions as of that read. It isn't safe for concurrent use.
type ParentCollection struct {
	*Collection
	lists *subscriptionLists
}

type subscriptionLists struct {
	hasSubscribed bool
	subscribed    []model.PrincipalRef
	unsubscribed  []model.PrincipalRef
}

func (p *ParentCollection) parsePrincipalList(name, value string) ([]model.PrincipalRef, error) {
	refs, err := ParsePrincipalList(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s property on %s", name, p.url)
	}
	return refs, nil
}

func (p *ParentCollection) loadSubscriptionLists(ctx context.Context) (*subscriptionLists, error) {
	if p.lists != nil {
		return p.lists, nil
	}

	// Read both properties at once.
	var (
		subscribedValue, unsubscribedValue string
		hasSubscribed, hasUnsubscribed     bool
	)
	err := p.store.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		subscribedValue, hasSubscribed, err = ReadProperty(ctx, tx, p.url, notifications.Namespace, SubscribedProperty)
		if err != nil {
			return err
		}
		unsubscribedValue, hasUnsubscribed, err = ReadProperty(ctx, tx, p.url, notifications.Namespace, UnsubscribedProperty)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Parse the lists.
	lists := &subscriptionLists{hasSubscribed: hasSubscribed}
	if hasSubscribed {
		if lists.subscribed, err = p.parsePrincipalList(SubscribedProperty, subscribedValue); err != nil {
			return nil, err
		}
	}
	if hasUnsubscribed {
		if lists.unsubscribed, err = p.parsePrincipalList(UnsubscribedProperty, unsubscribedValue); err != nil {
			return nil, err
		}
	}

	p.lists = lists
	return lists, nil
}

// HasSubscriptionMetadata returns true if the collection has a list of subscribed principals.
func (p *ParentCollection) HasSubscriptionMetadata(ctx context.Context) (bool, error) {
	lists, err := p.loadSubscriptionLists(ctx)
	if err != nil {
		return false, err
	}
	return lists.hasSubscribed, nil
}

// ReadSubscribed returns the list of auto-subscribed principals.
func (p *ParentCollection) ReadSubscribed(ctx context.Context) ([]model.PrincipalRef, error) {
	lists, err := p.loadSubscriptionLists(ctx)
	if err != nil {
		return nil, err
	}
	return lists.subscribed, nil
}

// ReadUnsubscribed returns the list of principals that have unsubscribed.
func (p *ParentCollection) ReadUnsubscribed(ctx context.Context) ([]model.PrincipalRef, error) {
	lists, err := p.loadSubscriptionLists(ctx)
	if err != nil {
		return nil, err
	}
	return lists.unsubscribed, nil
}

// ResolvePrincipal converts a subscription list entry into a principal reference. Principal URIs resolve
// to themselves and mailto URIs resolve to the principal with the matching email address. The all,
// authenticated and unauthenticated entries are returned as is. Self refers to the collection itself.
func (p *ParentCollection) ResolvePrincipal(ctx context.Context, ref model.PrincipalRef) (*model.PrincipalRef, error) {
	switch ref.Kind {
	case model.RefHRef:
		if !strings.HasPrefix(strings.ToLower(ref.Href), "mailto:") {
			return &ref, nil
		}
		return p.resolveEmailAddress(ctx, ref.Href[len("mailto:"):])
	case model.RefAll, model.RefAuthenticated, model.RefUnauthenticated:
		return &ref, nil
	case model.RefSelf:
		self := model.HRef(p.url)
		return &self, nil
	}
	return nil, nil
}

func (p *ParentCollection) resolveEmailAddress(ctx context.Context, address string) (*model.PrincipalRef, error) {
	if err := common.ValidateEmailAddress(address); err != nil {
		log.Debugf("ignoring invalid email address `%s`: %s", address, err)
		return nil, nil
	}

	var uri string
	err := p.store.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		uri, err = GetPrincipalURIByEmail(ctx, tx, address)
		return err
	})
	if err != nil || uri == "" {
		return nil, err
	}

	resolved := model.HRef(uri)
	return &resolved, nil
}
