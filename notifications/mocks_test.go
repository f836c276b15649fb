package notifications

import (
	"context"
	"strings"

	"github.com/cyverse-de/collection-notifier/model"
	"github.com/pkg/errors"
)

const (
	aliceURI = "/principals/users/alice/"
	bobURI   = "/principals/users/bob/"
	carolURI = "/principals/users/carol/"
	groupURI = "/principals/groups/a/"

	aliceInbox = "/notifications/alice/"
	bobInbox   = "/notifications/bob/"
	carolInbox = "/notifications/carol/"
)

// MockResource is a resource that's addressable by URL.
type MockResource struct {
	url string
}

// URL returns the URL of the resource.
func (r *MockResource) URL() string {
	return r.url
}

// MockCollection is a collection that registers its children with a MockStore.
type MockCollection struct {
	url   string
	store *MockStore
}

// URL returns the URL of the collection.
func (c *MockCollection) URL() string {
	return c.url
}

// CreateChild registers an empty child resource.
func (c *MockCollection) CreateChild(_ context.Context, name string) (Resource, error) {
	url := c.url + name
	if _, exists := c.store.children[url]; exists {
		return nil, errors.Errorf("%s already exists", url)
	}
	child := &MockResource{url: url}
	c.store.children[url] = child
	c.store.CreatedNames = append(c.store.CreatedNames, name)
	return child, nil
}

// RemoveChild removes a registered child resource along with anything written to it.
func (c *MockCollection) RemoveChild(_ context.Context, name string) error {
	url := c.url + name
	c.store.RemovedNames = append(c.store.RemovedNames, name)
	if err, ok := c.store.removeErrors[c.url]; ok {
		return err
	}
	delete(c.store.children, url)
	delete(c.store.Bodies, url)
	delete(c.store.Properties, url)
	return nil
}

// MockStore provides in-memory implementations of Locator and Storage.
type MockStore struct {
	principals      map[string]*model.Principal
	principalErrors map[string]error
	collections     map[string]bool
	children        map[string]*MockResource
	bodyErrors      map[string]error
	removeErrors    map[string]error

	CreatedNames      []string
	RemovedNames      []string
	Bodies            map[string][]byte
	Properties        map[string][]Element
	LocateChildCalled int
}

// NewMockStore returns a store containing the default set of test principals: alice, bob and carol
// each have a notifications collection, and group A contains alice and bob.
func NewMockStore() *MockStore {
	s := &MockStore{
		principals:      make(map[string]*model.Principal),
		principalErrors: make(map[string]error),
		collections:     make(map[string]bool),
		children:        make(map[string]*MockResource),
		bodyErrors:      make(map[string]error),
		removeErrors:    make(map[string]error),
		Bodies:          make(map[string][]byte),
		Properties:      make(map[string][]Element),
	}
	s.AddIndividual(aliceURI, aliceInbox)
	s.AddIndividual(bobURI, bobInbox)
	s.AddIndividual(carolURI, carolInbox)
	s.AddGroup(groupURI, aliceURI, bobURI)
	return s
}

// AddIndividual adds an individual principal and, if inbox isn't empty, its notifications collection.
func (s *MockStore) AddIndividual(uri, inbox string) {
	s.principals[uri] = &model.Principal{URI: uri, Kind: model.Individual, NotificationsURL: inbox}
	if inbox != "" {
		s.collections[inbox] = true
	}
}

// AddGroup adds a group principal.
func (s *MockStore) AddGroup(uri string, members ...string) {
	s.principals[uri] = &model.Principal{URI: uri, Kind: model.Group, Members: members}
}

// FailBodyWrites causes body writes to resources in the given collection to fail.
func (s *MockStore) FailBodyWrites(collectionURL string, err error) {
	s.bodyErrors[collectionURL] = err
}

// FailRemovals causes removals of resources from the given collection to fail.
func (s *MockStore) FailRemovals(collectionURL string, err error) {
	s.removeErrors[collectionURL] = err
}

// ChildrenOf returns the URLs of the registered children of a collection.
func (s *MockStore) ChildrenOf(collectionURL string) []string {
	var urls []string
	for url := range s.children {
		if strings.HasPrefix(url, collectionURL) {
			urls = append(urls, url)
		}
	}
	return urls
}

// LocatePrincipal looks up a principal.
func (s *MockStore) LocatePrincipal(_ context.Context, uri string) (*model.Principal, error) {
	if err, ok := s.principalErrors[uri]; ok {
		return nil, err
	}
	return s.principals[uri], nil
}

// LocateCollection looks up a collection.
func (s *MockStore) LocateCollection(_ context.Context, url string) (Collection, error) {
	if !s.collections[url] {
		return nil, nil
	}
	return &MockCollection{url: url, store: s}, nil
}

// LocateChild looks up a registered child resource.
func (s *MockStore) LocateChild(_ context.Context, collection Collection, name string) (Resource, error) {
	s.LocateChildCalled++
	child, ok := s.children[collection.URL()+name]
	if !ok {
		return nil, errors.Errorf("%s%s not found", collection.URL(), name)
	}
	return child, nil
}

// WriteBody records the body of a resource.
func (s *MockStore) WriteBody(_ context.Context, resource Resource, body []byte) error {
	for prefix, err := range s.bodyErrors {
		if strings.HasPrefix(resource.URL(), prefix) {
			return err
		}
	}
	s.Bodies[resource.URL()] = body
	return nil
}

// WriteProperty records a property of a resource.
func (s *MockStore) WriteProperty(_ context.Context, resource Resource, element Element) error {
	s.Properties[resource.URL()] = append(s.Properties[resource.URL()], element)
	return nil
}

// WriteCount returns the total number of bodies and properties written.
func (s *MockStore) WriteCount() int {
	count := len(s.Bodies)
	for _, properties := range s.Properties {
		count += len(properties)
	}
	return count
}

// TransactionalMockStore is a MockStore that also implements Transactional.
type TransactionalMockStore struct {
	*MockStore
	AtomicallyCalled int
}

// Atomically records the fact that it was called and runs the function against the mock store.
func (s *TransactionalMockStore) Atomically(_ context.Context, fn func(Storage) error) error {
	s.AtomicallyCalled++
	return fn(s.MockStore)
}

// MockParent is a parent collection with in-memory subscription lists.
type MockParent struct {
	url          string
	hasMetadata  bool
	subscribed   []model.PrincipalRef
	unsubscribed []model.PrincipalRef
	unresolvable map[string]bool
	resolveErrs  map[string]error
	metadataErr  error
}

// NewMockParent returns a parent collection with subscription metadata and the given subscribers.
func NewMockParent(subscribed ...model.PrincipalRef) *MockParent {
	return &MockParent{
		url:          "/calendars/shared/dropbox/",
		hasMetadata:  true,
		subscribed:   subscribed,
		unresolvable: make(map[string]bool),
		resolveErrs:  make(map[string]error),
	}
}

// URL returns the URL of the parent collection.
func (p *MockParent) URL() string {
	return p.url
}

// HasSubscriptionMetadata reports whether the parent has subscription metadata.
func (p *MockParent) HasSubscriptionMetadata(context.Context) (bool, error) {
	return p.hasMetadata, p.metadataErr
}

// ReadSubscribed returns the auto-subscribed principals.
func (p *MockParent) ReadSubscribed(context.Context) ([]model.PrincipalRef, error) {
	return p.subscribed, nil
}

// ReadUnsubscribed returns the unsubscribed principals.
func (p *MockParent) ReadUnsubscribed(context.Context) ([]model.PrincipalRef, error) {
	return p.unsubscribed, nil
}

// ResolvePrincipal resolves hrefs to themselves unless they've been marked as unresolvable. Other kinds
// of references are returned unchanged.
func (p *MockParent) ResolvePrincipal(_ context.Context, ref model.PrincipalRef) (*model.PrincipalRef, error) {
	if ref.Kind != model.RefHRef {
		return &ref, nil
	}
	if err, ok := p.resolveErrs[ref.Href]; ok {
		return nil, err
	}
	if p.unresolvable[ref.Href] {
		return nil, nil
	}
	resolved := model.HRef(ref.Href)
	return &resolved, nil
}
