package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cyverse-de/collection-notifier/model"
	"github.com/cyverse-de/collection-notifier/notifications"
	"github.com/stretchr/testify/assert"
)

const testSubscribed = `<subscribed xmlns="http://apple.com/ns/ical/">
  <principal xmlns="DAV:"><href>/principals/groups/a/</href></principal>
  <principal xmlns="DAV:"><href> mailto:carol@example.org </href></principal>
  <principal xmlns="DAV:"><all/></principal>
  <principal xmlns="DAV:"><authenticated/></principal>
  <principal xmlns="DAV:"><unauthenticated/></principal>
  <principal xmlns="DAV:"><self/></principal>
  <principal xmlns="DAV:"><property><owner/></property></principal>
</subscribed>`

func TestParsePrincipalList(t *testing.T) {
	assert := assert.New(t)

	refs, err := ParsePrincipalList(testSubscribed)
	assert.NoError(err)
	assert.Equal(
		[]model.PrincipalRef{
			model.HRef("/principals/groups/a/"),
			model.HRef("mailto:carol@example.org"),
			{Kind: model.RefAll},
			{Kind: model.RefAuthenticated},
			{Kind: model.RefUnauthenticated},
			{Kind: model.RefSelf},
			{Kind: model.RefProperty},
		},
		refs,
	)

	refs, err = ParsePrincipalList(`<unsubscribed xmlns="http://apple.com/ns/ical/"/>`)
	assert.NoError(err)
	assert.Empty(refs)

	_, err = ParsePrincipalList("<subscribed>")
	assert.ErrorIs(err, notifications.ErrInvalidPrincipalList, "a malformed principal list was accepted")
}

func TestStoreLocateCollection(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Set up the expectations.
	mock.ExpectBegin()
	mock.ExpectQuery(selectResource).WithArgs("/notifications/alice/").
		WillReturnRows(sqlmock.NewRows([]string{"id", "url", "is_collection"}).
			AddRow(testResourceID, "/notifications/alice/", true))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(selectResource).WithArgs("/cal/1.ics").
		WillReturnRows(sqlmock.NewRows([]string{"id", "url", "is_collection"}).
			AddRow(testResourceID, "/cal/1.ics", false))
	mock.ExpectCommit()

	store := NewStore(db)

	// A collection should be found.
	collection, err := store.LocateCollection(context.Background(), "/notifications/alice/")
	assert.NoError(err)
	if assert.NotNil(collection) {
		assert.Equal("/notifications/alice/", collection.URL())
	}

	// A plain resource isn't a collection.
	collection, err = store.LocateCollection(context.Background(), "/cal/1.ics")
	assert.NoError(err)
	assert.Nil(collection)

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestStoreCreateAndLocateChild(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	childURL := "/notifications/alice/1.xml"
	mock.ExpectBegin()
	mock.ExpectQuery(insertResource).
		WithArgs(childURL, "/notifications/alice/", "1.xml", false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testResourceID))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(selectResource).WithArgs(childURL).
		WillReturnRows(sqlmock.NewRows([]string{"id", "url", "is_collection"}).AddRow(testResourceID, childURL, false))
	mock.ExpectCommit()

	store := NewStore(db)
	collection := &Collection{store: store, url: "/notifications/alice/"}

	child, err := collection.CreateChild(context.Background(), "1.xml")
	assert.NoError(err)
	assert.Equal(childURL, child.URL())

	located, err := store.LocateChild(context.Background(), collection, "1.xml")
	assert.NoError(err)
	assert.Equal(childURL, located.URL())

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestCollectionRemoveChild(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	childURL := "/notifications/alice/1.xml"
	mock.ExpectBegin()
	mock.ExpectExec(deleteProperties).WithArgs(childURL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(deleteResource).WithArgs(childURL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	collection := &Collection{store: NewStore(db), url: "/notifications/alice/"}
	assert.NoError(collection.RemoveChild(context.Background(), "1.xml"))

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestStoreCreateRecordAtomically(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// The body and both properties should be written in a single transaction.
	url := "/notifications/alice/1.xml"
	resourceRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "url", "is_collection"}).AddRow(testResourceID, url, false)
	}
	mock.ExpectBegin()
	mock.ExpectExec(updateBody).WithArgs(sqlmock.AnyArg(), url).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectResource).WithArgs(url).WillReturnRows(resourceRows())
	mock.ExpectExec(insertProperty).
		WithArgs(testResourceID, testNamespace, "action", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(selectResource).WithArgs(url).WillReturnRows(resourceRows())
	mock.ExpectExec(insertProperty).
		WithArgs(testResourceID, testNamespace, "time-stamp", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n := model.Notification{Action: model.ActionCreated, Timestamp: time.Now().UTC()}
	err = notifications.NewRecordStore(NewStore(db)).Create(context.Background(), &ResourceRef{url: url}, n)
	assert.NoError(err)

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestStoreCreateRecordRollsBack(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	url := "/notifications/alice/1.xml"
	mock.ExpectBegin()
	mock.ExpectExec(updateBody).WithArgs(sqlmock.AnyArg(), url).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	n := model.Notification{Action: model.ActionCreated, Timestamp: time.Now().UTC()}
	err = notifications.NewRecordStore(NewStore(db)).Create(context.Background(), &ResourceRef{url: url}, n)
	assert.Error(err)

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestParentSubscriptionMetadata(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	// Both lists should be read once, in a single transaction.
	parentURL := "/calendars/shared/"
	mock.ExpectBegin()
	mock.ExpectQuery(selectProperty).WithArgs(parentURL, testNamespace, SubscribedProperty).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(testSubscribed))
	mock.ExpectQuery(selectProperty).WithArgs(parentURL, testNamespace, UnsubscribedProperty).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	parent := &ParentCollection{Collection: &Collection{store: NewStore(db), url: parentURL}}

	hasMetadata, err := parent.HasSubscriptionMetadata(ctx)
	assert.NoError(err)
	assert.True(hasMetadata)

	subscribed, err := parent.ReadSubscribed(ctx)
	assert.NoError(err)
	assert.Len(subscribed, 7)

	unsubscribed, err := parent.ReadUnsubscribed(ctx)
	assert.NoError(err)
	assert.Empty(unsubscribed)

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestParentWithoutSubscriptionMetadata(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	parentURL := "/calendars/shared/"
	mock.ExpectBegin()
	mock.ExpectQuery(selectProperty).WithArgs(parentURL, testNamespace, SubscribedProperty).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(selectProperty).WithArgs(parentURL, testNamespace, UnsubscribedProperty).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	parent := &ParentCollection{Collection: &Collection{store: NewStore(db), url: parentURL}}

	hasMetadata, err := parent.HasSubscriptionMetadata(context.Background())
	assert.NoError(err)
	assert.False(hasMetadata)

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestParentMalformedSubscriptionList(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	parentURL := "/calendars/shared/"
	mock.ExpectBegin()
	mock.ExpectQuery(selectProperty).WithArgs(parentURL, testNamespace, SubscribedProperty).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(testSubscribed))
	mock.ExpectQuery(selectProperty).WithArgs(parentURL, testNamespace, UnsubscribedProperty).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("<unsubscribed><principal"))
	mock.ExpectCommit()

	parent := &ParentCollection{Collection: &Collection{store: NewStore(db), url: parentURL}}

	_, err = parent.HasSubscriptionMetadata(context.Background())
	assert.ErrorIs(err, notifications.ErrInvalidPrincipalList)

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}

func TestParentResolvePrincipal(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	assert.NoError(err, "unable to open the mock database connection")
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(selectPrincipalByEmail).WithArgs("carol@example.org").
		WillReturnRows(sqlmock.NewRows([]string{"uri"}).AddRow("/principals/users/carol/"))
	mock.ExpectCommit()

	parentURL := "/calendars/shared/"
	parent := &ParentCollection{Collection: &Collection{store: NewStore(db), url: parentURL}}

	// Principal URIs resolve to themselves.
	resolved, err := parent.ResolvePrincipal(ctx, model.HRef("/principals/users/alice/"))
	assert.NoError(err)
	assert.Equal(model.HRef("/principals/users/alice/"), *resolved)

	// Email addresses resolve to the matching principal.
	resolved, err = parent.ResolvePrincipal(ctx, model.HRef("mailto:carol@example.org"))
	assert.NoError(err)
	assert.Equal(model.HRef("/principals/users/carol/"), *resolved)

	// Invalid email addresses don't resolve and don't hit the database.
	resolved, err = parent.ResolvePrincipal(ctx, model.HRef("mailto:not an address"))
	assert.NoError(err)
	assert.Nil(resolved)

	// Pseudo-principals are passed through unchanged.
	resolved, err = parent.ResolvePrincipal(ctx, model.PrincipalRef{Kind: model.RefAll})
	assert.NoError(err)
	assert.False(resolved.IsHRef())

	// Self refers to the collection.
	resolved, err = parent.ResolvePrincipal(ctx, model.PrincipalRef{Kind: model.RefSelf})
	assert.NoError(err)
	assert.Equal(model.HRef(parentURL), *resolved)

	// Property references aren't supported.
	resolved, err = parent.ResolvePrincipal(ctx, model.PrincipalRef{Kind: model.RefProperty})
	assert.NoError(err)
	assert.Nil(resolved)

	assert.NoError(mock.ExpectationsWereMet(), "not all mock expectations were met")
}
