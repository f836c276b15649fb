package notifications

import (
	"context"
	"fmt"

	"github.com/cyverse-de/collection-notifier/model"
	"github.com/pkg/errors"
)

// RecordStore writes notification records.
type RecordStore struct {
	storage Storage
}

// NewRecordStore returns a new record store that writes to the given storage.
func NewRecordStore(storage Storage) *RecordStore {
	return &RecordStore{storage: storage}
}

// Create fills in a newly registered notification record resource. The notification body is stored as
// the content of the resource and each element of the body is also stored as a property of the resource.
// If the underlying storage is transactional then the body and properties are written atomically.
func (rs *RecordStore) Create(ctx context.Context, resource Resource, n model.Notification) error {
	wrapMsg := fmt.Sprintf("unable to create the notification record at %s", resource.URL())

	// Build the notification body.
	elements, err := Elements(n)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	body, err := MarshalBody(elements)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	write := func(storage Storage) error {
		if err := storage.WriteBody(ctx, resource, body); err != nil {
			return err
		}
		for _, element := range elements {
			if err := storage.WriteProperty(ctx, resource, element); err != nil {
				return err
			}
		}
		return nil
	}

	if transactional, ok := rs.storage.(Transactional); ok {
		err = transactional.Atomically(ctx, write)
	} else {
		err = write(rs.storage)
	}
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}
