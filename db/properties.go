package db

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// ReadProperty obtains the value of a property of the resource at the given URL. The second return value
// is false if the property isn't set.
func ReadProperty(ctx context.Context, tx *sql.Tx, url, namespace, name string) (string, bool, error) {
	wrapMsg := fmt.Sprintf("unable to read the {%s}%s property of `%s`", namespace, name, url)

	// Build the query.
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("p.value").
		From("properties p").
		Join("resources r ON p.resource_id = r.id").
		Where(sq.Eq{"r.url": url}).
		Where(sq.Eq{"p.namespace": namespace}).
		Where(sq.Eq{"p.name": name}).
		ToSql()
	if err != nil {
		return "", false, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var value string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, wrapMsg)
	}

	return value, true, nil
}

// WriteProperty sets the value of a property of the resource at the given URL, replacing any existing
// value.
func WriteProperty(ctx context.Context, tx *sql.Tx, url, namespace, name, value string) error {
	wrapMsg := fmt.Sprintf("unable to write the {%s}%s property of `%s`", namespace, name, url)

	// Get the resource ID.
	resourceID, err := GetResourceID(ctx, tx, url)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Build the statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("properties").
		Columns("resource_id", "namespace", "name", "value").
		Values(resourceID, namespace, name, value).
		Suffix("ON CONFLICT (resource_id, namespace, name) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	_, err = tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}
