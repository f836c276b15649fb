package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// Resource represents a single row in the resources table.
type Resource struct {
	ID           string
	URL          string
	IsCollection bool
}

// JoinURL returns the URL of the child with the given name in the collection at collectionURL.
func JoinURL(collectionURL, name string) string {
	return strings.TrimSuffix(collectionURL, "/") + "/" + name
}

// GetResource looks up the resource at the given URL. A nil resource is returned if the resource
// doesn't exist.
func GetResource(ctx context.Context, tx *sql.Tx, url string) (*Resource, error) {
	wrapMsg := fmt.Sprintf("unable to look up the resource at `%s`", url)

	// Build the query.
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id", "url", "is_collection").
		From("resources").
		Where(sq.Eq{"url": url}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var resource Resource
	row := tx.QueryRowContext(ctx, query, args...)
	err = row.Scan(&resource.ID, &resource.URL, &resource.IsCollection)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &resource, nil
}

// GetResourceID obtains the ID of the resource at the given URL. An error is returned if the database
// can't be queried or the resource doesn't exist.
func GetResourceID(ctx context.Context, tx *sql.Tx, url string) (string, error) {
	resource, err := GetResource(ctx, tx, url)
	if err != nil {
		return "", err
	}
	if resource == nil {
		return "", fmt.Errorf("resource not found: %s", url)
	}
	return resource.ID, nil
}

// CreateResource adds an empty resource to the collection at parentURL, returning the ID assigned to
// the new resource.
func CreateResource(ctx context.Context, tx *sql.Tx, parentURL, name string, isCollection bool) (string, error) {
	url := JoinURL(parentURL, name)
	wrapMsg := fmt.Sprintf("unable to create the resource at `%s`", url)

	// Build the statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("resources").
		Columns("url", "parent_url", "name", "is_collection").
		Values(url, parentURL, name, isCollection).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	var id string
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	return id, nil
}

// WriteResourceBody replaces the content of the resource at the given URL.
func WriteResourceBody(ctx context.Context, tx *sql.Tx, url string, body []byte) error {
	wrapMsg := fmt.Sprintf("unable to write the body of `%s`", url)

	// Build the update statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("resources").
		Set("body", body).
		Where(sq.Eq{"url": url}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the update statement and verify that the correct number of rows was affected.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if rowsAffected != 1 {
		return fmt.Errorf("%s: unexpected number of rows affected: %d", wrapMsg, rowsAffected)
	}

	return nil
}

// DeleteResource removes the resource at the given URL along with its properties. Deleting a resource
// that doesn't exist isn't an error.
func DeleteResource(ctx context.Context, tx *sql.Tx, url string) error {
	wrapMsg := fmt.Sprintf("unable to delete the resource at `%s`", url)

	// Remove the properties first.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete("properties").
		Where(sq.Expr("resource_id IN (SELECT id FROM resources WHERE url = ?)", url)).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if _, err = tx.ExecContext(ctx, statement, args...); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Remove the resource itself.
	statement, args, err = sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete("resources").
		Where(sq.Eq{"url": url}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if _, err = tx.ExecContext(ctx, statement, args...); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}
