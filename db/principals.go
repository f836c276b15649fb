package db

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/cyverse-de/collection-notifier/model"
	"github.com/pkg/errors"
)

// GetGroupMembers lists the URIs of the members of the group with the given ID.
func GetGroupMembers(ctx context.Context, tx *sql.Tx, groupID string) ([]string, error) {
	wrapMsg := fmt.Sprintf("unable to list the members of group `%s`", groupID)

	// Build the query.
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("member_uri").
		From("group_members").
		Where(sq.Eq{"group_id": groupID}).
		OrderBy("member_uri").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	// Extract the member URIs.
	members := make([]string, 0)
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return members, nil
}

// GetPrincipal looks up the principal with the given URI. Group members are loaded along with the
// group. A nil principal is returned if the URI doesn't refer to a principal.
func GetPrincipal(ctx context.Context, tx *sql.Tx, uri string) (*model.Principal, error) {
	wrapMsg := fmt.Sprintf("unable to look up the principal `%s`", uri)

	// Build the query.
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id", "kind", "COALESCE(notifications_url, '')").
		From("principals").
		Where(sq.Eq{"uri": uri}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var id, kind, notificationsURL string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id, &kind, &notificationsURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	principal := &model.Principal{URI: uri, Kind: model.Individual, NotificationsURL: notificationsURL}
	switch kind {
	case model.Individual.String():
	case model.Group.String():
		principal.Kind = model.Group
		principal.Members, err = GetGroupMembers(ctx, tx, id)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
	default:
		return nil, fmt.Errorf("%s: unrecognized principal kind: %s", wrapMsg, kind)
	}

	return principal, nil
}

// GetPrincipalURIByEmail obtains the URI of the principal with the given email address. An empty
// string is returned if there is no such principal.
func GetPrincipalURIByEmail(ctx context.Context, tx *sql.Tx, email string) (string, error) {
	wrapMsg := fmt.Sprintf("unable to look up the principal with email address `%s`", email)

	// Build the query.
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("uri").
		From("principals").
		Where("lower(email) = lower(?)", email).
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var uri string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&uri)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	return uri, nil
}
