// Package db provides a Postgres-backed store for resources, their properties and the principals that
// may subscribe to them.
package db

import (
	"database/sql"

	"github.com/cyverse-de/collection-notifier/common"
	"github.com/cyverse-de/dbutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = common.Log.WithFields(logrus.Fields{"package": "db"})

// InitDatabase establishes a database connection and verifies that the database can be reached.
func InitDatabase(driverName, databaseURI string) (*sql.DB, error) {
	wrapMsg := "unable to initialize the database"

	// Create a database connector to establish the connection.
	connector, err := dbutil.NewDefaultConnector("1m")
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Establish the database connection.
	db, err := connector.Connect(driverName, databaseURI)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	log.Infof("connected to the %s database", driverName)
	return db, nil
}
