package sqlite

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

const (
	WALEnabled  = "_journal_mode=WAL"
	BusyTimeout = "_busy_timeout=5000"
	InMemory    = ":memory:"
)

type DataSourceOptions struct {
	WALEnabled bool
}

// New returns a new sqlite DB instance with migrated DB scheme to the latest version.
// migrations is a file system holding golang-migrate style "N_name.up.sql" files.
func New(dataSourceName string, migrations fs.FS, dataSourceOptions DataSourceOptions) (*sqlx.DB, error) {
	params := []string{BusyTimeout}
	if dataSourceOptions.WALEnabled {
		params = append(params, WALEnabled)
	}
	dsn := dataSourceName
	if dataSourceName != InMemory {
		dsn += "?" + strings.Join(params, "&")
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %v", err)
	}
	if dataSourceName == InMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	sourceDriver, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to init DB source driver: %v", err)
	}

	dbDriver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to init DB migration driver: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB migration instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("failed to migrate DB to the latest version: %v", err)
	}

	return db, nil
}
