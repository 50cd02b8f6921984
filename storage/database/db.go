package database

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/storage/database/migrations"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

func openPostgres(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.SuperUser != "" {
		user = url.UserPassword(conf.Database.SuperUser, conf.Database.SuperPass)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   EnginePostgres,
		User:     user,
		Host:     conf.Database.Host,
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sql.Open("postgres", u.String())
}

// OpenSQLite opens the SQLite database at path. A single connection is used:
// SQLite serializes writers anyway, and an in-memory database lives in one connection.
func OpenSQLite(path string) (*sqlx.DB, error) {
	q := make(url.Values)
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_time_format", "sqlite")

	db, err := sql.Open("sqlite", path+"?"+q.Encode())
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	db.SetMaxOpenConns(1)
	// the sqlite3 driver name selects the `?` bind type
	return sqlx.NewDb(db, "sqlite3"), nil
}

// Open opens the application database for the configured engine.
func Open(conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case EngineSQLite:
		return OpenSQLite(conf.Database.Path)
	case EnginePostgres, "":
		db, err := openPostgres(conf.Database.Name, false, conf)
		if err != nil {
			return nil, errors.Wrap(err, "opening postgres database")
		}
		return sqlx.NewDb(db, "postgres"), nil
	}
	return nil, fmt.Errorf("unsupported database engine %q", conf.Database.Engine)
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sql.DB, query string, arg interface{}) (bool, error) {
	var found bool
	rows, err := db.Query(query, arg)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err = rows.Scan(&found); err != nil {
			return false, err
		}
	}
	return found, rows.Err()
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		if _, err = db.Exec(createUserStmt(conf.Database.User, conf.Database.Password)); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

// createUserStmt quotes by hand since identifiers and passwords cannot be bound in DDL.
func createUserStmt(user, pwd string) string {
	return fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s", pq.QuoteIdentifier(user), pq.QuoteLiteral(pwd))
}

func createDBStmt(name string) string {
	return "CREATE DATABASE " + pq.QuoteIdentifier(name)
}

func createDB(db *sql.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(createDBStmt(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user and database on postgres. It is a no-op for SQLite.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.Engine == EngineSQLite {
		return nil
	}

	// connect as admin
	db, err := openPostgres("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := openPostgres("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return errors.Wrap(createDB(appDB, conf), "creating database")
}

// Dialect returns the goose dialect of db.
func Dialect(db *sqlx.DB) string {
	if db.DriverName() == "sqlite3" {
		return "sqlite3"
	}
	return "postgres"
}

// PrepareMigrations points goose at the embedded migrations for the dialect of db.
func PrepareMigrations(db *sqlx.DB, logger ...*log.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if len(logger) > 0 && logger[0] != nil {
		goose.SetLogger(logger[0])
	}
	return errors.Wrap(goose.SetDialect(Dialect(db)), "setting migrations dialect")
}

// Migrate applies every pending migration.
func Migrate(db *sqlx.DB, logger ...*log.Logger) error {
	if err := PrepareMigrations(db, logger...); err != nil {
		return err
	}
	if err := goose.Up(db.DB, "."); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
