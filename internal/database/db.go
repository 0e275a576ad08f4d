package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/autoshop-identity/internal/config"
)

// Open connects to the configured database and verifies the connection.
// MySQL is the production driver; SQLite is for local development.
func Open(cfg config.DBConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "mysql":
		db, err = sql.Open("mysql", mysqlDSN(cfg))
	case "sqlite":
		db, err = sql.Open("sqlite", SQLiteDSN(cfg.Path))
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	// Pool settings
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SQLiteDSN enables foreign keys and writes times in the sortable SQLite
// format so expires_at comparisons work on the stored text.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}

// mysqlDSN builds the DSN.  ParseTime maps DATETIME to time.Time and loc=UTC
// keeps stored expiries comparable with time.Now().UTC().
func mysqlDSN(cfg config.DBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Pass
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	// Report matched rather than changed rows so single-row updates that
	// rewrite identical values are not mistaken for missing rows.
	mc.ClientFoundRows = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}
