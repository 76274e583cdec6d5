// Package database opens the MySQL connection pool and owns the schema.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config locates the MySQL database.
type Config struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN returns the driver data source name for c.
func (c Config) DSN() string {
	return c.mysqlConfig().FormatDSN()
}

// MigrationDSN is DSN with multi-statement queries enabled, as migration
// files hold several statements each.
func (c Config) MigrationDSN() string {
	mc := c.mysqlConfig()
	mc.MultiStatements = true
	return mc.FormatDSN()
}

func (c Config) mysqlConfig() *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Pass
	mc.Net = "tcp"
	mc.Addr = c.Host + ":" + c.Port
	mc.DBName = c.Name
	// DATETIME -> time.Time in UTC
	mc.ParseTime = true
	mc.Loc = time.UTC
	// RowsAffected counts matched rows, so an idempotent UPDATE still reports
	// that the row exists
	mc.ClientFoundRows = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc
}

// Open connects to MySQL and verifies the connection.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
