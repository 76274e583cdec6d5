// Package repository holds the MySQL implementations of the persistence
// interfaces used by the auth core. Driver errors are wrapped with context;
// the sentinels below are the only errors callers are expected to inspect.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup or conditional update matched no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting a user whose email is taken.
var ErrEmailExists = errors.New("email already exists")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
