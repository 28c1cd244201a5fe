package memory

import (
	"database/sql"
	"errors"
)

// DB exposes the internal *sql.DB for test helpers in memory_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FailQueries makes every subsequent read query return err.
func (s *Store) FailQueries(err error) {
	if err == nil {
		err = errors.New("forced query failure")
	}
	s.hooks.queryIt = func(queryer, string, ...any) (rowScanner, error) {
		return nil, err
	}
}

// FailExec makes every subsequent write return err.
func (s *Store) FailExec(err error) {
	s.hooks.exec = func(execer, string, ...any) (sql.Result, error) {
		return nil, err
	}
}

// SanitizeFTS exposes sanitizeFTS for table tests.
var SanitizeFTS = sanitizeFTS
