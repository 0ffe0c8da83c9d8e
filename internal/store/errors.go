package store

import (
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/matviet/outbound-cli/internal/resilience"
)

// classifyPG tags a Postgres error as transient or validation by SQLSTATE
// class and wraps it with the failed action. Unknown errors keep their
// original chain so resilience.IsTransient can still match on it.
func classifyPG(err error, action string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := pgErr.Code
		if len(class) > 2 {
			class = class[:2]
		}
		switch class {
		case "08", "53", "57", "40":
			// connection exception, insufficient resources, operator
			// intervention (includes statement timeout), transaction rollback
			return eris.Wrap(resilience.NewTransientError(err, pgErr.Code), "postgres: "+action)
		case "22", "23":
			return eris.Wrap(resilience.NewValidationError(err, pgErr.Code), "postgres: "+action)
		}
		return eris.Wrap(err, "postgres: "+action)
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return eris.Wrap(resilience.NewTransientError(err, ""), "postgres: "+action)
	}
	return eris.Wrap(err, "postgres: "+action)
}

// classifySQLite maps SQLite primary result codes onto the same taxonomy.
func classifySQLite(err error, action string) error {
	if err == nil {
		return nil
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return eris.Wrap(resilience.NewTransientError(err, strconv.Itoa(sqErr.Code())), "sqlite: "+action)
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
			return eris.Wrap(resilience.NewValidationError(err, strconv.Itoa(sqErr.Code())), "sqlite: "+action)
		}
	}
	return eris.Wrap(err, "sqlite: "+action)
}
