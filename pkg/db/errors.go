package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgconn"
)

// IsUniqueViolation reports whether err is a unique-constraint failure,
// optionally on a specific constraint. The postgres driver is recognized by
// its error code; the sqlite driver used in tests by message. The whole
// unwrap chain is inspected, so wrapped repository errors still match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraintName == "" || strings.Contains(pgErr.ConstraintName, constraintName)
	}

	for chain := err; chain != nil; chain = errors.Unwrap(chain) {
		msg := chain.Error()
		if !strings.Contains(msg, "duplicate key value") &&
			!strings.Contains(msg, "UNIQUE constraint failed") {
			continue
		}
		return constraintName == "" || strings.Contains(msg, constraintName)
	}
	return false
}
