package errs

// codes.go assigns support codes to persistence failures.
//
// Codes are looked up first by PostgreSQL SQLSTATE, then by case-insensitive
// message pattern. The first match wins, so specific patterns come first.
//
//	DB001 - Unique violation that could not be resolved by fetching
//	DB002 - Foreign key violation
//	DB003 - Not-null or check violation
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout or cancelled statement
//	DB007 - Deadlock or serialization failure
//	DB008 - Invalid input value for a column type
//	DB000 - Anything else

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var sqlStateCodes = map[string]string{
	"23505": "DB001",
	"23503": "DB002",
	"23502": "DB003",
	"23514": "DB003",
	"57014": "DB006",
	"40P01": "DB007",
	"40001": "DB007",
	"22007": "DB008",
	"22008": "DB008",
	"22P02": "DB008",
}

type errorPattern struct {
	pattern string
	code    string
}

var errorPatterns = []errorPattern{
	{pattern: "duplicate key", code: "DB001"},
	{pattern: "violates unique", code: "DB001"},
	{pattern: "violates foreign key", code: "DB002"},
	{pattern: "violates not-null", code: "DB003"},
	{pattern: "connection refused", code: "DB004"},
	{pattern: "connection reset", code: "DB005"},
	{pattern: "timeout", code: "DB006"},
	{pattern: "context deadline exceeded", code: "DB006"},
	{pattern: "deadlock", code: "DB007"},
	{pattern: "invalid input syntax", code: "DB008"},
}

// CodeFor returns the support code for a persistence failure.
func CodeFor(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := sqlStateCodes[pgErr.Code]; ok {
			return code
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(msg, p.pattern) {
			return p.code
		}
	}
	return "DB000"
}
