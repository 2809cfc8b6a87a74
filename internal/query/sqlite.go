package query

import (
	"database/sql/driver"
	"strings"

	gosqlite "github.com/glebarez/go-sqlite"
)

// foldFunc is a Unicode-aware lower() for SQLite, whose built-in LOWER only
// folds ASCII letters. It is registered on the pure-Go driver and is
// available on every connection opened afterwards.
const foldFunc = "unicode_lower"

func init() {
	gosqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, foldLower)
}

func foldLower(_ *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}
