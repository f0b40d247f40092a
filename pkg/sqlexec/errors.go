package sqlexec

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ErrorKind classifies execution failures for operators
type ErrorKind string

const (
	// KindAuth means the store rejected the credentials.
	KindAuth ErrorKind = "auth"
	// KindMissingDatabase means the configured database does not exist.
	KindMissingDatabase ErrorKind = "missing_database"
	// KindStatement means a statement of the batch failed.
	KindStatement ErrorKind = "statement"
	// KindDriver covers every other driver or connection failure.
	KindDriver ErrorKind = "driver"
)

// MySQL server error numbers
const (
	mysqlAccessDenied           = 1045
	mysqlAccessDeniedNoPassword = 1698
	mysqlBadDatabase            = 1049
)

// ExecutionError is returned when the batch could not be committed
type ExecutionError struct {
	Kind ErrorKind
	// State is the session state the failure happened in
	State State
	// Index is the failing statement's position, -1 when no statement was involved
	Index     int
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s error at statement %d (%q): %v", e.Kind, e.Index, e.Statement, e.Err)
	}

	return fmt.Sprintf("%s error while %s: %v", e.Kind, e.State, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Classify maps a driver error to an ErrorKind
func Classify(err error) ErrorKind {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlAccessDenied, mysqlAccessDeniedNoPassword:
			return KindAuth
		case mysqlBadDatabase:
			return KindMissingDatabase
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "invalid_password", "invalid_authorization_specification":
			return KindAuth
		case "invalid_catalog_name":
			return KindMissingDatabase
		}
	}

	return KindDriver
}
