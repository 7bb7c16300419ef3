package validation

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// DatabaseError is a constraint failure translated into a readable message
type DatabaseError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (de *DatabaseError) Error() string {
	return de.Message
}

const (
	ErrorTypeUniqueViolation     = "unique_violation"
	ErrorTypeForeignKeyViolation = "foreign_key_violation"
	ErrorTypeNotNullViolation    = "not_null_violation"
	ErrorTypeCheckViolation      = "check_violation"
)

// PostgreSQL SQLSTATE codes handled by ParseDatabaseError
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
)

// ParseDatabaseError converts constraint violations into DatabaseError values.
// Any other error is returned unchanged.
func ParseDatabaseError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return uniqueViolation(pgErr)
	case codeForeignKeyViolation:
		return &DatabaseError{
			Type:    ErrorTypeForeignKeyViolation,
			Message: "referenced " + referencedEntity(pgErr.ConstraintName) + " does not exist",
			Field:   parseFieldFromConstraint(pgErr.ConstraintName),
		}
	case codeNotNullViolation:
		field := pgErr.ColumnName
		if field == "" {
			field = parseFieldFromConstraint(pgErr.ConstraintName)
		}
		return &DatabaseError{
			Type:    ErrorTypeNotNullViolation,
			Message: "required field is missing: " + field,
			Field:   field,
		}
	case codeCheckViolation:
		return &DatabaseError{
			Type:    ErrorTypeCheckViolation,
			Message: "value rejected by constraint " + pgErr.ConstraintName,
		}
	}
	return err
}

func uniqueViolation(pgErr *pgconn.PgError) error {
	var message string
	switch {
	case strings.HasPrefix(pgErr.ConstraintName, "installations_active_account"):
		message = "account already has an active installation"
	case strings.Contains(pgErr.ConstraintName, "installation_id"):
		message = "installation already exists"
	case strings.Contains(pgErr.ConstraintName, "github_repo_id"):
		message = "repository is already tracked"
	default:
		message = "value already exists"
	}

	return &DatabaseError{
		Type:    ErrorTypeUniqueViolation,
		Message: message,
		Field:   parseFieldFromConstraint(pgErr.ConstraintName),
	}
}

// referencedEntity guesses the parent table from a foreign key name such as
// "installations_team_id_fkey".
func referencedEntity(constraintName string) string {
	field := parseFieldFromConstraint(constraintName)
	if field == "" {
		return "record"
	}
	return strings.TrimSuffix(field, "_id")
}

// parseFieldFromConstraint extracts the column from a constraint name using
// the PostgreSQL naming convention <table>_<column>_<suffix>.
// Example: "tracked_repositories_github_repo_id_key" -> "github_repo_id"
func parseFieldFromConstraint(constraintName string) string {
	if constraintName == "" {
		return ""
	}

	for _, table := range []string{"installations_", "tracked_repositories_", "pull_requests_", "teams_"} {
		if strings.HasPrefix(constraintName, table) {
			rest := strings.TrimPrefix(constraintName, table)
			if i := strings.LastIndex(rest, "_"); i > 0 {
				return rest[:i]
			}
			return rest
		}
	}

	parts := strings.Split(constraintName, "_")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return constraintName
}

// IsUniqueViolation checks if an error is a unique constraint violation
func IsUniqueViolation(err error) bool {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr.Type == ErrorTypeUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}

	return false
}
