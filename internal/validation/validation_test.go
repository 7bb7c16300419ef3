package validation

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatabaseError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType string
		field   string
	}{
		{
			name:    "tracked repository unique",
			err:     &pgconn.PgError{Code: "23505", ConstraintName: "tracked_repositories_github_repo_id_key"},
			errType: ErrorTypeUniqueViolation,
			field:   "github_repo_id",
		},
		{
			name:    "team foreign key",
			err:     &pgconn.PgError{Code: "23503", ConstraintName: "installations_team_id_fkey"},
			errType: ErrorTypeForeignKeyViolation,
			field:   "team_id",
		},
		{
			name:    "not null",
			err:     &pgconn.PgError{Code: "23502", ColumnName: "account_login"},
			errType: ErrorTypeNotNullViolation,
			field:   "account_login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseDatabaseError(tt.err)
			var dbErr *DatabaseError
			require.True(t, errors.As(err, &dbErr))
			assert.Equal(t, tt.errType, dbErr.Type)
			assert.Equal(t, tt.field, dbErr.Field)
		})
	}
}

func TestParseDatabaseError_Passthrough(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, ParseDatabaseError(plain))
	assert.NoError(t, ParseDatabaseError(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(ParseDatabaseError(&pgconn.PgError{Code: "23505", ConstraintName: "installations_installation_id_key"})))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestValidator(t *testing.T) {
	err := New().
		PositiveID("installation.id", 0).
		Required("installation.account.login", " ").
		OneOf("installation.account.type", "Bot", []string{"User", "Organization"}).
		Validate()

	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs.Errors, 3)
	assert.Equal(t, "installation.id", verrs.Errors[0].Field)

	assert.NoError(t, New().PositiveID("installation.id", 1).Required("login", "acme").Validate())
}
