package repository

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"mysql username", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'email' for key 'principals.uq_principals_username'"}, ErrUsernameTaken},
		{"mysql email", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@x.com' for key 'principals.uq_principals_email'"}, ErrEmailTaken},
		{"mysql token", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ab' for key 'sessions.uq_sessions_access_token_hash'"}, ErrConflict},
		{"sqlite username", errors.New("constraint failed: UNIQUE constraint failed: principals.username (2067)"), ErrUsernameTaken},
		{"sqlite email", errors.New("constraint failed: UNIQUE constraint failed: principals.email (2067)"), ErrEmailTaken},
		{"other mysql", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, nil},
		{"other", errors.New("connection refused"), nil},
		{"nil", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := uniqueViolation(tc.err)
			if tc.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tc.want)
		})
	}
}
