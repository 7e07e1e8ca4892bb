package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestHandlePostgresError(t *testing.T) {
	r := New(nil)

	err := r.handlePostgresError("put image", &pgconn.PgError{Code: "42P01", Message: "relation \"image\" does not exist"})
	assert.Contains(t, err.Error(), "migration required")

	err = r.handlePostgresError("put image", &pgconn.PgError{Code: "23502", ColumnName: "filename"})
	assert.Contains(t, err.Error(), "required field filename")

	err = r.handlePostgresError("get image", &pgconn.PgError{Code: "40001", Message: "serialization failure"})
	assert.Contains(t, err.Error(), "code: 40001")

	cause := errors.New("conn closed")
	err = r.handlePostgresError("get image", cause)
	assert.ErrorIs(t, err, cause)
}
