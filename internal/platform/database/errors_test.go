package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "no rows", err: sql.ErrNoRows, notFound: true},
		{name: "bad conn", err: driver.ErrBadConn, unavailable: true},
		{name: "duplicate", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, conflict: true},
		{name: "deadlock", err: &mysql.MySQLError{Number: 1213}, conflict: true},
		{name: "missing parent", err: &mysql.MySQLError{Number: 1452}, notFound: true},
		{name: "too many connections", err: &mysql.MySQLError{Number: 1040}, unavailable: true},
		{name: "other", err: errors.New("boom")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := WrapError("items.find", tc.err)
			var repoErr *Error
			require.ErrorAs(t, err, &repoErr)
			assert.Equal(t, tc.notFound, repoErr.IsNotFound())
			assert.Equal(t, tc.conflict, repoErr.IsConflict())
			assert.Equal(t, tc.unavailable, repoErr.IsUnavailable())
			assert.ErrorIs(t, err, tc.err)
			assert.Contains(t, err.Error(), "items.find")
		})
	}
}

func TestWrapErrorPassesThroughContextErrors(t *testing.T) {
	t.Parallel()

	assert.Nil(t, WrapError("op", nil))
	assert.Same(t, context.Canceled, WrapError("op", context.Canceled))

	wrapped := fmt.Errorf("query: %w", context.DeadlineExceeded)
	assert.Equal(t, wrapped, WrapError("op", wrapped))
}

func TestRetryableAndDuplicate(t *testing.T) {
	t.Parallel()

	deadlock := WrapError("orders.insert", &mysql.MySQLError{Number: 1213})
	assert.True(t, IsRetryable(deadlock))
	assert.False(t, IsDuplicate(deadlock))

	dup := fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062})
	assert.True(t, IsDuplicate(dup))
	assert.False(t, IsRetryable(dup))

	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	err := NotFound("orders.find", "order 7 not found")
	var repoErr *Error
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
	assert.Equal(t, "orders.find: order 7 not found", err.Error())
}

func TestUnitOfWorkRejectsNilInputs(t *testing.T) {
	t.Parallel()

	var uow *UnitOfWork
	require.Error(t, uow.RunInTx(context.Background(), func(context.Context) error { return nil }))
	assert.False(t, InTx(context.Background()))
}
