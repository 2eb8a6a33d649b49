package event

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkProcessedDetectsRedelivery(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	repo := NewEventRepository(sqlx.NewDb(raw, "postgres"))

	q := regexp.QuoteMeta("ON CONFLICT (event_id) DO NOTHING")
	mock.ExpectExec(q).WithArgs("pay_1", "payment.succeeded").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("pay_1", "payment.succeeded").WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.MarkProcessed(context.Background(), "pay_1", "payment.succeeded")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkProcessed(context.Background(), "pay_1", "payment.succeeded")
	require.NoError(t, err)
	assert.False(t, again)
	require.NoError(t, mock.ExpectationsWereMet())
}
