package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrum-club/internal/apperr"
)

func TestEnrollmentDecrementExhausts(t *testing.T) {
	e := &Enrollment{ID: 1, SessionsPurchased: 10, SessionsRemaining: 1, Status: EnrollmentActive}
	now := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, e.Decrement(now))
	assert.Equal(t, 0, e.SessionsRemaining)
	assert.Equal(t, EnrollmentExhausted, e.Status)
	assert.Equal(t, now, *e.LastAttendedAt)

	err := e.Decrement(now)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	require.NoError(t, e.Refund())
	assert.Equal(t, 1, e.SessionsRemaining)
	assert.Equal(t, EnrollmentActive, e.Status)
}

func TestEnrollmentRefundKeepsCancelled(t *testing.T) {
	e := &Enrollment{ID: 2, SessionsPurchased: 5, SessionsRemaining: 3, Status: EnrollmentCancelled}

	require.NoError(t, e.Refund())
	assert.Equal(t, 4, e.SessionsRemaining)
	assert.Equal(t, EnrollmentCancelled, e.Status)
}

func TestEnrollmentRefundBoundedByPurchased(t *testing.T) {
	e := &Enrollment{ID: 3, SessionsPurchased: 5, SessionsRemaining: 5, Status: EnrollmentActive}

	err := e.Refund()
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
	assert.Equal(t, 5, e.SessionsRemaining)
}

func TestEnrollmentConservation(t *testing.T) {
	e := &Enrollment{ID: 4, SessionsPurchased: 8, SessionsRemaining: 8, Status: EnrollmentActive}
	now := time.Now()

	for i := 0; i < 8; i++ {
		require.NoError(t, e.Decrement(now))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Refund())
	}

	assert.Equal(t, 8-(8-3), e.SessionsRemaining)
	assert.Equal(t, EnrollmentActive, e.Status)
}
