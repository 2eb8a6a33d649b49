package provisioning_service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/metrics"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository/memory"
	credit_service "spectrum-club/internal/service/credit"
	subscription_service "spectrum-club/internal/service/subscription"
)

type fixture struct {
	store   *memory.Store
	svc     *provisioningService
	metrics *metrics.Metrics
	user    int64
	program int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	m := metrics.NewNop()

	subscriptions := subscription_service.NewSubscriptionService(store, store.Enrollments(), store.Programs(), store.Users(), logger)
	credits := credit_service.NewCreditService(store, store.Credits(), store.Groups(), store.Users(), m, logger)
	svc := NewProvisioningService(store, store.Events(), subscriptions, credits, m, logger).(*provisioningService)

	return &fixture{
		store:   store,
		svc:     svc,
		metrics: m,
		user:    store.AddUser(models.User{FirstName: "Анна"}, true),
		program: store.AddProgram(models.Program{Name: "Бадминтон", IsActive: true}),
	}
}

func TestHandlePaymentSucceeded_SessionsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := models.PaymentSucceeded{
		EventID:   "pay-1",
		UserID:    f.user,
		Kind:      models.PackageSessions,
		ProgramID: &f.program,
		Sessions:  8,
	}

	applied, err := f.svc.HandlePaymentSucceeded(ctx, event)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = f.svc.HandlePaymentSucceeded(ctx, event)
	require.NoError(t, err)
	assert.False(t, applied, "redelivery must not grant a second package")

	users, err := f.store.AttendanceRepo().EligibleUsers(ctx, 0, f.program)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 8, users[0].SessionsRemaining)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProvisioningEvents.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProvisioningEvents.WithLabelValues("duplicate")))
}

func TestHandlePaymentSucceeded_HoursToGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := int64(50)
	f.store.AddGroupMember(f.user, group)

	applied, err := f.svc.HandlePaymentSucceeded(ctx, models.PaymentSucceeded{
		EventID: "pay-2",
		UserID:  f.user,
		Kind:    models.PackageHours,
		GroupID: &group,
		Hours:   10,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	hours, err := f.store.Credits().HoursAvailable(ctx, f.user, []int64{group})
	require.NoError(t, err)
	assert.Equal(t, 10.0, hours)
}

func TestHandlePaymentSucceeded_FailureLeavesEventUnprocessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := int64(404)
	event := models.PaymentSucceeded{
		EventID:   "pay-3",
		UserID:    f.user,
		Kind:      models.PackageSessions,
		ProgramID: &missing,
		Sessions:  8,
	}
	_, err := f.svc.HandlePaymentSucceeded(ctx, event)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	event.ProgramID = &f.program
	applied, err := f.svc.HandlePaymentSucceeded(ctx, event)
	require.NoError(t, err)
	assert.True(t, applied, "rolled back event must be applied on the next delivery")
}

func TestHandlePaymentSucceeded_RejectsMalformed(t *testing.T) {
	f := newFixture(t)

	for name, event := range map[string]models.PaymentSucceeded{
		"no id":      {UserID: f.user, Kind: models.PackageHours, Hours: 1},
		"no user":    {EventID: "x", Kind: models.PackageHours, Hours: 1},
		"no program": {EventID: "x", UserID: f.user, Kind: models.PackageSessions, Sessions: 1},
		"bad kind":   {EventID: "x", UserID: f.user, Kind: "gift"},
	} {
		_, err := f.svc.HandlePaymentSucceeded(context.Background(), event)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument, name)
	}
}
