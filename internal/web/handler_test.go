package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/metrics"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository/memory"
	attendance_service "spectrum-club/internal/service/attendance"
	credit_service "spectrum-club/internal/service/credit"
	schedule_service "spectrum-club/internal/service/schedule"
	user_service "spectrum-club/internal/service/user"
)

type nopNotifier struct{}

func (nopNotifier) EnrollmentExhausted(context.Context, models.Enrollment) error { return nil }

type server struct {
	store   *memory.Store
	mux     *http.ServeMux
	program int64
	member  int64
	guest   int64
}

func newServer(t *testing.T) *server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	m := metrics.NewNop()

	schedule := schedule_service.NewScheduleService(store, store.Programs(), store.Slots(), store.OccurrenceRepo(), store.AttendanceRepo(),
		schedule_service.Options{Location: time.UTC, HorizonDays: 14}, m, logger)
	guard := user_service.NewMembershipGuard(store.Users(), logger)
	attendance := attendance_service.NewAttendanceService(store, store.AttendanceRepo(), store.OccurrenceRepo(), store.Enrollments(), guard, nopNotifier{}, m, logger)
	credits := credit_service.NewCreditService(store, store.Credits(), store.Groups(), store.Users(), m, logger)

	mux := http.NewServeMux()
	NewHandler(schedule, attendance, credits, time.UTC, logger).Register(mux)

	s := &server{store: store, mux: mux}
	s.program = store.AddProgram(models.Program{Name: "Бадминтон", IsActive: true})
	coach := int64(7)
	store.AddSlot(models.RecurringSlot{
		ProgramID: s.program,
		DayOfWeek: 1,
		StartTime: models.TimeOfDay{Hour: 18},
		EndTime:   models.TimeOfDay{Hour: 19},
		CoachID:   &coach,
		IsActive:  true,
	})
	s.member = store.AddUser(models.User{FirstName: "Анна"}, true)
	s.guest = store.AddUser(models.User{FirstName: "Иван"}, false)
	return s
}

func (s *server) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestHandler_MaterializeAndCalendar(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/api/materialize", `{"from":"2024-01-01","to":"2024-01-14"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, body["inserted"])

	req := httptest.NewRequest(http.MethodGet, "/api/calendar?from=2024-01-01&to=2024-01-14", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var occurrences []models.Occurrence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &occurrences))
	assert.Len(t, occurrences, 2)

	code, _ = s.do(t, http.MethodPost, "/api/materialize", `{"from":"2024-01-14","to":"2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_MarkAttendance(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	startsAt := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	occurrence := s.store.AddOccurrence(models.Occurrence{ProgramID: s.program, SlotID: 1, CoachID: 7, StartsAt: startsAt, EndsAt: startsAt.Add(time.Hour)})
	require.NoError(t, s.store.Enrollments().Create(ctx, &models.Enrollment{
		UserID: s.member, ProgramID: s.program, SessionsPurchased: 2, SessionsRemaining: 2, Status: models.EnrollmentActive,
	}))

	path := func(user int64) string {
		return "/api/occurrences/" + itoa(occurrence) + "/attendance/" + itoa(user)
	}

	code, body := s.do(t, http.MethodPut, path(s.member), `{"present":true,"marker_id":7}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["changed"])

	code, body = s.do(t, http.MethodPut, path(s.guest), `{"present":true,"marker_id":7}`)
	assert.Equal(t, http.StatusPreconditionFailed, code)
	assert.Equal(t, false, body["retryable"])

	code, _ = s.do(t, http.MethodPut, "/api/occurrences/abc/attendance/1", `{"present":true}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_Credits(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	require.NoError(t, s.store.Credits().CreateBucket(ctx, &models.CreditBucket{OwnerUserID: s.member, HoursRemaining: 1}))

	base := "/api/users/" + itoa(s.member)

	code, body := s.do(t, http.MethodPost, base+"/consume", `{"amount":0.5,"admin_id":99}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.5, body["hours_available"])

	code, _ = s.do(t, http.MethodPost, base+"/consume", `{"amount":1,"admin_id":99}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = s.do(t, http.MethodPost, base+"/consume", `{"amount":0.3,"admin_id":99}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodGet, base+"/hours", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.5, body["hours_available"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(apperr.ErrConflict))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(apperr.ErrInsufficientBalance))
	assert.Equal(t, http.StatusNotFound, statusFor(apperr.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
