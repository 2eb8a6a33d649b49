package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/service"
)

type Handler struct {
	scheduleService   service.ScheduleService
	attendanceService service.AttendanceService
	creditService     service.CreditService
	location          *time.Location
	logger            *zap.Logger
}

func NewHandler(
	scheduleService service.ScheduleService,
	attendanceService service.AttendanceService,
	creditService service.CreditService,
	location *time.Location,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		scheduleService:   scheduleService,
		attendanceService: attendanceService,
		creditService:     creditService,
		location:          location,
		logger:            logger.Named("web"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("GET /api/calendar", h.CalendarAPI)
	mux.HandleFunc("POST /api/materialize", h.Materialize)
	mux.HandleFunc("POST /api/programs/{id}/cancel-future", h.CancelFuture)
	mux.HandleFunc("POST /api/programs/{id}/rebuild", h.Rebuild)
	mux.HandleFunc("PATCH /api/slots/{id}", h.EditSlot)

	mux.HandleFunc("GET /api/occurrences/{id}/eligible", h.EligibleUsers)
	mux.HandleFunc("PUT /api/occurrences/{id}/attendance/{userID}", h.MarkAttendance)

	mux.HandleFunc("GET /api/users/{id}/hours", h.HoursAvailable)
	mux.HandleFunc("POST /api/users/{id}/consume", h.Consume)
	mux.HandleFunc("GET /api/users/{id}/consumptions", h.ConsumptionHistory)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CalendarAPI возвращает занятия за даты from..to (YYYY-MM-DD), по умолчанию на неделю вперед.
func (h *Handler) CalendarAPI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var programIDs []int64
	for _, raw := range q["program_id"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, fmt.Errorf("program_id %q: %w", raw, apperr.ErrInvalidArgument))
			return
		}
		programIDs = append(programIDs, id)
	}

	// сегодня по календарю клуба
	from := time.Now().In(h.location)
	to := from.AddDate(0, 0, 7)
	if err := parseDate(q.Get("from"), &from); err != nil {
		h.writeError(w, err)
		return
	}
	if err := parseDate(q.Get("to"), &to); err != nil {
		h.writeError(w, err)
		return
	}

	occurrences, err := h.scheduleService.ListOccurrences(r.Context(), programIDs, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if occurrences == nil {
		occurrences = []models.Occurrence{}
	}
	h.writeJSON(w, http.StatusOK, occurrences)
}

type windowRequest struct {
	ProgramIDs []int64 `json:"program_ids"`
	From       string  `json:"from"`
	To         string  `json:"to"`
}

func (req windowRequest) window() (time.Time, time.Time, error) {
	var from, to time.Time
	if req.From == "" || req.To == "" {
		return from, to, fmt.Errorf("from and to are required: %w", apperr.ErrInvalidArgument)
	}
	if err := parseDate(req.From, &from); err != nil {
		return from, to, err
	}
	if err := parseDate(req.To, &to); err != nil {
		return from, to, err
	}
	return from, to, nil
}

func (h *Handler) Materialize(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, to, err := req.window()
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.scheduleService.Materialize(r.Context(), req.ProgramIDs, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, materializeJSON(res))
}

func (h *Handler) CancelFuture(w http.ResponseWriter, r *http.Request) {
	programID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		From time.Time `json:"from"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.From.IsZero() {
		req.From = time.Now()
	}

	cancelled, err := h.scheduleService.CancelFuture(r.Context(), programID, req.From)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	programID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req windowRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, to, err := req.window()
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.scheduleService.RebuildWindow(r.Context(), programID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rebuildJSON(res))
}

type slotPatchRequest struct {
	CoachID   *int64  `json:"coach_id"`
	DayOfWeek *int    `json:"day_of_week"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	IsActive  *bool   `json:"is_active"`
}

func (req slotPatchRequest) patch() (models.SlotPatch, error) {
	patch := models.SlotPatch{CoachID: req.CoachID, DayOfWeek: req.DayOfWeek, IsActive: req.IsActive}
	for _, f := range []struct {
		raw *string
		dst **models.TimeOfDay
	}{
		{req.StartTime, &patch.StartTime},
		{req.EndTime, &patch.EndTime},
	} {
		if f.raw == nil {
			continue
		}
		t, err := models.ParseTimeOfDay(*f.raw)
		if err != nil {
			return patch, fmt.Errorf("%v: %w", err, apperr.ErrInvalidArgument)
		}
		*f.dst = &t
	}
	return patch, nil
}

func (h *Handler) EditSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req slotPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.scheduleService.EditSlot(r.Context(), slotID, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rebuildJSON(res))
}

func (h *Handler) EligibleUsers(w http.ResponseWriter, r *http.Request) {
	occurrenceID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	users, err := h.attendanceService.EligibleUsers(r.Context(), occurrenceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if users == nil {
		users = []models.EligibleUser{}
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	occurrenceID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req struct {
		Present  bool  `json:"present"`
		MarkerID int64 `json:"marker_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.attendanceService.MarkAttendance(r.Context(), occurrenceID, userID, req.Present, req.MarkerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"changed":    res.Changed,
		"enrollment": res.Enrollment,
	})
}

func (h *Handler) HoursAvailable(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	hours, err := h.creditService.HoursAvailable(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]float64{"hours_available": hours})
}

func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Amount  float64 `json:"amount"`
		AdminID int64   `json:"admin_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	left, err := h.creditService.Consume(r.Context(), userID, req.Amount, req.AdminID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]float64{"hours_available": left})
}

func (h *Handler) ConsumptionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, fmt.Errorf("limit %q: %w", raw, apperr.ErrInvalidArgument))
			return
		}
		limit = n
	}

	records, err := h.creditService.History(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []models.ConsumptionRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

func materializeJSON(res models.MaterializeResult) map[string]int {
	return map[string]int{
		"inserted":              res.Inserted,
		"updated":               res.Updated,
		"skipped_missing_coach": res.SkippedMissingCoach,
		"skipped_invalid":       res.SkippedInvalid,
	}
}

func rebuildJSON(res models.RebuildResult) map[string]any {
	return map[string]any{
		"cancelled":   res.Cancelled,
		"inserted":    res.Materialize.Inserted,
		"materialize": materializeJSON(res.Materialize),
	}
}

// parseDate читает YYYY-MM-DD. Сервис расписания берет из результата только дату.
func parseDate(raw string, dst *time.Time) error {
	if raw == "" {
		return nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return fmt.Errorf("date %q: %w", raw, apperr.ErrInvalidArgument)
	}
	*dst = d
	return nil
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, fmt.Errorf("%s %q: %w", name, r.PathValue(name), apperr.ErrInvalidArgument))
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, fmt.Errorf("decode body: %v: %w", err, apperr.ErrInvalidArgument))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Ошибка кодирования JSON", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Ошибка обработки запроса", zap.Error(err))
	}
	h.writeJSON(w, status, map[string]any{
		"error":     err.Error(),
		"retryable": apperr.IsRetryable(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
