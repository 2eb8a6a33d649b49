package schedule_service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/metrics"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
	"spectrum-club/internal/service"
	database "spectrum-club/pkg"
)

// maxWindowDays ограничивает окно материализации одним годом.
const maxWindowDays = 366

var tracer = otel.Tracer("spectrum-club/service/schedule")

// Options - часовой пояс клуба и горизонт перестройки после правки шаблона.
type Options struct {
	Location    *time.Location
	HorizonDays int
}

type trainingScheduleService struct {
	tx             database.Transactor
	programRepo    repository.ProgramRepository
	slotRepo       repository.WeekScheduleRepository
	occurrenceRepo repository.OccurrenceRepository
	attendanceRepo repository.AttendanceRepository
	opts           Options
	metrics        *metrics.Metrics
	logger         *zap.Logger
	now            func() time.Time
}

func NewScheduleService(
	tx database.Transactor,
	programRepo repository.ProgramRepository,
	slotRepo repository.WeekScheduleRepository,
	occurrenceRepo repository.OccurrenceRepository,
	attendanceRepo repository.AttendanceRepository,
	opts Options,
	m *metrics.Metrics,
	logger *zap.Logger,
) service.ScheduleService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &trainingScheduleService{
		tx:             tx,
		programRepo:    programRepo,
		slotRepo:       slotRepo,
		occurrenceRepo: occurrenceRepo,
		attendanceRepo: attendanceRepo,
		opts:           opts,
		metrics:        m,
		logger:         logger.Named("schedule"),
		now:            time.Now,
	}
}

// Materialize строит занятия по активным шаблонам для дат [from, to] включительно.
// Повторный запуск с теми же шаблонами ничего не меняет.
func (s *trainingScheduleService) Materialize(ctx context.Context, programIDs []int64, from, to time.Time) (models.MaterializeResult, error) {
	ctx, span := tracer.Start(ctx, "schedule.Materialize")
	defer span.End()

	fromDay, toDay, err := s.window(from, to)
	if err != nil {
		return models.MaterializeResult{}, err
	}

	var res models.MaterializeResult
	err = s.tx.WithinTx(ctx, sql.LevelRepeatableRead, func(ctx context.Context) error {
		res, err = s.materialize(ctx, programIDs, fromDay, toDay)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.MaterializeResult{}, fmt.Errorf("materialize: %w", err)
	}

	s.observeMaterialize(res)
	span.SetAttributes(
		attribute.Int("occurrences.inserted", res.Inserted),
		attribute.Int("occurrences.updated", res.Updated),
	)
	s.logger.Info("Материализация завершена",
		zap.Int64s("programs", programIDs),
		zap.Time("from", fromDay),
		zap.Time("to", toDay),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped_missing_coach", res.SkippedMissingCoach),
		zap.Int("skipped_invalid", res.SkippedInvalid),
	)
	return res, nil
}

func (s *trainingScheduleService) materialize(ctx context.Context, programIDs []int64, fromDay, toDay time.Time) (models.MaterializeResult, error) {
	var res models.MaterializeResult

	active, err := s.programRepo.ActiveIDs(ctx, programIDs)
	if err != nil {
		return res, fmt.Errorf("load programs: %w", err)
	}
	if len(active) == 0 {
		return res, nil
	}

	slots, err := s.slotRepo.GetActiveByPrograms(ctx, active)
	if err != nil {
		return res, fmt.Errorf("load slots: %w", err)
	}

	// Одна выборка на все окно, дальше сверка идет по ключу в памяти
	existing, err := s.occurrenceRepo.ListInWindow(ctx, active, fromDay, toDay.AddDate(0, 0, 1))
	if err != nil {
		return res, fmt.Errorf("load occurrences: %w", err)
	}
	byKey := make(map[models.OccurrenceKey]*models.Occurrence, len(existing))
	for i := range existing {
		byKey[existing[i].Key()] = &existing[i]
	}

	seen := make(map[models.OccurrenceKey]struct{})
	var inserts, updates []models.Occurrence

	for _, slot := range slots {
		if slot.CoachID == nil {
			res.SkippedMissingCoach++
			s.logger.Warn("Шаблон без тренера пропущен", zap.Int64("slot_id", slot.ID))
			continue
		}
		weekday, ok := slot.Weekday()
		if !ok || slot.EndTime.Seconds() <= slot.StartTime.Seconds() {
			res.SkippedInvalid++
			s.logger.Warn("Некорректный шаблон пропущен",
				zap.Int64("slot_id", slot.ID),
				zap.Int("day_of_week", slot.DayOfWeek),
				zap.Stringer("start", slot.StartTime),
				zap.Stringer("end", slot.EndTime),
			)
			continue
		}

		for day := firstOnOrAfter(fromDay, weekday); !day.After(toDay); day = day.AddDate(0, 0, 7) {
			startsAt := slot.StartTime.On(day, s.opts.Location)
			endsAt := slot.EndTime.On(day, s.opts.Location)

			key := models.OccurrenceKey{ProgramID: slot.ProgramID, StartUnix: startsAt.Unix()}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			current, ok := byKey[key]
			if !ok {
				inserts = append(inserts, models.Occurrence{
					ProgramID: slot.ProgramID,
					SlotID:    slot.ID,
					CoachID:   *slot.CoachID,
					StartsAt:  startsAt,
					EndsAt:    endsAt,
				})
				continue
			}
			if reconcile(current, slot, endsAt) {
				updates = append(updates, *current)
			}
		}
	}

	if err := s.occurrenceRepo.InsertBatch(ctx, inserts); err != nil {
		return res, err
	}
	if err := s.occurrenceRepo.UpdateBatch(ctx, updates); err != nil {
		return res, err
	}

	res.Inserted = len(inserts)
	res.Updated = len(updates)
	return res, nil
}

// reconcile приводит существующее занятие к шаблону. Отмененное занятие, которое
// снова есть в расписании, восстанавливается.
func reconcile(o *models.Occurrence, slot models.RecurringSlot, endsAt time.Time) bool {
	changed := false
	if o.SlotID != slot.ID {
		o.SlotID = slot.ID
		changed = true
	}
	if o.CoachID != *slot.CoachID {
		o.CoachID = *slot.CoachID
		changed = true
	}
	if !o.EndsAt.Equal(endsAt) {
		o.EndsAt = endsAt
		changed = true
	}
	if o.Cancelled {
		o.Cancelled = false
		changed = true
	}
	return changed
}

func (s *trainingScheduleService) ListOccurrences(ctx context.Context, programIDs []int64, from, to time.Time) ([]models.Occurrence, error) {
	ctx, span := tracer.Start(ctx, "schedule.ListOccurrences")
	defer span.End()

	fromDay, toDay, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	active, err := s.programRepo.ActiveIDs(ctx, programIDs)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	return s.occurrenceRepo.ListInWindow(ctx, active, fromDay, toDay.AddDate(0, 0, 1))
}

// CancelFuture мягко отменяет будущие занятия программы, на которых еще никто не отмечен.
func (s *trainingScheduleService) CancelFuture(ctx context.Context, programID int64, from time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "schedule.CancelFuture")
	defer span.End()
	span.SetAttributes(attribute.Int64("program.id", programID))

	var cancelled int
	err := s.tx.WithinTx(ctx, sql.LevelReadCommitted, func(ctx context.Context) error {
		var err error
		cancelled, err = s.cancelFuture(ctx, programID, from)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("cancel future of program %d: %w", programID, err)
	}

	s.metrics.OccurrencesCancelled.Add(float64(cancelled))
	s.logger.Info("Будущие занятия отменены",
		zap.Int64("program_id", programID),
		zap.Time("from", from),
		zap.Int("cancelled", cancelled),
	)
	return cancelled, nil
}

func (s *trainingScheduleService) cancelFuture(ctx context.Context, programID int64, from time.Time) (int, error) {
	if _, err := s.programRepo.GetByID(ctx, programID); err != nil {
		return 0, err
	}

	future, err := s.occurrenceRepo.ListFutureActive(ctx, programID, from)
	if err != nil {
		return 0, err
	}
	if len(future) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(future))
	for i, o := range future {
		ids[i] = o.ID
	}

	protected, err := s.attendanceRepo.ProtectedOccurrences(ctx, ids)
	if err != nil {
		return 0, err
	}

	candidates := ids[:0]
	for _, id := range ids {
		if !protected[id] {
			candidates = append(candidates, id)
		}
	}
	return s.occurrenceRepo.CancelUnprotected(ctx, candidates)
}

// RebuildWindow = CancelFuture с начала дня from + Materialize той же программы,
// одной транзакцией.
func (s *trainingScheduleService) RebuildWindow(ctx context.Context, programID int64, from, to time.Time) (models.RebuildResult, error) {
	ctx, span := tracer.Start(ctx, "schedule.RebuildWindow")
	defer span.End()
	span.SetAttributes(attribute.Int64("program.id", programID))

	fromDay, toDay, err := s.window(from, to)
	if err != nil {
		return models.RebuildResult{}, err
	}

	var res models.RebuildResult
	err = s.tx.WithinTx(ctx, sql.LevelRepeatableRead, func(ctx context.Context) error {
		res, err = s.rebuild(ctx, programID, fromDay, fromDay, toDay)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.RebuildResult{}, fmt.Errorf("rebuild program %d: %w", programID, err)
	}

	s.metrics.OccurrencesCancelled.Add(float64(res.Cancelled))
	s.observeMaterialize(res.Materialize)
	s.logger.Info("Окно программы перестроено",
		zap.Int64("program_id", programID),
		zap.Time("from", fromDay),
		zap.Time("to", toDay),
		zap.Int("cancelled", res.Cancelled),
		zap.Int("inserted", res.Materialize.Inserted),
		zap.Int("updated", res.Materialize.Updated),
	)
	return res, nil
}

// rebuild отменяет занятия начиная с cancelFrom и материализует даты [fromDay, toDay].
func (s *trainingScheduleService) rebuild(ctx context.Context, programID int64, cancelFrom, fromDay, toDay time.Time) (models.RebuildResult, error) {
	var res models.RebuildResult
	var err error

	if res.Cancelled, err = s.cancelFuture(ctx, programID, cancelFrom); err != nil {
		return res, err
	}
	if res.Materialize, err = s.materialize(ctx, []int64{programID}, fromDay, toDay); err != nil {
		return res, err
	}
	return res, nil
}

// EditSlot применяет патч к шаблону и перестраивает его программу от сегодняшнего
// дня на HorizonDays вперед. Отменяются только занятия, которые еще не начались.
func (s *trainingScheduleService) EditSlot(ctx context.Context, slotID int64, patch models.SlotPatch) (models.RebuildResult, error) {
	ctx, span := tracer.Start(ctx, "schedule.EditSlot")
	defer span.End()
	span.SetAttributes(attribute.Int64("slot.id", slotID))

	if patch.Empty() {
		return models.RebuildResult{}, fmt.Errorf("slot %d: empty patch: %w", slotID, apperr.ErrInvalidArgument)
	}

	now := s.now().In(s.opts.Location)
	fromDay, toDay, err := s.window(now, now.AddDate(0, 0, s.opts.HorizonDays))
	if err != nil {
		return models.RebuildResult{}, err
	}

	var (
		res       models.RebuildResult
		programID int64
	)
	err = s.tx.WithinTx(ctx, sql.LevelRepeatableRead, func(ctx context.Context) error {
		slot, err := s.slotRepo.GetByID(ctx, slotID)
		if err != nil {
			return err
		}
		if err := validatePatch(*slot, patch); err != nil {
			return err
		}
		if err := s.slotRepo.UpdatePartial(ctx, slotID, patch); err != nil {
			return err
		}
		programID = slot.ProgramID
		res, err = s.rebuild(ctx, slot.ProgramID, now, fromDay, toDay)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.RebuildResult{}, fmt.Errorf("edit slot %d: %w", slotID, err)
	}

	s.metrics.OccurrencesCancelled.Add(float64(res.Cancelled))
	s.observeMaterialize(res.Materialize)
	s.logger.Info("Шаблон изменен",
		zap.Int64("slot_id", slotID),
		zap.Int64("program_id", programID),
		zap.Int("cancelled", res.Cancelled),
		zap.Int("inserted", res.Materialize.Inserted),
		zap.Int("updated", res.Materialize.Updated),
	)
	return res, nil
}

func validatePatch(slot models.RecurringSlot, patch models.SlotPatch) error {
	if patch.CoachID != nil && *patch.CoachID <= 0 {
		return fmt.Errorf("coach id %d: %w", *patch.CoachID, apperr.ErrInvalidArgument)
	}
	if patch.DayOfWeek != nil && (*patch.DayOfWeek < 1 || *patch.DayOfWeek > 7) {
		return fmt.Errorf("day of week %d: %w", *patch.DayOfWeek, apperr.ErrInvalidArgument)
	}

	start, end := slot.StartTime, slot.EndTime
	if patch.StartTime != nil {
		start = *patch.StartTime
	}
	if patch.EndTime != nil {
		end = *patch.EndTime
	}
	if end.Seconds() <= start.Seconds() {
		return fmt.Errorf("slot ends at %s before it starts at %s: %w", end, start, apperr.ErrInvalidArgument)
	}
	return nil
}

// window берет из границ только календарную дату (год, месяц, день) и
// переводит ее в полночь этой даты в часовом поясе клуба.
func (s *trainingScheduleService) window(from, to time.Time) (time.Time, time.Time, error) {
	fromDay := startOfDay(from, s.opts.Location)
	toDay := startOfDay(to, s.opts.Location)

	if toDay.Before(fromDay) {
		return time.Time{}, time.Time{}, fmt.Errorf("window %s..%s is reversed: %w",
			fromDay.Format(time.DateOnly), toDay.Format(time.DateOnly), apperr.ErrInvalidArgument)
	}
	if fromDay.AddDate(0, 0, maxWindowDays).Before(toDay) {
		return time.Time{}, time.Time{}, fmt.Errorf("window %s..%s exceeds %d days: %w",
			fromDay.Format(time.DateOnly), toDay.Format(time.DateOnly), maxWindowDays, apperr.ErrInvalidArgument)
	}
	return fromDay, toDay, nil
}

func (s *trainingScheduleService) observeMaterialize(res models.MaterializeResult) {
	s.metrics.OccurrencesMaterialized.WithLabelValues("inserted").Add(float64(res.Inserted))
	s.metrics.OccurrencesMaterialized.WithLabelValues("updated").Add(float64(res.Updated))
	s.metrics.OccurrencesMaterialized.WithLabelValues("skipped_missing_coach").Add(float64(res.SkippedMissingCoach))
	s.metrics.OccurrencesMaterialized.WithLabelValues("skipped_invalid").Add(float64(res.SkippedInvalid))
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func firstOnOrAfter(day time.Time, weekday time.Weekday) time.Time {
	delta := (int(weekday) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, delta)
}
