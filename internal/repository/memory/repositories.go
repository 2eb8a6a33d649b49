package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
	"spectrum-club/internal/repository"
)

func (s *Store) Users() repository.UserRepository { return userRepo{s} }
func (s *Store) Programs() repository.ProgramRepository { return programRepo{s} }
func (s *Store) Slots() repository.WeekScheduleRepository { return slotRepo{s} }
func (s *Store) OccurrenceRepo() repository.OccurrenceRepository { return occurrenceRepo{s} }
func (s *Store) AttendanceRepo() repository.AttendanceRepository { return attendanceRepo{s} }
func (s *Store) Enrollments() repository.EnrollmentRepository { return enrollmentRepo{s} }
func (s *Store) Groups() repository.GroupRepository { return groupRepo{s} }
func (s *Store) Credits() repository.CreditRepository { return creditRepo{s} }
func (s *Store) Events() repository.EventRepository { return eventRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.state.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
	}
	return &u, nil
}

func (r userRepo) HasActiveMembership(_ context.Context, userID int64, _ time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.state.memberships[userID], nil
}

type programRepo struct{ s *Store }

func (r programRepo) GetByID(_ context.Context, id int64) (*models.Program, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.state.programs[id]
	if !ok {
		return nil, fmt.Errorf("program %d: %w", id, apperr.ErrNotFound)
	}
	return &p, nil
}

func (r programRepo) ActiveIDs(_ context.Context, ids []int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []int64
	for id, p := range r.s.state.programs {
		if p.IsActive && (len(ids) == 0 || slices.Contains(ids, id)) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

type slotRepo struct{ s *Store }

func (r slotRepo) GetByID(_ context.Context, id int64) (*models.RecurringSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.state.slots[id]
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", id, apperr.ErrNotFound)
	}
	return &slot, nil
}

func (r slotRepo) GetActiveByPrograms(_ context.Context, programIDs []int64) ([]models.RecurringSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.RecurringSlot
	for _, slot := range r.s.state.slots {
		if slot.IsActive && slices.Contains(programIDs, slot.ProgramID) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r slotRepo) UpdatePartial(_ context.Context, id int64, patch models.SlotPatch) error {
	if patch.Empty() {
		return fmt.Errorf("slot %d: empty patch: %w", id, apperr.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.state.slots[id]
	if !ok {
		return fmt.Errorf("slot %d: %w", id, apperr.ErrNotFound)
	}
	if patch.CoachID != nil {
		slot.CoachID = patch.CoachID
	}
	if patch.DayOfWeek != nil {
		slot.DayOfWeek = *patch.DayOfWeek
	}
	if patch.StartTime != nil {
		slot.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		slot.EndTime = *patch.EndTime
	}
	if patch.IsActive != nil {
		slot.IsActive = *patch.IsActive
	}
	r.s.state.slots[id] = slot
	return nil
}

type occurrenceRepo struct{ s *Store }

func (r occurrenceRepo) GetByID(_ context.Context, id int64) (*models.Occurrence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.state.occurrences[id]
	if !ok {
		return nil, fmt.Errorf("occurrence %d: %w", id, apperr.ErrNotFound)
	}
	return &o, nil
}

func (r occurrenceRepo) ListInWindow(_ context.Context, programIDs []int64, from, to time.Time) ([]models.Occurrence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Occurrence
	for _, o := range r.s.state.occurrences {
		if slices.Contains(programIDs, o.ProgramID) && !o.StartsAt.Before(from) && o.StartsAt.Before(to) {
			out = append(out, o)
		}
	}
	sortOccurrences(out)
	return out, nil
}

func (r occurrenceRepo) ListFutureActive(_ context.Context, programID int64, from time.Time) ([]models.Occurrence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Occurrence
	for _, o := range r.s.state.occurrences {
		if o.ProgramID == programID && !o.Cancelled && !o.StartsAt.Before(from) {
			out = append(out, o)
		}
	}
	sortOccurrences(out)
	return out, nil
}

func (r occurrenceRepo) InsertBatch(_ context.Context, occurrences []models.Occurrence) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range occurrences {
		for _, existing := range r.s.state.occurrences {
			if existing.Key() == o.Key() {
				return fmt.Errorf("occurrence %d at %s: %w", o.ProgramID, o.StartsAt, apperr.ErrConflict)
			}
		}
		o.ID = r.s.id()
		r.s.state.occurrences[o.ID] = o
	}
	return nil
}

func (r occurrenceRepo) UpdateBatch(_ context.Context, occurrences []models.Occurrence) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range occurrences {
		current, ok := r.s.state.occurrences[o.ID]
		if !ok {
			continue
		}
		current.SlotID = o.SlotID
		current.CoachID = o.CoachID
		current.EndsAt = o.EndsAt
		current.Cancelled = o.Cancelled
		r.s.state.occurrences[o.ID] = current
	}
	return nil
}

func (r occurrenceRepo) CancelUnprotected(_ context.Context, ids []int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, id := range ids {
		o, ok := r.s.state.occurrences[id]
		if !ok || o.Cancelled || r.s.protectedLocked(id) {
			continue
		}
		o.Cancelled = true
		r.s.state.occurrences[id] = o
		n++
	}
	return n, nil
}

func (s *Store) protectedLocked(occurrenceID int64) bool {
	for _, a := range s.state.attendance {
		if a.OccurrenceID == occurrenceID {
			return true
		}
	}
	return false
}

func sortOccurrences(out []models.Occurrence) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProgramID != out[j].ProgramID {
			return out[i].ProgramID < out[j].ProgramID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
}

type attendanceRepo struct{ s *Store }

func (r attendanceRepo) Get(_ context.Context, occurrenceID, userID int64) (*models.Attendance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.state.attendance {
		if a.OccurrenceID == occurrenceID && a.UserID == userID {
			return &a, nil
		}
	}
	return nil, nil
}

func (r attendanceRepo) Create(_ context.Context, attendance *models.Attendance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.state.attendance {
		if a.OccurrenceID == attendance.OccurrenceID && a.UserID == attendance.UserID {
			return fmt.Errorf("attendance %d/%d: %w", attendance.OccurrenceID, attendance.UserID, apperr.ErrConflict)
		}
	}
	attendance.ID = r.s.id()
	r.s.state.attendance[attendance.ID] = *attendance
	return nil
}

func (r attendanceRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.attendance[id]; !ok {
		return fmt.Errorf("attendance %d: %w", id, apperr.ErrNotFound)
	}
	delete(r.s.state.attendance, id)
	return nil
}

func (r attendanceRepo) ProtectedOccurrences(_ context.Context, ids []int64) (map[int64]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]bool)
	for _, id := range ids {
		if r.s.protectedLocked(id) {
			out[id] = true
		}
	}
	return out, nil
}

func (r attendanceRepo) EligibleUsers(_ context.Context, occurrenceID, programID int64) ([]models.EligibleUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.EligibleUser
	for _, e := range r.s.state.enrollments {
		if e.ProgramID != programID || e.Status != models.EnrollmentActive {
			continue
		}
		u := r.s.state.users[e.UserID]
		present := false
		for _, a := range r.s.state.attendance {
			if a.OccurrenceID == occurrenceID && a.UserID == e.UserID {
				present = true
			}
		}
		out = append(out, models.EligibleUser{
			UserID:            e.UserID,
			FirstName:         u.FirstName,
			LastName:          u.LastName,
			EnrollmentID:      e.ID,
			SessionsRemaining: e.SessionsRemaining,
			Present:           present,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type enrollmentRepo struct{ s *Store }

func (r enrollmentRepo) Create(_ context.Context, enrollment *models.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if enrollment.Status == models.EnrollmentActive {
		for _, e := range r.s.state.enrollments {
			if e.UserID == enrollment.UserID && e.ProgramID == enrollment.ProgramID && e.Status == models.EnrollmentActive {
				return fmt.Errorf("user %d already has an active enrollment in program %d: %w",
					enrollment.UserID, enrollment.ProgramID, apperr.ErrInvalidState)
			}
		}
	}
	enrollment.ID = r.s.id()
	enrollment.Revision = 0
	r.s.state.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (r enrollmentRepo) GetByID(_ context.Context, id int64) (*models.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.state.enrollments[id]
	if !ok {
		return nil, fmt.Errorf("enrollment %d: %w", id, apperr.ErrNotFound)
	}
	return &e, nil
}

func (r enrollmentRepo) GetActive(_ context.Context, userID, programID int64) (*models.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.state.enrollments {
		if e.UserID == userID && e.ProgramID == programID && e.Status == models.EnrollmentActive {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("active enrollment for user %d program %d: %w", userID, programID, apperr.ErrNotFound)
}

func (r enrollmentRepo) CompareAndUpdate(_ context.Context, enrollment *models.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.state.enrollments[enrollment.ID]
	if !ok || current.Revision != enrollment.Revision {
		return fmt.Errorf("enrollment %d revision %d: %w", enrollment.ID, enrollment.Revision, apperr.ErrConflict)
	}
	enrollment.Revision++
	r.s.state.enrollments[enrollment.ID] = *enrollment
	return nil
}

type groupRepo struct{ s *Store }

func (r groupRepo) ActiveGroupIDs(_ context.Context, userID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]int64(nil), r.s.state.groupMembers[userID]...), nil
}

type creditRepo struct{ s *Store }

func (r creditRepo) CreateBucket(_ context.Context, bucket *models.CreditBucket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	bucket.ID = r.s.id()
	bucket.CreatedAt = time.Now()
	r.s.state.buckets[bucket.ID] = *bucket
	return nil
}

func (r creditRepo) eligibleLocked(userID int64, groupIDs []int64) []models.CreditBucket {
	var out []models.CreditBucket
	for _, b := range r.s.state.buckets {
		if (b.GroupID == nil && b.OwnerUserID == userID) || (b.GroupID != nil && slices.Contains(groupIDs, *b.GroupID)) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r creditRepo) HoursAvailable(_ context.Context, userID int64, groupIDs []int64) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := 0.0
	for _, b := range r.eligibleLocked(userID, groupIDs) {
		total += b.HoursRemaining
	}
	return total, nil
}

func (r creditRepo) EligibleBucketIDs(_ context.Context, userID int64, groupIDs []int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for _, b := range r.eligibleLocked(userID, groupIDs) {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (r creditRepo) LockBuckets(ctx context.Context, ids []int64) ([]models.CreditBucket, error) {
	if !inTx(ctx) {
		return nil, fmt.Errorf("lock buckets outside of a transaction: %w", apperr.ErrInvalidState)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.CreditBucket
	for _, id := range ids {
		if b, ok := r.s.state.buckets[id]; ok {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r creditRepo) Debit(_ context.Context, bucketID int64, amount float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.state.buckets[bucketID]
	if !ok || b.HoursRemaining < amount {
		return fmt.Errorf("bucket %d cannot cover %.1fh: %w", bucketID, amount, apperr.ErrConflict)
	}
	b.HoursRemaining -= amount
	r.s.state.buckets[bucketID] = b
	return nil
}

func (r creditRepo) AppendConsumption(_ context.Context, record *models.ConsumptionRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	record.ID = r.s.id()
	r.s.state.consumptions = append(r.s.state.consumptions, *record)
	return nil
}

func (r creditRepo) History(_ context.Context, userID int64, limit int) ([]models.ConsumptionRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ConsumptionRecord
	for i := len(r.s.state.consumptions) - 1; i >= 0 && len(out) < limit; i-- {
		if c := r.s.state.consumptions[i]; c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type eventRepo struct{ s *Store }

func (r eventRepo) MarkProcessed(_ context.Context, eventID, eventKey string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.events[eventID]; ok {
		return false, nil
	}
	r.s.state.events[eventID] = eventKey
	return true, nil
}
