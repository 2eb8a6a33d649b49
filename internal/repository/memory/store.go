// Package memory - хранилище в памяти с теми же контрактами, что и репозитории
// на PostgreSQL. Используется в тестах сервисов.
package memory

import (
	"context"
	"database/sql"
	"maps"
	"sort"
	"sync"

	"spectrum-club/internal/models"
)

type txKey struct{}

// Store сериализует транзакции одним мьютексом и откатывает состояние, если fn
// вернула ошибку. Это сильнее, чем READ COMMITTED, но контракты сервисов не
// должны зависеть от слабых уровней изоляции.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID int64
	state  state
}

type state struct {
	users        map[int64]models.User
	memberships  map[int64]bool
	programs     map[int64]models.Program
	slots        map[int64]models.RecurringSlot
	occurrences  map[int64]models.Occurrence
	attendance   map[int64]models.Attendance
	enrollments  map[int64]models.Enrollment
	groupMembers map[int64][]int64
	buckets      map[int64]models.CreditBucket
	consumptions []models.ConsumptionRecord
	events       map[string]string
}

func NewStore() *Store {
	return &Store{state: state{
		users:        map[int64]models.User{},
		memberships:  map[int64]bool{},
		programs:     map[int64]models.Program{},
		slots:        map[int64]models.RecurringSlot{},
		occurrences:  map[int64]models.Occurrence{},
		attendance:   map[int64]models.Attendance{},
		enrollments:  map[int64]models.Enrollment{},
		groupMembers: map[int64][]int64{},
		buckets:      map[int64]models.CreditBucket{},
		events:       map[string]string{},
	}}
}

func (st state) clone() state {
	groups := make(map[int64][]int64, len(st.groupMembers))
	for k, v := range st.groupMembers {
		groups[k] = append([]int64(nil), v...)
	}
	return state{
		users:        maps.Clone(st.users),
		memberships:  maps.Clone(st.memberships),
		programs:     maps.Clone(st.programs),
		slots:        maps.Clone(st.slots),
		occurrences:  maps.Clone(st.occurrences),
		attendance:   maps.Clone(st.attendance),
		enrollments:  maps.Clone(st.enrollments),
		groupMembers: groups,
		buckets:      maps.Clone(st.buckets),
		consumptions: append([]models.ConsumptionRecord(nil), st.consumptions...),
		events:       maps.Clone(st.events),
	}
}

// WithinTx реализует database.Transactor.
func (s *Store) WithinTx(ctx context.Context, _ sql.IsolationLevel, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.state = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Фикстуры

func (s *Store) AddUser(user models.User, member bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == 0 {
		user.ID = s.id()
	}
	s.state.users[user.ID] = user
	s.state.memberships[user.ID] = member
	return user.ID
}

func (s *Store) SetMembership(userID int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.memberships[userID] = active
}

func (s *Store) AddProgram(program models.Program) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if program.ID == 0 {
		program.ID = s.id()
	}
	s.state.programs[program.ID] = program
	return program.ID
}

func (s *Store) AddSlot(slot models.RecurringSlot) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == 0 {
		slot.ID = s.id()
	}
	s.state.slots[slot.ID] = slot
	return slot.ID
}

func (s *Store) AddOccurrence(occurrence models.Occurrence) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if occurrence.ID == 0 {
		occurrence.ID = s.id()
	}
	s.state.occurrences[occurrence.ID] = occurrence
	return occurrence.ID
}

func (s *Store) AddGroupMember(userID, groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.groupMembers[userID] = append(s.state.groupMembers[userID], groupID)
}

// Снимки состояния для проверок

func (s *Store) Occurrences() []models.Occurrence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Occurrence, 0, len(s.state.occurrences))
	for _, o := range s.state.occurrences {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProgramID != out[j].ProgramID {
			return out[i].ProgramID < out[j].ProgramID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out
}

func (s *Store) Enrollment(id int64) models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.enrollments[id]
}

func (s *Store) AttendanceCount(enrollmentID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.state.attendance {
		if a.EnrollmentID == enrollmentID {
			n++
		}
	}
	return n
}

func (s *Store) Bucket(id int64) models.CreditBucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.buckets[id]
}

func (s *Store) Consumptions() []models.ConsumptionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ConsumptionRecord(nil), s.state.consumptions...)
}
