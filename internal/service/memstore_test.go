package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

// memState is the whole fake database.
type memState struct {
	users        map[uint64]model.User
	profiles     map[uint64]model.StudentProfile
	rooms        map[uint64]model.Room
	semesters    map[uint64]model.Semester
	enrollments  map[uint64]model.Enrollment
	assignments  map[uint64]model.Assignment
	payments     map[uint64]model.Payment
	bookings     map[uint64]model.PublicBooking
	reservations map[uint64]model.RoomReservation
	nextID       uint64
}

func (s memState) clone() memState {
	return memState{
		users:        maps.Clone(s.users),
		profiles:     maps.Clone(s.profiles),
		rooms:        maps.Clone(s.rooms),
		semesters:    maps.Clone(s.semesters),
		enrollments:  maps.Clone(s.enrollments),
		assignments:  maps.Clone(s.assignments),
		payments:     maps.Clone(s.payments),
		bookings:     maps.Clone(s.bookings),
		reservations: maps.Clone(s.reservations),
		nextID:       s.nextID,
	}
}

// memStore implements every store port plus Transactor and
// CapabilityProvider.  Transactions are serialized and rolled back by
// restoring a snapshot, which is enough to observe atomicity.
type memStore struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	st     memState
	caps   repository.Capabilities
	capErr error
	// fail maps an operation name to the error it returns.
	fail     map[string]error
	txCount  int
	rollback int
	// calls records room lock and count calls in order.
	calls []string
}

func newMemStore() *memStore {
	return &memStore{
		st: memState{
			users:        map[uint64]model.User{},
			profiles:     map[uint64]model.StudentProfile{},
			rooms:        map[uint64]model.Room{},
			semesters:    map[uint64]model.Semester{},
			enrollments:  map[uint64]model.Enrollment{},
			assignments:  map[uint64]model.Assignment{},
			payments:     map[uint64]model.Payment{},
			bookings:     map[uint64]model.PublicBooking{},
			reservations: map[uint64]model.RoomReservation{},
			nextID:       1000,
		},
		caps: repository.FullCapabilities(),
		fail: map[string]error{},
	}
}

func (m *memStore) stores() Stores {
	return Stores{
		Users:        memUsers{m},
		Rooms:        memRooms{m},
		Semesters:    memSemesters{m},
		Enrollments:  memEnrollments{m},
		Assignments:  memAssignments{m},
		Payments:     memPayments{m},
		Bookings:     memBookings{m},
		Reservations: memReservations{m},
	}
}

func (m *memStore) id() uint64 {
	m.st.nextID++
	return m.st.nextID
}

func (m *memStore) failure(op string) error {
	return m.fail[op]
}

func (m *memStore) setFail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

func (m *memStore) Capabilities(context.Context) (repository.Capabilities, error) {
	return m.caps, m.capErr
}

type memTx struct{}

func (memTx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("memTx: raw SQL not supported")
}
func (memTx) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("memTx: raw SQL not supported")
}
func (memTx) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }

var _ database.DBTX = memTx{}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx database.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	snapshot := m.st.clone()
	m.txCount++
	err := m.failure("tx.begin")
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := fn(memTx{}); err != nil {
		m.mu.Lock()
		m.st = snapshot
		m.rollback++
		m.mu.Unlock()
		return err
	}
	return ctx.Err()
}

// seeding helpers

func (m *memStore) addRoom(r model.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Status == "" {
		r.Status = model.RoomAvailable
	}
	m.st.rooms[r.ID] = r
}

func (m *memStore) addSemester(s model.Semester) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.semesters[s.ID] = s
}

func (m *memStore) addUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.users[u.ID] = u
}

func (m *memStore) addProfile(p model.StudentProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.profiles[p.UserID] = p
}

func (m *memStore) addBooking(b model.PublicBooking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.bookings[b.ID] = b
}

func (m *memStore) addAssignment(a model.Assignment) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.id()
	}
	m.st.assignments[a.ID] = a
	return a.ID
}

func (m *memStore) addEnrollment(e model.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = m.id()
	}
	m.st.enrollments[e.ID] = e
}

func (m *memStore) addPayment(p model.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.st.payments[p.ID] = p
}

func (m *memStore) addReservation(r model.RoomReservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.reservations[r.ID] = r
}

// snapshot returns a copy of the committed state for assertions.
func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clone()
}

func (s memState) userByEmail(email string) (model.User, bool) {
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return model.User{}, false
}

func (s memState) activeAssignments(userID, semesterID uint64) []model.Assignment {
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.UserID == userID && a.Status == model.AssignmentActive && a.SemesterID != nil && *a.SemesterID == semesterID {
			out = append(out, a)
		}
	}
	return out
}

func (s memState) enrollmentsFor(userID, semesterID uint64) []model.Enrollment {
	var out []model.Enrollment
	for _, e := range s.enrollments {
		if e.UserID == userID && e.SemesterID == semesterID {
			out = append(out, e)
		}
	}
	return out
}

func (s memState) paymentsFor(userID uint64) []model.Payment {
	var out []model.Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

// users

type memUsers struct{ m *memStore }

func (u memUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.failure("users.find"); err != nil {
		return model.User{}, err
	}
	if usr, ok := u.m.st.userByEmail(repository.NormalizeEmail(email)); ok {
		return usr, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (u memUsers) FindByEmailTx(_ context.Context, _ database.DBTX, email string, _ bool) (model.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if usr, ok := u.m.st.userByEmail(repository.NormalizeEmail(email)); ok {
		return usr, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (u memUsers) CreateTx(_ context.Context, _ database.DBTX, usr *model.User) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.failure("users.create"); err != nil {
		return err
	}
	if _, ok := u.m.st.userByEmail(usr.Email); ok {
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'users.email'"}
	}
	usr.ID = u.m.id()
	usr.CreatedAt = time.Now().UTC()
	u.m.st.users[usr.ID] = *usr
	return nil
}

func (u memUsers) AffiliateTx(_ context.Context, _ database.DBTX, userID, hostelID uint64) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	usr := u.m.st.users[userID]
	if usr.HostelID == nil {
		usr.HostelID = &hostelID
		u.m.st.users[userID] = usr
	}
	return nil
}

func (u memUsers) FindProfileTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, userID uint64) (model.StudentProfile, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	p, ok := u.m.st.profiles[userID]
	if !ok {
		return model.StudentProfile{}, repository.ErrNotFound
	}
	return p, nil
}

func (u memUsers) SaveProfileTx(_ context.Context, _ database.DBTX, caps repository.Capabilities, p model.StudentProfile) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.failure("profiles.save"); err != nil {
		return err
	}
	if !caps.ProfileHasAccessNumber {
		p.AccessNumber = ""
	}
	u.m.st.profiles[p.UserID] = p
	return nil
}

func (u memUsers) ListStaff(_ context.Context, hostelID uint64) ([]model.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.failure("users.staff"); err != nil {
		return nil, err
	}
	var out []model.User
	for _, usr := range u.m.st.users {
		if (usr.Role == model.RoleHostelAdmin || usr.Role == model.RoleCustodian) && usr.HostelID != nil && *usr.HostelID == hostelID {
			out = append(out, usr)
		}
	}
	slices.SortFunc(out, func(a, b model.User) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

// rooms

type memRooms struct{ m *memStore }

func (r memRooms) GetByID(_ context.Context, id uint64) (model.Room, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rm, ok := r.m.st.rooms[id]
	if !ok {
		return model.Room{}, repository.ErrNotFound
	}
	return rm, nil
}

func (r memRooms) LockTx(_ context.Context, _ database.DBTX, ids []uint64) (map[uint64]model.Room, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failure("rooms.lock"); err != nil {
		return nil, err
	}
	r.m.calls = append(r.m.calls, fmt.Sprintf("lock %v", ids))
	out := map[uint64]model.Room{}
	for _, id := range ids {
		if rm, ok := r.m.st.rooms[id]; ok {
			out[id] = rm
		}
	}
	return out, nil
}

func (r memRooms) CountOccupantsTx(_ context.Context, _ database.DBTX, caps repository.Capabilities, roomID, excludeUserID uint64) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failure("rooms.count"); err != nil {
		return 0, err
	}
	r.m.calls = append(r.m.calls, fmt.Sprintf("count %d", roomID))
	st := r.m.st
	seen := map[uint64]bool{}
	for _, a := range st.assignments {
		if a.RoomID != roomID || a.Status != model.AssignmentActive || a.UserID == excludeUserID || seen[a.UserID] {
			continue
		}
		for _, e := range st.enrollments {
			if e.UserID != a.UserID {
				continue
			}
			if caps.AssignmentHasSemester {
				if a.SemesterID == nil || *a.SemesterID != e.SemesterID {
					continue
				}
			} else if e.RoomID == nil || *e.RoomID != a.RoomID {
				continue
			}
			if caps.EnrollmentHasBalance && e.Balance == nil {
				continue
			}
			paid := false
			for _, p := range st.payments {
				if p.UserID != a.UserID {
					continue
				}
				if !caps.PaymentHasSemester || p.SemesterID == nil || *p.SemesterID == e.SemesterID {
					paid = true
					break
				}
			}
			if paid {
				seen[a.UserID] = true
				break
			}
		}
	}
	return len(seen), nil
}

func (r memRooms) UpdateOccupancyTx(_ context.Context, _ database.DBTX, roomID uint64, occupancy int, status model.RoomStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.failure("rooms.update"); err != nil {
		return err
	}
	rm := r.m.st.rooms[roomID]
	rm.CurrentOccupancy = occupancy
	rm.Status = status
	rm.UpdatedAt = time.Now().UTC()
	r.m.st.rooms[roomID] = rm
	return nil
}

// semesters

type memSemesters struct{ m *memStore }

func (s memSemesters) GetByIDTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, id uint64, _ repository.RowLock) (model.Semester, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sem, ok := s.m.st.semesters[id]
	if !ok {
		return model.Semester{}, repository.ErrNotFound
	}
	return sem, nil
}

func (s memSemesters) list(pred func(model.Semester) bool) ([]model.Semester, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure("semesters.list"); err != nil {
		return nil, err
	}
	var out []model.Semester
	for _, id := range slices.Sorted(maps.Keys(s.m.st.semesters)) {
		if sem := s.m.st.semesters[id]; pred(sem) {
			out = append(out, sem)
		}
	}
	return out, nil
}

func day(t time.Time) string { return t.Format("2006-01-02") }

func (s memSemesters) ListEndedOpen(_ context.Context, _ repository.Capabilities, today time.Time) ([]model.Semester, error) {
	return s.list(func(sem model.Semester) bool {
		return (sem.Status == model.SemesterActive || sem.Status == model.SemesterUpcoming) && day(sem.EndDate) < day(today)
	})
}

func (s memSemesters) ListDueToActivate(_ context.Context, _ repository.Capabilities, today time.Time) ([]model.Semester, error) {
	return s.list(func(sem model.Semester) bool {
		return sem.Status == model.SemesterUpcoming && day(sem.StartDate) <= day(today) && day(sem.EndDate) >= day(today)
	})
}

func (s memSemesters) ListStartingWithin(_ context.Context, _ repository.Capabilities, today, until time.Time) ([]model.Semester, error) {
	return s.list(func(sem model.Semester) bool {
		return sem.Status == model.SemesterUpcoming && day(sem.StartDate) > day(today) && day(sem.StartDate) <= day(until)
	})
}

func (s memSemesters) TransitionTx(_ context.Context, _ database.DBTX, id uint64, from []model.SemesterStatus, to model.SemesterStatus) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure("semesters.transition"); err != nil {
		return false, err
	}
	sem, ok := s.m.st.semesters[id]
	if !ok || !slices.Contains(from, sem.Status) {
		return false, nil
	}
	sem.Status = to
	s.m.st.semesters[id] = sem
	return true, nil
}

func (s memSemesters) MarkCurrentTx(_ context.Context, _ database.DBTX, hostelID, semesterID uint64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for id, sem := range s.m.st.semesters {
		if sem.HostelID == hostelID {
			sem.IsCurrent = id == semesterID
			s.m.st.semesters[id] = sem
		}
	}
	return nil
}

// enrollments

type memEnrollments struct{ m *memStore }

func (e memEnrollments) UpsertTx(_ context.Context, _ database.DBTX, caps repository.Capabilities, en *model.Enrollment) error {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	if err := e.m.failure("enrollments.upsert"); err != nil {
		return err
	}
	if caps.EnrollmentHasBalance {
		bal := model.Balance(en.TotalAmount, en.AmountPaid)
		en.Balance = &bal
	}
	if en.Status == "" {
		en.Status = model.EnrollmentActive
	}
	en.UpdatedAt = time.Now().UTC()
	en.ID = 0
	for id, cur := range e.m.st.enrollments {
		if cur.UserID == en.UserID && cur.SemesterID == en.SemesterID {
			en.ID = id
		}
	}
	if en.ID == 0 {
		en.ID = e.m.id()
	}
	e.m.st.enrollments[en.ID] = *en
	return nil
}

func (e memEnrollments) CompleteForSemesterTx(_ context.Context, _ database.DBTX, semesterID uint64) (int64, error) {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	var n int64
	for id, en := range e.m.st.enrollments {
		if en.SemesterID == semesterID && en.Status == model.EnrollmentActive {
			en.Status = model.EnrollmentCompleted
			e.m.st.enrollments[id] = en
			n++
		}
	}
	return n, nil
}

// assignments

type memAssignments struct{ m *memStore }

func inSemester(a model.Assignment, semesterID uint64) bool {
	return a.SemesterID != nil && *a.SemesterID == semesterID
}

func (s memAssignments) ActiveRoomIDsTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, userID, semesterID uint64) ([]uint64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var ids []uint64
	for _, a := range s.m.st.activeAssignments(userID, semesterID) {
		ids = append(ids, a.RoomID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (s memAssignments) FindActiveTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, userID, roomID, semesterID uint64) (uint64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, a := range s.m.st.activeAssignments(userID, semesterID) {
		if a.RoomID == roomID {
			return a.ID, nil
		}
	}
	return 0, repository.ErrNotFound
}

func (s memAssignments) CreateTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, a *model.Assignment) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure("assignments.create"); err != nil {
		return err
	}
	a.ID = s.m.id()
	s.m.st.assignments[a.ID] = *a
	return nil
}

func (s memAssignments) CancelOtherRoomsTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, userID, semesterID, keepRoomID uint64) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for _, a := range s.m.st.activeAssignments(userID, semesterID) {
		if a.RoomID != keepRoomID {
			a.Status = model.AssignmentCancelled
			s.m.st.assignments[a.ID] = a
			n++
		}
	}
	return n, nil
}

func (s memAssignments) GetByIDTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, id uint64) (model.Assignment, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.st.assignments[id]
	if !ok {
		return model.Assignment{}, repository.ErrNotFound
	}
	return a, nil
}

func (s memAssignments) SetStatusTx(_ context.Context, _ database.DBTX, id uint64, from, to model.AssignmentStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.st.assignments[id]
	if !ok || a.Status != from {
		return repository.ErrConflict
	}
	a.Status = to
	s.m.st.assignments[id] = a
	return nil
}

func (s memAssignments) ActiveRoomIDsForSemesterTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, semesterID uint64) ([]uint64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var ids []uint64
	for _, a := range s.m.st.assignments {
		if a.Status == model.AssignmentActive && inSemester(a, semesterID) {
			ids = append(ids, a.RoomID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (s memAssignments) CompleteForSemesterTx(_ context.Context, _ database.DBTX, _ repository.Capabilities, semesterID uint64) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure("assignments.complete"); err != nil {
		return 0, err
	}
	var n int64
	for id, a := range s.m.st.assignments {
		if a.Status == model.AssignmentActive && inSemester(a, semesterID) {
			a.Status = model.AssignmentCompleted
			s.m.st.assignments[id] = a
			n++
		}
	}
	return n, nil
}

// payments

type memPayments struct{ m *memStore }

func (p memPayments) CreateTx(_ context.Context, _ database.DBTX, caps repository.Capabilities, pay *model.Payment) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if err := p.m.failure("payments.create"); err != nil {
		return err
	}
	if !caps.PaymentHasSemester {
		pay.SemesterID = nil
	}
	pay.ID = p.m.id()
	pay.CreatedAt = time.Now().UTC()
	p.m.st.payments[pay.ID] = *pay
	return nil
}

// bookings

type memBookings struct{ m *memStore }

func (b memBookings) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]model.PublicBooking, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	if err := b.m.failure("bookings.list"); err != nil {
		return nil, err
	}
	var out []model.PublicBooking
	for _, bk := range b.m.st.bookings {
		if bk.Status == model.BookingPending && bk.CreatedAt.Before(cutoff) {
			out = append(out, bk)
		}
	}
	slices.SortFunc(out, func(x, y model.PublicBooking) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return int(x.ID) - int(y.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b memBookings) ExpireTx(_ context.Context, _ database.DBTX, id uint64, cutoff, _ time.Time) (bool, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	if err := b.m.failure(bookingFailKey(id)); err != nil {
		return false, err
	}
	bk, ok := b.m.st.bookings[id]
	if !ok || bk.Status != model.BookingPending || !bk.CreatedAt.Before(cutoff) {
		return false, nil
	}
	bk.Status = model.BookingExpired
	b.m.st.bookings[id] = bk
	return true, nil
}

func bookingFailKey(id uint64) string { return fmt.Sprintf("bookings.expire.%d", id) }

// reservations

type memReservations struct{ m *memStore }

func (r memReservations) ExpireForSemesterTx(_ context.Context, _ database.DBTX, semesterID uint64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, res := range r.m.st.reservations {
		if res.SemesterID == semesterID && res.Status == model.ReservationActive {
			res.Status = model.ReservationExpired
			r.m.st.reservations[id] = res
			n++
		}
	}
	return n, nil
}

// recorders

type sentMail struct{ To, Subject, Body string }

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []sentMail
	ok    bool
	async int
}

func (n *recordingNotifier) Notify(_ context.Context, to, subject, body string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{to, subject, body})
	return n.ok
}

func (n *recordingNotifier) NotifyAsync(to, subject, body string) {
	n.mu.Lock()
	n.async++
	n.mu.Unlock()
	n.Notify(context.Background(), to, subject, body)
}

func (n *recordingNotifier) asyncCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.async
}

func (n *recordingNotifier) mails() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

type auditEntry struct {
	Action   string
	ActorID  uint64
	TargetID uint64
	Meta     map[string]any
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *recordingAudit) Append(_ context.Context, action string, actorID, targetID uint64, meta map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{action, actorID, targetID, meta})
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type memLedger struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (l *memLedger) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.keys == nil {
		l.keys = map[string]bool{}
	}
	if l.keys[key] {
		return false, nil
	}
	l.keys[key] = true
	return true, nil
}
