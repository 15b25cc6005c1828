package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

const (
	testHostel    uint64 = 1
	otherHostel   uint64 = 2
	femaleRoom    uint64 = 10
	mixedRoom     uint64 = 11
	foreignRoom   uint64 = 12
	activeSem     uint64 = 100
	closedSem     uint64 = 101
	foreignSem    uint64 = 102
	adminUserID   uint64 = 7
	unknownRecord uint64 = 9999
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store    *memStore
	notifier *recordingNotifier
	audit    *recordingAudit
	occ      *OccupancyService
	reg      *RegistrationService
	admin    Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := newMemStore()
	m.addRoom(model.Room{ID: femaleRoom, HostelID: testHostel, RoomNumber: "A-101", Capacity: 2, Price: 500_000, GenderAllowed: model.GenderFemale})
	m.addRoom(model.Room{ID: mixedRoom, HostelID: testHostel, RoomNumber: "B-201", Capacity: 3, Price: 450_000, GenderAllowed: model.GenderBoth})
	m.addRoom(model.Room{ID: foreignRoom, HostelID: otherHostel, RoomNumber: "Z-1", Capacity: 2, Price: 300_000, GenderAllowed: model.GenderBoth})
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m.addSemester(model.Semester{ID: activeSem, HostelID: testHostel, Name: "2026/27 Sem I", StartDate: start, EndDate: start.AddDate(0, 4, 0), Status: model.SemesterActive})
	m.addSemester(model.Semester{ID: closedSem, HostelID: testHostel, Name: "2025/26 Sem II", StartDate: start.AddDate(0, -6, 0), EndDate: start.AddDate(0, -2, 0), Status: model.SemesterCompleted})
	m.addSemester(model.Semester{ID: foreignSem, HostelID: otherHostel, Name: "Other", StartDate: start, EndDate: start.AddDate(0, 4, 0), Status: model.SemesterActive})

	n := &recordingNotifier{ok: true}
	a := &recordingAudit{}
	stores := m.stores()
	occ := NewOccupancyService(m, m, stores, a, nil)
	reg := NewRegistrationService(m, m, stores, occ, n, a, RegistrationOptions{
		BcryptCost:     bcrypt.MinCost,
		LookupAttempts: 2,
		LookupBackoff:  time.Millisecond,
	}, nil)
	return &fixture{
		store:    m,
		notifier: n,
		audit:    a,
		occ:      occ,
		reg:      reg,
		admin:    Actor{UserID: adminUserID, Role: model.RoleHostelAdmin, HostelID: ptr(testHostel)},
	}
}

func student(name, gender string, amount int64) RegistrationRequest {
	return RegistrationRequest{
		Name:                 name,
		Email:                fmt.Sprintf("%s@students.example.org", name),
		Phone:                "+256700000000",
		Gender:               gender,
		DateOfBirth:          "2004-03-15",
		HostelID:             testHostel,
		RoomID:               femaleRoom,
		SemesterID:           activeSem,
		InitialPaymentAmount: amount,
	}
}

func TestRegister_CapacityAndGenderScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.reg.Register(ctx, f.admin, student("alice", "female", 200_000))
	require.NoError(t, err)
	assert.True(t, a.IsNewUser)
	assert.Equal(t, int64(300_000), a.Balance)
	assert.Equal(t, model.RoomPartiallyOccupied, a.Room.Status)
	assert.Equal(t, 1, a.Room.Occupancy)

	_, err = f.reg.Register(ctx, f.admin, student("bob", "male", 500_000))
	require.ErrorIs(t, err, ErrGenderMismatch)
	assert.Equal(t, "room is allocated for female students only", err.Error())

	st := f.store.snapshot()
	_, exists := st.userByEmail("bob@students.example.org")
	assert.False(t, exists, "rejected registration must not leave a user behind")
	assert.Equal(t, 1, st.rooms[femaleRoom].CurrentOccupancy)

	c, err := f.reg.Register(ctx, f.admin, student("carol", "Female", 500_000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Balance)
	assert.Equal(t, 2, c.Room.Occupancy)
	assert.Equal(t, model.RoomOccupied, c.Room.Status)

	_, err = f.reg.Register(ctx, f.admin, student("dora", "female", 500_000))
	require.ErrorIs(t, err, ErrCapacityExceeded)

	st = f.store.snapshot()
	_, exists = st.userByEmail("dora@students.example.org")
	assert.False(t, exists)
	assert.Equal(t, 2, st.rooms[femaleRoom].CurrentOccupancy)
	assert.Equal(t, model.RoomOccupied, st.rooms[femaleRoom].Status)
}

func TestRegister_WritesEveryRecord(t *testing.T) {
	f := newFixture(t)
	req := student("alice", "female", 200_000)
	req.Email = "  Alice@Students.Example.org "
	req.AccessNumber = "A12345"

	res, err := f.reg.Register(context.Background(), f.admin, req)
	require.NoError(t, err)

	st := f.store.snapshot()
	user := st.users[res.UserID]
	assert.Equal(t, "alice@students.example.org", user.Email)
	assert.Equal(t, model.RoleUser, user.Role)
	require.NotNil(t, user.HostelID)
	assert.Equal(t, testHostel, *user.HostelID)
	assert.NotEmpty(t, user.PasswordHash)

	profile := st.profiles[res.UserID]
	assert.Equal(t, "female", profile.Gender)
	assert.Equal(t, "A12345", profile.AccessNumber)
	require.NotNil(t, profile.DateOfBirth)
	assert.Equal(t, "2004-03-15", profile.DateOfBirth.Format("2006-01-02"))

	enr := st.enrollments[res.EnrollmentID]
	assert.Equal(t, int64(500_000), enr.TotalAmount)
	assert.Equal(t, int64(200_000), enr.AmountPaid)
	require.NotNil(t, enr.Balance)
	assert.Equal(t, int64(300_000), *enr.Balance)
	assert.Equal(t, model.EnrollmentActive, enr.Status)

	asg := st.assignments[res.AssignmentID]
	assert.Equal(t, femaleRoom, asg.RoomID)
	assert.Equal(t, adminUserID, asg.AssignedBy)
	assert.Equal(t, model.AssignmentActive, asg.Status)

	pay := st.payments[res.PaymentID]
	assert.Equal(t, int64(200_000), pay.Amount)
	assert.Equal(t, "UGX", pay.Currency)
	assert.Equal(t, "cash", pay.Method)
	assert.NotEmpty(t, pay.Reference)
	require.NotNil(t, pay.SemesterID)
	assert.Equal(t, activeSem, *pay.SemesterID)

	mails := f.notifier.mails()
	require.Len(t, mails, 1)
	assert.Equal(t, "alice@students.example.org", mails[0].To)
	assert.Contains(t, mails[0].Body, "temporary password")
	assert.Contains(t, mails[0].Body, "300,000")
	assert.Equal(t, []string{"registration.created"}, f.audit.actions())
}

func TestRegister_ReRegistrationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.reg.Register(ctx, f.admin, student("alice", "female", 200_000))
	require.NoError(t, err)
	second, err := f.reg.Register(ctx, f.admin, student("alice", "female", 350_000))
	require.NoError(t, err)

	assert.False(t, second.IsNewUser)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, first.EnrollmentID, second.EnrollmentID)
	assert.Equal(t, first.AssignmentID, second.AssignmentID)
	assert.Equal(t, int64(150_000), second.Balance)
	assert.Equal(t, 1, second.Room.Occupancy)

	st := f.store.snapshot()
	assert.Len(t, st.enrollmentsFor(first.UserID, activeSem), 1)
	assert.Len(t, st.activeAssignments(first.UserID, activeSem), 1)
	assert.Len(t, st.paymentsFor(first.UserID), 2)

	mails := f.notifier.mails()
	require.Len(t, mails, 2)
	assert.NotContains(t, mails[1].Body, "temporary password")
}

func TestRegister_ReRegistrationInFullRoomDoesNotCountSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.Register(ctx, f.admin, student("alice", "female", 200_000))
	require.NoError(t, err)
	_, err = f.reg.Register(ctx, f.admin, student("carol", "female", 200_000))
	require.NoError(t, err)

	res, err := f.reg.Register(ctx, f.admin, student("alice", "female", 500_000))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Room.Occupancy)
	assert.Equal(t, model.RoomOccupied, res.Room.Status)
}

func TestRegister_MoveToAnotherRoomReleasesOldRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.reg.Register(ctx, f.admin, student("alice", "female", 200_000))
	require.NoError(t, err)

	req := student("alice", "female", 450_000)
	req.RoomID = mixedRoom
	moved, err := f.reg.Register(ctx, f.admin, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.AssignmentID, moved.AssignmentID)
	assert.Equal(t, mixedRoom, moved.Room.RoomID)
	assert.Equal(t, 1, moved.Room.Occupancy)
	assert.Equal(t, int64(0), moved.Balance)

	st := f.store.snapshot()
	active := st.activeAssignments(first.UserID, activeSem)
	require.Len(t, active, 1)
	assert.Equal(t, mixedRoom, active[0].RoomID)
	assert.Equal(t, model.AssignmentCancelled, st.assignments[first.AssignmentID].Status)
	assert.Equal(t, 0, st.rooms[femaleRoom].CurrentOccupancy)
	assert.Equal(t, model.RoomAvailable, st.rooms[femaleRoom].Status)
	assert.Len(t, st.enrollmentsFor(first.UserID, activeSem), 1)
	assert.Equal(t, mixedRoom, *st.enrollments[moved.EnrollmentID].RoomID)
}

func TestRegister_RejectsNonPositiveAmountBeforeAnyWrite(t *testing.T) {
	for _, amount := range []int64{0, -5} {
		f := newFixture(t)
		_, err := f.reg.Register(context.Background(), f.admin, student("alice", "female", amount))
		require.ErrorIs(t, err, ErrInvalidAmount)
		assert.Zero(t, f.store.txCount)
		assert.Empty(t, f.notifier.mails())
	}
}

func TestRegister_ValidatesInput(t *testing.T) {
	cases := map[string]func(*RegistrationRequest){
		"bad email":     func(r *RegistrationRequest) { r.Email = "not-an-email" },
		"missing name":  func(r *RegistrationRequest) { r.Name = " " },
		"bad gender":    func(r *RegistrationRequest) { r.Gender = "robot" },
		"bad birthday":  func(r *RegistrationRequest) { r.DateOfBirth = "15/03/2004" },
		"bad currency":  func(r *RegistrationRequest) { r.Currency = "shillings" },
		"missing room":  func(r *RegistrationRequest) { r.RoomID = 0 },
		"bad pay means": func(r *RegistrationRequest) { r.PaymentMethod = "barter" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			req := student("alice", "female", 100_000)
			mutate(&req)
			_, err := f.reg.Register(context.Background(), f.admin, req)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Zero(t, f.store.txCount)
		})
	}
}

func TestRegister_IdentityConflicts(t *testing.T) {
	t.Run("staff email", func(t *testing.T) {
		f := newFixture(t)
		f.store.addUser(model.User{ID: 50, Email: "warden@students.example.org", Role: model.RoleCustodian, HostelID: ptr(testHostel)})
		_, err := f.reg.Register(context.Background(), f.admin, student("warden", "female", 100_000))
		require.ErrorIs(t, err, ErrIdentityConflict)
		assert.Zero(t, f.store.txCount, "pre-check rejects before opening a transaction")
	})
	t.Run("student of another hostel", func(t *testing.T) {
		f := newFixture(t)
		f.store.addUser(model.User{ID: 51, Email: "alice@students.example.org", Role: model.RoleUser, HostelID: ptr(otherHostel)})
		_, err := f.reg.Register(context.Background(), f.admin, student("alice", "female", 100_000))
		require.ErrorIs(t, err, ErrIdentityConflict)
		assert.Empty(t, f.store.snapshot().payments)
	})
}

func TestRegister_AffiliatesExistingUserAndKeepsProfileFields(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(model.User{ID: 60, Email: "alice@students.example.org", Name: "Alice", Role: model.RoleUser})
	f.store.addProfile(model.StudentProfile{UserID: 60, Gender: "female", Phone: "+256711111111", AccessNumber: "A00001", EmergencyContact: "Mum"})

	req := student("alice", "female", 100_000)
	req.Phone = ""
	req.DateOfBirth = ""
	res, err := f.reg.Register(context.Background(), f.admin, req)
	require.NoError(t, err)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, uint64(60), res.UserID)

	st := f.store.snapshot()
	require.NotNil(t, st.users[60].HostelID)
	assert.Equal(t, testHostel, *st.users[60].HostelID)
	p := st.profiles[60]
	assert.Equal(t, "+256711111111", p.Phone)
	assert.Equal(t, "A00001", p.AccessNumber)
	assert.Equal(t, "Mum", p.EmergencyContact)
	assert.Nil(t, p.DateOfBirth)
}

func TestRegister_RollsBackEverythingOnLateFailure(t *testing.T) {
	f := newFixture(t)
	f.store.setFail("payments.create", errors.New("disk full"))

	_, err := f.reg.Register(context.Background(), f.admin, student("alice", "female", 200_000))
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	st := f.store.snapshot()
	assert.Empty(t, st.users)
	assert.Empty(t, st.profiles)
	assert.Empty(t, st.enrollments)
	assert.Empty(t, st.assignments)
	assert.Equal(t, 0, st.rooms[femaleRoom].CurrentOccupancy)
	assert.Equal(t, 1, f.store.rollback)
	assert.Empty(t, f.notifier.mails())
	assert.Empty(t, f.audit.actions())
}

func TestRegister_SemesterAndRoomChecks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegistrationRequest)
		want   error
	}{
		{"closed semester", func(r *RegistrationRequest) { r.SemesterID = closedSem }, ErrSemesterClosed},
		{"semester of another hostel", func(r *RegistrationRequest) { r.SemesterID = foreignSem }, ErrSemesterNotFound},
		{"unknown semester", func(r *RegistrationRequest) { r.SemesterID = unknownRecord }, ErrSemesterNotFound},
		{"unknown room", func(r *RegistrationRequest) { r.RoomID = unknownRecord }, ErrRoomNotFound},
		{"room of another hostel", func(r *RegistrationRequest) { r.RoomID = foreignRoom }, ErrRoomNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := student("alice", "female", 100_000)
			tc.mutate(&req)
			_, err := f.reg.Register(context.Background(), f.admin, req)
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.store.snapshot().users)
		})
	}
}

func TestRegister_RequiresHostelStaff(t *testing.T) {
	f := newFixture(t)
	actors := []Actor{
		{UserID: 3, Role: model.RoleUser, HostelID: ptr(testHostel)},
		{UserID: 4, Role: model.RoleCustodian, HostelID: ptr(otherHostel)},
		{UserID: 5, Role: model.RoleHostelAdmin},
	}
	for _, actor := range actors {
		_, err := f.reg.Register(context.Background(), actor, student("alice", "female", 100_000))
		require.ErrorIs(t, err, ErrForbidden)
	}

	super := Actor{UserID: 1, Role: model.RoleSuperAdmin}
	_, err := f.reg.Register(context.Background(), super, student("alice", "female", 100_000))
	require.NoError(t, err)
}

func TestRegister_SchemaAndConnectionFailures(t *testing.T) {
	t.Run("schema mismatch", func(t *testing.T) {
		f := newFixture(t)
		f.store.capErr = repository.ErrSchemaMismatch
		_, err := f.reg.Register(context.Background(), f.admin, student("alice", "female", 100_000))
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})
	t.Run("transient lookup failure", func(t *testing.T) {
		f := newFixture(t)
		f.store.setFail("users.find", driver.ErrBadConn)
		_, err := f.reg.Register(context.Background(), f.admin, student("alice", "female", 100_000))
		require.ErrorIs(t, err, ErrTransientConnection)
		assert.Zero(t, f.store.txCount)
	})
}

func TestRegister_LegacySchemaStillCountsOccupants(t *testing.T) {
	f := newFixture(t)
	f.store.caps = repository.Capabilities{AssignmentUserColumn: "student_id"}

	res, err := f.reg.Register(context.Background(), f.admin, student("alice", "female", 100_000))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Room.Occupancy)
	assert.Equal(t, int64(400_000), res.Balance)

	st := f.store.snapshot()
	assert.Nil(t, st.payments[res.PaymentID].SemesterID)
	assert.Empty(t, st.profiles[res.UserID].AccessNumber)
}

func TestRegister_LocksRoomBeforeCounting(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Register(context.Background(), f.admin, student("ordered", "female", 100_000))
	require.NoError(t, err)

	calls := f.store.calls
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, []string{fmt.Sprintf("lock [%d]", femaleRoom), fmt.Sprintf("count %d", femaleRoom)}, calls[:2])
}

// The fake store runs transactions one at a time, so this checks the
// capacity accounting across many registrations rather than row locking.
// TestRegister_LocksRoomBeforeCounting covers the lock order.
func TestRegister_ConcurrentRegistrationsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reg.Register(context.Background(), f.admin, student(fmt.Sprintf("s%d", i), "female", 100_000))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, n-2, full)
	st := f.store.snapshot()
	assert.Equal(t, 2, st.rooms[femaleRoom].CurrentOccupancy)
	assert.Len(t, st.users, 2)
}

func TestMergeProfile(t *testing.T) {
	dob := time.Date(2003, 1, 2, 0, 0, 0, 0, time.UTC)
	stored := model.StudentProfile{UserID: 1, Gender: "female", Phone: "0700", DateOfBirth: &dob}
	merged, err := MergeProfile(stored, model.StudentProfile{UserID: 1, Phone: "", AccessNumber: "X1"})
	require.NoError(t, err)
	assert.Equal(t, "0700", merged.Phone)
	assert.Equal(t, "female", merged.Gender)
	assert.Equal(t, "X1", merged.AccessNumber)
	require.NotNil(t, merged.DateOfBirth)
	assert.True(t, merged.DateOfBirth.Equal(dob))
}
