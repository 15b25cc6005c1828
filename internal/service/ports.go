package service

import (
	"context"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

// Transactor runs fn inside a database transaction, committing when fn
// returns nil and rolling back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx database.DBTX) error) error
}

// CapabilityProvider returns the probed schema capabilities.
type CapabilityProvider interface {
	Capabilities(ctx context.Context) (repository.Capabilities, error)
}

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByEmailTx(ctx context.Context, tx database.DBTX, email string, forUpdate bool) (model.User, error)
	CreateTx(ctx context.Context, tx database.DBTX, u *model.User) error
	AffiliateTx(ctx context.Context, tx database.DBTX, userID, hostelID uint64) error
	FindProfileTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, userID uint64) (model.StudentProfile, error)
	SaveProfileTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, p model.StudentProfile) error
	ListStaff(ctx context.Context, hostelID uint64) ([]model.User, error)
}

type RoomStore interface {
	GetByID(ctx context.Context, id uint64) (model.Room, error)
	LockTx(ctx context.Context, tx database.DBTX, ids []uint64) (map[uint64]model.Room, error)
	CountOccupantsTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, roomID, excludeUserID uint64) (int, error)
	UpdateOccupancyTx(ctx context.Context, tx database.DBTX, roomID uint64, occupancy int, status model.RoomStatus) error
}

type SemesterStore interface {
	GetByIDTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, id uint64, lock repository.RowLock) (model.Semester, error)
	ListEndedOpen(ctx context.Context, caps repository.Capabilities, today time.Time) ([]model.Semester, error)
	ListDueToActivate(ctx context.Context, caps repository.Capabilities, today time.Time) ([]model.Semester, error)
	ListStartingWithin(ctx context.Context, caps repository.Capabilities, today, until time.Time) ([]model.Semester, error)
	TransitionTx(ctx context.Context, tx database.DBTX, id uint64, from []model.SemesterStatus, to model.SemesterStatus) (bool, error)
	MarkCurrentTx(ctx context.Context, tx database.DBTX, hostelID, semesterID uint64) error
}

type EnrollmentStore interface {
	UpsertTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, e *model.Enrollment) error
	CompleteForSemesterTx(ctx context.Context, tx database.DBTX, semesterID uint64) (int64, error)
}

type AssignmentStore interface {
	ActiveRoomIDsTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, userID, semesterID uint64) ([]uint64, error)
	FindActiveTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, userID, roomID, semesterID uint64) (uint64, error)
	CreateTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, a *model.Assignment) error
	CancelOtherRoomsTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, userID, semesterID, keepRoomID uint64) (int64, error)
	GetByIDTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, id uint64) (model.Assignment, error)
	SetStatusTx(ctx context.Context, tx database.DBTX, id uint64, from, to model.AssignmentStatus) error
	ActiveRoomIDsForSemesterTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, semesterID uint64) ([]uint64, error)
	CompleteForSemesterTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, semesterID uint64) (int64, error)
}

type PaymentStore interface {
	CreateTx(ctx context.Context, tx database.DBTX, caps repository.Capabilities, p *model.Payment) error
}

type BookingStore interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.PublicBooking, error)
	ExpireTx(ctx context.Context, tx database.DBTX, id uint64, cutoff, now time.Time) (bool, error)
}

type ReservationStore interface {
	ExpireForSemesterTx(ctx context.Context, tx database.DBTX, semesterID uint64) (int64, error)
}

// Stores bundles the persistence ports used by the engine.
type Stores struct {
	Users        UserStore
	Rooms        RoomStore
	Semesters    SemesterStore
	Enrollments  EnrollmentStore
	Assignments  AssignmentStore
	Payments     PaymentStore
	Bookings     BookingStore
	Reservations ReservationStore
}

// Notifier delivers messages.  Delivery failures never propagate to the
// engine; Notify reports success only for logging.
type Notifier interface {
	Notify(ctx context.Context, to, subject, htmlBody string) bool
	NotifyAsync(to, subject, htmlBody string)
}

// AuditLog records actions best-effort.  Implementations must not block
// the caller and must swallow their own failures.
type AuditLog interface {
	Append(ctx context.Context, action string, actorID, targetID uint64, metadata map[string]any)
}

// ReminderLedger remembers which reminders were already sent.  MarkOnce
// reports true only for the first caller for a key within ttl.
type ReminderLedger interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Actor is the authenticated caller as established by the HTTP layer.
type Actor struct {
	UserID   uint64
	Role     model.Role
	HostelID *uint64
}

// CanManage reports whether the actor may act on the hostel.
func (a Actor) CanManage(hostelID uint64) bool {
	switch a.Role {
	case model.RoleSuperAdmin:
		return true
	case model.RoleHostelAdmin, model.RoleCustodian:
		return a.HostelID != nil && *a.HostelID == hostelID
	}
	return false
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string, string) bool { return false }
func (nopNotifier) NotifyAsync(string, string, string)                  {}

type nopAudit struct{}

func (nopAudit) Append(context.Context, string, uint64, uint64, map[string]any) {}
