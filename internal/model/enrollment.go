package model

import "time"

// EnrollmentStatus is the state of a semester enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive      EnrollmentStatus = "active"
	EnrollmentCompleted   EnrollmentStatus = "completed"
	EnrollmentDropped     EnrollmentStatus = "dropped"
	EnrollmentTransferred EnrollmentStatus = "transferred"
)

// Balance is the amount still owed, never negative.
func Balance(total, paid int64) int64 {
	if paid >= total {
		return 0
	}
	return total - paid
}

// Enrollment is a student's financial record for one semester.  The pair
// (UserID, SemesterID) is unique.
type Enrollment struct {
	ID          uint64           // semester_enrollments.id
	UserID      uint64           // semester_enrollments.user_id
	SemesterID  uint64           // semester_enrollments.semester_id
	RoomID      *uint64          // semester_enrollments.room_id (nullable)
	TotalAmount int64            // semester_enrollments.total_amount
	AmountPaid  int64            // semester_enrollments.amount_paid
	Balance     *int64           // semester_enrollments.balance (nullable on legacy rows)
	Status      EnrollmentStatus // semester_enrollments.status
	UpdatedAt   time.Time        // semester_enrollments.updated_at
}

// AssignmentStatus is the state of a room assignment.
type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentCancelled AssignmentStatus = "cancelled"
	AssignmentCompleted AssignmentStatus = "completed"
)

// Assignment links a student to the room they occupy.  SemesterID is nil
// on schemas that predate semester linkage.
type Assignment struct {
	ID         uint64           // room_assignments.id
	UserID     uint64           // room_assignments.user_id or student_id
	RoomID     uint64           // room_assignments.room_id
	SemesterID *uint64          // room_assignments.semester_id (optional column)
	Status     AssignmentStatus // room_assignments.status
	AssignedBy uint64           // room_assignments.assigned_by
}

// Payment is an immutable ledger entry.  A nil SemesterID marks a legacy
// payment that still counts toward every semester.
type Payment struct {
	ID         uint64    // payments.id
	UserID     uint64    // payments.user_id
	HostelID   uint64    // payments.hostel_id
	SemesterID *uint64   // payments.semester_id (optional column)
	Amount     int64     // payments.amount
	Currency   string    // payments.currency
	Method     string    // payments.method
	Reference  string    // payments.reference
	RecordedBy uint64    // payments.recorded_by
	CreatedAt  time.Time // payments.created_at
}
