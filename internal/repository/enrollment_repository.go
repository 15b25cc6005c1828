package repository

import (
	"context"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// EnrollmentRepo writes semester enrollments.
type EnrollmentRepo struct{}

// NewEnrollmentRepo returns an EnrollmentRepo.
func NewEnrollmentRepo() *EnrollmentRepo { return &EnrollmentRepo{} }

// UpsertTx inserts the enrollment or, when one already exists for
// (user, semester), overwrites its room, financial fields and status.
// LAST_INSERT_ID(id) makes the existing row's id available in both cases.
func (r *EnrollmentRepo) UpsertTx(ctx context.Context, tx database.DBTX, caps Capabilities, e *model.Enrollment) error {
	now := time.Now().UTC()
	var roomID any
	if e.RoomID != nil {
		roomID = *e.RoomID
	}
	if e.Status == "" {
		e.Status = model.EnrollmentActive
	}
	cols := `user_id, semester_id, room_id, total_amount, amount_paid, status, created_at, updated_at`
	vals := `?, ?, ?, ?, ?, ?, ?, ?`
	args := []any{e.UserID, e.SemesterID, roomID, e.TotalAmount, e.AmountPaid, string(e.Status), now, now}
	upd := `id = LAST_INSERT_ID(id), room_id = VALUES(room_id), total_amount = VALUES(total_amount),
	        amount_paid = VALUES(amount_paid), status = VALUES(status), updated_at = VALUES(updated_at)`
	if caps.EnrollmentHasBalance {
		bal := model.Balance(e.TotalAmount, e.AmountPaid)
		e.Balance = &bal
		cols += `, balance`
		vals += `, ?`
		args = append(args, bal)
		upd += `, balance = VALUES(balance)`
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO semester_enrollments (`+cols+`) VALUES (`+vals+`) ON DUPLICATE KEY UPDATE `+upd, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.UpdatedAt = now
	return nil
}

// CompleteForSemesterTx marks every active enrollment of the semester
// completed and returns how many changed.
func (r *EnrollmentRepo) CompleteForSemesterTx(ctx context.Context, tx database.DBTX, semesterID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE semester_enrollments SET status = 'completed', updated_at = ? WHERE semester_id = ? AND status = 'active'`,
		time.Now().UTC(), semesterID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
