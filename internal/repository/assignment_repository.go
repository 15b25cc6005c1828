package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// AssignmentRepo writes room assignments.  The student column and the
// semester linkage vary between schema revisions, so every method takes
// the probed Capabilities.  Without semester linkage a student's active
// assignments are treated as belonging to the semester being processed.
type AssignmentRepo struct{}

// NewAssignmentRepo returns an AssignmentRepo.
func NewAssignmentRepo() *AssignmentRepo { return &AssignmentRepo{} }

// ActiveRoomIDsTx returns the rooms the user is actively assigned to for
// the semester.
func (r *AssignmentRepo) ActiveRoomIDsTx(ctx context.Context, tx database.DBTX, caps Capabilities, userID, semesterID uint64) ([]uint64, error) {
	q := `SELECT DISTINCT room_id FROM room_assignments WHERE ` + caps.AssignmentUserColumn + ` = ? AND status = 'active'`
	args := []any{userID}
	if caps.AssignmentHasSemester {
		q += ` AND semester_id = ?`
		args = append(args, semesterID)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindActiveTx returns the id of the active assignment for
// (user, room, semester), or ErrNotFound.
func (r *AssignmentRepo) FindActiveTx(ctx context.Context, tx database.DBTX, caps Capabilities, userID, roomID, semesterID uint64) (uint64, error) {
	q := `SELECT id FROM room_assignments WHERE ` + caps.AssignmentUserColumn + ` = ? AND room_id = ? AND status = 'active'`
	args := []any{userID, roomID}
	if caps.AssignmentHasSemester {
		q += ` AND semester_id = ?`
		args = append(args, semesterID)
	}
	q += ` ORDER BY id LIMIT 1`
	var id uint64
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// CreateTx inserts an active assignment and populates its ID.
func (r *AssignmentRepo) CreateTx(ctx context.Context, tx database.DBTX, caps Capabilities, a *model.Assignment) error {
	if a.Status == "" {
		a.Status = model.AssignmentActive
	}
	cols := caps.AssignmentUserColumn + `, room_id, status, assigned_by, assigned_at`
	vals := `?, ?, ?, ?, ?`
	args := []any{a.UserID, a.RoomID, string(a.Status), a.AssignedBy, time.Now().UTC()}
	if caps.AssignmentHasSemester && a.SemesterID != nil {
		cols += `, semester_id`
		vals += `, ?`
		args = append(args, *a.SemesterID)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO room_assignments (`+cols+`) VALUES (`+vals+`)`, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// CancelOtherRoomsTx cancels the user's active assignments for the
// semester in every room except keepRoomID.
func (r *AssignmentRepo) CancelOtherRoomsTx(ctx context.Context, tx database.DBTX, caps Capabilities, userID, semesterID, keepRoomID uint64) (int64, error) {
	q := `UPDATE room_assignments SET status = 'cancelled' WHERE ` + caps.AssignmentUserColumn + ` = ? AND status = 'active' AND room_id <> ?`
	args := []any{userID, keepRoomID}
	if caps.AssignmentHasSemester {
		q += ` AND semester_id = ?`
		args = append(args, semesterID)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetByIDTx reads and locks an assignment.
func (r *AssignmentRepo) GetByIDTx(ctx context.Context, tx database.DBTX, caps Capabilities, id uint64) (model.Assignment, error) {
	semester := `NULL`
	if caps.AssignmentHasSemester {
		semester = `semester_id`
	}
	q := `SELECT id, ` + caps.AssignmentUserColumn + `, room_id, ` + semester + `, status, COALESCE(assigned_by, 0)
	      FROM room_assignments WHERE id = ? FOR UPDATE`
	var a model.Assignment
	var semID sql.NullInt64
	var status string
	if err := tx.QueryRowContext(ctx, q, id).Scan(&a.ID, &a.UserID, &a.RoomID, &semID, &status, &a.AssignedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Assignment{}, ErrNotFound
		}
		return model.Assignment{}, err
	}
	a.Status = model.AssignmentStatus(status)
	if semID.Valid {
		s := uint64(semID.Int64)
		a.SemesterID = &s
	}
	return a, nil
}

// SetStatusTx moves an assignment from one status to another.  It
// returns ErrConflict when the assignment is no longer in status from.
func (r *AssignmentRepo) SetStatusTx(ctx context.Context, tx database.DBTX, id uint64, from, to model.AssignmentStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE room_assignments SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// semesterScope returns the join and predicate selecting a semester's
// assignments.  Without semester linkage the student's enrollment for the
// semester and its room stand in for it.
func semesterScope(caps Capabilities) (join, where string) {
	if caps.AssignmentHasSemester {
		return ``, `a.semester_id = ?`
	}
	return ` JOIN semester_enrollments e ON e.user_id = a.` + caps.AssignmentUserColumn + ` AND e.room_id = a.room_id`,
		`e.semester_id = ?`
}

// ActiveRoomIDsForSemesterTx returns every room holding an active
// assignment for the semester.
func (r *AssignmentRepo) ActiveRoomIDsForSemesterTx(ctx context.Context, tx database.DBTX, caps Capabilities, semesterID uint64) ([]uint64, error) {
	join, where := semesterScope(caps)
	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT a.room_id FROM room_assignments a`+join+` WHERE `+where+` AND a.status = 'active'`, semesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CompleteForSemesterTx marks the semester's active assignments completed.
func (r *AssignmentRepo) CompleteForSemesterTx(ctx context.Context, tx database.DBTX, caps Capabilities, semesterID uint64) (int64, error) {
	join, where := semesterScope(caps)
	res, err := tx.ExecContext(ctx,
		`UPDATE room_assignments a`+join+` SET a.status = 'completed' WHERE `+where+` AND a.status = 'active'`, semesterID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
