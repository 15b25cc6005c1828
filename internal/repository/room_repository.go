package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// RoomRepo provides access to rooms and to the occupancy count that
// drives their derived status.
type RoomRepo struct{ db database.DBTX }

// NewRoomRepo returns a RoomRepo whose non-Tx methods use db.
func NewRoomRepo(db database.DBTX) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = `id, hostel_id, room_number, capacity, price, gender_allowed, current_occupancy, status, updated_at`

func scanRoom(row interface{ Scan(...any) error }) (model.Room, error) {
	var rm model.Room
	var gender, status string
	if err := row.Scan(&rm.ID, &rm.HostelID, &rm.RoomNumber, &rm.Capacity, &rm.Price, &gender,
		&rm.CurrentOccupancy, &status, &rm.UpdatedAt); err != nil {
		return model.Room{}, err
	}
	rm.GenderAllowed = model.Gender(gender)
	rm.Status = model.RoomStatus(status)
	return rm, nil
}

// GetByID reads a room from the pool without locking.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (model.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Room{}, ErrNotFound
	}
	return rm, err
}

// LockTx locks the given rooms with SELECT ... FOR UPDATE in ascending
// id order and returns the rows that exist.  Every writer locks rooms
// through this method so concurrent transactions acquire them in the
// same order.
func (r *RoomRepo) LockTx(ctx context.Context, tx database.DBTX, ids []uint64) (map[uint64]model.Room, error) {
	ids = uniqueSorted(ids)
	out := make(map[uint64]model.Room, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id FOR UPDATE`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out[rm.ID] = rm
	}
	return out, rows.Err()
}

// occupantsQuery builds the count of legitimately registered occupants:
// an active assignment to the room, backed by an enrollment with a set
// balance, and at least one payment for that semester or an unscoped
// legacy payment.
func occupantsQuery(caps Capabilities) string {
	ucol := "a." + caps.AssignmentUserColumn
	var b strings.Builder
	b.WriteString(`SELECT COUNT(DISTINCT ` + ucol + `) FROM room_assignments a
	JOIN semester_enrollments e ON e.user_id = ` + ucol)
	if caps.AssignmentHasSemester {
		b.WriteString(` AND e.semester_id = a.semester_id`)
	} else {
		b.WriteString(` AND e.room_id = a.room_id`)
	}
	if caps.EnrollmentHasBalance {
		b.WriteString(` AND e.balance IS NOT NULL`)
	}
	b.WriteString(`
	WHERE a.room_id = ? AND a.status = 'active' AND ` + ucol + ` <> ?
	AND EXISTS (SELECT 1 FROM payments p WHERE p.user_id = ` + ucol)
	if caps.PaymentHasSemester {
		b.WriteString(` AND (p.semester_id = e.semester_id OR p.semester_id IS NULL)`)
	}
	b.WriteString(`)`)
	return b.String()
}

// CountOccupantsTx counts the room's legitimate occupants, ignoring
// excludeUserID (pass 0 to count everyone).
func (r *RoomRepo) CountOccupantsTx(ctx context.Context, tx database.DBTX, caps Capabilities, roomID, excludeUserID uint64) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, occupantsQuery(caps), roomID, excludeUserID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateOccupancyTx persists the derived occupancy and status.
func (r *RoomRepo) UpdateOccupancyTx(ctx context.Context, tx database.DBTX, roomID uint64, occupancy int, status model.RoomStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE rooms SET current_occupancy = ?, status = ?, updated_at = ? WHERE id = ?`,
		occupancy, string(status), time.Now().UTC(), roomID)
	return err
}

func uniqueSorted(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
