package repository

import (
	"context"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
)

// ReservationRepo maintains room_reservations, the pre-bookings of rooms
// for a future semester.
type ReservationRepo struct{}

// NewReservationRepo returns a ReservationRepo.
func NewReservationRepo() *ReservationRepo { return &ReservationRepo{} }

// ExpireForSemesterTx expires every active reservation held for the
// semester and returns how many changed.
func (r *ReservationRepo) ExpireForSemesterTx(ctx context.Context, tx database.DBTX, semesterID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE room_reservations SET status = 'expired', updated_at = ? WHERE semester_id = ? AND status = 'active'`,
		time.Now().UTC(), semesterID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
