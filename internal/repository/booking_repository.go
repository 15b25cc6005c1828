package repository

import (
	"context"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// BookingRepo provides access to the public_bookings table.  All
// timestamps are stored and compared in UTC.
type BookingRepo struct{ db database.DBTX }

// NewBookingRepo returns a BookingRepo whose non-Tx methods use db.
func NewBookingRepo(db database.DBTX) *BookingRepo { return &BookingRepo{db: db} }

// ListStalePending returns up to limit pending bookings created strictly
// before cutoff, oldest first.
func (r *BookingRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]model.PublicBooking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, hostel_id, room_id, email, status, created_at
		 FROM public_bookings
		 WHERE status = 'pending' AND created_at < ?
		 ORDER BY created_at, id
		 LIMIT ?`,
		cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PublicBooking
	for rows.Next() {
		var b model.PublicBooking
		var roomID *uint64
		var status string
		if err := rows.Scan(&b.ID, &b.HostelID, &roomID, &b.Email, &status, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.RoomID = roomID
		b.Status = model.BookingStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ExpireTx moves a single booking from pending to expired.  The status
// guard makes the update a no-op for rows that were already expired or
// progressed past pending; it reports whether the row changed.
func (r *BookingRepo) ExpireTx(ctx context.Context, tx database.DBTX, id uint64, cutoff, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE public_bookings SET status = 'expired', updated_at = ?
		 WHERE id = ? AND status = 'pending' AND created_at < ?`,
		now.UTC(), id, cutoff.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
