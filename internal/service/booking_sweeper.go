package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
)

// SweepResult summarises one sweeper pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// BookingSweeper expires public bookings left pending past the threshold.
type BookingSweeper struct {
	tx        Transactor
	bookings  BookingStore
	threshold time.Duration
	batch     int
	now       func() time.Time
	logger    *slog.Logger
}

// NewBookingSweeper returns a sweeper.  threshold defaults to 30 minutes
// and batch, the page size of each candidate read, to 500 rows.
func NewBookingSweeper(tx Transactor, bookings BookingStore, threshold time.Duration, batch int, logger *slog.Logger) *BookingSweeper {
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	if batch <= 0 {
		batch = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingSweeper{
		tx:        tx,
		bookings:  bookings,
		threshold: threshold,
		batch:     batch,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source.
func (s *BookingSweeper) SetClock(now func() time.Time) { s.now = now }

// Sweep runs one pass over every stale pending booking, reading them a
// batch at a time.  Each booking is expired in its own transaction so a
// failing row neither blocks nor rolls back the others.  The returned
// error is non-nil only when a candidate page could not be read or ctx
// ended.
func (s *BookingSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	cutoff := now.Add(-s.threshold)
	var res SweepResult
	seen := make(map[uint64]bool)

	for ctx.Err() == nil {
		page, err := s.bookings.ListStalePending(ctx, cutoff, s.batch)
		if err != nil {
			s.logger.Error("booking sweep: list stale bookings", "error", err)
			return res, classify(err)
		}
		fresh := 0
		for _, b := range page {
			if ctx.Err() != nil {
				break
			}
			// Rows that failed earlier in this pass stay pending and come
			// back on later pages.
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			fresh++
			var changed bool
			err := s.tx.WithinTx(ctx, func(tx database.DBTX) error {
				var err error
				changed, err = s.bookings.ExpireTx(ctx, tx, b.ID, cutoff, now)
				return err
			})
			switch {
			case err != nil:
				res.Failed++
				s.logger.Warn("booking sweep: expire failed", "booking_id", b.ID, "error", err)
			case changed:
				res.Expired++
			}
		}
		res.Scanned += fresh
		if len(page) < s.batch || fresh == 0 {
			break
		}
	}

	if res.Scanned > 0 {
		s.logger.Info("booking sweep finished", "scanned", res.Scanned, "expired", res.Expired,
			"failed", res.Failed, "cutoff", cutoff)
	}
	return res, ctx.Err()
}
