package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// SemesterRepo provides access to semesters and their lifecycle
// transitions.
type SemesterRepo struct{ db database.DBTX }

// NewSemesterRepo returns a SemesterRepo whose non-Tx methods use db.
func NewSemesterRepo(db database.DBTX) *SemesterRepo { return &SemesterRepo{db: db} }

func semesterColumns(caps Capabilities) string {
	current := `FALSE`
	if caps.SemesterHasCurrentFlag {
		current = `COALESCE(is_current, FALSE)`
	}
	return `id, hostel_id, name, start_date, end_date, status, ` + current
}

func scanSemester(row interface{ Scan(...any) error }) (model.Semester, error) {
	var s model.Semester
	var status string
	if err := row.Scan(&s.ID, &s.HostelID, &s.Name, &s.StartDate, &s.EndDate, &status, &s.IsCurrent); err != nil {
		return model.Semester{}, err
	}
	s.Status = model.SemesterStatus(status)
	return s, nil
}

// RowLock selects the locking read used by GetByIDTx.
type RowLock int

const (
	NoLock RowLock = iota
	// ShareLock blocks writers of the row until the transaction ends.
	ShareLock
	// UpdateLock blocks readers that lock and all writers.
	UpdateLock
)

func (l RowLock) clause() string {
	switch l {
	case ShareLock:
		return ` LOCK IN SHARE MODE`
	case UpdateLock:
		return ` FOR UPDATE`
	}
	return ``
}

// GetByIDTx reads a semester inside tx with the requested row lock.
// Registrations take a share lock so that closing the semester, which
// takes an update lock, waits for them.
func (r *SemesterRepo) GetByIDTx(ctx context.Context, tx database.DBTX, caps Capabilities, id uint64, lock RowLock) (model.Semester, error) {
	q := `SELECT ` + semesterColumns(caps) + ` FROM semesters WHERE id = ?` + lock.clause()
	s, err := scanSemester(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Semester{}, ErrNotFound
	}
	return s, err
}

func (r *SemesterRepo) list(ctx context.Context, caps Capabilities, where string, args ...any) ([]model.Semester, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+semesterColumns(caps)+` FROM semesters WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Semester
	for rows.Next() {
		s, err := scanSemester(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListEndedOpen returns active or upcoming semesters whose end date is
// before today.
func (r *SemesterRepo) ListEndedOpen(ctx context.Context, caps Capabilities, today time.Time) ([]model.Semester, error) {
	return r.list(ctx, caps, `status IN ('active', 'upcoming') AND end_date < ?`, dateOnly(today))
}

// ListDueToActivate returns upcoming semesters whose start date has
// arrived and whose end date has not passed.
func (r *SemesterRepo) ListDueToActivate(ctx context.Context, caps Capabilities, today time.Time) ([]model.Semester, error) {
	d := dateOnly(today)
	return r.list(ctx, caps, `status = 'upcoming' AND start_date <= ? AND end_date >= ?`, d, d)
}

// ListStartingWithin returns upcoming semesters starting after today and
// no later than until.
func (r *SemesterRepo) ListStartingWithin(ctx context.Context, caps Capabilities, today, until time.Time) ([]model.Semester, error) {
	return r.list(ctx, caps, `status = 'upcoming' AND start_date > ? AND start_date <= ?`, dateOnly(today), dateOnly(until))
}

// TransitionTx moves a semester to status `to` if its current status is
// one of from.  It reports whether a row changed, so concurrent runs do
// not both apply the transition.
func (r *SemesterRepo) TransitionTx(ctx context.Context, tx database.DBTX, id uint64, from []model.SemesterStatus, to model.SemesterStatus) (bool, error) {
	args := []any{string(to), time.Now().UTC(), id}
	for _, f := range from {
		args = append(args, string(f))
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE semesters SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkCurrentTx flags the semester as the hostel's current one and clears
// the flag on every other semester of the hostel.
func (r *SemesterRepo) MarkCurrentTx(ctx context.Context, tx database.DBTX, hostelID, semesterID uint64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE semesters SET is_current = FALSE WHERE hostel_id = ? AND id <> ? AND is_current = TRUE`,
		hostelID, semesterID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE semesters SET is_current = TRUE WHERE id = ?`, semesterID)
	return err
}

func dateOnly(t time.Time) string { return t.Format("2006-01-02") }
