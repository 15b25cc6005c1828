package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

// RunResult summarises one semester scheduler run.
type RunResult struct {
	Closed    int `json:"closed"`
	Activated int `json:"activated"`
	Reminded  int `json:"reminded"`
	Failed    int `json:"failed"`
}

// SemesterScheduler applies date-driven semester transitions.
type SemesterScheduler struct {
	tx        Transactor
	caps      CapabilityProvider
	stores    Stores
	occupancy *OccupancyService
	notifier  Notifier
	ledger    ReminderLedger
	audit     AuditLog
	lookahead time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// SemesterOptions tunes the scheduler.
type SemesterOptions struct {
	// ReminderLookahead is how far ahead upcoming semesters trigger a
	// reminder to hostel staff.  Defaults to seven days.
	ReminderLookahead time.Duration
	// Location decides which calendar day "today" is.  Defaults to UTC.
	Location *time.Location
}

// NewSemesterScheduler wires the scheduler.  notifier, audit and logger
// may be nil; a nil ledger disables reminders.
func NewSemesterScheduler(tx Transactor, caps CapabilityProvider, stores Stores, occupancy *OccupancyService,
	notifier Notifier, ledger ReminderLedger, audit AuditLog, opts SemesterOptions, logger *slog.Logger) *SemesterScheduler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if audit == nil {
		audit = nopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReminderLookahead <= 0 {
		opts.ReminderLookahead = 7 * 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &SemesterScheduler{
		tx:        tx,
		caps:      caps,
		stores:    stores,
		occupancy: occupancy,
		notifier:  notifier,
		ledger:    ledger,
		audit:     audit,
		lookahead: opts.ReminderLookahead,
		loc:       opts.Location,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source.
func (s *SemesterScheduler) SetClock(now func() time.Time) { s.now = now }

func (s *SemesterScheduler) today() time.Time {
	t := s.now().In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// Run closes ended semesters, activates started ones and sends reminders
// for upcoming ones, in that order.  Failures of single semesters are
// counted and logged; the error is non-nil only when the run could not
// start or a candidate list could not be read.
func (s *SemesterScheduler) Run(ctx context.Context) (RunResult, error) {
	var res RunResult
	caps, err := s.caps.Capabilities(ctx)
	if err != nil {
		return res, classify(err)
	}
	today := s.today()

	if res.Closed, res.Failed, err = s.closeEnded(ctx, caps, today); err != nil {
		return res, classify(err)
	}
	activated, failed, err := s.activateStarted(ctx, caps, today)
	res.Activated, res.Failed = activated, res.Failed+failed
	if err != nil {
		return res, classify(err)
	}
	reminded, failed, err := s.sendReminders(ctx, caps, today)
	res.Reminded, res.Failed = reminded, res.Failed+failed
	if err != nil {
		return res, classify(err)
	}

	s.logger.Info("semester run finished", "date", dateString(today), "closed", res.Closed,
		"activated", res.Activated, "reminded", res.Reminded, "failed", res.Failed)
	return res, nil
}

func (s *SemesterScheduler) closeEnded(ctx context.Context, caps repository.Capabilities, today time.Time) (int, int, error) {
	ended, err := s.stores.Semesters.ListEndedOpen(ctx, caps, today)
	if err != nil {
		return 0, 0, err
	}
	closed, failed := 0, 0
	for _, sem := range ended {
		if !sem.DatesConsistent() {
			s.logger.Warn("skipping semester with end date before start date", "semester_id", sem.ID,
				"start_date", dateString(sem.StartDate), "end_date", dateString(sem.EndDate))
			continue
		}
		ok, err := s.closeSemester(ctx, caps, sem.ID)
		switch {
		case err != nil:
			failed++
			s.logger.Error("close semester failed", "semester_id", sem.ID, "error", err)
		case ok:
			closed++
		}
	}
	return closed, failed, nil
}

// closeSemester completes a semester and everything that depends on it,
// then reconciles the rooms its students released.
func (s *SemesterScheduler) closeSemester(ctx context.Context, caps repository.Capabilities, id uint64) (bool, error) {
	var (
		changed bool
		rooms   []uint64
		counts  = map[string]int64{}
	)
	err := s.tx.WithinTx(ctx, func(tx database.DBTX) error {
		sem, err := s.stores.Semesters.GetByIDTx(ctx, tx, caps, id, repository.UpdateLock)
		if err != nil {
			return err
		}
		if sem.Status.IsTerminal() {
			return nil
		}
		if rooms, err = s.stores.Assignments.ActiveRoomIDsForSemesterTx(ctx, tx, caps, id); err != nil {
			return err
		}
		if changed, err = s.stores.Semesters.TransitionTx(ctx, tx, id,
			transitionSources(model.SemesterCompleted), model.SemesterCompleted); err != nil || !changed {
			return err
		}
		if counts["assignments"], err = s.stores.Assignments.CompleteForSemesterTx(ctx, tx, caps, id); err != nil {
			return fmt.Errorf("complete assignments: %w", err)
		}
		if counts["enrollments"], err = s.stores.Enrollments.CompleteForSemesterTx(ctx, tx, id); err != nil {
			return fmt.Errorf("complete enrollments: %w", err)
		}
		if counts["reservations"], err = s.stores.Reservations.ExpireForSemesterTx(ctx, tx, id); err != nil {
			return fmt.Errorf("expire reservations: %w", err)
		}
		if len(rooms) > 0 {
			if _, err := s.occupancy.Reconcile(ctx, tx, caps, rooms...); err != nil {
				return fmt.Errorf("reconcile rooms: %w", err)
			}
		}
		return nil
	})
	if err != nil || !changed {
		return false, err
	}
	s.logger.Info("semester closed", "semester_id", id, "assignments", counts["assignments"],
		"enrollments", counts["enrollments"], "reservations", counts["reservations"], "rooms", len(rooms))
	s.audit.Append(ctx, "semester.closed", 0, id, map[string]any{
		"assignments":  counts["assignments"],
		"enrollments":  counts["enrollments"],
		"reservations": counts["reservations"],
		"rooms":        rooms,
	})
	return true, nil
}

func (s *SemesterScheduler) activateStarted(ctx context.Context, caps repository.Capabilities, today time.Time) (int, int, error) {
	due, err := s.stores.Semesters.ListDueToActivate(ctx, caps, today)
	if err != nil {
		return 0, 0, err
	}
	activated, failed := 0, 0
	for _, sem := range due {
		var changed bool
		err := s.tx.WithinTx(ctx, func(tx database.DBTX) error {
			var err error
			changed, err = s.stores.Semesters.TransitionTx(ctx, tx, sem.ID,
				transitionSources(model.SemesterActive), model.SemesterActive)
			if err != nil || !changed || !caps.SemesterHasCurrentFlag {
				return err
			}
			return s.stores.Semesters.MarkCurrentTx(ctx, tx, sem.HostelID, sem.ID)
		})
		switch {
		case err != nil:
			failed++
			s.logger.Error("activate semester failed", "semester_id", sem.ID, "error", err)
		case changed:
			activated++
			s.logger.Info("semester activated", "semester_id", sem.ID, "hostel_id", sem.HostelID)
			s.audit.Append(ctx, "semester.activated", 0, sem.ID, map[string]any{"hostel_id": sem.HostelID})
		}
	}
	return activated, failed, nil
}

// ReminderKey is the ledger key marking that staff were reminded about a
// semester.
func ReminderKey(semesterID uint64) string { return fmt.Sprintf("semester-reminder:%d", semesterID) }

func (s *SemesterScheduler) sendReminders(ctx context.Context, caps repository.Capabilities, today time.Time) (int, int, error) {
	if s.ledger == nil {
		return 0, 0, nil
	}
	until := today.Add(s.lookahead)
	upcoming, err := s.stores.Semesters.ListStartingWithin(ctx, caps, today, until)
	if err != nil {
		return 0, 0, err
	}
	reminded, failed := 0, 0
	for _, sem := range upcoming {
		// Staff are loaded before the mark is taken so that a failed read
		// leaves the reminder due for the next run.
		staff, err := s.stores.Users.ListStaff(ctx, sem.HostelID)
		if err != nil {
			failed++
			s.logger.Error("list hostel staff failed", "hostel_id", sem.HostelID, "error", err)
			continue
		}
		// The mark outlives the semester start so a reminder is sent once.
		ttl := sem.StartDate.Sub(today) + 48*time.Hour
		first, err := s.ledger.MarkOnce(ctx, ReminderKey(sem.ID), ttl)
		if err != nil {
			failed++
			s.logger.Warn("reminder ledger unavailable", "semester_id", sem.ID, "error", err)
			continue
		}
		if !first {
			continue
		}
		subject, body := semesterReminderMessage(sem, today)
		for _, u := range staff {
			s.notifier.NotifyAsync(u.Email, subject, body)
		}
		reminded++
		s.logger.Info("semester reminder queued", "semester_id", sem.ID, "recipients", len(staff))
	}
	return reminded, failed, nil
}

func dateString(t time.Time) string { return t.Format("2006-01-02") }

// transitionSources lists the stored statuses from which a semester may
// move to next.
func transitionSources(next model.SemesterStatus) []model.SemesterStatus {
	var from []model.SemesterStatus
	for _, s := range []model.SemesterStatus{
		model.SemesterUpcoming, model.SemesterActive, model.SemesterCompleted, model.SemesterCancelled,
	} {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	return from
}
