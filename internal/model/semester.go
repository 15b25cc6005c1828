package model

import (
	"strings"
	"time"
)

// SemesterStatus tracks the lifecycle of a semester:
// upcoming → active → completed, with cancelled reachable from either
// non-terminal state.  Older rows may carry "ended", which is read as
// completed and never written.
type SemesterStatus string

const (
	SemesterUpcoming  SemesterStatus = "upcoming"
	SemesterActive    SemesterStatus = "active"
	SemesterCompleted SemesterStatus = "completed"
	SemesterCancelled SemesterStatus = "cancelled"
	SemesterEnded     SemesterStatus = "ended"
)

// Normalized lower-cases the status and folds the legacy "ended" value
// into completed.
func (s SemesterStatus) Normalized() SemesterStatus {
	n := SemesterStatus(strings.ToLower(strings.TrimSpace(string(s))))
	if n == SemesterEnded {
		return SemesterCompleted
	}
	return n
}

// IsTerminal reports whether no further transition is possible.
func (s SemesterStatus) IsTerminal() bool {
	switch s.Normalized() {
	case SemesterCompleted, SemesterCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle step.
func (s SemesterStatus) CanTransition(next SemesterStatus) bool {
	from, to := s.Normalized(), next.Normalized()
	if next == SemesterEnded {
		return false
	}
	switch from {
	case SemesterUpcoming:
		return to == SemesterActive || to == SemesterCompleted || to == SemesterCancelled
	case SemesterActive:
		return to == SemesterCompleted || to == SemesterCancelled
	}
	return false
}

// Semester represents a row in the `semesters` table.  At most one
// semester per hostel should carry IsCurrent; the flag only exists on
// newer schemas.
type Semester struct {
	ID        uint64         // semesters.id
	HostelID  uint64         // semesters.hostel_id
	Name      string         // semesters.name
	StartDate time.Time      // semesters.start_date
	EndDate   time.Time      // semesters.end_date
	Status    SemesterStatus // semesters.status
	IsCurrent bool           // semesters.is_current (optional column)
}

// DatesConsistent reports whether the semester's end date is not before
// its start date.
func (s Semester) DatesConsistent() bool {
	return !s.EndDate.Before(s.StartDate)
}
