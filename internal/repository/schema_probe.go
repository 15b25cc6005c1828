package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
)

// Capabilities records which optional columns exist in the connected
// schema.  It is computed once, cached, and passed into every write path
// so that individual statements never consult metadata themselves.
type Capabilities struct {
	// AssignmentUserColumn is "user_id" on current schemas and
	// "student_id" on deployments created before the rename.
	AssignmentUserColumn   string
	AssignmentHasSemester  bool
	PaymentHasSemester     bool
	SemesterHasCurrentFlag bool
	ProfileHasAccessNumber bool
	EnrollmentHasBalance   bool
}

// FullCapabilities describes the newest schema.  Tests and fresh
// deployments use it directly.
func FullCapabilities() Capabilities {
	return Capabilities{
		AssignmentUserColumn:   "user_id",
		AssignmentHasSemester:  true,
		PaymentHasSemester:     true,
		SemesterHasCurrentFlag: true,
		ProfileHasAccessNumber: true,
		EnrollmentHasBalance:   true,
	}
}

// SchemaProbe answers questions about the connected schema by reading
// information_schema.  Results of Capabilities are cached for ttl.
type SchemaProbe struct {
	db     database.DBTX
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	cached   *Capabilities
	cachedAt time.Time
}

// NewSchemaProbe returns a probe bound to db.  A non-positive ttl caches
// the capabilities for the life of the process.
func NewSchemaProbe(db database.DBTX, ttl time.Duration, logger *slog.Logger) *SchemaProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemaProbe{db: db, ttl: ttl, now: time.Now, logger: logger}
}

const columnExistsQuery = `SELECT COUNT(*) FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`

func (p *SchemaProbe) columnExists(ctx context.Context, table, column string) (bool, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, columnExistsQuery, table, column).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasColumn reports whether table.column exists.  A missing column is an
// ordinary answer; metadata read failures are logged and reported as
// absent.
func (p *SchemaProbe) HasColumn(ctx context.Context, table, column string) bool {
	ok, err := p.columnExists(ctx, table, column)
	if err != nil {
		p.logger.Warn("schema probe failed", "table", table, "column", column, "error", err)
		return false
	}
	return ok
}

// ResolveAssignmentUserColumn returns the column of room_assignments that
// references the student.
func (p *SchemaProbe) ResolveAssignmentUserColumn(ctx context.Context) string {
	if p.HasColumn(ctx, "room_assignments", "user_id") {
		return "user_id"
	}
	if p.HasColumn(ctx, "room_assignments", "student_id") {
		return "student_id"
	}
	return "user_id"
}

// Capabilities returns the cached capabilities, probing the schema when
// the cache is empty or stale.  It fails with ErrSchemaMismatch only when
// a required column is missing or the metadata cannot be read.
func (p *SchemaProbe) Capabilities(ctx context.Context) (Capabilities, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && (p.ttl <= 0 || p.now().Sub(p.cachedAt) < p.ttl) {
		return *p.cached, nil
	}
	caps, err := p.probe(ctx)
	if err != nil {
		return Capabilities{}, err
	}
	p.cached = &caps
	p.cachedAt = p.now()
	p.logger.Info("schema capabilities probed",
		"assignment_user_column", caps.AssignmentUserColumn,
		"assignment_semester", caps.AssignmentHasSemester,
		"payment_semester", caps.PaymentHasSemester,
		"semester_current_flag", caps.SemesterHasCurrentFlag,
		"profile_access_number", caps.ProfileHasAccessNumber,
		"enrollment_balance", caps.EnrollmentHasBalance,
	)
	return caps, nil
}

func (p *SchemaProbe) probe(ctx context.Context) (Capabilities, error) {
	checks := []struct {
		table, column string
	}{
		{"room_assignments", "user_id"},
		{"room_assignments", "student_id"},
		{"room_assignments", "semester_id"},
		{"payments", "semester_id"},
		{"semesters", "is_current"},
		{"student_profiles", "access_number"},
		{"semester_enrollments", "balance"},
	}
	found := make([]bool, len(checks))
	for i, c := range checks {
		ok, err := p.columnExists(ctx, c.table, c.column)
		if err != nil {
			return Capabilities{}, fmt.Errorf("%w: probe %s.%s: %v", ErrSchemaMismatch, c.table, c.column, err)
		}
		found[i] = ok
	}

	caps := Capabilities{
		AssignmentHasSemester:  found[2],
		PaymentHasSemester:     found[3],
		SemesterHasCurrentFlag: found[4],
		ProfileHasAccessNumber: found[5],
		EnrollmentHasBalance:   found[6],
	}
	switch {
	case found[0]:
		caps.AssignmentUserColumn = "user_id"
	case found[1]:
		caps.AssignmentUserColumn = "student_id"
	default:
		return Capabilities{}, fmt.Errorf("%w: room_assignments has neither user_id nor student_id", ErrSchemaMismatch)
	}
	return caps, nil
}
