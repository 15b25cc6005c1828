package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// UserRepo reads and writes users and student profiles.
type UserRepo struct{ db database.DBTX }

// NewUserRepo returns a UserRepo whose non-Tx methods use db.
func NewUserRepo(db database.DBTX) *UserRepo { return &UserRepo{db: db} }

// NormalizeEmail lower-cases and trims an address; emails are unique
// case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const userColumns = `id, email, name, password_hash, role, hostel_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var hostelID sql.NullInt64
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &hostelID, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if hostelID.Valid {
		id := uint64(hostelID.Int64)
		u.HostelID = &id
	}
	return u, nil
}

// FindByEmail looks a user up on the pool.  It is the read used by the
// retrying identity pre-check.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.FindByEmailTx(ctx, r.db, email, false)
}

// FindByEmailTx looks a user up by normalized email.  With forUpdate the
// row is locked until the transaction ends.  Returns ErrNotFound when no
// user exists.
func (r *UserRepo) FindByEmailTx(ctx context.Context, tx database.DBTX, email string, forUpdate bool) (model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	return scanUser(tx.QueryRowContext(ctx, q, NormalizeEmail(email)))
}

// CreateTx inserts a user and populates its ID.
func (r *UserRepo) CreateTx(ctx context.Context, tx database.DBTX, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	var hostelID any
	if u.HostelID != nil {
		hostelID = *u.HostelID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, role, hostel_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Email, u.Name, u.PasswordHash, string(u.Role), hostelID, u.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// AffiliateTx sets the hostel of a user that has none yet.
func (r *UserRepo) AffiliateTx(ctx context.Context, tx database.DBTX, userID, hostelID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET hostel_id = ? WHERE id = ? AND hostel_id IS NULL`, hostelID, userID)
	return err
}

// FindProfileTx returns the stored profile for a user, or ErrNotFound.
func (r *UserRepo) FindProfileTx(ctx context.Context, tx database.DBTX, caps Capabilities, userID uint64) (model.StudentProfile, error) {
	access := `''`
	if caps.ProfileHasAccessNumber {
		access = `COALESCE(access_number, '')`
	}
	q := `SELECT user_id, COALESCE(gender, ''), date_of_birth, COALESCE(phone, ''), ` + access + `, COALESCE(emergency_contact, '')
	      FROM student_profiles WHERE user_id = ? FOR UPDATE`
	var p model.StudentProfile
	var dob sql.NullTime
	err := tx.QueryRowContext(ctx, q, userID).Scan(&p.UserID, &p.Gender, &dob, &p.Phone, &p.AccessNumber, &p.EmergencyContact)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StudentProfile{}, ErrNotFound
		}
		return model.StudentProfile{}, err
	}
	if dob.Valid {
		d := dob.Time
		p.DateOfBirth = &d
	}
	return p, nil
}

// SaveProfileTx writes the full profile, inserting it when absent.  The
// caller is responsible for merging new values over stored ones.
func (r *UserRepo) SaveProfileTx(ctx context.Context, tx database.DBTX, caps Capabilities, p model.StudentProfile) error {
	var dob any
	if p.DateOfBirth != nil {
		dob = p.DateOfBirth.Format("2006-01-02")
	}
	cols := `user_id, gender, date_of_birth, phone, emergency_contact`
	vals := `?, ?, ?, ?, ?`
	upd := `gender = VALUES(gender), date_of_birth = VALUES(date_of_birth), phone = VALUES(phone), emergency_contact = VALUES(emergency_contact)`
	args := []any{p.UserID, p.Gender, dob, p.Phone, p.EmergencyContact}
	if caps.ProfileHasAccessNumber {
		cols += `, access_number`
		vals += `, ?`
		upd += `, access_number = VALUES(access_number)`
		args = append(args, p.AccessNumber)
	}
	q := `INSERT INTO student_profiles (` + cols + `) VALUES (` + vals + `) ON DUPLICATE KEY UPDATE ` + upd
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// ListStaff returns the administrators and custodians of a hostel.
func (r *UserRepo) ListStaff(ctx context.Context, hostelID uint64) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE hostel_id = ? AND role IN (?, ?) ORDER BY id`,
		hostelID, string(model.RoleHostelAdmin), string(model.RoleCustodian))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var staff []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, u)
	}
	return staff, rows.Err()
}
