package model

import "time"

// Role is the authorization role stored on a user.  Only RoleUser
// accounts may be registered as students; the remaining roles are staff.
type Role string

const (
	RoleUser        Role = "user"
	RoleCustodian   Role = "custodian"
	RoleHostelAdmin Role = "hostel_admin"
	RoleSuperAdmin  Role = "super_admin"
)

// IsStaff reports whether the role may act on behalf of a hostel.
func (r Role) IsStaff() bool {
	switch r {
	case RoleCustodian, RoleHostelAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// User mirrors the 'users' table.  Email is stored lower-cased and is
// unique.
//
// Fields:
//
//	ID           – primary key identifier.
//	Email        – unique, lower-cased email address.
//	Name         – display name.
//	PasswordHash – bcrypt hash of the (temporary) credential.
//	Role         – user, custodian, hostel_admin or super_admin.
//	HostelID     – hostel affiliation; nil for unaffiliated accounts.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	Name         string    // users.name
	PasswordHash string    // users.password_hash
	Role         Role      // users.role
	HostelID     *uint64   // users.hostel_id (nullable)
	CreatedAt    time.Time // users.created_at
}

// StudentProfile holds the attributes collected at registration.  Empty
// strings and nil pointers mean "not provided".
type StudentProfile struct {
	UserID           uint64     // student_profiles.user_id
	Gender           string     // student_profiles.gender
	DateOfBirth      *time.Time // student_profiles.date_of_birth (nullable)
	Phone            string     // student_profiles.phone
	AccessNumber     string     // student_profiles.access_number (optional column)
	EmergencyContact string     // student_profiles.emergency_contact
}
