package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
	"github.com/iliyamo/hostel-occupancy/internal/utils"
)

// RegistrationRequest is the input of a registration.  Amounts are whole
// currency units.
type RegistrationRequest struct {
	Name                 string `json:"name" validate:"required,max=120"`
	Email                string `json:"email" validate:"required,email,max=190"`
	Phone                string `json:"phone" validate:"omitempty,max=32"`
	Gender               string `json:"gender" validate:"required,oneof=male female other"`
	DateOfBirth          string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	AccessNumber         string `json:"access_number" validate:"omitempty,max=32"`
	EmergencyContact     string `json:"emergency_contact" validate:"omitempty,max=120"`
	HostelID             uint64 `json:"hostel_id" validate:"required"`
	RoomID               uint64 `json:"room_id" validate:"required"`
	SemesterID           uint64 `json:"semester_id" validate:"required"`
	InitialPaymentAmount int64  `json:"initial_payment_amount"`
	Currency             string `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentMethod        string `json:"payment_method" validate:"omitempty,oneof=cash mobile_money bank_transfer card"`
}

// RegistrationResult identifies every row the registration wrote.
type RegistrationResult struct {
	UserID       uint64              `json:"user_id"`
	EnrollmentID uint64              `json:"enrollment_id"`
	AssignmentID uint64              `json:"assignment_id"`
	PaymentID    uint64              `json:"payment_id"`
	IsNewUser    bool                `json:"is_new_user"`
	Balance      int64               `json:"balance"`
	Room         model.RoomOccupancy `json:"room"`
}

// RegistrationOptions tunes the registration service.
type RegistrationOptions struct {
	BcryptCost      int
	DefaultCurrency string
	LookupAttempts  int
	LookupBackoff   time.Duration
}

// RegistrationService registers students into rooms for a semester.
type RegistrationService struct {
	tx        Transactor
	caps      CapabilityProvider
	stores    Stores
	occupancy *OccupancyService
	notifier  Notifier
	audit     AuditLog
	validate  *validator.Validate
	opts      RegistrationOptions
	logger    *slog.Logger
}

// NewRegistrationService wires the registration path.  notifier, audit
// and logger may be nil.
func NewRegistrationService(tx Transactor, caps CapabilityProvider, stores Stores, occupancy *OccupancyService,
	notifier Notifier, audit AuditLog, opts RegistrationOptions, logger *slog.Logger) *RegistrationService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if audit == nil {
		audit = nopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "UGX"
	}
	if opts.LookupAttempts <= 0 {
		opts.LookupAttempts = 3
	}
	if opts.LookupBackoff <= 0 {
		opts.LookupBackoff = 100 * time.Millisecond
	}
	return &RegistrationService{
		tx:        tx,
		caps:      caps,
		stores:    stores,
		occupancy: occupancy,
		notifier:  notifier,
		audit:     audit,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		opts:      opts,
		logger:    logger,
	}
}

// Register registers (or re-registers) a student.  Every write happens in
// one transaction; on any failure nothing is persisted, including a user
// account created for the request.
func (s *RegistrationService) Register(ctx context.Context, actor Actor, req RegistrationRequest) (*RegistrationResult, error) {
	req = s.normalize(req)
	if req.InitialPaymentAmount <= 0 {
		return nil, newError(KindInvalidAmount, "initial payment amount must be greater than zero")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !actor.CanManage(req.HostelID) {
		return nil, newError(KindForbidden, "you cannot register students for this hostel")
	}
	var dob *time.Time
	if req.DateOfBirth != "" {
		d, _ := time.Parse("2006-01-02", req.DateOfBirth)
		dob = &d
	}

	caps, err := s.caps.Capabilities(ctx)
	if err != nil {
		return nil, classify(err)
	}

	// Early rejection of conflicting identities; the decisive check is
	// repeated under lock inside the transaction.
	var existing *model.User
	err = database.RetryRead(ctx, s.opts.LookupAttempts, s.opts.LookupBackoff, func(ctx context.Context) error {
		u, err := s.stores.Users.FindByEmail(ctx, req.Email)
		if errors.Is(err, repository.ErrNotFound) {
			existing = nil
			return nil
		}
		if err != nil {
			return err
		}
		existing = &u
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if existing != nil {
		if err := checkIdentity(*existing, req.HostelID); err != nil {
			return nil, err
		}
	}

	var (
		result       RegistrationResult
		tempPassword string
	)
	err = s.tx.WithinTx(ctx, func(tx database.DBTX) error {
		user, password, isNew, err := s.resolveIdentity(ctx, tx, req)
		if err != nil {
			return err
		}
		tempPassword = password
		result.UserID = user.ID
		result.IsNewUser = isNew

		if err := s.upsertProfile(ctx, tx, caps, user.ID, req, dob); err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}

		semester, err := s.stores.Semesters.GetByIDTx(ctx, tx, caps, req.SemesterID, repository.ShareLock)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && semester.HostelID != req.HostelID) {
			return newError(KindSemesterNotFound, "semester not found")
		}
		if err != nil {
			return err
		}
		if semester.Status.IsTerminal() {
			return newError(KindSemesterClosed, fmt.Sprintf("semester %q is %s", semester.Name, semester.Status.Normalized()))
		}

		prior, err := s.stores.Assignments.ActiveRoomIDsTx(ctx, tx, caps, user.ID, semester.ID)
		if err != nil {
			return err
		}
		touched := append(append([]uint64{}, prior...), req.RoomID)
		rooms, err := s.stores.Rooms.LockTx(ctx, tx, touched)
		if err != nil {
			return err
		}
		room, ok := rooms[req.RoomID]
		if !ok || room.HostelID != req.HostelID {
			return newError(KindRoomNotFound, "room not found")
		}
		if !room.GenderAllowed.Allows(req.Gender) {
			return newError(KindGenderMismatch, fmt.Sprintf("room is allocated for %s students only", strings.ToLower(string(room.GenderAllowed))))
		}

		occupants, err := s.stores.Rooms.CountOccupantsTx(ctx, tx, caps, room.ID, user.ID)
		if err != nil {
			return err
		}
		if occupants >= room.Capacity {
			return newError(KindCapacityExceeded, fmt.Sprintf("room %s is full (%d of %d beds taken)", room.RoomNumber, occupants, room.Capacity))
		}

		roomID := room.ID
		enrollment := model.Enrollment{
			UserID:      user.ID,
			SemesterID:  semester.ID,
			RoomID:      &roomID,
			TotalAmount: room.Price,
			AmountPaid:  req.InitialPaymentAmount,
			Status:      model.EnrollmentActive,
		}
		if err := s.stores.Enrollments.UpsertTx(ctx, tx, caps, &enrollment); err != nil {
			return fmt.Errorf("upsert enrollment: %w", err)
		}
		result.EnrollmentID = enrollment.ID
		result.Balance = model.Balance(enrollment.TotalAmount, enrollment.AmountPaid)

		if _, err := s.stores.Assignments.CancelOtherRoomsTx(ctx, tx, caps, user.ID, semester.ID, room.ID); err != nil {
			return fmt.Errorf("release previous rooms: %w", err)
		}
		assignmentID, err := s.stores.Assignments.FindActiveTx(ctx, tx, caps, user.ID, room.ID, semester.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			semesterID := semester.ID
			a := model.Assignment{
				UserID:     user.ID,
				RoomID:     room.ID,
				SemesterID: &semesterID,
				Status:     model.AssignmentActive,
				AssignedBy: actor.UserID,
			}
			if err := s.stores.Assignments.CreateTx(ctx, tx, caps, &a); err != nil {
				return fmt.Errorf("create assignment: %w", err)
			}
			assignmentID = a.ID
		case err != nil:
			return err
		}
		result.AssignmentID = assignmentID

		// The payment must exist before reconciling: occupancy only counts
		// students with at least one payment.
		semesterID := semester.ID
		payment := model.Payment{
			UserID:     user.ID,
			HostelID:   req.HostelID,
			SemesterID: &semesterID,
			Amount:     req.InitialPaymentAmount,
			Currency:   req.Currency,
			Method:     req.PaymentMethod,
			Reference:  uuid.NewString(),
			RecordedBy: actor.UserID,
		}
		if err := s.stores.Payments.CreateTx(ctx, tx, caps, &payment); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		result.PaymentID = payment.ID

		occ, err := s.occupancy.Reconcile(ctx, tx, caps, touched...)
		if err != nil {
			return fmt.Errorf("reconcile occupancy: %w", err)
		}
		for _, o := range occ {
			if o.RoomID == room.ID {
				result.Room = o
			}
		}
		return nil
	})
	if err != nil {
		err = classify(err)
		s.logger.Info("registration rejected", "email", req.Email, "room_id", req.RoomID,
			"semester_id", req.SemesterID, "kind", KindOf(err), "error", err)
		return nil, err
	}

	s.logger.Info("student registered", "user_id", result.UserID, "room_id", req.RoomID,
		"semester_id", req.SemesterID, "new_user", result.IsNewUser, "occupancy", result.Room.Occupancy)
	s.audit.Append(ctx, "registration.created", actor.UserID, result.UserID, map[string]any{
		"hostel_id":     req.HostelID,
		"room_id":       req.RoomID,
		"semester_id":   req.SemesterID,
		"enrollment_id": result.EnrollmentID,
		"payment_id":    result.PaymentID,
		"amount":        req.InitialPaymentAmount,
		"currency":      req.Currency,
	})
	subject, body := registrationMessage(req, result, tempPassword)
	s.notifier.NotifyAsync(req.Email, subject, body)
	return &result, nil
}

func (s *RegistrationService) normalize(req RegistrationRequest) RegistrationRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = repository.NormalizeEmail(req.Email)
	req.Gender = strings.ToLower(strings.TrimSpace(req.Gender))
	req.Phone = strings.TrimSpace(req.Phone)
	req.AccessNumber = strings.TrimSpace(req.AccessNumber)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = s.opts.DefaultCurrency
	}
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	return req
}

// resolveIdentity re-reads the user under lock and creates it when absent.
// It returns the plain temporary password for new users.
func (s *RegistrationService) resolveIdentity(ctx context.Context, tx database.DBTX, req RegistrationRequest) (model.User, string, bool, error) {
	u, err := s.stores.Users.FindByEmailTx(ctx, tx, req.Email, true)
	if err == nil {
		if err := checkIdentity(u, req.HostelID); err != nil {
			return model.User{}, "", false, err
		}
		if u.HostelID == nil {
			if err := s.stores.Users.AffiliateTx(ctx, tx, u.ID, req.HostelID); err != nil {
				return model.User{}, "", false, err
			}
			hostelID := req.HostelID
			u.HostelID = &hostelID
		}
		return u, "", false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, "", false, err
	}

	password := utils.TemporaryPassword()
	hash, err := utils.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return model.User{}, "", false, err
	}
	hostelID := req.HostelID
	u = model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         model.RoleUser,
		HostelID:     &hostelID,
	}
	if err := s.stores.Users.CreateTx(ctx, tx, &u); err != nil {
		if database.IsConflict(err) {
			return model.User{}, "", false, &Error{Kind: KindIdentityConflict, Msg: "email was registered concurrently, please retry", Err: err}
		}
		return model.User{}, "", false, err
	}
	return u, password, true, nil
}

// upsertProfile merges the request over the stored profile.  Values the
// request leaves blank never overwrite stored ones.
func (s *RegistrationService) upsertProfile(ctx context.Context, tx database.DBTX, caps repository.Capabilities, userID uint64, req RegistrationRequest, dob *time.Time) error {
	stored, err := s.stores.Users.FindProfileTx(ctx, tx, caps, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	stored.UserID = userID
	merged, err := MergeProfile(stored, model.StudentProfile{
		UserID:           userID,
		Gender:           req.Gender,
		DateOfBirth:      dob,
		Phone:            req.Phone,
		AccessNumber:     req.AccessNumber,
		EmergencyContact: req.EmergencyContact,
	})
	if err != nil {
		return err
	}
	return s.stores.Users.SaveProfileTx(ctx, tx, caps, merged)
}

// MergeProfile copies every non-empty field of incoming over stored.
func MergeProfile(stored, incoming model.StudentProfile) (model.StudentProfile, error) {
	merged := stored
	if err := copier.CopyWithOption(&merged, &incoming, copier.Option{IgnoreEmpty: true}); err != nil {
		return model.StudentProfile{}, err
	}
	return merged, nil
}

// checkIdentity rejects reuse of an email that belongs to staff or to a
// student of another hostel.
func checkIdentity(u model.User, hostelID uint64) error {
	if u.Role != model.RoleUser {
		return newError(KindIdentityConflict, "email belongs to a staff account and cannot be registered as a student")
	}
	if u.HostelID != nil && *u.HostelID != hostelID {
		return newError(KindIdentityConflict, "email is already registered with another hostel")
	}
	return nil
}

func validationError(err error) error {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()), Err: err}
	}
	return &Error{Kind: KindInvalidInput, Msg: "invalid registration request", Err: err}
}
