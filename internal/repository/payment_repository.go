package repository

import (
	"context"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
)

// PaymentRepo appends to the payments ledger.  Rows are never updated.
type PaymentRepo struct{}

// NewPaymentRepo returns a PaymentRepo.
func NewPaymentRepo() *PaymentRepo { return &PaymentRepo{} }

// CreateTx inserts a payment and populates its ID.  The semester link is
// written only when the schema has the column.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx database.DBTX, caps Capabilities, p *model.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cols := `user_id, hostel_id, amount, currency, method, reference, recorded_by, created_at`
	vals := `?, ?, ?, ?, ?, ?, ?, ?`
	args := []any{p.UserID, p.HostelID, p.Amount, p.Currency, p.Method, p.Reference, p.RecordedBy, p.CreatedAt}
	if caps.PaymentHasSemester && p.SemesterID != nil {
		cols += `, semester_id`
		vals += `, ?`
		args = append(args, *p.SemesterID)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO payments (`+cols+`) VALUES (`+vals+`)`, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}
