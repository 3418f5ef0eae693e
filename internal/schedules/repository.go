package schedules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settleflow/settleflow/internal/bills"
	"github.com/settleflow/settleflow/internal/platform/db"
	"github.com/settleflow/settleflow/internal/shared"
)

// Repository defines payment schedule data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetSchedule(ctx context.Context, id int64) (PaymentSchedule, error)
	ListSchedules(ctx context.Context, req ListSchedulesRequest) ([]PaymentSchedule, int, error)
	GetDueSchedules(ctx context.Context, businessID int64, asOf time.Time) ([]PaymentSchedule, error)
	GetBillSummary(ctx context.Context, billID int64) (bills.VendorBill, error)
}

// TxRepository defines schedule mutations within one unit of work.
type TxRepository interface {
	CreateSchedule(ctx context.Context, schedule PaymentSchedule) (int64, error)
	GetScheduleForUpdate(ctx context.Context, id int64) (PaymentSchedule, error)
	UpdateSchedule(ctx context.Context, schedule PaymentSchedule) error
	MarkCancelled(ctx context.Context, id int64) error
	MarkExecuted(ctx context.Context, id, sessionID, userID int64) error
	MarkOverdue(ctx context.Context, id int64) error
	GenerateScheduleNumber(ctx context.Context, businessID int64) (string, error)
}

// ListSchedulesRequest filters the schedule listing.
type ListSchedulesRequest struct {
	BusinessID int64
	VendorID   int64
	Status     ScheduleStatus
	Limit      int
	Offset     int
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed schedule repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const scheduleColumns = `
	id, business_id, vendor_id, bill_id, number, status,
	scheduled_date, amount, currency, exchange_rate, method, bank_account_id,
	session_id, executed_by, executed_at, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (PaymentSchedule, error) {
	var s PaymentSchedule
	var bankAccountID, sessionID, executedBy pgtype.Int8
	var executedAt pgtype.Timestamptz

	err := row.Scan(
		&s.ID, &s.BusinessID, &s.VendorID, &s.BillID, &s.Number, &s.Status,
		&s.ScheduledDate, &s.Amount, &s.Currency, &s.ExchangeRate, &s.Method, &bankAccountID,
		&sessionID, &executedBy, &executedAt, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return PaymentSchedule{}, err
	}

	if bankAccountID.Valid {
		s.BankAccountID = &bankAccountID.Int64
	}
	if sessionID.Valid {
		s.SessionID = &sessionID.Int64
	}
	if executedBy.Valid {
		s.ExecutedBy = &executedBy.Int64
	}
	if executedAt.Valid {
		s.ExecutedAt = &executedAt.Time
	}
	return s, nil
}

func (r *pgRepository) GetSchedule(ctx context.Context, id int64) (PaymentSchedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM ap_payment_schedules WHERE id = $1`
	s, err := scanSchedule(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentSchedule{}, fmt.Errorf("schedules: schedule %d: %w", id, shared.ErrNotFound)
	}
	return s, err
}

func (r *pgRepository) ListSchedules(ctx context.Context, req ListSchedulesRequest) ([]PaymentSchedule, int, error) {
	where := ` WHERE business_id = $1`
	args := []any{req.BusinessID}
	argNum := 2

	if req.VendorID > 0 {
		where += fmt.Sprintf(" AND vendor_id = $%d", argNum)
		args = append(args, req.VendorID)
		argNum++
	}
	if req.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ap_payment_schedules`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + scheduleColumns + ` FROM ap_payment_schedules` + where + ` ORDER BY scheduled_date, id`
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var schedules []PaymentSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		schedules = append(schedules, s)
	}
	return schedules, total, rows.Err()
}

func (r *pgRepository) GetDueSchedules(ctx context.Context, businessID int64, asOf time.Time) ([]PaymentSchedule, error) {
	query := `SELECT` + scheduleColumns + `
		FROM ap_payment_schedules
		WHERE business_id = $1
		  AND status IN ('SCHEDULED', 'OVERDUE')
		  AND scheduled_date <= $2
		ORDER BY scheduled_date, id`

	rows, err := r.pool.Query(ctx, query, businessID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []PaymentSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *pgRepository) GetBillSummary(ctx context.Context, billID int64) (bills.VendorBill, error) {
	query := `
		SELECT id, business_id, vendor_id, number, status, due_date, currency,
			total_amount, amount_paid, amount_due
		FROM vendor_bills
		WHERE id = $1`

	var b bills.VendorBill
	err := r.pool.QueryRow(ctx, query, billID).Scan(
		&b.ID, &b.BusinessID, &b.VendorID, &b.Number, &b.Status, &b.DueDate, &b.Currency,
		&b.TotalAmount, &b.AmountPaid, &b.AmountDue,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return bills.VendorBill{}, fmt.Errorf("schedules: bill %d: %w", billID, shared.ErrNotFound)
	}
	return b, err
}

// --- transactional repository ---

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) CreateSchedule(ctx context.Context, schedule PaymentSchedule) (int64, error) {
	query := `
		INSERT INTO ap_payment_schedules (
			business_id, vendor_id, bill_id, number, status,
			scheduled_date, amount, currency, exchange_rate, method, bank_account_id,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id`

	var bankAccountID pgtype.Int8
	if schedule.BankAccountID != nil {
		bankAccountID = pgtype.Int8{Int64: *schedule.BankAccountID, Valid: true}
	}

	var id int64
	err := t.tx.QueryRow(ctx, query,
		schedule.BusinessID, schedule.VendorID, schedule.BillID, schedule.Number, string(schedule.Status),
		schedule.ScheduledDate, schedule.Amount, schedule.Currency, schedule.ExchangeRate,
		schedule.Method, bankAccountID, schedule.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *pgTxRepository) GetScheduleForUpdate(ctx context.Context, id int64) (PaymentSchedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM ap_payment_schedules WHERE id = $1 FOR UPDATE`
	s, err := scanSchedule(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentSchedule{}, fmt.Errorf("schedules: schedule %d: %w", id, shared.ErrNotFound)
	}
	return s, err
}

func (t *pgTxRepository) UpdateSchedule(ctx context.Context, schedule PaymentSchedule) error {
	query := `
		UPDATE ap_payment_schedules
		SET scheduled_date = $2, amount = $3, method = $4, bank_account_id = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'SCHEDULED'`

	var bankAccountID pgtype.Int8
	if schedule.BankAccountID != nil {
		bankAccountID = pgtype.Int8{Int64: *schedule.BankAccountID, Valid: true}
	}

	tag, err := t.tx.Exec(ctx, query,
		schedule.ID, schedule.ScheduledDate, schedule.Amount, schedule.Method, bankAccountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("schedule %d is not in scheduled state", schedule.ID)
	}
	return nil
}

func (t *pgTxRepository) MarkCancelled(ctx context.Context, id int64) error {
	query := `
		UPDATE ap_payment_schedules
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status IN ('SCHEDULED', 'OVERDUE')`

	tag, err := t.tx.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("schedule %d cannot be cancelled in its current state", id)
	}
	return nil
}

func (t *pgTxRepository) MarkExecuted(ctx context.Context, id, sessionID, userID int64) error {
	query := `
		UPDATE ap_payment_schedules
		SET status = 'EXECUTED', session_id = $2, executed_by = $3, executed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('SCHEDULED', 'OVERDUE')`

	tag, err := t.tx.Exec(ctx, query, id, sessionID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("schedule %d is no longer executable", id)
	}
	return nil
}

func (t *pgTxRepository) MarkOverdue(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE ap_payment_schedules
		SET status = 'OVERDUE', updated_at = NOW()
		WHERE id = $1 AND status = 'SCHEDULED'`, id)
	return err
}

func (t *pgTxRepository) GenerateScheduleNumber(ctx context.Context, businessID int64) (string, error) {
	var seq int64
	err := t.tx.QueryRow(ctx,
		`SELECT nextval('ap_payment_schedule_number_seq_' || $1::text)`, businessID,
	).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SCH-%s-%04d", time.Now().Format("20060102"), seq), nil
}
