package paysessions

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

// Repository defines payment session data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetSession(ctx context.Context, id int64) (PaymentSession, error)
	GetSessionWithLines(ctx context.Context, id int64) (SessionWithLines, error)
	ListSessions(ctx context.Context, req ListSessionsRequest) ([]PaymentSession, int, error)
	ListEligibleBills(ctx context.Context, businessID, vendorID int64) ([]bills.VendorBill, error)
}

// TxRepository defines session mutations within one unit of work. It carries
// the bill-side mutations too so posting and reversal stay atomic.
type TxRepository interface {
	CreateSession(ctx context.Context, session PaymentSession) (int64, error)
	CreateSessionLine(ctx context.Context, sessionID int64, line SessionLine) (int64, error)
	GetSessionForUpdate(ctx context.Context, id int64) (PaymentSession, error)
	GetSessionLines(ctx context.Context, sessionID int64) ([]SessionLine, error)
	MarkSessionPosted(ctx context.Context, id, userID int64) error
	MarkSessionReversed(ctx context.Context, id, userID int64) error
	LinkLinePayment(ctx context.Context, lineID, paymentID int64) error
	ClearLinePayment(ctx context.Context, lineID int64) error
	GenerateSessionNumber(ctx context.Context, businessID int64) (string, error)

	GetBillForUpdate(ctx context.Context, billID int64) (bills.VendorBill, error)
	UpdateBillBalances(ctx context.Context, bill bills.VendorBill) error
	CreateBillPayment(ctx context.Context, payment bills.BillPayment) (int64, error)
	GetBillPayment(ctx context.Context, id int64) (bills.BillPayment, error)
	DeleteBillPayment(ctx context.Context, id int64) error
}

// ListSessionsRequest filters the session listing.
type ListSessionsRequest struct {
	BusinessID int64
	VendorID   int64
	Status     SessionStatus
	Limit      int
	Offset     int
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed session repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const sessionColumns = `
	id, business_id, vendor_id, number, mode, status,
	currency, exchange_rate, total_amount, total_amount_base,
	payment_date, method, bank_account_id,
	posted_by, posted_at, reversed_by, reversed_at,
	created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (PaymentSession, error) {
	var s PaymentSession
	var bankAccountID, postedBy, reversedBy pgtype.Int8
	var postedAt, reversedAt pgtype.Timestamptz

	err := row.Scan(
		&s.ID, &s.BusinessID, &s.VendorID, &s.Number, &s.Mode, &s.Status,
		&s.Currency, &s.ExchangeRate, &s.TotalAmount, &s.TotalAmountBase,
		&s.PaymentDate, &s.Method, &bankAccountID,
		&postedBy, &postedAt, &reversedBy, &reversedAt,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return PaymentSession{}, err
	}

	if bankAccountID.Valid {
		s.BankAccountID = &bankAccountID.Int64
	}
	if postedBy.Valid {
		s.PostedBy = &postedBy.Int64
	}
	if postedAt.Valid {
		s.PostedAt = &postedAt.Time
	}
	if reversedBy.Valid {
		s.ReversedBy = &reversedBy.Int64
	}
	if reversedAt.Valid {
		s.ReversedAt = &reversedAt.Time
	}
	return s, nil
}

func (r *pgRepository) GetSession(ctx context.Context, id int64) (PaymentSession, error) {
	query := `SELECT` + sessionColumns + ` FROM ap_payment_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentSession{}, fmt.Errorf("paysessions: session %d: %w", id, shared.ErrNotFound)
	}
	return s, err
}

func (r *pgRepository) GetSessionWithLines(ctx context.Context, id int64) (SessionWithLines, error) {
	session, err := r.GetSession(ctx, id)
	if err != nil {
		return SessionWithLines{}, err
	}
	lines, err := queryLines(ctx, r.pool, id)
	if err != nil {
		return SessionWithLines{}, err
	}
	return SessionWithLines{PaymentSession: session, Lines: lines}, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, sessionID int64) ([]SessionLine, error) {
	query := `
		SELECT l.id, l.session_id, l.bill_id, COALESCE(b.number, ''),
			l.allocated_amount, l.bill_amount_due_before, l.bill_amount_due_after,
			l.is_partial_payment, l.payment_id
		FROM ap_payment_session_lines l
		LEFT JOIN vendor_bills b ON b.id = l.bill_id
		WHERE l.session_id = $1
		ORDER BY l.id`

	rows, err := q.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []SessionLine
	for rows.Next() {
		var l SessionLine
		var paymentID pgtype.Int8
		if err := rows.Scan(
			&l.ID, &l.SessionID, &l.BillID, &l.BillNumber,
			&l.AllocatedAmount, &l.BillAmountDueBefore, &l.BillAmountDueAfter,
			&l.IsPartialPayment, &paymentID,
		); err != nil {
			return nil, err
		}
		if paymentID.Valid {
			l.PaymentID = &paymentID.Int64
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *pgRepository) ListSessions(ctx context.Context, req ListSessionsRequest) ([]PaymentSession, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ap_payment_sessions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + sessionColumns + ` FROM ap_payment_sessions` + where + ` ORDER BY created_at DESC, id DESC`
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

	var sessions []PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}

func (r *pgRepository) ListEligibleBills(ctx context.Context, businessID, vendorID int64) ([]bills.VendorBill, error) {
	query := `
		SELECT id, number, due_date, amount_due, status
		FROM vendor_bills
		WHERE business_id = $1
		  AND vendor_id = $2
		  AND status IN ('OPEN', 'PARTIALLY_PAID', 'OVERDUE')
		  AND amount_due > 0
		ORDER BY due_date, id`

	rows, err := r.pool.Query(ctx, query, businessID, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eligible []bills.VendorBill
	for rows.Next() {
		var b bills.VendorBill
		if err := rows.Scan(&b.ID, &b.Number, &b.DueDate, &b.AmountDue, &b.Status); err != nil {
			return nil, err
		}
		eligible = append(eligible, b)
	}
	return eligible, rows.Err()
}

// --- transactional repository ---

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) CreateSession(ctx context.Context, session PaymentSession) (int64, error) {
	query := `
		INSERT INTO ap_payment_sessions (
			business_id, vendor_id, number, mode, status,
			currency, exchange_rate, total_amount, total_amount_base,
			payment_date, method, bank_account_id, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id`

	var bankAccountID pgtype.Int8
	if session.BankAccountID != nil {
		bankAccountID = pgtype.Int8{Int64: *session.BankAccountID, Valid: true}
	}

	var id int64
	err := t.tx.QueryRow(ctx, query,
		session.BusinessID, session.VendorID, session.Number, string(session.Mode), string(session.Status),
		session.Currency, session.ExchangeRate, session.TotalAmount, session.TotalAmountBase,
		session.PaymentDate, session.Method, bankAccountID, session.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *pgTxRepository) CreateSessionLine(ctx context.Context, sessionID int64, line SessionLine) (int64, error) {
	query := `
		INSERT INTO ap_payment_session_lines (
			session_id, bill_id, allocated_amount,
			bill_amount_due_before, bill_amount_due_after, is_partial_payment
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		sessionID, line.BillID, line.AllocatedAmount,
		line.BillAmountDueBefore, line.BillAmountDueAfter, line.IsPartialPayment,
	).Scan(&id)
	return id, err
}

func (t *pgTxRepository) GetSessionForUpdate(ctx context.Context, id int64) (PaymentSession, error) {
	query := `SELECT` + sessionColumns + ` FROM ap_payment_sessions WHERE id = $1 FOR UPDATE`
	s, err := scanSession(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentSession{}, fmt.Errorf("paysessions: session %d: %w", id, shared.ErrNotFound)
	}
	return s, err
}

func (t *pgTxRepository) GetSessionLines(ctx context.Context, sessionID int64) ([]SessionLine, error) {
	return queryLines(ctx, t.tx, sessionID)
}

func (t *pgTxRepository) MarkSessionPosted(ctx context.Context, id, userID int64) error {
	query := `
		UPDATE ap_payment_sessions
		SET status = 'POSTED', posted_by = $2, posted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'`

	tag, err := t.tx.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("session %d is not in draft", id)
	}
	return nil
}

func (t *pgTxRepository) MarkSessionReversed(ctx context.Context, id, userID int64) error {
	query := `
		UPDATE ap_payment_sessions
		SET status = 'REVERSED', reversed_by = $2, reversed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'POSTED'`

	tag, err := t.tx.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("session %d is not posted", id)
	}
	return nil
}

func (t *pgTxRepository) LinkLinePayment(ctx context.Context, lineID, paymentID int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE ap_payment_session_lines SET payment_id = $2 WHERE id = $1`, lineID, paymentID)
	return err
}

func (t *pgTxRepository) ClearLinePayment(ctx context.Context, lineID int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE ap_payment_session_lines SET payment_id = NULL WHERE id = $1`, lineID)
	return err
}

func (t *pgTxRepository) GenerateSessionNumber(ctx context.Context, businessID int64) (string, error) {
	var seq int64
	err := t.tx.QueryRow(ctx,
		`SELECT nextval('ap_payment_session_number_seq_' || $1::text)`, businessID,
	).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PAY-%s-%04d", time.Now().Format("20060102"), seq), nil
}

func (t *pgTxRepository) GetBillForUpdate(ctx context.Context, billID int64) (bills.VendorBill, error) {
	query := `
		SELECT id, number, status, due_date, total_amount, amount_paid, amount_due, days_overdue
		FROM vendor_bills
		WHERE id = $1
		FOR UPDATE`

	var b bills.VendorBill
	err := t.tx.QueryRow(ctx, query, billID).Scan(
		&b.ID, &b.Number, &b.Status, &b.DueDate,
		&b.TotalAmount, &b.AmountPaid, &b.AmountDue, &b.DaysOverdue,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return bills.VendorBill{}, fmt.Errorf("paysessions: bill %d: %w", billID, shared.ErrNotFound)
	}
	return b, err
}

func (t *pgTxRepository) UpdateBillBalances(ctx context.Context, bill bills.VendorBill) error {
	query := `
		UPDATE vendor_bills
		SET amount_paid = $2, amount_due = $3, status = $4, days_overdue = $5, updated_at = NOW()
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query, bill.ID, bill.AmountPaid, bill.AmountDue, string(bill.Status), bill.DaysOverdue)
	return err
}

func (t *pgTxRepository) CreateBillPayment(ctx context.Context, payment bills.BillPayment) (int64, error) {
	query := `
		INSERT INTO vendor_bill_payments (
			bill_id, reference, amount, currency, exchange_rate,
			paid_at, method, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		payment.BillID, payment.Reference, payment.Amount, payment.Currency, payment.ExchangeRate,
		payment.PaidAt, payment.Method, payment.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *pgTxRepository) GetBillPayment(ctx context.Context, id int64) (bills.BillPayment, error) {
	query := `
		SELECT id, bill_id, reference, amount, currency, exchange_rate, paid_at, method, created_by, created_at
		FROM vendor_bill_payments
		WHERE id = $1`

	var p bills.BillPayment
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.BillID, &p.Reference, &p.Amount, &p.Currency, &p.ExchangeRate,
		&p.PaidAt, &p.Method, &p.CreatedBy, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return bills.BillPayment{}, fmt.Errorf("paysessions: payment %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

func (t *pgTxRepository) DeleteBillPayment(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM vendor_bill_payments WHERE id = $1`, id)
	return err
}
