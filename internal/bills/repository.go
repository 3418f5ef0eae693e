package bills

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settleflow/settleflow/internal/platform/db"
	"github.com/settleflow/settleflow/internal/shared"
)

// Repository defines bill ledger data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetBill(ctx context.Context, id int64) (VendorBill, error)
	GetBillWithDetails(ctx context.Context, id int64) (BillWithDetails, error)
	ListBills(ctx context.Context, req ListBillsRequest) ([]VendorBill, int, error)
	ListPayableBills(ctx context.Context, businessID int64) ([]VendorBill, error)
	ListOverdueBills(ctx context.Context, businessID int64, asOf time.Time) ([]VendorBill, error)
	VendorOverdueSummaries(ctx context.Context, businessID int64, asOf time.Time) ([]VendorOverdueSummary, error)
}

// TxRepository defines bill mutations within a unit of work.
type TxRepository interface {
	CreateBill(ctx context.Context, bill VendorBill) (int64, error)
	CreateBillLine(ctx context.Context, billID int64, line BillLine) (int64, error)
	GetBillForUpdate(ctx context.Context, id int64) (VendorBill, error)
	ConfirmBill(ctx context.Context, id, userID int64) error
	CancelBill(ctx context.Context, id int64, status BillStatus, reason string) error
	UpdateBillBalances(ctx context.Context, bill VendorBill) error
	CreateBillPayment(ctx context.Context, payment BillPayment) (int64, error)
	GenerateBillNumber(ctx context.Context, businessID int64) (string, error)
}

// ListBillsRequest filters the bill listing.
type ListBillsRequest struct {
	BusinessID int64
	VendorID   int64
	Status     BillStatus
	FromDate   time.Time
	ToDate     time.Time
	Limit      int
	Offset     int
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed bill repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const billColumns = `
	id, business_id, vendor_id, purchase_order_id, number, status,
	bill_date, due_date, currency, exchange_rate,
	subtotal, discount_type, discount_value, discount_amount,
	shipping_fee, tax_amount, total_amount, total_amount_base,
	amount_paid, amount_due, days_overdue,
	confirmed_by, confirmed_at, cancel_reason,
	created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (VendorBill, error) {
	var b VendorBill
	var poID, confirmedBy pgtype.Int8
	var confirmedAt pgtype.Timestamptz
	var cancelReason pgtype.Text

	err := row.Scan(
		&b.ID, &b.BusinessID, &b.VendorID, &poID, &b.Number, &b.Status,
		&b.BillDate, &b.DueDate, &b.Currency, &b.ExchangeRate,
		&b.Subtotal, &b.DiscountType, &b.DiscountValue, &b.DiscountAmount,
		&b.ShippingFee, &b.TaxAmount, &b.TotalAmount, &b.TotalAmountBase,
		&b.AmountPaid, &b.AmountDue, &b.DaysOverdue,
		&confirmedBy, &confirmedAt, &cancelReason,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return VendorBill{}, err
	}

	if poID.Valid {
		b.PurchaseOrderID = &poID.Int64
	}
	if confirmedBy.Valid {
		b.ConfirmedBy = &confirmedBy.Int64
	}
	if confirmedAt.Valid {
		b.ConfirmedAt = &confirmedAt.Time
	}
	if cancelReason.Valid {
		b.CancelReason = &cancelReason.String
	}
	return b, nil
}

func (r *pgRepository) GetBill(ctx context.Context, id int64) (VendorBill, error) {
	query := `SELECT` + billColumns + ` FROM vendor_bills WHERE id = $1`
	bill, err := scanBill(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return VendorBill{}, fmt.Errorf("bills: bill %d: %w", id, shared.ErrNotFound)
	}
	return bill, err
}

func (r *pgRepository) GetBillWithDetails(ctx context.Context, id int64) (BillWithDetails, error) {
	bill, err := r.GetBill(ctx, id)
	if err != nil {
		return BillWithDetails{}, err
	}

	// A bill may outlive its vendor profile; only a missing row is tolerable.
	var vendorName string
	err = r.pool.QueryRow(ctx, `SELECT name FROM vendor_profiles WHERE id = $1`, bill.VendorID).Scan(&vendorName)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return BillWithDetails{}, fmt.Errorf("bills: vendor name for bill %d: %w", id, err)
	}

	lines, err := r.listBillLines(ctx, id)
	if err != nil {
		return BillWithDetails{}, err
	}
	payments, err := r.listBillPayments(ctx, id)
	if err != nil {
		return BillWithDetails{}, err
	}

	return BillWithDetails{VendorBill: bill, VendorName: vendorName, Lines: lines, Payments: payments}, nil
}

func (r *pgRepository) listBillLines(ctx context.Context, billID int64) ([]BillLine, error) {
	query := `
		SELECT id, bill_id, description, quantity, unit_price,
			discount_type, discount_value, discount_amount,
			tax_rate_pct, tax_amount, line_total, created_at
		FROM vendor_bill_lines
		WHERE bill_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []BillLine
	for rows.Next() {
		var l BillLine
		if err := rows.Scan(
			&l.ID, &l.BillID, &l.Description, &l.Quantity, &l.UnitPrice,
			&l.DiscountType, &l.DiscountValue, &l.DiscountAmount,
			&l.TaxRatePct, &l.TaxAmount, &l.LineTotal, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *pgRepository) listBillPayments(ctx context.Context, billID int64) ([]BillPayment, error) {
	query := `
		SELECT id, bill_id, reference, amount, currency, exchange_rate,
			paid_at, method, created_by, created_at
		FROM vendor_bill_payments
		WHERE bill_id = $1
		ORDER BY paid_at, id`

	rows, err := r.pool.Query(ctx, query, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []BillPayment
	for rows.Next() {
		var p BillPayment
		if err := rows.Scan(
			&p.ID, &p.BillID, &p.Reference, &p.Amount, &p.Currency, &p.ExchangeRate,
			&p.PaidAt, &p.Method, &p.CreatedBy, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *pgRepository) ListBills(ctx context.Context, req ListBillsRequest) ([]VendorBill, int, error) {
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
	if !req.FromDate.IsZero() {
		where += fmt.Sprintf(" AND bill_date >= $%d", argNum)
		args = append(args, req.FromDate)
		argNum++
	}
	if !req.ToDate.IsZero() {
		where += fmt.Sprintf(" AND bill_date <= $%d", argNum)
		args = append(args, req.ToDate)
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendor_bills`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + billColumns + ` FROM vendor_bills` + where + ` ORDER BY bill_date DESC, id DESC`
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

	var bills []VendorBill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, bill)
	}
	return bills, total, rows.Err()
}

func (r *pgRepository) ListPayableBills(ctx context.Context, businessID int64) ([]VendorBill, error) {
	query := `SELECT` + billColumns + `
		FROM vendor_bills
		WHERE business_id = $1
		  AND status IN ('OPEN', 'PARTIALLY_PAID', 'OVERDUE')
		  AND amount_due > 0
		ORDER BY due_date, id`

	return r.queryBills(ctx, query, businessID)
}

func (r *pgRepository) ListOverdueBills(ctx context.Context, businessID int64, asOf time.Time) ([]VendorBill, error) {
	query := `SELECT` + billColumns + `
		FROM vendor_bills
		WHERE business_id = $1
		  AND due_date < $2
		  AND amount_due > 0
		  AND status IN ('OPEN', 'PARTIALLY_PAID', 'OVERDUE')
		ORDER BY due_date, id`

	return r.queryBills(ctx, query, businessID, asOf)
}

func (r *pgRepository) queryBills(ctx context.Context, query string, args ...any) ([]VendorBill, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []VendorBill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

func (r *pgRepository) VendorOverdueSummaries(ctx context.Context, businessID int64, asOf time.Time) ([]VendorOverdueSummary, error) {
	query := `
		SELECT b.vendor_id, COALESCE(v.name, ''), COUNT(*), SUM(b.amount_due),
			MAX(GREATEST(0, ($2::date - b.due_date::date)))
		FROM vendor_bills b
		LEFT JOIN vendor_profiles v ON v.id = b.vendor_id
		WHERE b.business_id = $1
		  AND b.due_date < $2
		  AND b.amount_due > 0
		  AND b.status IN ('OPEN', 'PARTIALLY_PAID', 'OVERDUE')
		GROUP BY b.vendor_id, v.name
		ORDER BY SUM(b.amount_due) DESC`

	rows, err := r.pool.Query(ctx, query, businessID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []VendorOverdueSummary
	for rows.Next() {
		var s VendorOverdueSummary
		if err := rows.Scan(&s.VendorID, &s.VendorName, &s.BillCount, &s.TotalDue, &s.MaxDaysOverdue); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// --- transactional repository ---

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) CreateBill(ctx context.Context, bill VendorBill) (int64, error) {
	query := `
		INSERT INTO vendor_bills (
			business_id, vendor_id, purchase_order_id, number, status,
			bill_date, due_date, currency, exchange_rate,
			subtotal, discount_type, discount_value, discount_amount,
			shipping_fee, tax_amount, total_amount, total_amount_base,
			amount_paid, amount_due, days_overdue, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, 0, $20, NOW(), NOW())
		RETURNING id`

	var poID pgtype.Int8
	if bill.PurchaseOrderID != nil {
		poID = pgtype.Int8{Int64: *bill.PurchaseOrderID, Valid: true}
	}

	var id int64
	err := t.tx.QueryRow(ctx, query,
		bill.BusinessID, bill.VendorID, poID, bill.Number, string(bill.Status),
		bill.BillDate, bill.DueDate, bill.Currency, bill.ExchangeRate,
		bill.Subtotal, string(bill.DiscountType), bill.DiscountValue, bill.DiscountAmount,
		bill.ShippingFee, bill.TaxAmount, bill.TotalAmount, bill.TotalAmountBase,
		bill.AmountPaid, bill.AmountDue, bill.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *pgTxRepository) CreateBillLine(ctx context.Context, billID int64, line BillLine) (int64, error) {
	query := `
		INSERT INTO vendor_bill_lines (
			bill_id, description, quantity, unit_price,
			discount_type, discount_value, discount_amount,
			tax_rate_pct, tax_amount, line_total, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		billID, line.Description, line.Quantity, line.UnitPrice,
		string(line.DiscountType), line.DiscountValue, line.DiscountAmount,
		line.TaxRatePct, line.TaxAmount, line.LineTotal,
	).Scan(&id)
	return id, err
}

func (t *pgTxRepository) GetBillForUpdate(ctx context.Context, id int64) (VendorBill, error) {
	query := `SELECT` + billColumns + ` FROM vendor_bills WHERE id = $1 FOR UPDATE`
	bill, err := scanBill(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return VendorBill{}, fmt.Errorf("bills: bill %d: %w", id, shared.ErrNotFound)
	}
	return bill, err
}

func (t *pgTxRepository) ConfirmBill(ctx context.Context, id, userID int64) error {
	query := `
		UPDATE vendor_bills
		SET status = 'OPEN', confirmed_by = $2, confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'`

	tag, err := t.tx.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("bill %d is not in draft", id)
	}
	return nil
}

func (t *pgTxRepository) CancelBill(ctx context.Context, id int64, status BillStatus, reason string) error {
	query := `
		UPDATE vendor_bills
		SET status = $2, cancel_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('PAID', 'CANCELLED', 'VOID')`

	tag, err := t.tx.Exec(ctx, query, id, string(status), reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("bill %d cannot be cancelled in its current state", id)
	}
	return nil
}

func (t *pgTxRepository) UpdateBillBalances(ctx context.Context, bill VendorBill) error {
	query := `
		UPDATE vendor_bills
		SET amount_paid = $2, amount_due = $3, status = $4, days_overdue = $5, updated_at = NOW()
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query, bill.ID, bill.AmountPaid, bill.AmountDue, string(bill.Status), bill.DaysOverdue)
	return err
}

func (t *pgTxRepository) CreateBillPayment(ctx context.Context, payment BillPayment) (int64, error) {
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

func (t *pgTxRepository) GenerateBillNumber(ctx context.Context, businessID int64) (string, error) {
	var seq int64
	err := t.tx.QueryRow(ctx,
		`SELECT nextval('vendor_bill_number_seq_' || $1::text)`, businessID,
	).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("BILL-%s-%04d", time.Now().Format("20060102"), seq), nil
}
