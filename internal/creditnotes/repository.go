package creditnotes

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

// Repository defines credit note data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetNote(ctx context.Context, id int64) (CreditNote, error)
	GetNoteWithApplications(ctx context.Context, id int64) (NoteWithApplications, error)
	ListNotes(ctx context.Context, req ListNotesRequest) ([]CreditNote, int, error)
}

// TxRepository defines credit note mutations within one unit of work. Bill
// balance updates ride in the same transaction as the note bookkeeping.
type TxRepository interface {
	CreateNote(ctx context.Context, note CreditNote) (int64, error)
	GetNoteForUpdate(ctx context.Context, id int64) (CreditNote, error)
	MarkNoteConfirmed(ctx context.Context, id, userID int64) error
	MarkNoteCancelled(ctx context.Context, id int64) error
	UpdateNoteAmounts(ctx context.Context, note CreditNote) error
	CreateApplication(ctx context.Context, app CreditApplication) (int64, error)
	GenerateNoteNumber(ctx context.Context, businessID int64) (string, error)

	GetBillForUpdate(ctx context.Context, billID int64) (bills.VendorBill, error)
	UpdateBillBalances(ctx context.Context, bill bills.VendorBill) error
}

// ListNotesRequest filters the note listing.
type ListNotesRequest struct {
	BusinessID int64
	VendorID   int64
	Status     NoteStatus
	Limit      int
	Offset     int
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed credit note repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const noteColumns = `
	id, business_id, vendor_id, original_bill_id, number, type, status,
	issue_date, currency, exchange_rate,
	credit_amount, credit_amount_base, amount_applied, amount_remaining,
	reason, confirmed_by, confirmed_at, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (CreditNote, error) {
	var n CreditNote
	var originalBillID, confirmedBy pgtype.Int8
	var confirmedAt pgtype.Timestamptz

	err := row.Scan(
		&n.ID, &n.BusinessID, &n.VendorID, &originalBillID, &n.Number, &n.Type, &n.Status,
		&n.IssueDate, &n.Currency, &n.ExchangeRate,
		&n.CreditAmount, &n.CreditAmountBase, &n.AmountApplied, &n.AmountRemaining,
		&n.Reason, &confirmedBy, &confirmedAt, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return CreditNote{}, err
	}

	if originalBillID.Valid {
		n.OriginalBillID = &originalBillID.Int64
	}
	if confirmedBy.Valid {
		n.ConfirmedBy = &confirmedBy.Int64
	}
	if confirmedAt.Valid {
		n.ConfirmedAt = &confirmedAt.Time
	}
	return n, nil
}

func (r *pgRepository) GetNote(ctx context.Context, id int64) (CreditNote, error) {
	query := `SELECT` + noteColumns + ` FROM ap_credit_notes WHERE id = $1`
	note, err := scanNote(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CreditNote{}, fmt.Errorf("creditnotes: note %d: %w", id, shared.ErrNotFound)
	}
	return note, err
}

func (r *pgRepository) GetNoteWithApplications(ctx context.Context, id int64) (NoteWithApplications, error) {
	note, err := r.GetNote(ctx, id)
	if err != nil {
		return NoteWithApplications{}, err
	}

	query := `
		SELECT id, note_id, bill_id, amount, applied_at, applied_by
		FROM ap_credit_note_applications
		WHERE note_id = $1
		ORDER BY applied_at, id`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return NoteWithApplications{}, err
	}
	defer rows.Close()

	var apps []CreditApplication
	for rows.Next() {
		var a CreditApplication
		if err := rows.Scan(&a.ID, &a.NoteID, &a.BillID, &a.Amount, &a.AppliedAt, &a.AppliedBy); err != nil {
			return NoteWithApplications{}, err
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return NoteWithApplications{}, err
	}
	return NoteWithApplications{CreditNote: note, Applications: apps}, nil
}

func (r *pgRepository) ListNotes(ctx context.Context, req ListNotesRequest) ([]CreditNote, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ap_credit_notes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + noteColumns + ` FROM ap_credit_notes` + where + ` ORDER BY issue_date DESC, id DESC`
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

	var notes []CreditNote
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, note)
	}
	return notes, total, rows.Err()
}

// --- transactional repository ---

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) CreateNote(ctx context.Context, note CreditNote) (int64, error) {
	query := `
		INSERT INTO ap_credit_notes (
			business_id, vendor_id, original_bill_id, number, type, status,
			issue_date, currency, exchange_rate,
			credit_amount, credit_amount_base, amount_applied, amount_remaining,
			reason, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		RETURNING id`

	var originalBillID pgtype.Int8
	if note.OriginalBillID != nil {
		originalBillID = pgtype.Int8{Int64: *note.OriginalBillID, Valid: true}
	}

	var id int64
	err := t.tx.QueryRow(ctx, query,
		note.BusinessID, note.VendorID, originalBillID, note.Number, string(note.Type), string(note.Status),
		note.IssueDate, note.Currency, note.ExchangeRate,
		note.CreditAmount, note.CreditAmountBase, note.AmountApplied, note.AmountRemaining,
		note.Reason, note.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *pgTxRepository) GetNoteForUpdate(ctx context.Context, id int64) (CreditNote, error) {
	query := `SELECT` + noteColumns + ` FROM ap_credit_notes WHERE id = $1 FOR UPDATE`
	note, err := scanNote(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CreditNote{}, fmt.Errorf("creditnotes: note %d: %w", id, shared.ErrNotFound)
	}
	return note, err
}

func (t *pgTxRepository) MarkNoteConfirmed(ctx context.Context, id, userID int64) error {
	query := `
		UPDATE ap_credit_notes
		SET status = 'CONFIRMED', confirmed_by = $2, confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'`

	tag, err := t.tx.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("credit note %d is not in draft", id)
	}
	return nil
}

func (t *pgTxRepository) MarkNoteCancelled(ctx context.Context, id int64) error {
	query := `
		UPDATE ap_credit_notes
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status IN ('DRAFT', 'CONFIRMED')`

	tag, err := t.tx.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.StateConflictf("credit note %d cannot be cancelled in its current state", id)
	}
	return nil
}

func (t *pgTxRepository) UpdateNoteAmounts(ctx context.Context, note CreditNote) error {
	query := `
		UPDATE ap_credit_notes
		SET amount_applied = $2, amount_remaining = $3, status = $4, updated_at = NOW()
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query, note.ID, note.AmountApplied, note.AmountRemaining, string(note.Status))
	return err
}

func (t *pgTxRepository) CreateApplication(ctx context.Context, app CreditApplication) (int64, error) {
	query := `
		INSERT INTO ap_credit_note_applications (note_id, bill_id, amount, applied_at, applied_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query, app.NoteID, app.BillID, app.Amount, app.AppliedAt, app.AppliedBy).Scan(&id)
	return id, err
}

func (t *pgTxRepository) GenerateNoteNumber(ctx context.Context, businessID int64) (string, error) {
	var seq int64
	err := t.tx.QueryRow(ctx,
		`SELECT nextval('ap_credit_note_number_seq_' || $1::text)`, businessID,
	).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CN-%s-%04d", time.Now().Format("20060102"), seq), nil
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
		return bills.VendorBill{}, fmt.Errorf("creditnotes: bill %d: %w", billID, shared.ErrNotFound)
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
