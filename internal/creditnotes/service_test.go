package creditnotes

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/settleflow/settleflow/internal/bills"
	"github.com/settleflow/settleflow/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memoryNoteRepo struct {
	notes  map[int64]CreditNote
	apps   map[int64][]CreditApplication
	bills  map[int64]bills.VendorBill
	nextID int64
	seq    int64
}

func newMemoryNoteRepo() *memoryNoteRepo {
	return &memoryNoteRepo{
		notes: map[int64]CreditNote{},
		apps:  map[int64][]CreditApplication{},
		bills: map[int64]bills.VendorBill{},
	}
}

func (r *memoryNoteRepo) addBill(id int64, due string) {
	amount := dec(due)
	r.bills[id] = bills.VendorBill{
		ID:          id,
		Number:      fmt.Sprintf("BILL-%04d", id),
		Status:      bills.StatusOpen,
		DueDate:     time.Now().AddDate(0, 0, 30),
		TotalAmount: amount,
		AmountPaid:  decimal.Zero,
		AmountDue:   amount,
	}
}

func (r *memoryNoteRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryNoteRepo) GetNote(ctx context.Context, id int64) (CreditNote, error) {
	n, ok := r.notes[id]
	if !ok {
		return CreditNote{}, fmt.Errorf("creditnotes: note %d: %w", id, shared.ErrNotFound)
	}
	return n, nil
}

func (r *memoryNoteRepo) GetNoteWithApplications(ctx context.Context, id int64) (NoteWithApplications, error) {
	n, err := r.GetNote(ctx, id)
	if err != nil {
		return NoteWithApplications{}, err
	}
	return NoteWithApplications{CreditNote: n, Applications: r.apps[id]}, nil
}

func (r *memoryNoteRepo) ListNotes(ctx context.Context, req ListNotesRequest) ([]CreditNote, int, error) {
	var out []CreditNote
	for _, n := range r.notes {
		if n.BusinessID != req.BusinessID {
			continue
		}
		if req.VendorID > 0 && n.VendorID != req.VendorID {
			continue
		}
		if req.Status != "" && n.Status != req.Status {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (r *memoryNoteRepo) CreateNote(ctx context.Context, note CreditNote) (int64, error) {
	r.nextID++
	note.ID = r.nextID
	r.notes[note.ID] = note
	return note.ID, nil
}

func (r *memoryNoteRepo) GetNoteForUpdate(ctx context.Context, id int64) (CreditNote, error) {
	return r.GetNote(ctx, id)
}

func (r *memoryNoteRepo) MarkNoteConfirmed(ctx context.Context, id, userID int64) error {
	n := r.notes[id]
	if n.Status != NoteDraft {
		return shared.StateConflictf("credit note %d is not in draft", id)
	}
	now := time.Now()
	n.Status = NoteConfirmed
	n.ConfirmedBy = &userID
	n.ConfirmedAt = &now
	r.notes[id] = n
	return nil
}

func (r *memoryNoteRepo) MarkNoteCancelled(ctx context.Context, id int64) error {
	n := r.notes[id]
	n.Status = NoteCancelled
	r.notes[id] = n
	return nil
}

func (r *memoryNoteRepo) UpdateNoteAmounts(ctx context.Context, note CreditNote) error {
	stored := r.notes[note.ID]
	stored.AmountApplied = note.AmountApplied
	stored.AmountRemaining = note.AmountRemaining
	stored.Status = note.Status
	r.notes[note.ID] = stored
	return nil
}

func (r *memoryNoteRepo) CreateApplication(ctx context.Context, app CreditApplication) (int64, error) {
	r.nextID++
	app.ID = r.nextID
	r.apps[app.NoteID] = append(r.apps[app.NoteID], app)
	return app.ID, nil
}

func (r *memoryNoteRepo) GenerateNoteNumber(ctx context.Context, businessID int64) (string, error) {
	r.seq++
	return fmt.Sprintf("CN-20260828-%04d", r.seq), nil
}

func (r *memoryNoteRepo) GetBillForUpdate(ctx context.Context, billID int64) (bills.VendorBill, error) {
	b, ok := r.bills[billID]
	if !ok {
		return bills.VendorBill{}, fmt.Errorf("creditnotes: bill %d: %w", billID, shared.ErrNotFound)
	}
	return b, nil
}

func (r *memoryNoteRepo) UpdateBillBalances(ctx context.Context, bill bills.VendorBill) error {
	stored := r.bills[bill.ID]
	stored.AmountPaid = bill.AmountPaid
	stored.AmountDue = bill.AmountDue
	stored.Status = bill.Status
	stored.DaysOverdue = bill.DaysOverdue
	r.bills[bill.ID] = stored
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, slog.New(slog.DiscardHandler))
}

func validNoteInput(amount string) CreateNoteInput {
	return CreateNoteInput{
		BusinessID:   1,
		VendorID:     7,
		Type:         TypeRefund,
		Currency:     "USD",
		ExchangeRate: dec("1"),
		CreditAmount: dec(amount),
		Reason:       "damaged goods",
		CreatedBy:    42,
	}
}

func TestCreateNote(t *testing.T) {
	repo := newMemoryNoteRepo()
	svc := newTestService(repo)

	note, err := svc.Create(context.Background(), validNoteInput("150"))
	require.NoError(t, err)

	require.Equal(t, NoteDraft, note.Status)
	require.Contains(t, note.Number, "CN-")
	require.True(t, note.AmountApplied.IsZero())
	require.True(t, note.AmountRemaining.Equal(note.CreditAmount))
}

func TestCreateNoteValidation(t *testing.T) {
	svc := newTestService(newMemoryNoteRepo())
	ctx := context.Background()

	in := validNoteInput("150")
	in.Type = "DISCOUNT"
	_, err := svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = validNoteInput("0")
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = validNoteInput("150")
	in.Currency = "XYZ123"
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApplyRequiresConfirmed(t *testing.T) {
	repo := newMemoryNoteRepo()
	repo.addBill(1, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	note, err := svc.Create(ctx, validNoteInput("150"))
	require.NoError(t, err)

	_, err = svc.ApplyToBill(ctx, note.ID, 1, dec("50"), 42)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestApplyCapsAtBillAmountDue(t *testing.T) {
	repo := newMemoryNoteRepo()
	repo.addBill(1, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	note, err := svc.Create(ctx, validNoteInput("150"))
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, note.ID, 42))

	result, err := svc.ApplyToBill(ctx, note.ID, 1, dec("150"), 42)
	require.NoError(t, err)

	require.True(t, result.AmountApplied.Equal(dec("100")), "applied %s", result.AmountApplied)
	require.True(t, result.AmountRemaining.Equal(dec("50")))
	require.Equal(t, NoteConfirmed, result.NoteStatus, "note with remaining credit stays confirmed")
	require.True(t, result.BillAmountDue.IsZero())
	require.Equal(t, bills.StatusPaid, repo.bills[1].Status)

	stored := repo.notes[note.ID]
	require.True(t, stored.AmountApplied.Add(stored.AmountRemaining).Equal(stored.CreditAmount))
	require.Len(t, repo.apps[note.ID], 1)
}

func TestApplyBecomesAppliedWhenExhausted(t *testing.T) {
	repo := newMemoryNoteRepo()
	repo.addBill(1, "60")
	repo.addBill(2, "90")
	svc := newTestService(repo)
	ctx := context.Background()

	note, err := svc.Create(ctx, validNoteInput("150"))
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, note.ID, 42))

	first, err := svc.ApplyToBill(ctx, note.ID, 1, dec("60"), 42)
	require.NoError(t, err)
	require.Equal(t, NoteConfirmed, first.NoteStatus)

	second, err := svc.ApplyToBill(ctx, note.ID, 2, dec("90"), 42)
	require.NoError(t, err)
	require.Equal(t, NoteApplied, second.NoteStatus)
	require.True(t, second.AmountRemaining.IsZero())
	require.True(t, first.AmountRemaining.GreaterThanOrEqual(second.AmountRemaining), "remaining is non-increasing")

	_, err = svc.ApplyToBill(ctx, note.ID, 2, dec("1"), 42)
	require.ErrorIs(t, err, shared.ErrStateConflict, "fully applied notes accept no further applications")
}

func TestApplyRejectsExcessAndSettledBill(t *testing.T) {
	repo := newMemoryNoteRepo()
	repo.addBill(1, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	note, err := svc.Create(ctx, validNoteInput("50"))
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, note.ID, 42))

	_, err = svc.ApplyToBill(ctx, note.ID, 1, dec("50.02"), 42)
	require.ErrorIs(t, err, shared.ErrBusinessRule)

	_, err = svc.ApplyToBill(ctx, note.ID, 1, dec("-1"), 42)
	require.ErrorIs(t, err, shared.ErrValidation)

	// settle the bill, then credit application must be rejected
	b := repo.bills[1]
	require.NoError(t, b.ApplyPayment(dec("100")))
	repo.bills[1] = b

	_, err = svc.ApplyToBill(ctx, note.ID, 1, dec("10"), 42)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestCancelBlockedOnceApplied(t *testing.T) {
	repo := newMemoryNoteRepo()
	repo.addBill(1, "200")
	svc := newTestService(repo)
	ctx := context.Background()

	note, err := svc.Create(ctx, validNoteInput("150"))
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, note.ID, 42))

	_, err = svc.ApplyToBill(ctx, note.ID, 1, dec("150"), 42)
	require.NoError(t, err)

	err = svc.Cancel(ctx, note.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCancelDraftAndConfirmed(t *testing.T) {
	repo := newMemoryNoteRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	draft, err := svc.Create(ctx, validNoteInput("10"))
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, draft.ID))
	require.Equal(t, NoteCancelled, repo.notes[draft.ID].Status)

	confirmed, err := svc.Create(ctx, validNoteInput("10"))
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, confirmed.ID, 42))
	require.NoError(t, svc.Cancel(ctx, confirmed.ID))

	require.ErrorIs(t, svc.Cancel(ctx, confirmed.ID), shared.ErrStateConflict)
}
