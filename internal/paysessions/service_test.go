package paysessions

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
	"github.com/settleflow/settleflow/internal/vendors"
)

type memorySessionRepo struct {
	sessions map[int64]PaymentSession
	lines    map[int64][]SessionLine
	bills    map[int64]bills.VendorBill
	payments map[int64]bills.BillPayment
	nextID   int64
	seq      int64
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{
		sessions: map[int64]PaymentSession{},
		lines:    map[int64][]SessionLine{},
		bills:    map[int64]bills.VendorBill{},
		payments: map[int64]bills.BillPayment{},
	}
}

func (r *memorySessionRepo) addBill(id int64, due string, dueDate time.Time) {
	amount := dec(due)
	r.bills[id] = bills.VendorBill{
		ID:          id,
		BusinessID:  1,
		VendorID:    7,
		Number:      fmt.Sprintf("BILL-%04d", id),
		Status:      bills.StatusOpen,
		DueDate:     dueDate,
		TotalAmount: amount,
		AmountPaid:  decimal.Zero,
		AmountDue:   amount,
	}
}

func (r *memorySessionRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memorySessionRepo) GetSession(ctx context.Context, id int64) (PaymentSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return PaymentSession{}, fmt.Errorf("paysessions: session %d: %w", id, shared.ErrNotFound)
	}
	return s, nil
}

func (r *memorySessionRepo) GetSessionWithLines(ctx context.Context, id int64) (SessionWithLines, error) {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return SessionWithLines{}, err
	}
	return SessionWithLines{PaymentSession: s, Lines: r.lines[id]}, nil
}

func (r *memorySessionRepo) ListSessions(ctx context.Context, req ListSessionsRequest) ([]PaymentSession, int, error) {
	var out []PaymentSession
	for _, s := range r.sessions {
		if s.BusinessID != req.BusinessID {
			continue
		}
		if req.VendorID > 0 && s.VendorID != req.VendorID {
			continue
		}
		if req.Status != "" && s.Status != req.Status {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (r *memorySessionRepo) ListEligibleBills(ctx context.Context, businessID, vendorID int64) ([]bills.VendorBill, error) {
	var out []bills.VendorBill
	for _, b := range r.bills {
		if b.BusinessID == businessID && b.VendorID == vendorID && b.Status.Payable() && b.AmountDue.IsPositive() {
			out = append(out, b)
		}
	}
	// oldest due date first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].DueDate.Before(out[i].DueDate) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *memorySessionRepo) CreateSession(ctx context.Context, session PaymentSession) (int64, error) {
	r.nextID++
	session.ID = r.nextID
	r.sessions[session.ID] = session
	return session.ID, nil
}

func (r *memorySessionRepo) CreateSessionLine(ctx context.Context, sessionID int64, line SessionLine) (int64, error) {
	r.nextID++
	line.ID = r.nextID
	line.SessionID = sessionID
	r.lines[sessionID] = append(r.lines[sessionID], line)
	return line.ID, nil
}

func (r *memorySessionRepo) GetSessionForUpdate(ctx context.Context, id int64) (PaymentSession, error) {
	return r.GetSession(ctx, id)
}

func (r *memorySessionRepo) GetSessionLines(ctx context.Context, sessionID int64) ([]SessionLine, error) {
	return r.lines[sessionID], nil
}

func (r *memorySessionRepo) MarkSessionPosted(ctx context.Context, id, userID int64) error {
	s := r.sessions[id]
	if s.Status != SessionDraft {
		return shared.StateConflictf("session %d is not in draft", id)
	}
	now := time.Now()
	s.Status = SessionPosted
	s.PostedBy = &userID
	s.PostedAt = &now
	r.sessions[id] = s
	return nil
}

func (r *memorySessionRepo) MarkSessionReversed(ctx context.Context, id, userID int64) error {
	s := r.sessions[id]
	if s.Status != SessionPosted {
		return shared.StateConflictf("session %d is not posted", id)
	}
	now := time.Now()
	s.Status = SessionReversed
	s.ReversedBy = &userID
	s.ReversedAt = &now
	r.sessions[id] = s
	return nil
}

func (r *memorySessionRepo) LinkLinePayment(ctx context.Context, lineID, paymentID int64) error {
	for sid, lines := range r.lines {
		for i := range lines {
			if lines[i].ID == lineID {
				lines[i].PaymentID = &paymentID
				r.lines[sid] = lines
				return nil
			}
		}
	}
	return fmt.Errorf("paysessions: line %d: %w", lineID, shared.ErrNotFound)
}

func (r *memorySessionRepo) ClearLinePayment(ctx context.Context, lineID int64) error {
	for sid, lines := range r.lines {
		for i := range lines {
			if lines[i].ID == lineID {
				lines[i].PaymentID = nil
				r.lines[sid] = lines
				return nil
			}
		}
	}
	return nil
}

func (r *memorySessionRepo) GenerateSessionNumber(ctx context.Context, businessID int64) (string, error) {
	r.seq++
	return fmt.Sprintf("PAY-20260828-%04d", r.seq), nil
}

func (r *memorySessionRepo) GetBillForUpdate(ctx context.Context, billID int64) (bills.VendorBill, error) {
	b, ok := r.bills[billID]
	if !ok {
		return bills.VendorBill{}, fmt.Errorf("paysessions: bill %d: %w", billID, shared.ErrNotFound)
	}
	return b, nil
}

func (r *memorySessionRepo) UpdateBillBalances(ctx context.Context, bill bills.VendorBill) error {
	stored := r.bills[bill.ID]
	stored.AmountPaid = bill.AmountPaid
	stored.AmountDue = bill.AmountDue
	stored.Status = bill.Status
	stored.DaysOverdue = bill.DaysOverdue
	r.bills[bill.ID] = stored
	return nil
}

func (r *memorySessionRepo) CreateBillPayment(ctx context.Context, payment bills.BillPayment) (int64, error) {
	r.nextID++
	payment.ID = r.nextID
	r.payments[payment.ID] = payment
	return payment.ID, nil
}

func (r *memorySessionRepo) GetBillPayment(ctx context.Context, id int64) (bills.BillPayment, error) {
	p, ok := r.payments[id]
	if !ok {
		return bills.BillPayment{}, fmt.Errorf("paysessions: payment %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (r *memorySessionRepo) DeleteBillPayment(ctx context.Context, id int64) error {
	delete(r.payments, id)
	return nil
}

type stubVendorRepo struct {
	profiles map[int64]vendors.VendorProfile
}

func (r *stubVendorRepo) GetVendorProfile(ctx context.Context, vendorID int64) (vendors.VendorProfile, error) {
	v, ok := r.profiles[vendorID]
	if !ok {
		return vendors.VendorProfile{}, fmt.Errorf("vendors: vendor %d: %w", vendorID, shared.ErrNotFound)
	}
	return v, nil
}

func newTestEngine(repo Repository, profiles map[int64]vendors.VendorProfile) *Service {
	guard := vendors.NewGuard(&stubVendorRepo{profiles: profiles})
	return NewService(repo, guard, shared.NewVendorLock(nil, 0), nil, slog.New(slog.DiscardHandler))
}

func cleanVendor() map[int64]vendors.VendorProfile {
	return map[int64]vendors.VendorProfile{7: {ID: 7, Name: "Acme Supplies"}}
}

func seedThreeBills(repo *memorySessionRepo) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	repo.addBill(1, "30", base)
	repo.addBill(2, "50", base.AddDate(0, 0, 10))
	repo.addBill(3, "20", base.AddDate(0, 0, 20))
}

func bulkInput(total string) PrepareInput {
	return PrepareInput{
		BusinessID:   1,
		VendorID:     7,
		Mode:         ModeBulk,
		TotalAmount:  dec(total),
		Currency:     "USD",
		ExchangeRate: dec("1"),
		Method:       "bank_transfer",
		CreatedBy:    42,
	}
}

func TestPrepareBulkOldestFirst(t *testing.T) {
	repo := newMemorySessionRepo()
	seedThreeBills(repo)
	svc := newTestEngine(repo, cleanVendor())

	session, err := svc.Prepare(context.Background(), bulkInput("70"))
	require.NoError(t, err)

	require.Equal(t, SessionDraft, session.Status)
	require.Contains(t, session.Number, "PAY-")
	require.Len(t, session.Lines, 2)
	require.Equal(t, int64(1), session.Lines[0].BillID)
	require.Equal(t, int64(2), session.Lines[1].BillID)
	require.True(t, session.Lines[1].IsPartialPayment)

	// preparation must not touch any bill
	require.True(t, repo.bills[1].AmountDue.Equal(dec("30")))
	require.True(t, repo.bills[2].AmountDue.Equal(dec("50")))
}

func TestPrepareRejectsHeldVendor(t *testing.T) {
	repo := newMemorySessionRepo()
	seedThreeBills(repo)
	reason := "pending contract renegotiation"
	svc := newTestEngine(repo, map[int64]vendors.VendorProfile{
		7: {ID: 7, IsOnHold: true, HoldReason: &reason},
	})

	_, err := svc.Prepare(context.Background(), bulkInput("70"))
	require.ErrorIs(t, err, shared.ErrBusinessRule)
	require.ErrorContains(t, err, reason)
}

func TestPrepareSelectedSumMismatch(t *testing.T) {
	repo := newMemorySessionRepo()
	seedThreeBills(repo)
	svc := newTestEngine(repo, cleanVendor())

	in := bulkInput("100")
	in.Mode = ModeSelected
	in.Selected = []SelectedAllocation{
		{BillID: 1, Amount: dec("30")},
		{BillID: 2, Amount: dec("50")},
		{BillID: 3, Amount: dec("10")},
	}
	_, err := svc.Prepare(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostSettlesBills(t *testing.T) {
	repo := newMemorySessionRepo()
	seedThreeBills(repo)
	svc := newTestEngine(repo, cleanVendor())
	ctx := context.Background()

	session, err := svc.Prepare(ctx, bulkInput("100"))
	require.NoError(t, err)

	result, err := svc.Post(ctx, session.ID, 42)
	require.NoError(t, err)
	require.Equal(t, SessionPosted, result.Status)

	sum := decimal.Zero
	for _, l := range result.Lines {
		require.NotNil(t, l.PaymentID)
		sum = sum.Add(l.AllocatedAmount)
	}
	require.True(t, sum.Equal(result.TotalAmount))

	require.Equal(t, bills.StatusPaid, repo.bills[1].Status)
	require.Equal(t, bills.StatusPaid, repo.bills[2].Status)
	require.Equal(t, bills.StatusPaid, repo.bills[3].Status)
	require.Len(t, repo.payments, 3)
}

func TestPostIsIdempotent(t *testing.T) {
	repo := newMemorySessionRepo()
	seedThreeBills(repo)
	svc := newTestEngine(repo, cleanVendor())
	ctx := context.Background()

	session, err := svc.Prepare(ctx, bulkInput("100"))
	require.NoError(t, err)

	first, err := svc.Post(ctx, session.ID, 42)
	require.NoError(t, err)

	second, err := svc.Post(ctx, session.ID, 42)
	require.NoError(t, err)
	require.Equal(t, SessionPosted, second.Status)
	require.Len(t, repo.payments, 3, "double post must not duplicate payments")
	require.True(t, repo.bills[1].AmountPaid.Equal(dec("30")))
	require.Equal(t, len(first.Lines), len(second.Lines))
}

func TestPostRejectsReversedSession(t *testing.T) {
	repo := newMemorySessionRepo()
	seedThreeBills(repo)
	svc := newTestEngine(repo, cleanVendor())
	ctx := context.Background()

	session, err := svc.Prepare(ctx, bulkInput("100"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, session.ID, 42)
	require.NoError(t, err)
	require.NoError(t, svc.Reverse(ctx, session.ID, 42))

	_, err = svc.Post(ctx, session.ID, 42)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestReverseRestoresBills(t *testing.T) {
	repo := newMemorySessionRepo()
	seedThreeBills(repo)
	svc := newTestEngine(repo, cleanVendor())
	// pin the clock before every due date so restored bills stay Open
	svc.now = func() time.Time { return time.Date(2026, 7, 20, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	before := map[int64]bills.VendorBill{}
	for id, b := range repo.bills {
		before[id] = b
	}

	session, err := svc.Prepare(ctx, bulkInput("70"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, session.ID, 42)
	require.NoError(t, err)

	require.NoError(t, svc.Reverse(ctx, session.ID, 42))

	for id, want := range before {
		got := repo.bills[id]
		require.True(t, got.AmountPaid.Equal(want.AmountPaid), "bill %d amount paid", id)
		require.True(t, got.AmountDue.Equal(want.AmountDue), "bill %d amount due", id)
		require.Equal(t, want.Status, got.Status, "bill %d status", id)
	}
	require.Empty(t, repo.payments)

	lines, _ := repo.GetSessionLines(ctx, session.ID)
	for _, l := range lines {
		require.Nil(t, l.PaymentID)
	}

	err = svc.Reverse(ctx, session.ID, 42)
	require.ErrorIs(t, err, shared.ErrStateConflict, "reversed is terminal")
}

func TestReverseRequiresPosted(t *testing.T) {
	repo := newMemorySessionRepo()
	seedThreeBills(repo)
	svc := newTestEngine(repo, cleanVendor())
	ctx := context.Background()

	session, err := svc.Prepare(ctx, bulkInput("70"))
	require.NoError(t, err)

	err = svc.Reverse(ctx, session.ID, 42)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestPostUnknownSession(t *testing.T) {
	svc := newTestEngine(newMemorySessionRepo(), cleanVendor())
	_, err := svc.Post(context.Background(), 99, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
