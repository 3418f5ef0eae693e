package schedules

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/settleflow/settleflow/internal/bills"
	"github.com/settleflow/settleflow/internal/paysessions"
	"github.com/settleflow/settleflow/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memoryScheduleRepo struct {
	schedules map[int64]PaymentSchedule
	bills     map[int64]bills.VendorBill
	nextID    int64
	seq       int64
}

func newMemoryScheduleRepo() *memoryScheduleRepo {
	return &memoryScheduleRepo{
		schedules: map[int64]PaymentSchedule{},
		bills:     map[int64]bills.VendorBill{},
	}
}

func (r *memoryScheduleRepo) addBill(id int64, due string) {
	amount := dec(due)
	r.bills[id] = bills.VendorBill{
		ID:          id,
		BusinessID:  1,
		VendorID:    7,
		Number:      fmt.Sprintf("BILL-%04d", id),
		Status:      bills.StatusOpen,
		Currency:    "USD",
		DueDate:     time.Now().AddDate(0, 0, 30),
		TotalAmount: amount,
		AmountPaid:  decimal.Zero,
		AmountDue:   amount,
	}
}

func (r *memoryScheduleRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryScheduleRepo) GetSchedule(ctx context.Context, id int64) (PaymentSchedule, error) {
	s, ok := r.schedules[id]
	if !ok {
		return PaymentSchedule{}, fmt.Errorf("schedules: schedule %d: %w", id, shared.ErrNotFound)
	}
	return s, nil
}

func (r *memoryScheduleRepo) ListSchedules(ctx context.Context, req ListSchedulesRequest) ([]PaymentSchedule, int, error) {
	var out []PaymentSchedule
	for _, s := range r.schedules {
		if s.BusinessID != req.BusinessID {
			continue
		}
		if req.Status != "" && s.Status != req.Status {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (r *memoryScheduleRepo) GetDueSchedules(ctx context.Context, businessID int64, asOf time.Time) ([]PaymentSchedule, error) {
	var out []PaymentSchedule
	for _, s := range r.schedules {
		if s.BusinessID == businessID && s.Status.Executable() && !s.ScheduledDate.After(asOf) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memoryScheduleRepo) GetBillSummary(ctx context.Context, billID int64) (bills.VendorBill, error) {
	b, ok := r.bills[billID]
	if !ok {
		return bills.VendorBill{}, fmt.Errorf("schedules: bill %d: %w", billID, shared.ErrNotFound)
	}
	return b, nil
}

func (r *memoryScheduleRepo) CreateSchedule(ctx context.Context, schedule PaymentSchedule) (int64, error) {
	r.nextID++
	schedule.ID = r.nextID
	r.schedules[schedule.ID] = schedule
	return schedule.ID, nil
}

func (r *memoryScheduleRepo) GetScheduleForUpdate(ctx context.Context, id int64) (PaymentSchedule, error) {
	return r.GetSchedule(ctx, id)
}

func (r *memoryScheduleRepo) UpdateSchedule(ctx context.Context, schedule PaymentSchedule) error {
	stored := r.schedules[schedule.ID]
	if stored.Status != ScheduleScheduled {
		return shared.StateConflictf("schedule %d is not in scheduled state", schedule.ID)
	}
	stored.ScheduledDate = schedule.ScheduledDate
	stored.Amount = schedule.Amount
	stored.Method = schedule.Method
	stored.BankAccountID = schedule.BankAccountID
	r.schedules[schedule.ID] = stored
	return nil
}

func (r *memoryScheduleRepo) MarkCancelled(ctx context.Context, id int64) error {
	s := r.schedules[id]
	s.Status = ScheduleCancelled
	r.schedules[id] = s
	return nil
}

func (r *memoryScheduleRepo) MarkExecuted(ctx context.Context, id, sessionID, userID int64) error {
	s := r.schedules[id]
	if !s.Status.Executable() {
		return shared.StateConflictf("schedule %d is no longer executable", id)
	}
	now := time.Now()
	s.Status = ScheduleExecuted
	s.SessionID = &sessionID
	s.ExecutedBy = &userID
	s.ExecutedAt = &now
	r.schedules[id] = s
	return nil
}

func (r *memoryScheduleRepo) MarkOverdue(ctx context.Context, id int64) error {
	s := r.schedules[id]
	if s.Status == ScheduleScheduled {
		s.Status = ScheduleOverdue
		r.schedules[id] = s
	}
	return nil
}

func (r *memoryScheduleRepo) GenerateScheduleNumber(ctx context.Context, businessID int64) (string, error) {
	r.seq++
	return fmt.Sprintf("SCH-20260828-%04d", r.seq), nil
}

type stubSessionEngine struct {
	prepared  []paysessions.PrepareInput
	posted    []int64
	nextID    int64
	postErr   error
	prepErr   error
}

func (e *stubSessionEngine) Prepare(ctx context.Context, in paysessions.PrepareInput) (paysessions.SessionWithLines, error) {
	if e.prepErr != nil {
		return paysessions.SessionWithLines{}, e.prepErr
	}
	e.prepared = append(e.prepared, in)
	e.nextID++
	return paysessions.SessionWithLines{
		PaymentSession: paysessions.PaymentSession{
			ID:     e.nextID,
			Status: paysessions.SessionDraft,
		},
	}, nil
}

func (e *stubSessionEngine) Post(ctx context.Context, sessionID, userID int64) (paysessions.SessionWithLines, error) {
	if e.postErr != nil {
		return paysessions.SessionWithLines{}, e.postErr
	}
	e.posted = append(e.posted, sessionID)
	return paysessions.SessionWithLines{
		PaymentSession: paysessions.PaymentSession{
			ID:     sessionID,
			Status: paysessions.SessionPosted,
		},
	}, nil
}

func newTestScheduler(repo Repository, engine SessionEngine) *Service {
	return NewService(repo, engine, nil, slog.New(slog.DiscardHandler))
}

func validScheduleInput() CreateScheduleInput {
	return CreateScheduleInput{
		BillID:        1,
		ScheduledDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		Amount:        dec("75"),
		Method:        "bank_transfer",
		CreatedBy:     42,
	}
}

func TestCreateSchedule(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	svc := newTestScheduler(repo, &stubSessionEngine{})

	schedule, err := svc.Create(context.Background(), validScheduleInput())
	require.NoError(t, err)

	require.Equal(t, ScheduleScheduled, schedule.Status)
	require.Contains(t, schedule.Number, "SCH-")
	require.Equal(t, int64(1), schedule.BusinessID)
	require.Equal(t, int64(7), schedule.VendorID)
	require.Equal(t, "USD", schedule.Currency)
}

func TestCreateRejectsSettledBill(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	b := repo.bills[1]
	require.NoError(t, b.ApplyPayment(dec("100")))
	repo.bills[1] = b
	svc := newTestScheduler(repo, &stubSessionEngine{})

	_, err := svc.Create(context.Background(), validScheduleInput())
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestCreateRejectsExcessAmount(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "50")
	svc := newTestScheduler(repo, &stubSessionEngine{})

	_, err := svc.Create(context.Background(), validScheduleInput())
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestUpdateOnlyWhileScheduled(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	engine := &stubSessionEngine{}
	svc := newTestScheduler(repo, engine)
	ctx := context.Background()

	schedule, err := svc.Create(ctx, validScheduleInput())
	require.NoError(t, err)

	err = svc.Update(ctx, UpdateScheduleInput{
		ScheduleID:    schedule.ID,
		ScheduledDate: schedule.ScheduledDate.AddDate(0, 0, 7),
		Amount:        dec("60"),
		Method:        "cheque",
	})
	require.NoError(t, err)
	require.True(t, repo.schedules[schedule.ID].Amount.Equal(dec("60")))

	_, err = svc.Execute(ctx, schedule.ID, 42)
	require.NoError(t, err)

	err = svc.Update(ctx, UpdateScheduleInput{
		ScheduleID:    schedule.ID,
		ScheduledDate: schedule.ScheduledDate,
		Amount:        dec("60"),
		Method:        "cheque",
	})
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestExecuteDelegatesSelectedSession(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	engine := &stubSessionEngine{}
	svc := newTestScheduler(repo, engine)
	ctx := context.Background()

	schedule, err := svc.Create(ctx, validScheduleInput())
	require.NoError(t, err)

	executed, err := svc.Execute(ctx, schedule.ID, 42)
	require.NoError(t, err)

	require.Equal(t, ScheduleExecuted, executed.Status)
	require.NotNil(t, executed.SessionID)

	require.Len(t, engine.prepared, 1)
	in := engine.prepared[0]
	require.Equal(t, paysessions.ModeSelected, in.Mode)
	require.Len(t, in.Selected, 1)
	require.Equal(t, int64(1), in.Selected[0].BillID)
	require.True(t, in.Selected[0].Amount.Equal(schedule.Amount))
	require.Len(t, engine.posted, 1)

	stored := repo.schedules[schedule.ID]
	require.Equal(t, ScheduleExecuted, stored.Status)
	require.Equal(t, *executed.SessionID, *stored.SessionID)
}

func TestExecuteFailedPostLeavesScheduled(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	engine := &stubSessionEngine{postErr: shared.RuleViolationf("vendor on hold")}
	svc := newTestScheduler(repo, engine)
	ctx := context.Background()

	schedule, err := svc.Create(ctx, validScheduleInput())
	require.NoError(t, err)

	_, err = svc.Execute(ctx, schedule.ID, 42)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
	require.Equal(t, ScheduleScheduled, repo.schedules[schedule.ID].Status)
	require.Nil(t, repo.schedules[schedule.ID].SessionID)
}

func TestExecuteRejectsTerminalStates(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	engine := &stubSessionEngine{}
	svc := newTestScheduler(repo, engine)
	ctx := context.Background()

	schedule, err := svc.Create(ctx, validScheduleInput())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, schedule.ID))

	_, err = svc.Execute(ctx, schedule.ID, 42)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCancelBlockedOnceExecuted(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	svc := newTestScheduler(repo, &stubSessionEngine{})
	ctx := context.Background()

	schedule, err := svc.Create(ctx, validScheduleInput())
	require.NoError(t, err)
	_, err = svc.Execute(ctx, schedule.ID, 42)
	require.NoError(t, err)

	err = svc.Cancel(ctx, schedule.ID)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestSweepDueFlipsToOverdueAndStaysExecutable(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	repo.addBill(2, "200")
	engine := &stubSessionEngine{}
	svc := newTestScheduler(repo, engine)
	svc.now = func() time.Time { return time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	past := validScheduleInput() // due 2026-09-15
	overdueSchedule, err := svc.Create(ctx, past)
	require.NoError(t, err)

	future := validScheduleInput()
	future.BillID = 2
	future.ScheduledDate = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	futureSchedule, err := svc.Create(ctx, future)
	require.NoError(t, err)

	changed, err := svc.SweepDue(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, changed)
	require.Equal(t, ScheduleOverdue, repo.schedules[overdueSchedule.ID].Status)
	require.Equal(t, ScheduleScheduled, repo.schedules[futureSchedule.ID].Status)

	changed, err = svc.SweepDue(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, changed, "sweep is idempotent")

	executed, err := svc.Execute(ctx, overdueSchedule.ID, 42)
	require.NoError(t, err)
	require.Equal(t, ScheduleExecuted, executed.Status)
}

func TestGetDueSchedules(t *testing.T) {
	repo := newMemoryScheduleRepo()
	repo.addBill(1, "100")
	svc := newTestScheduler(repo, &stubSessionEngine{})
	ctx := context.Background()

	schedule, err := svc.Create(ctx, validScheduleInput())
	require.NoError(t, err)

	due, err := svc.GetDueSchedules(ctx, 1, time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, schedule.ID, due[0].ID)

	due, err = svc.GetDueSchedules(ctx, 1, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, due)
}
