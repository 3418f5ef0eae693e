package schedules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleflow/settleflow/internal/money"
	"github.com/settleflow/settleflow/internal/paysessions"
	"github.com/settleflow/settleflow/internal/shared"
)

// SessionEngine is the slice of the payment session engine the scheduler
// needs to materialize a scheduled payment.
type SessionEngine interface {
	Prepare(ctx context.Context, in paysessions.PrepareInput) (paysessions.SessionWithLines, error)
	Post(ctx context.Context, sessionID, userID int64) (paysessions.SessionWithLines, error)
}

// Service implements the payment scheduler.
type Service struct {
	repo     Repository
	sessions SessionEngine
	audit    *shared.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the scheduler service.
func NewService(repo Repository, sessions SessionEngine, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, sessions: sessions, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, scheduleID int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment_schedule",
		EntityID: scheduleID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// CreateScheduleInput carries a schedule creation request.
type CreateScheduleInput struct {
	BillID        int64
	ScheduledDate time.Time
	Amount        decimal.Decimal
	Method        string
	BankAccountID *int64
	CreatedBy     int64
}

// Create persists a new scheduled payment against a bill with an outstanding
// balance. Business, vendor and currency come from the bill itself.
func (s *Service) Create(ctx context.Context, in CreateScheduleInput) (PaymentSchedule, error) {
	if !money.IsPositive(in.Amount) {
		return PaymentSchedule{}, shared.Validationf("scheduled amount must be positive")
	}
	if in.ScheduledDate.IsZero() {
		return PaymentSchedule{}, shared.Validationf("scheduled date is required")
	}

	bill, err := s.repo.GetBillSummary(ctx, in.BillID)
	if err != nil {
		return PaymentSchedule{}, err
	}
	if !money.IsPositive(bill.AmountDue) {
		return PaymentSchedule{}, shared.RuleViolationf("bill %s has no outstanding balance to schedule against", bill.Number)
	}
	if money.ExceedsWithTolerance(in.Amount, bill.AmountDue) {
		return PaymentSchedule{}, shared.RuleViolationf("scheduled amount %s exceeds amount due %s on bill %s", in.Amount, bill.AmountDue, bill.Number)
	}

	schedule := PaymentSchedule{
		BusinessID:    bill.BusinessID,
		VendorID:      bill.VendorID,
		BillID:        in.BillID,
		Status:        ScheduleScheduled,
		ScheduledDate: in.ScheduledDate,
		Amount:        money.Round2(in.Amount),
		Currency:      bill.Currency,
		ExchangeRate:  decimal.NewFromInt(1),
		Method:        in.Method,
		BankAccountID: in.BankAccountID,
		CreatedBy:     in.CreatedBy,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateScheduleNumber(ctx, bill.BusinessID)
		if err != nil {
			return fmt.Errorf("schedules: generate number: %w", err)
		}
		schedule.Number = number

		id, err := tx.CreateSchedule(ctx, schedule)
		if err != nil {
			return fmt.Errorf("schedules: create schedule: %w", err)
		}
		schedule.ID = id
		return nil
	})
	if err != nil {
		return PaymentSchedule{}, err
	}

	s.logger.Info("schedule created",
		slog.Int64("schedule_id", schedule.ID),
		slog.String("number", schedule.Number),
		slog.Int64("bill_id", schedule.BillID),
		slog.String("amount", schedule.Amount.String()),
	)
	s.recordAudit(ctx, in.CreatedBy, "schedule.create", schedule.ID, map[string]any{
		"number": schedule.Number,
		"amount": schedule.Amount.String(),
	})
	return schedule, nil
}

// UpdateScheduleInput carries the fields an update may change.
type UpdateScheduleInput struct {
	ScheduleID    int64
	ScheduledDate time.Time
	Amount        decimal.Decimal
	Method        string
	BankAccountID *int64
}

// Update changes a schedule's date, amount or method while it is still in the
// scheduled state.
func (s *Service) Update(ctx context.Context, in UpdateScheduleInput) error {
	if !money.IsPositive(in.Amount) {
		return shared.Validationf("scheduled amount must be positive")
	}
	if in.ScheduledDate.IsZero() {
		return shared.Validationf("scheduled date is required")
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.GetScheduleForUpdate(ctx, in.ScheduleID)
		if err != nil {
			return err
		}
		if schedule.Status != ScheduleScheduled {
			return shared.StateConflictf("schedule %s is %s, only scheduled payments can be updated", schedule.Number, schedule.Status)
		}

		schedule.ScheduledDate = in.ScheduledDate
		schedule.Amount = money.Round2(in.Amount)
		schedule.Method = in.Method
		schedule.BankAccountID = in.BankAccountID
		return tx.UpdateSchedule(ctx, schedule)
	})
}

// Cancel voids a schedule that has not been executed.
func (s *Service) Cancel(ctx context.Context, scheduleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		schedule, err := tx.GetScheduleForUpdate(ctx, scheduleID)
		if err != nil {
			return err
		}
		if !schedule.Status.CanTransitionTo(ScheduleCancelled) {
			return shared.StateConflictf("schedule %s is %s and cannot be cancelled", schedule.Number, schedule.Status)
		}
		return tx.MarkCancelled(ctx, scheduleID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, 0, "schedule.cancel", scheduleID, nil)
	return nil
}

// Execute turns a schedule into a posted payment session for exactly its bill
// and amount. On any failure the schedule stays executable; the session is
// only marked on the schedule after a successful post.
func (s *Service) Execute(ctx context.Context, scheduleID, userID int64) (PaymentSchedule, error) {
	schedule, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return PaymentSchedule{}, err
	}
	if !schedule.Status.Executable() {
		return PaymentSchedule{}, shared.StateConflictf("schedule %s is %s and cannot be executed", schedule.Number, schedule.Status)
	}

	session, err := s.sessions.Prepare(ctx, paysessions.PrepareInput{
		BusinessID:    schedule.BusinessID,
		VendorID:      schedule.VendorID,
		Mode:          paysessions.ModeSelected,
		TotalAmount:   schedule.Amount,
		Currency:      schedule.Currency,
		ExchangeRate:  schedule.ExchangeRate,
		PaymentDate:   s.now(),
		Method:        schedule.Method,
		BankAccountID: schedule.BankAccountID,
		Selected: []paysessions.SelectedAllocation{
			{BillID: schedule.BillID, Amount: schedule.Amount},
		},
		CreatedBy: userID,
	})
	if err != nil {
		return PaymentSchedule{}, fmt.Errorf("schedules: prepare session for schedule %s: %w", schedule.Number, err)
	}

	posted, err := s.sessions.Post(ctx, session.ID, userID)
	if err != nil {
		return PaymentSchedule{}, fmt.Errorf("schedules: post session for schedule %s: %w", schedule.Number, err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkExecuted(ctx, scheduleID, posted.ID, userID)
	})
	if err != nil {
		return PaymentSchedule{}, err
	}

	schedule.Status = ScheduleExecuted
	schedule.SessionID = &posted.ID
	schedule.ExecutedBy = &userID

	s.logger.Info("schedule executed",
		slog.Int64("schedule_id", scheduleID),
		slog.String("number", schedule.Number),
		slog.Int64("session_id", posted.ID),
	)
	s.recordAudit(ctx, userID, "schedule.execute", scheduleID, map[string]any{
		"number":     schedule.Number,
		"session_id": posted.ID,
	})
	return schedule, nil
}

// GetDueSchedules returns executable schedules due on or before asOf.
func (s *Service) GetDueSchedules(ctx context.Context, businessID int64, asOf time.Time) ([]PaymentSchedule, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.GetDueSchedules(ctx, businessID, asOf)
}

// SweepDue flips past-date scheduled payments to overdue and returns how many
// changed. Overdue schedules remain executable.
func (s *Service) SweepDue(ctx context.Context, businessID int64) (int, error) {
	due, err := s.repo.GetDueSchedules(ctx, businessID, s.now())
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, candidate := range due {
		if candidate.Status != ScheduleScheduled {
			continue
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			schedule, err := tx.GetScheduleForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if schedule.Status != ScheduleScheduled {
				return nil
			}
			changed++
			return tx.MarkOverdue(ctx, schedule.ID)
		})
		if err != nil {
			return changed, fmt.Errorf("schedules: sweep schedule %d: %w", candidate.ID, err)
		}
	}

	if changed > 0 {
		s.logger.Info("schedule sweep completed",
			slog.Int64("business_id", businessID),
			slog.Int("schedules_overdue", changed),
		)
	}
	return changed, nil
}

// GetSchedule returns one schedule.
func (s *Service) GetSchedule(ctx context.Context, id int64) (PaymentSchedule, error) {
	return s.repo.GetSchedule(ctx, id)
}

// ListSchedules returns a filtered, paged schedule listing with the total count.
func (s *Service) ListSchedules(ctx context.Context, req ListSchedulesRequest) ([]PaymentSchedule, int, error) {
	return s.repo.ListSchedules(ctx, req)
}
