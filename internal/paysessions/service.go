package paysessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/settleflow/settleflow/internal/bills"
	"github.com/settleflow/settleflow/internal/money"
	"github.com/settleflow/settleflow/internal/shared"
	"github.com/settleflow/settleflow/internal/vendors"
)

// Service implements the payment session engine.
type Service struct {
	repo   Repository
	guard  *vendors.Guard
	lock   *shared.VendorLock
	audit  *shared.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the payment session service.
func NewService(repo Repository, guard *vendors.Guard, lock *shared.VendorLock, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, guard: guard, lock: lock, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, sessionID int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment_session",
		EntityID: sessionID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// PrepareInput carries a session preparation request.
type PrepareInput struct {
	BusinessID    int64
	VendorID      int64
	Mode          SessionMode
	TotalAmount   decimal.Decimal
	Currency      string
	ExchangeRate  decimal.Decimal
	PaymentDate   time.Time
	Method        string
	BankAccountID *int64
	Selected      []SelectedAllocation
	CreatedBy     int64
}

// Prepare allocates the requested total across the vendor's eligible bills and
// persists a draft session. No bill is mutated here.
func (s *Service) Prepare(ctx context.Context, in PrepareInput) (SessionWithLines, error) {
	if err := validatePrepareInput(in); err != nil {
		return SessionWithLines{}, err
	}

	decision, err := s.guard.Check(ctx, in.VendorID)
	if err != nil {
		return SessionWithLines{}, err
	}
	if !decision.Allowed {
		return SessionWithLines{}, shared.RuleViolationf("vendor %d blocked from payment activity: %s", in.VendorID, decision.Reason)
	}

	eligible, err := s.repo.ListEligibleBills(ctx, in.BusinessID, in.VendorID)
	if err != nil {
		return SessionWithLines{}, err
	}
	balances := make([]BillBalance, 0, len(eligible))
	for _, b := range eligible {
		balances = append(balances, BillBalance{BillID: b.ID, Number: b.Number, AmountDue: b.AmountDue})
	}

	var lines []SessionLine
	switch in.Mode {
	case ModeBulk:
		lines, err = allocateBulk(in.TotalAmount, balances)
	case ModeSelected:
		lines, err = allocateSelected(in.TotalAmount, balances, in.Selected)
	}
	if err != nil {
		return SessionWithLines{}, err
	}

	if in.PaymentDate.IsZero() {
		in.PaymentDate = s.now()
	}
	total := money.Round2(in.TotalAmount)
	session := PaymentSession{
		BusinessID:      in.BusinessID,
		VendorID:        in.VendorID,
		Mode:            in.Mode,
		Status:          SessionDraft,
		Currency:        in.Currency,
		ExchangeRate:    in.ExchangeRate,
		TotalAmount:     total,
		TotalAmountBase: money.Round2(total.Mul(in.ExchangeRate)),
		PaymentDate:     in.PaymentDate,
		Method:          in.Method,
		BankAccountID:   in.BankAccountID,
		CreatedBy:       in.CreatedBy,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateSessionNumber(ctx, in.BusinessID)
		if err != nil {
			return fmt.Errorf("paysessions: generate number: %w", err)
		}
		session.Number = number

		id, err := tx.CreateSession(ctx, session)
		if err != nil {
			return fmt.Errorf("paysessions: create session: %w", err)
		}
		session.ID = id

		for i := range lines {
			lineID, err := tx.CreateSessionLine(ctx, id, lines[i])
			if err != nil {
				return fmt.Errorf("paysessions: create line: %w", err)
			}
			lines[i].ID = lineID
			lines[i].SessionID = id
		}
		return nil
	})
	if err != nil {
		return SessionWithLines{}, err
	}

	s.logger.Info("session prepared",
		slog.Int64("session_id", session.ID),
		slog.String("number", session.Number),
		slog.String("mode", string(session.Mode)),
		slog.Int("lines", len(lines)),
		slog.String("total", session.TotalAmount.String()),
	)
	s.recordAudit(ctx, in.CreatedBy, "session.prepare", session.ID, map[string]any{
		"number": session.Number,
		"mode":   string(session.Mode),
		"total":  session.TotalAmount.String(),
	})
	return SessionWithLines{PaymentSession: session, Lines: lines}, nil
}

func validatePrepareInput(in PrepareInput) error {
	if in.Mode != ModeBulk && in.Mode != ModeSelected {
		return shared.Validationf("unknown payment mode %q", in.Mode)
	}
	if !money.IsPositive(in.TotalAmount) {
		return shared.Validationf("payment total must be positive")
	}
	if _, err := currency.ParseISO(in.Currency); err != nil {
		return shared.Validationf("invalid currency code %q", in.Currency)
	}
	if !money.IsPositive(in.ExchangeRate) {
		return shared.Validationf("exchange rate must be positive")
	}
	return nil
}

// Post settles a draft session: each line spawns a bill payment and updates
// its bill. Posting an already-posted session returns the existing result.
func (s *Service) Post(ctx context.Context, sessionID, userID int64) (SessionWithLines, error) {
	head, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return SessionWithLines{}, err
	}

	release, err := s.lock.Acquire(ctx, head.VendorID)
	if err != nil {
		return SessionWithLines{}, err
	}
	defer release()

	var result SessionWithLines
	var alreadyPosted bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == SessionPosted {
			alreadyPosted = true
			lines, err := tx.GetSessionLines(ctx, sessionID)
			if err != nil {
				return err
			}
			result = SessionWithLines{PaymentSession: session, Lines: lines}
			return nil
		}
		if !session.Status.CanTransitionTo(SessionPosted) {
			return shared.StateConflictf("session %s is %s and cannot be posted", session.Number, session.Status)
		}

		lines, err := tx.GetSessionLines(ctx, sessionID)
		if err != nil {
			return err
		}

		for i := range lines {
			bill, err := tx.GetBillForUpdate(ctx, lines[i].BillID)
			if err != nil {
				return err
			}
			// Re-validate against the locked row; the draft snapshot may be stale.
			if err := bill.ApplyPayment(lines[i].AllocatedAmount); err != nil {
				return err
			}
			if err := tx.UpdateBillBalances(ctx, bill); err != nil {
				return fmt.Errorf("paysessions: update bill %d: %w", bill.ID, err)
			}

			paymentID, err := tx.CreateBillPayment(ctx, bills.BillPayment{
				BillID:       lines[i].BillID,
				Reference:    fmt.Sprintf("%s-%02d", session.Number, i+1),
				Amount:       lines[i].AllocatedAmount,
				Currency:     session.Currency,
				ExchangeRate: session.ExchangeRate,
				PaidAt:       session.PaymentDate,
				Method:       session.Method,
				CreatedBy:    userID,
			})
			if err != nil {
				return fmt.Errorf("paysessions: create payment: %w", err)
			}
			if err := tx.LinkLinePayment(ctx, lines[i].ID, paymentID); err != nil {
				return fmt.Errorf("paysessions: link payment: %w", err)
			}
			lines[i].PaymentID = &paymentID
		}

		if err := tx.MarkSessionPosted(ctx, sessionID, userID); err != nil {
			return err
		}
		session.Status = SessionPosted
		session.PostedBy = &userID
		result = SessionWithLines{PaymentSession: session, Lines: lines}
		return nil
	})
	if err != nil {
		return SessionWithLines{}, err
	}

	if alreadyPosted {
		s.logger.Info("session already posted, returning existing result", slog.Int64("session_id", sessionID))
		return result, nil
	}

	s.logger.Info("session posted",
		slog.Int64("session_id", sessionID),
		slog.String("number", result.Number),
		slog.Int("payments", len(result.Lines)),
	)
	s.recordAudit(ctx, userID, "session.post", sessionID, map[string]any{"number": result.Number})
	return result, nil
}

// Reverse undoes a posted session: every spawned payment is deleted and its
// bill restored, then the session flips to reversed.
func (s *Service) Reverse(ctx context.Context, sessionID, userID int64) error {
	head, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	release, err := s.lock.Acquire(ctx, head.VendorID)
	if err != nil {
		return err
	}
	defer release()

	today := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.Status.CanTransitionTo(SessionReversed) {
			return shared.StateConflictf("session %s is %s, only posted sessions can be reversed", session.Number, session.Status)
		}

		lines, err := tx.GetSessionLines(ctx, sessionID)
		if err != nil {
			return err
		}

		for _, line := range lines {
			if line.PaymentID == nil {
				continue
			}
			payment, err := tx.GetBillPayment(ctx, *line.PaymentID)
			if err != nil {
				return err
			}
			bill, err := tx.GetBillForUpdate(ctx, line.BillID)
			if err != nil {
				return err
			}

			bill.ReleasePayment(payment.Amount, today)
			if err := tx.UpdateBillBalances(ctx, bill); err != nil {
				return fmt.Errorf("paysessions: restore bill %d: %w", bill.ID, err)
			}
			if err := tx.DeleteBillPayment(ctx, payment.ID); err != nil {
				return fmt.Errorf("paysessions: delete payment %d: %w", payment.ID, err)
			}
			if err := tx.ClearLinePayment(ctx, line.ID); err != nil {
				return fmt.Errorf("paysessions: clear payment link: %w", err)
			}
		}

		return tx.MarkSessionReversed(ctx, sessionID, userID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("session reversed", slog.Int64("session_id", sessionID), slog.String("number", head.Number))
	s.recordAudit(ctx, userID, "session.reverse", sessionID, map[string]any{"number": head.Number})
	return nil
}

// GetSessionWithLines returns one session with its allocation lines.
func (s *Service) GetSessionWithLines(ctx context.Context, id int64) (SessionWithLines, error) {
	return s.repo.GetSessionWithLines(ctx, id)
}

// ListSessions returns a filtered, paged session listing with the total count.
func (s *Service) ListSessions(ctx context.Context, req ListSessionsRequest) ([]PaymentSession, int, error) {
	return s.repo.ListSessions(ctx, req)
}
