package creditnotes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/settleflow/settleflow/internal/money"
	"github.com/settleflow/settleflow/internal/shared"
)

// Service implements the credit note ledger.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the credit note service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, noteID int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "credit_note",
		EntityID: noteID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// CreateNoteInput carries a credit note creation request.
type CreateNoteInput struct {
	BusinessID     int64
	VendorID       int64
	OriginalBillID *int64
	Type           NoteType
	IssueDate      time.Time
	Currency       string
	ExchangeRate   decimal.Decimal
	CreditAmount   decimal.Decimal
	Reason         string
	CreatedBy      int64
}

// Create persists a new draft credit note with a sequential number.
func (s *Service) Create(ctx context.Context, in CreateNoteInput) (CreditNote, error) {
	if !ValidNoteType(in.Type) {
		return CreditNote{}, shared.Validationf("unknown credit note type %q", in.Type)
	}
	if !money.IsPositive(in.CreditAmount) {
		return CreditNote{}, shared.Validationf("credit amount must be positive")
	}
	if _, err := currency.ParseISO(in.Currency); err != nil {
		return CreditNote{}, shared.Validationf("invalid currency code %q", in.Currency)
	}
	if !money.IsPositive(in.ExchangeRate) {
		return CreditNote{}, shared.Validationf("exchange rate must be positive")
	}
	if in.IssueDate.IsZero() {
		in.IssueDate = s.now()
	}

	amount := money.Round2(in.CreditAmount)
	note := CreditNote{
		BusinessID:       in.BusinessID,
		VendorID:         in.VendorID,
		OriginalBillID:   in.OriginalBillID,
		Type:             in.Type,
		Status:           NoteDraft,
		IssueDate:        in.IssueDate,
		Currency:         in.Currency,
		ExchangeRate:     in.ExchangeRate,
		CreditAmount:     amount,
		CreditAmountBase: money.Round2(amount.Mul(in.ExchangeRate)),
		AmountApplied:    decimal.Zero,
		AmountRemaining:  amount,
		Reason:           in.Reason,
		CreatedBy:        in.CreatedBy,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateNoteNumber(ctx, in.BusinessID)
		if err != nil {
			return fmt.Errorf("creditnotes: generate number: %w", err)
		}
		note.Number = number

		id, err := tx.CreateNote(ctx, note)
		if err != nil {
			return fmt.Errorf("creditnotes: create note: %w", err)
		}
		note.ID = id
		return nil
	})
	if err != nil {
		return CreditNote{}, err
	}

	s.logger.Info("credit note created",
		slog.Int64("note_id", note.ID),
		slog.String("number", note.Number),
		slog.String("type", string(note.Type)),
		slog.String("amount", note.CreditAmount.String()),
	)
	s.recordAudit(ctx, in.CreatedBy, "note.create", note.ID, map[string]any{
		"number": note.Number,
		"type":   string(note.Type),
		"amount": note.CreditAmount.String(),
	})
	return note, nil
}

// Confirm moves a draft note to confirmed, making it eligible for application.
func (s *Service) Confirm(ctx context.Context, noteID, userID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.GetNoteForUpdate(ctx, noteID)
		if err != nil {
			return err
		}
		if note.Status != NoteDraft {
			return shared.StateConflictf("credit note %s is %s, only draft notes can be confirmed", note.Number, note.Status)
		}
		return tx.MarkNoteConfirmed(ctx, noteID, userID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "note.confirm", noteID, nil)
	return nil
}

// ApplicationResult reports the outcome of one credit application.
type ApplicationResult struct {
	ApplicationID   int64
	NoteID          int64
	BillID          int64
	AmountApplied   decimal.Decimal
	AmountRemaining decimal.Decimal
	NoteStatus      NoteStatus
	BillAmountDue   decimal.Decimal
}

// ApplyToBill applies credit from a confirmed note against one bill. The
// amount actually applied is capped at the bill's outstanding balance.
func (s *Service) ApplyToBill(ctx context.Context, noteID, billID int64, amount decimal.Decimal, userID int64) (ApplicationResult, error) {
	var result ApplicationResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.GetNoteForUpdate(ctx, noteID)
		if err != nil {
			return err
		}
		bill, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return err
		}

		applied, err := note.Apply(amount, bill.AmountDue)
		if err != nil {
			return err
		}
		if err := bill.ApplyPayment(applied); err != nil {
			return err
		}

		if err := tx.UpdateBillBalances(ctx, bill); err != nil {
			return fmt.Errorf("creditnotes: update bill %d: %w", billID, err)
		}
		if err := tx.UpdateNoteAmounts(ctx, note); err != nil {
			return fmt.Errorf("creditnotes: update note %d: %w", noteID, err)
		}

		app := CreditApplication{
			NoteID:    noteID,
			BillID:    billID,
			Amount:    applied,
			AppliedAt: s.now(),
			AppliedBy: userID,
		}
		appID, err := tx.CreateApplication(ctx, app)
		if err != nil {
			return fmt.Errorf("creditnotes: record application: %w", err)
		}

		result = ApplicationResult{
			ApplicationID:   appID,
			NoteID:          noteID,
			BillID:          billID,
			AmountApplied:   applied,
			AmountRemaining: note.AmountRemaining,
			NoteStatus:      note.Status,
			BillAmountDue:   bill.AmountDue,
		}
		return nil
	})
	if err != nil {
		return ApplicationResult{}, err
	}

	s.logger.Info("credit applied",
		slog.Int64("note_id", noteID),
		slog.Int64("bill_id", billID),
		slog.String("applied", result.AmountApplied.String()),
		slog.String("remaining", result.AmountRemaining.String()),
	)
	s.recordAudit(ctx, userID, "note.apply", noteID, map[string]any{
		"bill_id": billID,
		"applied": result.AmountApplied.String(),
	})
	return result, nil
}

// Cancel voids a note that has not been fully applied yet.
func (s *Service) Cancel(ctx context.Context, noteID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.GetNoteForUpdate(ctx, noteID)
		if err != nil {
			return err
		}
		if !note.Status.CanTransitionTo(NoteCancelled) {
			return shared.StateConflictf("credit note %s is %s and cannot be cancelled", note.Number, note.Status)
		}
		return tx.MarkNoteCancelled(ctx, noteID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, 0, "note.cancel", noteID, nil)
	return nil
}

// GetNoteWithApplications returns one note with its application history.
func (s *Service) GetNoteWithApplications(ctx context.Context, id int64) (NoteWithApplications, error) {
	return s.repo.GetNoteWithApplications(ctx, id)
}

// ListNotes returns a filtered, paged note listing with the total count.
func (s *Service) ListNotes(ctx context.Context, req ListNotesRequest) ([]CreditNote, int, error) {
	return s.repo.ListNotes(ctx, req)
}
