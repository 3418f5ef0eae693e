package bills

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/settleflow/settleflow/internal/money"
	"github.com/settleflow/settleflow/internal/shared"
)

// Service implements the bill ledger operations.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the bill ledger service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, billID int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "vendor_bill",
		EntityID: billID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// CreateBillInput carries everything needed to create a draft bill.
type CreateBillInput struct {
	BusinessID      int64
	VendorID        int64
	PurchaseOrderID *int64
	BillDate        time.Time
	DueDate         time.Time
	Currency        string
	ExchangeRate    decimal.Decimal
	Discount        Discount
	ShippingFee     decimal.Decimal
	Lines           []CreateBillLineInput
	CreatedBy       int64
}

// CreateBillLineInput is one requested line item.
type CreateBillLineInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    Discount
	TaxRatePct  decimal.Decimal
}

// Create computes line and bill totals and persists a new draft bill.
func (s *Service) Create(ctx context.Context, in CreateBillInput) (VendorBill, error) {
	if err := validateCreateInput(in); err != nil {
		return VendorBill{}, err
	}

	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	lines := make([]BillLine, 0, len(in.Lines))
	for _, li := range in.Lines {
		beforeDiscount := li.Quantity.Mul(li.UnitPrice)
		discountAmount := li.Discount.AmountOn(beforeDiscount)
		afterDiscount := beforeDiscount.Sub(discountAmount)
		taxAmount := money.Percent(afterDiscount, li.TaxRatePct)

		lines = append(lines, BillLine{
			Description:    li.Description,
			Quantity:       li.Quantity,
			UnitPrice:      li.UnitPrice,
			DiscountType:   li.Discount.Type,
			DiscountValue:  li.Discount.Value,
			DiscountAmount: discountAmount,
			TaxRatePct:     li.TaxRatePct,
			TaxAmount:      taxAmount,
			LineTotal:      afterDiscount.Add(taxAmount),
		})
		subtotal = subtotal.Add(beforeDiscount)
		taxTotal = taxTotal.Add(taxAmount)
	}

	orderDiscount := in.Discount.AmountOn(subtotal)
	total := money.Round2(subtotal.Sub(orderDiscount).Add(in.ShippingFee).Add(taxTotal))
	if !money.IsPositive(total) {
		return VendorBill{}, shared.Validationf("bill total must be positive, got %s", total)
	}

	bill := VendorBill{
		BusinessID:      in.BusinessID,
		VendorID:        in.VendorID,
		PurchaseOrderID: in.PurchaseOrderID,
		Status:          StatusDraft,
		BillDate:        in.BillDate,
		DueDate:         in.DueDate,
		Currency:        in.Currency,
		ExchangeRate:    in.ExchangeRate,
		Subtotal:        money.Round2(subtotal),
		DiscountType:    in.Discount.Type,
		DiscountValue:   in.Discount.Value,
		DiscountAmount:  orderDiscount,
		ShippingFee:     in.ShippingFee,
		TaxAmount:       money.Round2(taxTotal),
		TotalAmount:     total,
		TotalAmountBase: money.Round2(total.Mul(in.ExchangeRate)),
		AmountPaid:      decimal.Zero,
		AmountDue:       total,
		CreatedBy:       in.CreatedBy,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateBillNumber(ctx, in.BusinessID)
		if err != nil {
			return fmt.Errorf("bills: generate number: %w", err)
		}
		bill.Number = number

		id, err := tx.CreateBill(ctx, bill)
		if err != nil {
			return fmt.Errorf("bills: create bill: %w", err)
		}
		bill.ID = id

		for i := range lines {
			lineID, err := tx.CreateBillLine(ctx, id, lines[i])
			if err != nil {
				return fmt.Errorf("bills: create bill line: %w", err)
			}
			lines[i].ID = lineID
			lines[i].BillID = id
		}
		return nil
	})
	if err != nil {
		return VendorBill{}, err
	}

	s.logger.Info("bill created",
		slog.Int64("bill_id", bill.ID),
		slog.String("number", bill.Number),
		slog.Int64("vendor_id", bill.VendorID),
		slog.String("total", bill.TotalAmount.String()),
	)
	s.recordAudit(ctx, in.CreatedBy, "bill.create", bill.ID, map[string]any{
		"number": bill.Number,
		"total":  bill.TotalAmount.String(),
	})
	return bill, nil
}

func validateCreateInput(in CreateBillInput) error {
	if len(in.Lines) == 0 {
		return shared.Validationf("bill requires at least one line")
	}
	if _, err := currency.ParseISO(in.Currency); err != nil {
		return shared.Validationf("invalid currency code %q", in.Currency)
	}
	if !money.IsPositive(in.ExchangeRate) {
		return shared.Validationf("exchange rate must be positive")
	}
	if in.DueDate.Before(in.BillDate) {
		return shared.Validationf("due date must not precede bill date")
	}
	if in.ShippingFee.IsNegative() {
		return shared.Validationf("shipping fee must not be negative")
	}
	for i, li := range in.Lines {
		if !money.IsPositive(li.Quantity) {
			return shared.Validationf("line %d: quantity must be positive", i+1)
		}
		if li.UnitPrice.IsNegative() {
			return shared.Validationf("line %d: unit price must not be negative", i+1)
		}
		if li.TaxRatePct.IsNegative() {
			return shared.Validationf("line %d: tax rate must not be negative", i+1)
		}
	}
	return nil
}

// Confirm moves a draft bill to open and stamps the approver.
func (s *Service) Confirm(ctx context.Context, billID, userID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if bill.Status != StatusDraft {
			return shared.StateConflictf("bill %s is %s, only draft bills can be confirmed", bill.Number, bill.Status)
		}
		return tx.ConfirmBill(ctx, billID, userID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "bill.confirm", billID, nil)
	return nil
}

// Cancel marks a bill cancelled with a reason. Paid, cancelled and void bills
// are rejected.
func (s *Service) Cancel(ctx context.Context, billID int64, reason string) error {
	if reason == "" {
		return shared.Validationf("cancel reason is required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if !bill.Status.CanTransitionTo(StatusCancelled) {
			return shared.StateConflictf("bill %s is %s and cannot be cancelled", bill.Number, bill.Status)
		}
		return tx.CancelBill(ctx, billID, StatusCancelled, reason)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, 0, "bill.cancel", billID, map[string]any{"reason": reason})
	return nil
}

// RecordPaymentInput carries a direct payment against one bill.
type RecordPaymentInput struct {
	BillID       int64
	Amount       decimal.Decimal
	Currency     string
	ExchangeRate decimal.Decimal
	PaidAt       time.Time
	Method       string
	Reference    string
	CreatedBy    int64
}

// RecordPayment applies a direct payment to a bill inside one unit of work.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (BillPayment, error) {
	if in.PaidAt.IsZero() {
		in.PaidAt = s.now()
	}
	if in.Reference == "" {
		in.Reference = "PAY-" + uuid.NewString()
	}

	var payment BillPayment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, in.BillID)
		if err != nil {
			return err
		}
		if err := bill.ApplyPayment(in.Amount); err != nil {
			return err
		}
		if err := tx.UpdateBillBalances(ctx, bill); err != nil {
			return fmt.Errorf("bills: update balances: %w", err)
		}

		payment = BillPayment{
			BillID:       in.BillID,
			Reference:    in.Reference,
			Amount:       money.Round2(in.Amount),
			Currency:     in.Currency,
			ExchangeRate: in.ExchangeRate,
			PaidAt:       in.PaidAt,
			Method:       in.Method,
			CreatedBy:    in.CreatedBy,
		}
		id, err := tx.CreateBillPayment(ctx, payment)
		if err != nil {
			return fmt.Errorf("bills: create payment: %w", err)
		}
		payment.ID = id
		return nil
	})
	if err != nil {
		return BillPayment{}, err
	}

	s.logger.Info("payment recorded",
		slog.Int64("bill_id", in.BillID),
		slog.String("reference", payment.Reference),
		slog.String("amount", payment.Amount.String()),
	)
	s.recordAudit(ctx, in.CreatedBy, "bill.payment", in.BillID, map[string]any{
		"reference": payment.Reference,
		"amount":    payment.Amount.String(),
	})
	return payment, nil
}

// RefreshOverdueStatus recomputes aging for every payable bill of the business
// and returns how many bills changed. Each bill is its own transaction so the
// sweep can run alongside online posting.
func (s *Service) RefreshOverdueStatus(ctx context.Context, businessID int64) (int, error) {
	bills, err := s.repo.ListPayableBills(ctx, businessID)
	if err != nil {
		return 0, err
	}

	today := s.now()
	changed := 0
	for _, candidate := range bills {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			bill, err := tx.GetBillForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if !bill.RefreshOverdue(today) {
				return nil
			}
			changed++
			return tx.UpdateBillBalances(ctx, bill)
		})
		if err != nil {
			return changed, fmt.Errorf("bills: refresh bill %d: %w", candidate.ID, err)
		}
	}

	if changed > 0 {
		s.logger.Info("overdue refresh completed",
			slog.Int64("business_id", businessID),
			slog.Int("bills_changed", changed),
		)
	}
	return changed, nil
}

// GetBill returns one bill header.
func (s *Service) GetBill(ctx context.Context, id int64) (VendorBill, error) {
	return s.repo.GetBill(ctx, id)
}

// GetBillWithDetails returns a bill with its lines and payments.
func (s *Service) GetBillWithDetails(ctx context.Context, id int64) (BillWithDetails, error) {
	return s.repo.GetBillWithDetails(ctx, id)
}

// ListBills returns a filtered, paged bill listing with the total count.
func (s *Service) ListBills(ctx context.Context, req ListBillsRequest) ([]VendorBill, int, error) {
	return s.repo.ListBills(ctx, req)
}

// ListOverdueBills returns bills past due with an outstanding balance.
func (s *Service) ListOverdueBills(ctx context.Context, businessID int64) ([]VendorBill, error) {
	return s.repo.ListOverdueBills(ctx, businessID, s.now())
}

// VendorOverdueSummaries aggregates overdue exposure per vendor.
func (s *Service) VendorOverdueSummaries(ctx context.Context, businessID int64) ([]VendorOverdueSummary, error) {
	return s.repo.VendorOverdueSummaries(ctx, businessID, s.now())
}
