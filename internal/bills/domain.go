package bills

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleflow/settleflow/internal/money"
	"github.com/settleflow/settleflow/internal/shared"
)

// BillStatus enumerates vendor bill lifecycle states.
type BillStatus string

const (
	StatusDraft         BillStatus = "DRAFT"
	StatusOpen          BillStatus = "OPEN"
	StatusPartiallyPaid BillStatus = "PARTIALLY_PAID"
	StatusOverdue       BillStatus = "OVERDUE"
	StatusPaid          BillStatus = "PAID"
	StatusCancelled     BillStatus = "CANCELLED"
	StatusVoid          BillStatus = "VOID"
	StatusDisputed      BillStatus = "DISPUTED"
)

// transitions is the single source of truth for legal status changes.
// Guard clauses elsewhere only consult this table.
var transitions = map[BillStatus][]BillStatus{
	StatusDraft:         {StatusOpen, StatusCancelled, StatusVoid, StatusDisputed},
	StatusOpen:          {StatusPartiallyPaid, StatusOverdue, StatusPaid, StatusCancelled, StatusVoid, StatusDisputed},
	StatusPartiallyPaid: {StatusOverdue, StatusPaid, StatusOpen, StatusCancelled, StatusVoid, StatusDisputed},
	StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusOpen, StatusCancelled, StatusVoid, StatusDisputed},
	StatusPaid:          {StatusOpen, StatusPartiallyPaid, StatusOverdue}, // reversal only
	StatusCancelled:     {},
	StatusVoid:          {},
	StatusDisputed:      {StatusOpen, StatusCancelled, StatusVoid},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s BillStatus) CanTransitionTo(next BillStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payable reports whether a bill in this status may receive money.
func (s BillStatus) Payable() bool {
	return s == StatusOpen || s == StatusPartiallyPaid || s == StatusOverdue
}

// DiscountType enumerates how a discount value is interpreted.
type DiscountType string

const (
	DiscountNone    DiscountType = "NONE"
	DiscountFlat    DiscountType = "FLAT"
	DiscountPercent DiscountType = "PERCENT"
)

// Discount pairs a discount type with its value.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// AmountOn computes the discount amount against a base, at 4-decimal
// precision for percentages.
func (d Discount) AmountOn(base decimal.Decimal) decimal.Decimal {
	switch d.Type {
	case DiscountFlat:
		return d.Value
	case DiscountPercent:
		return money.Percent(base, d.Value)
	default:
		return decimal.Zero
	}
}

// VendorBill is an accounts-payable invoice. AmountDue always equals
// TotalAmount − AmountPaid and never goes negative.
type VendorBill struct {
	ID              int64
	BusinessID      int64
	VendorID        int64
	PurchaseOrderID *int64
	Number          string
	Status          BillStatus
	BillDate        time.Time
	DueDate         time.Time
	Currency        string
	ExchangeRate    decimal.Decimal
	Subtotal        decimal.Decimal
	DiscountType    DiscountType
	DiscountValue   decimal.Decimal
	DiscountAmount  decimal.Decimal
	ShippingFee     decimal.Decimal
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
	TotalAmountBase decimal.Decimal
	AmountPaid      decimal.Decimal
	AmountDue       decimal.Decimal
	DaysOverdue     int
	ConfirmedBy     *int64
	ConfirmedAt     *time.Time
	CancelReason    *string
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BillLine is one line item on a vendor bill.
type BillLine struct {
	ID             int64
	BillID         int64
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxRatePct     decimal.Decimal
	TaxAmount      decimal.Decimal
	LineTotal      decimal.Decimal
	CreatedAt      time.Time
}

// BillPayment is an immutable record of money applied to one bill. It is
// created by session posting or direct payment recording and removed only
// when its owning session is reversed.
type BillPayment struct {
	ID           int64
	BillID       int64
	Reference    string
	Amount       decimal.Decimal
	Currency     string
	ExchangeRate decimal.Decimal
	PaidAt       time.Time
	Method       string
	CreatedBy    int64
	CreatedAt    time.Time
}

// BillWithDetails bundles a bill with its lines and payments for the
// read-side detail query.
type BillWithDetails struct {
	VendorBill
	VendorName string
	Lines      []BillLine
	Payments   []BillPayment
}

// VendorOverdueSummary aggregates a vendor's overdue exposure.
type VendorOverdueSummary struct {
	VendorID       int64
	VendorName     string
	BillCount      int
	TotalDue       decimal.Decimal
	MaxDaysOverdue int
}

// ApplyPayment validates and applies amount against the bill's outstanding
// balance, updating paid/due amounts and status. Rejections leave the bill
// untouched.
func (b *VendorBill) ApplyPayment(amount decimal.Decimal) error {
	if !money.IsPositive(amount) {
		return shared.Validationf("payment amount must be positive")
	}
	if !b.Status.Payable() {
		return shared.StateConflictf("bill %s is %s and cannot receive payments", b.Number, b.Status)
	}
	if money.ExceedsWithTolerance(amount, b.AmountDue) {
		return shared.RuleViolationf("payment %s exceeds amount due %s on bill %s", amount, b.AmountDue, b.Number)
	}

	b.AmountPaid = money.Round2(b.AmountPaid.Add(amount))
	b.AmountDue = money.Round2(b.TotalAmount.Sub(b.AmountPaid))
	if b.AmountDue.LessThanOrEqual(decimal.Zero) {
		b.AmountDue = decimal.Zero
		b.Status = StatusPaid
	} else {
		b.Status = StatusPartiallyPaid
	}
	b.DaysOverdue = 0
	return nil
}

// ReleasePayment undoes a previously applied payment during session reversal
// and recomputes the status from the restored balance.
func (b *VendorBill) ReleasePayment(amount decimal.Decimal, today time.Time) {
	b.AmountPaid = money.Round2(b.AmountPaid.Sub(amount))
	if b.AmountPaid.LessThan(decimal.Zero) {
		b.AmountPaid = decimal.Zero
	}
	b.AmountDue = money.Round2(b.TotalAmount.Sub(b.AmountPaid))

	switch {
	case b.AmountDue.LessThanOrEqual(decimal.Zero):
		b.AmountDue = decimal.Zero
		b.Status = StatusPaid
	case b.DueDate.Before(truncateToDay(today)):
		b.Status = StatusOverdue
		b.DaysOverdue = daysBetween(b.DueDate, today)
	case b.AmountPaid.GreaterThan(decimal.Zero):
		b.Status = StatusPartiallyPaid
		b.DaysOverdue = 0
	default:
		b.Status = StatusOpen
		b.DaysOverdue = 0
	}
}

// RefreshOverdue recomputes the aging counters as of today and reports
// whether anything changed. Running it twice on the same day is a no-op the
// second time.
func (b *VendorBill) RefreshOverdue(today time.Time) bool {
	if !b.Status.Payable() || !money.IsPositive(b.AmountDue) {
		return false
	}
	days := daysBetween(b.DueDate, today)
	if days < 0 {
		days = 0
	}
	changed := false
	if b.DaysOverdue != days {
		b.DaysOverdue = days
		changed = true
	}
	if days > 0 && b.Status != StatusOverdue {
		b.Status = StatusOverdue
		changed = true
	}
	return changed
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(from, to time.Time) int {
	return int(truncateToDay(to).Sub(truncateToDay(from)).Hours() / 24)
}
