package creditnotes

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleflow/settleflow/internal/money"
	"github.com/settleflow/settleflow/internal/shared"
)

// NoteType enumerates why a vendor issued the credit.
type NoteType string

const (
	TypeRefund          NoteType = "REFUND"
	TypeReturn          NoteType = "RETURN"
	TypePriceAdjustment NoteType = "PRICE_ADJUSTMENT"
	TypeOverpayment     NoteType = "OVERPAYMENT"
)

// ValidNoteType reports whether t is a known credit note type.
func ValidNoteType(t NoteType) bool {
	switch t {
	case TypeRefund, TypeReturn, TypePriceAdjustment, TypeOverpayment:
		return true
	}
	return false
}

// NoteStatus enumerates credit note lifecycle states.
type NoteStatus string

const (
	NoteDraft     NoteStatus = "DRAFT"
	NoteConfirmed NoteStatus = "CONFIRMED"
	NoteApplied   NoteStatus = "APPLIED"
	NoteCancelled NoteStatus = "CANCELLED"
)

// transitions is the single source of truth for legal status changes.
// Cancellation is blocked once the note is fully applied.
var transitions = map[NoteStatus][]NoteStatus{
	NoteDraft:     {NoteConfirmed, NoteCancelled},
	NoteConfirmed: {NoteApplied, NoteCancelled},
	NoteApplied:   {},
	NoteCancelled: {},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s NoteStatus) CanTransitionTo(next NoteStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CreditNote is a vendor-issued reduction of amount owed. AmountApplied plus
// AmountRemaining always equals CreditAmount.
type CreditNote struct {
	ID               int64
	BusinessID       int64
	VendorID         int64
	OriginalBillID   *int64
	Number           string
	Type             NoteType
	Status           NoteStatus
	IssueDate        time.Time
	Currency         string
	ExchangeRate     decimal.Decimal
	CreditAmount     decimal.Decimal
	CreditAmountBase decimal.Decimal
	AmountApplied    decimal.Decimal
	AmountRemaining  decimal.Decimal
	Reason           string
	ConfirmedBy      *int64
	ConfirmedAt      *time.Time
	CreatedBy        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreditApplication is an immutable record of credit applied to one bill.
type CreditApplication struct {
	ID        int64
	NoteID    int64
	BillID    int64
	Amount    decimal.Decimal
	AppliedAt time.Time
	AppliedBy int64
}

// NoteWithApplications bundles a note with its application history.
type NoteWithApplications struct {
	CreditNote
	Applications []CreditApplication
}

// Apply consumes part of the note's remaining credit against a bill with the
// given outstanding balance. It returns the amount actually applied, capped at
// the bill's amount due, and updates the note's totals and status. Rejections
// leave the note untouched.
func (n *CreditNote) Apply(requested, billAmountDue decimal.Decimal) (decimal.Decimal, error) {
	if n.Status != NoteConfirmed {
		return decimal.Zero, shared.StateConflictf("credit note %s is %s, only confirmed notes can be applied", n.Number, n.Status)
	}
	if !money.IsPositive(requested) {
		return decimal.Zero, shared.Validationf("applied amount must be positive")
	}
	if money.ExceedsWithTolerance(requested, n.AmountRemaining) {
		return decimal.Zero, shared.RuleViolationf("applied amount %s exceeds remaining credit %s on note %s", requested, n.AmountRemaining, n.Number)
	}
	if !money.IsPositive(billAmountDue) {
		return decimal.Zero, shared.RuleViolationf("target bill has no outstanding balance")
	}

	applied := money.Round2(money.Min(requested, billAmountDue))
	if applied.GreaterThan(n.AmountRemaining) {
		applied = n.AmountRemaining
	}

	n.AmountApplied = money.Round2(n.AmountApplied.Add(applied))
	n.AmountRemaining = money.Round2(n.CreditAmount.Sub(n.AmountApplied))
	if n.AmountRemaining.LessThanOrEqual(decimal.Zero) {
		n.AmountRemaining = decimal.Zero
		n.Status = NoteApplied
	}
	return applied, nil
}
