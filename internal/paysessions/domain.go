package paysessions

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionMode selects the allocation strategy.
type SessionMode string

const (
	ModeBulk     SessionMode = "BULK"
	ModeSelected SessionMode = "SELECTED"
)

// SessionStatus enumerates payment session lifecycle states.
type SessionStatus string

const (
	SessionDraft    SessionStatus = "DRAFT"
	SessionPosted   SessionStatus = "POSTED"
	SessionReversed SessionStatus = "REVERSED"
)

// transitions is the single source of truth for legal status changes.
// Reversed is terminal.
var transitions = map[SessionStatus][]SessionStatus{
	SessionDraft:    {SessionPosted},
	SessionPosted:   {SessionReversed},
	SessionReversed: {},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentSession is one payment run against a single vendor.
type PaymentSession struct {
	ID              int64
	BusinessID      int64
	VendorID        int64
	Number          string
	Mode            SessionMode
	Status          SessionStatus
	Currency        string
	ExchangeRate    decimal.Decimal
	TotalAmount     decimal.Decimal
	TotalAmountBase decimal.Decimal
	PaymentDate     time.Time
	Method          string
	BankAccountID   *int64
	PostedBy        *int64
	PostedAt        *time.Time
	ReversedBy      *int64
	ReversedAt      *time.Time
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SessionLine is the allocation of part of a session's total to one bill. The
// before/after amounts are snapshots taken at preparation time; PaymentID is
// set when the session posts and cleared on reversal.
type SessionLine struct {
	ID                  int64
	SessionID           int64
	BillID              int64
	BillNumber          string
	AllocatedAmount     decimal.Decimal
	BillAmountDueBefore decimal.Decimal
	BillAmountDueAfter  decimal.Decimal
	IsPartialPayment    bool
	PaymentID           *int64
}

// SessionWithLines bundles a session with its allocation lines.
type SessionWithLines struct {
	PaymentSession
	Lines []SessionLine
}
