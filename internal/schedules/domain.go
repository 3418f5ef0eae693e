package schedules

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleStatus enumerates payment schedule lifecycle states.
type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "SCHEDULED"
	ScheduleOverdue   ScheduleStatus = "OVERDUE"
	ScheduleExecuted  ScheduleStatus = "EXECUTED"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

// transitions is the single source of truth for legal status changes. The due
// sweep flips Scheduled to Overdue; an overdue schedule stays executable.
var transitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleScheduled: {ScheduleOverdue, ScheduleExecuted, ScheduleCancelled},
	ScheduleOverdue:   {ScheduleExecuted, ScheduleCancelled},
	ScheduleExecuted:  {},
	ScheduleCancelled: {},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s ScheduleStatus) CanTransitionTo(next ScheduleStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Executable reports whether the schedule may still be turned into a payment.
func (s ScheduleStatus) Executable() bool {
	return s == ScheduleScheduled || s == ScheduleOverdue
}

// PaymentSchedule is a future-dated intent to pay one bill a fixed amount.
// SessionID links the payment session produced on execution.
type PaymentSchedule struct {
	ID            int64
	BusinessID    int64
	VendorID      int64
	BillID        int64
	Number        string
	Status        ScheduleStatus
	ScheduledDate time.Time
	Amount        decimal.Decimal
	Currency      string
	ExchangeRate  decimal.Decimal
	Method        string
	BankAccountID *int64
	SessionID     *int64
	ExecutedBy    *int64
	ExecutedAt    *time.Time
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
