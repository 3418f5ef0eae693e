package schedules

import (
	"time"

	"github.com/shopspring/decimal"
)

type createScheduleRequest struct {
	BillID        int64           `json:"bill_id" validate:"required,gt=0"`
	ScheduledDate string          `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Method        string          `json:"method" validate:"required"`
	BankAccountID *int64          `json:"bank_account_id,omitempty"`
}

type updateScheduleRequest struct {
	ScheduledDate string          `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Method        string          `json:"method" validate:"required"`
	BankAccountID *int64          `json:"bank_account_id,omitempty"`
}

type scheduleView struct {
	ID            int64           `json:"id"`
	BusinessID    int64           `json:"business_id"`
	VendorID      int64           `json:"vendor_id"`
	BillID        int64           `json:"bill_id"`
	Number        string          `json:"number"`
	Status        string          `json:"status"`
	ScheduledDate string          `json:"scheduled_date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method"`
	BankAccountID *int64          `json:"bank_account_id,omitempty"`
	SessionID     *int64          `json:"session_id,omitempty"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type scheduleListView struct {
	Schedules []scheduleView `json:"schedules"`
	Total     int            `json:"total"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
}

func toScheduleView(s PaymentSchedule) scheduleView {
	return scheduleView{
		ID:            s.ID,
		BusinessID:    s.BusinessID,
		VendorID:      s.VendorID,
		BillID:        s.BillID,
		Number:        s.Number,
		Status:        string(s.Status),
		ScheduledDate: s.ScheduledDate.Format("2006-01-02"),
		Amount:        s.Amount,
		Currency:      s.Currency,
		Method:        s.Method,
		BankAccountID: s.BankAccountID,
		SessionID:     s.SessionID,
		ExecutedAt:    s.ExecutedAt,
		CreatedAt:     s.CreatedAt,
	}
}

func toScheduleViews(schedules []PaymentSchedule) []scheduleView {
	views := make([]scheduleView, 0, len(schedules))
	for _, s := range schedules {
		views = append(views, toScheduleView(s))
	}
	return views
}
