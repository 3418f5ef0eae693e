package paysessions

import (
	"time"

	"github.com/shopspring/decimal"
)

type prepareSessionRequest struct {
	BusinessID    int64                      `json:"business_id" validate:"required,gt=0"`
	VendorID      int64                      `json:"vendor_id" validate:"required,gt=0"`
	Mode          string                     `json:"mode" validate:"required,oneof=BULK SELECTED"`
	TotalAmount   decimal.Decimal            `json:"total_amount" validate:"required"`
	Currency      string                     `json:"currency" validate:"required,len=3"`
	ExchangeRate  decimal.Decimal            `json:"exchange_rate" validate:"required"`
	PaymentDate   string                     `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Method        string                     `json:"method" validate:"required"`
	BankAccountID *int64                     `json:"bank_account_id,omitempty"`
	Lines         []selectedAllocationInput  `json:"lines" validate:"omitempty,dive"`
}

type selectedAllocationInput struct {
	BillID int64           `json:"bill_id" validate:"required,gt=0"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type sessionView struct {
	ID              int64           `json:"id"`
	BusinessID      int64           `json:"business_id"`
	VendorID        int64           `json:"vendor_id"`
	Number          string          `json:"number"`
	Mode            string          `json:"mode"`
	Status          string          `json:"status"`
	Currency        string          `json:"currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalAmountBase decimal.Decimal `json:"total_amount_base"`
	PaymentDate     string          `json:"payment_date"`
	Method          string          `json:"method"`
	BankAccountID   *int64          `json:"bank_account_id,omitempty"`
	PostedAt        *time.Time      `json:"posted_at,omitempty"`
	ReversedAt      *time.Time      `json:"reversed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type sessionLineView struct {
	ID                  int64           `json:"id"`
	BillID              int64           `json:"bill_id"`
	BillNumber          string          `json:"bill_number"`
	AllocatedAmount     decimal.Decimal `json:"allocated_amount"`
	BillAmountDueBefore decimal.Decimal `json:"bill_amount_due_before"`
	BillAmountDueAfter  decimal.Decimal `json:"bill_amount_due_after"`
	IsPartialPayment    bool            `json:"is_partial_payment"`
	PaymentID           *int64          `json:"payment_id,omitempty"`
}

type sessionDetailView struct {
	sessionView
	Lines []sessionLineView `json:"lines"`
}

type sessionListView struct {
	Sessions []sessionView `json:"sessions"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

func toSessionView(s PaymentSession) sessionView {
	return sessionView{
		ID:              s.ID,
		BusinessID:      s.BusinessID,
		VendorID:        s.VendorID,
		Number:          s.Number,
		Mode:            string(s.Mode),
		Status:          string(s.Status),
		Currency:        s.Currency,
		ExchangeRate:    s.ExchangeRate,
		TotalAmount:     s.TotalAmount,
		TotalAmountBase: s.TotalAmountBase,
		PaymentDate:     s.PaymentDate.Format("2006-01-02"),
		Method:          s.Method,
		BankAccountID:   s.BankAccountID,
		PostedAt:        s.PostedAt,
		ReversedAt:      s.ReversedAt,
		CreatedAt:       s.CreatedAt,
	}
}

func toSessionLineView(l SessionLine) sessionLineView {
	return sessionLineView{
		ID:                  l.ID,
		BillID:              l.BillID,
		BillNumber:          l.BillNumber,
		AllocatedAmount:     l.AllocatedAmount,
		BillAmountDueBefore: l.BillAmountDueBefore,
		BillAmountDueAfter:  l.BillAmountDueAfter,
		IsPartialPayment:    l.IsPartialPayment,
		PaymentID:           l.PaymentID,
	}
}

func toSessionDetailView(d SessionWithLines) sessionDetailView {
	view := sessionDetailView{
		sessionView: toSessionView(d.PaymentSession),
		Lines:       make([]sessionLineView, 0, len(d.Lines)),
	}
	for _, l := range d.Lines {
		view.Lines = append(view.Lines, toSessionLineView(l))
	}
	return view
}

func toSessionViews(sessions []PaymentSession) []sessionView {
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toSessionView(s))
	}
	return views
}
