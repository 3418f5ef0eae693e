package creditnotes

import (
	"time"

	"github.com/shopspring/decimal"
)

type createNoteRequest struct {
	BusinessID     int64           `json:"business_id" validate:"required,gt=0"`
	VendorID       int64           `json:"vendor_id" validate:"required,gt=0"`
	OriginalBillID *int64          `json:"original_bill_id,omitempty"`
	Type           string          `json:"type" validate:"required,oneof=REFUND RETURN PRICE_ADJUSTMENT OVERPAYMENT"`
	IssueDate      string          `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate" validate:"required"`
	CreditAmount   decimal.Decimal `json:"credit_amount" validate:"required"`
	Reason         string          `json:"reason"`
}

type applyNoteRequest struct {
	BillID int64           `json:"bill_id" validate:"required,gt=0"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type noteView struct {
	ID               int64           `json:"id"`
	BusinessID       int64           `json:"business_id"`
	VendorID         int64           `json:"vendor_id"`
	OriginalBillID   *int64          `json:"original_bill_id,omitempty"`
	Number           string          `json:"number"`
	Type             string          `json:"type"`
	Status           string          `json:"status"`
	IssueDate        string          `json:"issue_date"`
	Currency         string          `json:"currency"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	CreditAmount     decimal.Decimal `json:"credit_amount"`
	CreditAmountBase decimal.Decimal `json:"credit_amount_base"`
	AmountApplied    decimal.Decimal `json:"amount_applied"`
	AmountRemaining  decimal.Decimal `json:"amount_remaining"`
	Reason           string          `json:"reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type applicationView struct {
	ID        int64           `json:"id"`
	BillID    int64           `json:"bill_id"`
	Amount    decimal.Decimal `json:"amount"`
	AppliedAt time.Time       `json:"applied_at"`
}

type noteDetailView struct {
	noteView
	Applications []applicationView `json:"applications"`
}

type applicationResultView struct {
	ApplicationID   int64           `json:"application_id"`
	NoteID          int64           `json:"note_id"`
	BillID          int64           `json:"bill_id"`
	AmountApplied   decimal.Decimal `json:"amount_applied"`
	AmountRemaining decimal.Decimal `json:"amount_remaining"`
	NoteStatus      string          `json:"note_status"`
	BillAmountDue   decimal.Decimal `json:"bill_amount_due"`
}

type noteListView struct {
	Notes  []noteView `json:"notes"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

func toNoteView(n CreditNote) noteView {
	return noteView{
		ID:               n.ID,
		BusinessID:       n.BusinessID,
		VendorID:         n.VendorID,
		OriginalBillID:   n.OriginalBillID,
		Number:           n.Number,
		Type:             string(n.Type),
		Status:           string(n.Status),
		IssueDate:        n.IssueDate.Format("2006-01-02"),
		Currency:         n.Currency,
		ExchangeRate:     n.ExchangeRate,
		CreditAmount:     n.CreditAmount,
		CreditAmountBase: n.CreditAmountBase,
		AmountApplied:    n.AmountApplied,
		AmountRemaining:  n.AmountRemaining,
		Reason:           n.Reason,
		CreatedAt:        n.CreatedAt,
	}
}

func toNoteDetailView(d NoteWithApplications) noteDetailView {
	view := noteDetailView{
		noteView:     toNoteView(d.CreditNote),
		Applications: make([]applicationView, 0, len(d.Applications)),
	}
	for _, a := range d.Applications {
		view.Applications = append(view.Applications, applicationView{
			ID:        a.ID,
			BillID:    a.BillID,
			Amount:    a.Amount,
			AppliedAt: a.AppliedAt,
		})
	}
	return view
}

func toNoteViews(notes []CreditNote) []noteView {
	views := make([]noteView, 0, len(notes))
	for _, n := range notes {
		views = append(views, toNoteView(n))
	}
	return views
}

func toApplicationResultView(r ApplicationResult) applicationResultView {
	return applicationResultView{
		ApplicationID:   r.ApplicationID,
		NoteID:          r.NoteID,
		BillID:          r.BillID,
		AmountApplied:   r.AmountApplied,
		AmountRemaining: r.AmountRemaining,
		NoteStatus:      string(r.NoteStatus),
		BillAmountDue:   r.BillAmountDue,
	}
}
