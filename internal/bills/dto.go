package bills

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request DTOs. Validation tags cover shape only; monetary business rules
// live in the service.

type createBillRequest struct {
	BusinessID      int64                   `json:"business_id" validate:"required,gt=0"`
	VendorID        int64                   `json:"vendor_id" validate:"required,gt=0"`
	PurchaseOrderID *int64                  `json:"purchase_order_id,omitempty"`
	BillDate        string                  `json:"bill_date" validate:"required,datetime=2006-01-02"`
	DueDate         string                  `json:"due_date" validate:"required,datetime=2006-01-02"`
	Currency        string                  `json:"currency" validate:"required,len=3"`
	ExchangeRate    decimal.Decimal         `json:"exchange_rate" validate:"required"`
	DiscountType    string                  `json:"discount_type" validate:"omitempty,oneof=NONE FLAT PERCENT"`
	DiscountValue   decimal.Decimal         `json:"discount_value"`
	ShippingFee     decimal.Decimal         `json:"shipping_fee"`
	Lines           []createBillLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createBillLineRequest struct {
	Description   string          `json:"description" validate:"required"`
	Quantity      decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice     decimal.Decimal `json:"unit_price" validate:"required"`
	DiscountType  string          `json:"discount_type" validate:"omitempty,oneof=NONE FLAT PERCENT"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	TaxRatePct    decimal.Decimal `json:"tax_rate_pct"`
}

type cancelBillRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type recordPaymentRequest struct {
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	Currency     string          `json:"currency" validate:"required,len=3"`
	ExchangeRate decimal.Decimal `json:"exchange_rate" validate:"required"`
	PaidAt       string          `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	Method       string          `json:"method" validate:"required"`
	Reference    string          `json:"reference"`
}

func discountFromRequest(discountType string, value decimal.Decimal) Discount {
	switch DiscountType(discountType) {
	case DiscountFlat:
		return Discount{Type: DiscountFlat, Value: value}
	case DiscountPercent:
		return Discount{Type: DiscountPercent, Value: value}
	default:
		return Discount{Type: DiscountNone}
	}
}

// Response views.

type billView struct {
	ID              int64           `json:"id"`
	BusinessID      int64           `json:"business_id"`
	VendorID        int64           `json:"vendor_id"`
	PurchaseOrderID *int64          `json:"purchase_order_id,omitempty"`
	Number          string          `json:"number"`
	Status          string          `json:"status"`
	BillDate        string          `json:"bill_date"`
	DueDate         string          `json:"due_date"`
	Currency        string          `json:"currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalAmountBase decimal.Decimal `json:"total_amount_base"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	AmountDue       decimal.Decimal `json:"amount_due"`
	DaysOverdue     int             `json:"days_overdue"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type billLineView struct {
	ID             int64           `json:"id"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxRatePct     decimal.Decimal `json:"tax_rate_pct"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type billPaymentView struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    time.Time       `json:"paid_at"`
	Method    string          `json:"method"`
}

type billDetailView struct {
	billView
	VendorName string            `json:"vendor_name"`
	Lines      []billLineView    `json:"lines"`
	Payments   []billPaymentView `json:"payments"`
}

type overdueSummaryView struct {
	VendorID       int64           `json:"vendor_id"`
	VendorName     string          `json:"vendor_name"`
	BillCount      int             `json:"bill_count"`
	TotalDue       decimal.Decimal `json:"total_due"`
	MaxDaysOverdue int             `json:"max_days_overdue"`
}

type billListView struct {
	Bills  []billView `json:"bills"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

func toBillView(b VendorBill) billView {
	return billView{
		ID:              b.ID,
		BusinessID:      b.BusinessID,
		VendorID:        b.VendorID,
		PurchaseOrderID: b.PurchaseOrderID,
		Number:          b.Number,
		Status:          string(b.Status),
		BillDate:        b.BillDate.Format("2006-01-02"),
		DueDate:         b.DueDate.Format("2006-01-02"),
		Currency:        b.Currency,
		ExchangeRate:    b.ExchangeRate,
		Subtotal:        b.Subtotal,
		DiscountAmount:  b.DiscountAmount,
		ShippingFee:     b.ShippingFee,
		TaxAmount:       b.TaxAmount,
		TotalAmount:     b.TotalAmount,
		TotalAmountBase: b.TotalAmountBase,
		AmountPaid:      b.AmountPaid,
		AmountDue:       b.AmountDue,
		DaysOverdue:     b.DaysOverdue,
		CancelReason:    b.CancelReason,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func toBillViews(bills []VendorBill) []billView {
	views := make([]billView, 0, len(bills))
	for _, b := range bills {
		views = append(views, toBillView(b))
	}
	return views
}

func toBillLineView(l BillLine) billLineView {
	return billLineView{
		ID:             l.ID,
		Description:    l.Description,
		Quantity:       l.Quantity,
		UnitPrice:      l.UnitPrice,
		DiscountAmount: l.DiscountAmount,
		TaxRatePct:     l.TaxRatePct,
		TaxAmount:      l.TaxAmount,
		LineTotal:      l.LineTotal,
	}
}

func toBillPaymentView(p BillPayment) billPaymentView {
	return billPaymentView{
		ID:        p.ID,
		Reference: p.Reference,
		Amount:    p.Amount,
		Currency:  p.Currency,
		PaidAt:    p.PaidAt,
		Method:    p.Method,
	}
}

func toBillDetailView(d BillWithDetails) billDetailView {
	view := billDetailView{
		billView:   toBillView(d.VendorBill),
		VendorName: d.VendorName,
		Lines:      make([]billLineView, 0, len(d.Lines)),
		Payments:   make([]billPaymentView, 0, len(d.Payments)),
	}
	for _, l := range d.Lines {
		view.Lines = append(view.Lines, toBillLineView(l))
	}
	for _, p := range d.Payments {
		view.Payments = append(view.Payments, toBillPaymentView(p))
	}
	return view
}

func toOverdueSummaryViews(summaries []VendorOverdueSummary) []overdueSummaryView {
	views := make([]overdueSummaryView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, overdueSummaryView{
			VendorID:       s.VendorID,
			VendorName:     s.VendorName,
			BillCount:      s.BillCount,
			TotalDue:       s.TotalDue,
			MaxDaysOverdue: s.MaxDaysOverdue,
		})
	}
	return views
}
