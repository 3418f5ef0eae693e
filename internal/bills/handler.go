package bills

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/settleflow/settleflow/internal/platform/httpx"
	"github.com/settleflow/settleflow/internal/shared"
)

// Handler exposes the bill ledger over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the bill handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers bill routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/bills", h.listBills)
	r.Post("/bills", h.createBill)
	r.Get("/bills/{id}", h.getBill)
	r.Post("/bills/{id}/confirm", h.confirmBill)
	r.Post("/bills/{id}/cancel", h.cancelBill)
	r.Post("/bills/{id}/payments", h.recordPayment)
	r.Get("/overdue/bills", h.listOverdueBills)
	r.Get("/overdue/vendors", h.vendorOverdueSummaries)
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	billDate, _ := time.Parse("2006-01-02", req.BillDate)
	dueDate, _ := time.Parse("2006-01-02", req.DueDate)

	lines := make([]CreateBillLineInput, 0, len(req.Lines))
	for _, li := range req.Lines {
		lines = append(lines, CreateBillLineInput{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Discount:    discountFromRequest(li.DiscountType, li.DiscountValue),
			TaxRatePct:  li.TaxRatePct,
		})
	}

	bill, err := h.service.Create(r.Context(), CreateBillInput{
		BusinessID:      req.BusinessID,
		VendorID:        req.VendorID,
		PurchaseOrderID: req.PurchaseOrderID,
		BillDate:        billDate,
		DueDate:         dueDate,
		Currency:        req.Currency,
		ExchangeRate:    req.ExchangeRate,
		Discount:        discountFromRequest(req.DiscountType, req.DiscountValue),
		ShippingFee:     req.ShippingFee,
		Lines:           lines,
		CreatedBy:       shared.UserID(r),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBillView(bill))
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid bill ID", err.Error())
		return
	}

	detail, err := h.service.GetBillWithDetails(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillDetailView(detail))
}

func (h *Handler) confirmBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid bill ID", err.Error())
		return
	}

	if err := h.service.Confirm(r.Context(), id, shared.UserID(r)); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(StatusOpen)})
}

func (h *Handler) cancelBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid bill ID", err.Error())
		return
	}

	var req cancelBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	if err := h.service.Cancel(r.Context(), id, req.Reason); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(StatusCancelled)})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid bill ID", err.Error())
		return
	}

	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}

	payment, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		BillID:       id,
		Amount:       req.Amount,
		Currency:     req.Currency,
		ExchangeRate: req.ExchangeRate,
		PaidAt:       paidAt,
		Method:       req.Method,
		Reference:    req.Reference,
		CreatedBy:    shared.UserID(r),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBillPaymentView(payment))
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListBillsRequest{
		BusinessID: queryInt64(q.Get("business_id")),
		VendorID:   queryInt64(q.Get("vendor_id")),
		Status:     BillStatus(q.Get("status")),
		Limit:      int(queryInt64(q.Get("limit"))),
		Offset:     int(queryInt64(q.Get("offset"))),
	}
	if req.BusinessID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "business_id is required")
		return
	}
	req.Limit = shared.ClampLimit(req.Limit)
	req.Offset = shared.ClampOffset(req.Offset)
	if from := q.Get("from"); from != "" {
		req.FromDate, _ = time.Parse("2006-01-02", from)
	}
	if to := q.Get("to"); to != "" {
		req.ToDate, _ = time.Parse("2006-01-02", to)
	}

	billList, total, err := h.service.ListBills(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, billListView{
		Bills:  toBillViews(billList),
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

func (h *Handler) listOverdueBills(w http.ResponseWriter, r *http.Request) {
	businessID := queryInt64(r.URL.Query().Get("business_id"))
	if businessID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "business_id is required")
		return
	}

	overdue, err := h.service.ListOverdueBills(r.Context(), businessID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bills": toBillViews(overdue)})
}

func (h *Handler) vendorOverdueSummaries(w http.ResponseWriter, r *http.Request) {
	businessID := queryInt64(r.URL.Query().Get("business_id"))
	if businessID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "business_id is required")
		return
	}

	summaries, err := h.service.VendorOverdueSummaries(r.Context(), businessID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendors": toOverdueSummaryViews(summaries)})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt64(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}
