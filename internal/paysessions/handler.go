package paysessions

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

// Handler exposes payment sessions over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the session handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sessions", h.listSessions)
	r.Post("/sessions", h.prepareSession)
	r.Get("/sessions/{id}", h.getSession)
	r.Post("/sessions/{id}/post", h.postSession)
	r.Post("/sessions/{id}/reverse", h.reverseSession)
}

func (h *Handler) prepareSession(w http.ResponseWriter, r *http.Request) {
	var req prepareSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	var paymentDate time.Time
	if req.PaymentDate != "" {
		paymentDate, _ = time.Parse("2006-01-02", req.PaymentDate)
	}

	selected := make([]SelectedAllocation, 0, len(req.Lines))
	for _, l := range req.Lines {
		selected = append(selected, SelectedAllocation{BillID: l.BillID, Amount: l.Amount})
	}

	session, err := h.service.Prepare(r.Context(), PrepareInput{
		BusinessID:    req.BusinessID,
		VendorID:      req.VendorID,
		Mode:          SessionMode(req.Mode),
		TotalAmount:   req.TotalAmount,
		Currency:      req.Currency,
		ExchangeRate:  req.ExchangeRate,
		PaymentDate:   paymentDate,
		Method:        req.Method,
		BankAccountID: req.BankAccountID,
		Selected:      selected,
		CreatedBy:     shared.UserID(r),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSessionDetailView(session))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid session ID", err.Error())
		return
	}

	session, err := h.service.GetSessionWithLines(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSessionDetailView(session))
}

func (h *Handler) postSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid session ID", err.Error())
		return
	}

	result, err := h.service.Post(r.Context(), id, shared.UserID(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSessionDetailView(result))
}

func (h *Handler) reverseSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid session ID", err.Error())
		return
	}

	if err := h.service.Reverse(r.Context(), id, shared.UserID(r)); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(SessionReversed)})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListSessionsRequest{
		BusinessID: queryInt64(q.Get("business_id")),
		VendorID:   queryInt64(q.Get("vendor_id")),
		Status:     SessionStatus(q.Get("status")),
		Limit:      int(queryInt64(q.Get("limit"))),
		Offset:     int(queryInt64(q.Get("offset"))),
	}
	if req.BusinessID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "business_id is required")
		return
	}
	req.Limit = shared.ClampLimit(req.Limit)
	req.Offset = shared.ClampOffset(req.Offset)

	sessions, total, err := h.service.ListSessions(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionListView{
		Sessions: toSessionViews(sessions),
		Total:    total,
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt64(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}
