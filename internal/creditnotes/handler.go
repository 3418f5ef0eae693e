package creditnotes

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

// Handler exposes credit notes over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the credit note handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers credit note routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/credit-notes", h.listNotes)
	r.Post("/credit-notes", h.createNote)
	r.Get("/credit-notes/{id}", h.getNote)
	r.Post("/credit-notes/{id}/confirm", h.confirmNote)
	r.Post("/credit-notes/{id}/apply", h.applyNote)
	r.Post("/credit-notes/{id}/cancel", h.cancelNote)
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	var issueDate time.Time
	if req.IssueDate != "" {
		issueDate, _ = time.Parse("2006-01-02", req.IssueDate)
	}

	note, err := h.service.Create(r.Context(), CreateNoteInput{
		BusinessID:     req.BusinessID,
		VendorID:       req.VendorID,
		OriginalBillID: req.OriginalBillID,
		Type:           NoteType(req.Type),
		IssueDate:      issueDate,
		Currency:       req.Currency,
		ExchangeRate:   req.ExchangeRate,
		CreditAmount:   req.CreditAmount,
		Reason:         req.Reason,
		CreatedBy:      shared.UserID(r),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toNoteView(note))
}

func (h *Handler) getNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid note ID", err.Error())
		return
	}

	note, err := h.service.GetNoteWithApplications(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNoteDetailView(note))
}

func (h *Handler) confirmNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid note ID", err.Error())
		return
	}

	if err := h.service.Confirm(r.Context(), id, shared.UserID(r)); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(NoteConfirmed)})
}

func (h *Handler) applyNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid note ID", err.Error())
		return
	}

	var req applyNoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	result, err := h.service.ApplyToBill(r.Context(), id, req.BillID, req.Amount, shared.UserID(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toApplicationResultView(result))
}

func (h *Handler) cancelNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid note ID", err.Error())
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(NoteCancelled)})
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListNotesRequest{
		BusinessID: queryInt64(q.Get("business_id")),
		VendorID:   queryInt64(q.Get("vendor_id")),
		Status:     NoteStatus(q.Get("status")),
		Limit:      int(queryInt64(q.Get("limit"))),
		Offset:     int(queryInt64(q.Get("offset"))),
	}
	if req.BusinessID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "business_id is required")
		return
	}
	req.Limit = shared.ClampLimit(req.Limit)
	req.Offset = shared.ClampOffset(req.Offset)

	notes, total, err := h.service.ListNotes(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, noteListView{
		Notes:  toNoteViews(notes),
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt64(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}
