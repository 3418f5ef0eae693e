package schedules

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

// Handler exposes payment schedules over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the schedule handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers schedule routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/schedules", h.listSchedules)
	r.Post("/schedules", h.createSchedule)
	r.Get("/schedules/due", h.dueSchedules)
	r.Get("/schedules/{id}", h.getSchedule)
	r.Put("/schedules/{id}", h.updateSchedule)
	r.Post("/schedules/{id}/cancel", h.cancelSchedule)
	r.Post("/schedules/{id}/execute", h.executeSchedule)
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	scheduledDate, _ := time.Parse("2006-01-02", req.ScheduledDate)
	schedule, err := h.service.Create(r.Context(), CreateScheduleInput{
		BillID:        req.BillID,
		ScheduledDate: scheduledDate,
		Amount:        req.Amount,
		Method:        req.Method,
		BankAccountID: req.BankAccountID,
		CreatedBy:     shared.UserID(r),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toScheduleView(schedule))
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid schedule ID", err.Error())
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleView(schedule))
}

func (h *Handler) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid schedule ID", err.Error())
		return
	}

	var req updateScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	scheduledDate, _ := time.Parse("2006-01-02", req.ScheduledDate)
	err = h.service.Update(r.Context(), UpdateScheduleInput{
		ScheduleID:    id,
		ScheduledDate: scheduledDate,
		Amount:        req.Amount,
		Method:        req.Method,
		BankAccountID: req.BankAccountID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(ScheduleScheduled)})
}

func (h *Handler) cancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid schedule ID", err.Error())
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(ScheduleCancelled)})
}

func (h *Handler) executeSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid schedule ID", err.Error())
		return
	}

	schedule, err := h.service.Execute(r.Context(), id, shared.UserID(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleView(schedule))
}

func (h *Handler) dueSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	businessID := queryInt64(q.Get("business_id"))
	if businessID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "business_id is required")
		return
	}

	var asOf time.Time
	if raw := q.Get("as_of"); raw != "" {
		asOf, _ = time.Parse("2006-01-02", raw)
	}

	due, err := h.service.GetDueSchedules(r.Context(), businessID, asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedules": toScheduleViews(due)})
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListSchedulesRequest{
		BusinessID: queryInt64(q.Get("business_id")),
		VendorID:   queryInt64(q.Get("vendor_id")),
		Status:     ScheduleStatus(q.Get("status")),
		Limit:      int(queryInt64(q.Get("limit"))),
		Offset:     int(queryInt64(q.Get("offset"))),
	}
	if req.BusinessID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", "business_id is required")
		return
	}
	req.Limit = shared.ClampLimit(req.Limit)
	req.Offset = shared.ClampOffset(req.Offset)

	schedules, total, err := h.service.ListSchedules(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, scheduleListView{
		Schedules: toScheduleViews(schedules),
		Total:     total,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt64(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}
