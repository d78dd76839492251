package handler

import (
	"errors"
	"net/http"
	"time"

	"roombook/internal/bookings/service"
	"roombook/internal/bookings/validator"
	apperrors "roombook/pkg/errors"
	httputil "roombook/pkg/http"
	"roombook/pkg/logger"
	"roombook/pkg/middleware"
	"roombook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	loc     *time.Location
	log     *logger.Logger
}

// NewBookingHandler reads offset-less submitted times in loc.
func NewBookingHandler(service service.BookingService, loc *time.Location, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		loc:     loc,
		log:     log,
	}
}

// CheckResult is the body of a dry-run check.
type CheckResult struct {
	Accepted  bool                 `json:"accepted"`
	Message   string               `json:"message,omitempty"`
	Rejection *validator.Rejection `json:"rejection,omitempty"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, err := h.decodeRequest(r)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	booking, err := h.service.Create(r.Context(), middleware.CurrentUser(r.Context()), req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) Check(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, err := h.decodeRequest(r)
	if err != nil {
		h.writeError(w, "Check", err)
		return
	}

	rejection, err := h.service.Check(r.Context(), middleware.CurrentUser(r.Context()), req)
	if err != nil {
		h.writeError(w, "Check", err)
		return
	}

	result := CheckResult{Accepted: rejection == nil}
	if rejection != nil {
		result.Message = rejection.String()
		result.Rejection = rejection
	}
	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Check", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	bookings, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) Mine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bookings, err := h.service.ListByUser(r.Context(), middleware.CurrentUser(r.Context()))
	if err != nil {
		h.writeError(w, "Mine", err)
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "Mine", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ListByRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	from, to, err := httputil.ExtractTimeWindow(r, model.ParseBookingTime, h.loc)
	if err != nil {
		h.writeError(w, "ListByRoom", err)
		return
	}

	bookings, err := h.service.ListByRoom(r.Context(), ps.ByName("id"), from, to)
	if err != nil {
		h.writeError(w, "ListByRoom", err)
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "ListByRoom", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.Delete(r.Context(), middleware.CurrentUser(r.Context()), ps.ByName("id")); err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	if err := httputil.WriteNoContent(w); err != nil {
		h.log.Error("failed to write no content response", "handler", "Delete", "operation", "WriteNoContent", "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", middleware.RequireAdmin(h.GetAll))
	router.GET("/api/v1/bookings/mine", h.Mine)
	router.POST("/api/v1/bookings/check", h.Check)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.DELETE("/api/v1/bookings/id/:id", h.Delete)
	router.GET("/api/v1/rooms/id/:id/bookings", h.ListByRoom)
}

func (h *BookingHandler) decodeRequest(r *http.Request) (*model.BookingRequest, error) {
	var payload model.BookingPayload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		return nil, err
	}

	req, err := payload.ToRequest(h.loc)
	if err != nil {
		var parseErr *model.TimeParseError
		if errors.As(err, &parseErr) {
			return nil, apperrors.InvalidInput(parseErr.Error()).WithDetails(map[string]any{
				"field": parseErr.Field,
			})
		}
		return nil, apperrors.InvalidInput(err.Error())
	}
	return req, nil
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}
