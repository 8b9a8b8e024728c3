package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/fleetlink/internal/booking/domain"
	"github.com/example/fleetlink/internal/booking/service"
)

// HTTP exposes the vehicle and booking endpoints.
type HTTP struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Service, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{svc: svc, logger: logger}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Get("/api", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Post("/api/vehicles", h.createVehicle)
	r.Get("/api/vehicles", h.listVehicles)
	r.Get("/api/vehicles/available", h.availableVehicles)
	r.Post("/api/bookings", h.createBooking)
	r.Get("/api/bookings", h.listBookings)
	r.Delete("/api/bookings/{id}", h.deleteBooking)
	return r
}

type createVehicleRequest struct {
	Name       string   `json:"name"`
	CapacityKG *float64 `json:"capacityKg"`
	Tyres      *int     `json:"tyres"`
}

func (h *HTTP) createVehicle(w http.ResponseWriter, r *http.Request) {
	var payload createVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.CapacityKG == nil || payload.Tyres == nil || payload.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "name, capacityKg and tyres are required")
		return
	}

	vehicle, err := h.svc.RegisterVehicle(r.Context(), service.RegisterVehicleRequest{
		Name:       payload.Name,
		CapacityKG: *payload.CapacityKG,
		Tyres:      *payload.Tyres,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vehicle)
}

func (h *HTTP) listVehicles(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	result, err := h.svc.ListVehicles(r.Context(), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTP) availableVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	capacity, err := strconv.ParseFloat(q.Get("capacityRequired"), 64)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "capacityRequired must be a number")
		return
	}
	page, pageSize := pageParams(r)

	result, err := h.svc.FindAvailable(r.Context(), service.AvailabilityQuery{
		CapacityRequired: capacity,
		FromPincode:      q.Get("fromPincode"),
		ToPincode:        q.Get("toPincode"),
		StartTime:        q.Get("startTime"),
		Page:             page,
		PageSize:         pageSize,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createBookingRequest struct {
	VehicleID   string `json:"vehicleId"`
	FromPincode string `json:"fromPincode"`
	ToPincode   string `json:"toPincode"`
	StartTime   string `json:"startTime"`
	CustomerID  string `json:"customerId"`
}

func (h *HTTP) createBooking(w http.ResponseWriter, r *http.Request) {
	var payload createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	vehicleID, err := uuid.Parse(payload.VehicleID)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid vehicleId")
		return
	}

	booking, err := h.svc.Reserve(r.Context(), r.Header.Get("Idempotency-Key"), service.ReserveRequest{
		VehicleID:   vehicleID,
		FromPincode: payload.FromPincode,
		ToPincode:   payload.ToPincode,
		StartTime:   payload.StartTime,
		CustomerID:  payload.CustomerID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *HTTP) listBookings(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	result, err := h.svc.ListBookings(r.Context(), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTP) deleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.svc.CancelBooking(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeError maps the domain error taxonomy onto HTTP status codes. Internal
// causes are logged, never exposed.
func (h *HTTP) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		writeErrorMessage(w, http.StatusBadRequest, validation.Error())
		return
	}
	if errors.Is(err, domain.ErrVehicleNotFound) || errors.Is(err, domain.ErrBookingNotFound) {
		writeErrorMessage(w, http.StatusNotFound, err.Error())
		return
	}
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "vehicle already booked for an overlapping window",
			"vehicleId": conflict.VehicleID,
			"window": map[string]time.Time{
				"start": conflict.Window.Start,
				"end":   conflict.Window.End,
			},
		})
		return
	}
	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))
	writeErrorMessage(w, http.StatusInternalServerError, "internal error")
}

func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if size == 0 {
		size, _ = strconv.Atoi(q.Get("limit"))
	}
	return page, size
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
