package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/service"
)

// ReservationHandler handles HTTP requests for reservations.
type ReservationHandler struct {
	reservationService *service.ReservationService
}

// NewReservationHandler creates a new ReservationHandler.
func NewReservationHandler(reservationService *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

// GetReservation handles GET /v1/reservations/:id
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	res, err := h.reservationService.GetReservation(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, res)
}

// GetPayment handles GET /v1/reservations/:id/payment
func (h *ReservationHandler) GetPayment(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	payment, err := h.reservationService.GetReservationPayment(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, payment)
}

// ListMine handles GET /v1/reservations/mine
func (h *ReservationHandler) ListMine(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	list, err := h.reservationService.ListPassengerReservations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, list)
}

// ListTripReservations handles GET /v1/trips/:id/reservations
func (h *ReservationHandler) ListTripReservations(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	list, err := h.reservationService.ListTripReservations(c.Request.Context(), c.Param("id"), driverID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, list)
}
