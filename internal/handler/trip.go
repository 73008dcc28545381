package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// TripHandler handles HTTP requests for trips and seat reservations.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// CreateTripRequest is the HTTP request body for publishing a trip.
type CreateTripRequest struct {
	CarID             string  `json:"car_id" binding:"required"`
	DepartureLocation string  `json:"departure_location" binding:"required"`
	ArrivalLocation   string  `json:"arrival_location" binding:"required"`
	DepartureDate     string  `json:"departure_date" binding:"required"`
	DepartureTime     string  `json:"departure_time" binding:"required"`
	AvailableSeats    int     `json:"available_seats" binding:"required"`
	PricePerSeat      float64 `json:"price_per_seat"`
	Description       string  `json:"description"`
}

// UpdateTripRequest is the HTTP request body for editing a trip. Omitted
// fields keep their value.
type UpdateTripRequest struct {
	DepartureLocation *string  `json:"departure_location"`
	ArrivalLocation   *string  `json:"arrival_location"`
	DepartureDate     *string  `json:"departure_date"`
	DepartureTime     *string  `json:"departure_time"`
	AvailableSeats    *int     `json:"available_seats"`
	PricePerSeat      *float64 `json:"price_per_seat"`
	Description       *string  `json:"description"`
}

// JoinTripRequest is the HTTP request body for joining a trip.
type JoinTripRequest struct {
	Seats int `json:"seats"`
}

// JoinTripResponse is the HTTP response for a successful join.
type JoinTripResponse struct {
	Trip         *domain.Trip        `json:"trip"`
	Reservation  *domain.Reservation `json:"reservation"`
	Payment      *domain.Payment     `json:"payment"`
	ClientSecret string              `json:"client_secret,omitempty"`
}

// CreateTrip handles POST /v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	trip, err := h.tripService.CreateTrip(c.Request.Context(), service.CreateTripRequest{
		DriverID:          driverID,
		CarID:             req.CarID,
		DepartureLocation: req.DepartureLocation,
		ArrivalLocation:   req.ArrivalLocation,
		DepartureDate:     req.DepartureDate,
		DepartureTime:     req.DepartureTime,
		AvailableSeats:    req.AvailableSeats,
		PricePerSeat:      req.PricePerSeat,
		Description:       req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, trip)
}

// ListTrips handles GET /v1/trips
func (h *TripHandler) ListTrips(c *gin.Context) {
	trips, err := h.tripService.ListTrips(c.Request.Context(), domain.TripStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, trips)
}

// ListDriverTrips handles GET /v1/trips/driver
func (h *TripHandler) ListDriverTrips(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	trips, err := h.tripService.ListDriverTrips(c.Request.Context(), userID, domain.TripStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, trips)
}

// ListPassengerTrips handles GET /v1/trips/passenger
func (h *TripHandler) ListPassengerTrips(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	trips, err := h.tripService.ListPassengerTrips(c.Request.Context(), userID, domain.TripStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, trips)
}

// SearchTrips handles GET /v1/trips/search?from=&to=&date=&passengers=
func (h *TripHandler) SearchTrips(c *gin.Context) {
	passengers, ok := queryInt(c, "passengers")
	if !ok {
		return
	}

	trips, err := h.tripService.SearchTrips(c.Request.Context(), service.SearchTripsRequest{
		DepartureLocation: c.Query("from"),
		ArrivalLocation:   c.Query("to"),
		DepartureDate:     c.Query("date"),
		PassengerCount:    passengers,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, trips)
}

// PopularTrips handles GET /v1/trips/popular?limit=
func (h *TripHandler) PopularTrips(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	trips, err := h.tripService.GetPopularTrips(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, trips)
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.tripService.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, trip)
}

// UpdateTrip handles PATCH /v1/trips/:id
func (h *TripHandler) UpdateTrip(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	var req UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	trip, err := h.tripService.UpdateTrip(c.Request.Context(), service.UpdateTripRequest{
		TripID:            c.Param("id"),
		DriverID:          driverID,
		DepartureLocation: req.DepartureLocation,
		ArrivalLocation:   req.ArrivalLocation,
		DepartureDate:     req.DepartureDate,
		DepartureTime:     req.DepartureTime,
		AvailableSeats:    req.AvailableSeats,
		PricePerSeat:      req.PricePerSeat,
		Description:       req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, trip)
}

// RemoveTrip handles DELETE /v1/trips/:id
func (h *TripHandler) RemoveTrip(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	if err := h.tripService.RemoveTrip(c.Request.Context(), c.Param("id"), driverID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// JoinTrip handles POST /v1/trips/:id/join
func (h *TripHandler) JoinTrip(c *gin.Context) {
	passengerID, ok := callerID(c)
	if !ok {
		return
	}

	var req JoinTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.tripService.JoinTrip(c.Request.Context(), service.JoinTripRequest{
		TripID:      c.Param("id"),
		PassengerID: passengerID,
		Seats:       req.Seats,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, JoinTripResponse{
		Trip:         result.Trip,
		Reservation:  result.Reservation,
		Payment:      result.Payment,
		ClientSecret: result.ClientSecret,
	})
}

// LeaveTrip handles POST /v1/trips/:id/leave
func (h *TripHandler) LeaveTrip(c *gin.Context) {
	passengerID, ok := callerID(c)
	if !ok {
		return
	}

	trip, err := h.tripService.LeaveTrip(c.Request.Context(), service.LeaveTripRequest{
		TripID:      c.Param("id"),
		PassengerID: passengerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, trip)
}

// UpdateStatus returns a handler for PATCH /v1/trips/:id/{confirm,start,complete,cancel}
// that moves the trip to status.
func (h *TripHandler) UpdateStatus(status domain.TripStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := callerID(c)
		if !ok {
			return
		}

		trip, err := h.tripService.UpdateTripStatus(c.Request.Context(), service.UpdateTripStatusRequest{
			TripID: c.Param("id"),
			UserID: userID,
			Status: status,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		respondJSON(c, http.StatusOK, trip)
	}
}
