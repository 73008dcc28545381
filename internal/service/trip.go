package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"carpool/internal/domain"
	"carpool/internal/logging"
	"carpool/internal/observability"
	"carpool/internal/repository"
)

const (
	// DefaultPopularLimit is used when no limit is given for popular trips.
	DefaultPopularLimit = 5
	maxPopularLimit     = 50

	defaultLockTTL  = 5 * time.Second
	defaultCurrency = "usd"

	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// TripServiceDeps lists the collaborators of TripService. Locker, Cache,
// Events and Payments are optional.
type TripServiceDeps struct {
	Tx           repository.Transactor
	Trips        repository.TripRepository
	Reservations repository.ReservationRepository
	Cars         repository.CarRepository
	Identity     IdentityProvider
	Notifier     Notifier
	Payments     *PaymentService
	Locker       TripLocker
	Cache        TripCache
	Events       EventPublisher
	Logger       *slog.Logger
	LockTTL      time.Duration
	Currency     string
}

// TripService owns the trip lifecycle: publishing, editing, status
// transitions, search, and passenger join/leave.
type TripService struct {
	tx           repository.Transactor
	trips        repository.TripRepository
	reservations repository.ReservationRepository
	cars         repository.CarRepository
	identity     IdentityProvider
	notifier     Notifier
	payments     *PaymentService
	locker       TripLocker
	cache        TripCache
	events       EventPublisher
	logger       *slog.Logger
	lockTTL      time.Duration
	currency     string
}

// NewTripService creates a new TripService.
func NewTripService(deps TripServiceDeps) *TripService {
	s := &TripService{
		tx:           deps.Tx,
		trips:        deps.Trips,
		reservations: deps.Reservations,
		cars:         deps.Cars,
		identity:     deps.Identity,
		notifier:     deps.Notifier,
		payments:     deps.Payments,
		locker:       deps.Locker,
		cache:        deps.Cache,
		events:       deps.Events,
		logger:       deps.Logger,
		lockTTL:      deps.LockTTL,
		currency:     deps.Currency,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}
	return s
}

// CreateTripRequest contains the parameters for publishing a trip.
type CreateTripRequest struct {
	DriverID          string
	CarID             string
	DepartureLocation string
	ArrivalLocation   string
	DepartureDate     string
	DepartureTime     string
	AvailableSeats    int
	PricePerSeat      float64
	Description       string
}

func (r *CreateTripRequest) validate() error {
	if r.DriverID == "" {
		return invalidArgument("driver id is required")
	}
	if r.CarID == "" {
		return invalidArgument("car id is required")
	}
	if strings.TrimSpace(r.DepartureLocation) == "" || strings.TrimSpace(r.ArrivalLocation) == "" {
		return invalidArgument("departure and arrival locations are required")
	}
	if err := validateSchedule(r.DepartureDate, r.DepartureTime); err != nil {
		return err
	}
	if r.AvailableSeats < 1 {
		return invalidArgument("available seats must be at least 1")
	}
	if r.PricePerSeat < 0 {
		return invalidArgument("price per seat cannot be negative")
	}
	return nil
}

func validateSchedule(date, clock string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return invalidArgument("departure date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(timeLayout, clock); err != nil {
		return invalidArgument("departure time must be HH:MM")
	}
	return nil
}

// CreateTrip publishes a new PENDING trip for a verified driver.
func (s *TripService) CreateTrip(ctx context.Context, req CreateTripRequest) (*domain.Trip, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	car, err := s.cars.GetByIDAndDriver(ctx, req.CarID, req.DriverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCarNotOwned
		}
		return nil, err
	}

	verified, err := s.identity.IsVerifiedDriver(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, ErrDriverNotVerified
	}

	if req.AvailableSeats > car.NumberOfSeats {
		return nil, invalidArgument("available seats cannot exceed car capacity of %d", car.NumberOfSeats)
	}

	now := time.Now().UTC()
	trip := &domain.Trip{
		ID:                uuid.New().String(),
		DriverID:          req.DriverID,
		CarID:             car.ID,
		DepartureLocation: strings.TrimSpace(req.DepartureLocation),
		ArrivalLocation:   strings.TrimSpace(req.ArrivalLocation),
		DepartureDate:     req.DepartureDate,
		DepartureTime:     req.DepartureTime,
		TotalSeats:        req.AvailableSeats,
		AvailableSeats:    req.AvailableSeats,
		PricePerSeat:      domain.RoundMoney(req.PricePerSeat),
		Description:       req.Description,
		Status:            domain.TripStatusPending,
		PassengerIDs:      []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, err
	}

	observability.TripsCreated.Inc()
	s.refresh(ctx, trip)
	s.notify(ctx, NotificationRequest{
		UserID:          trip.DriverID,
		Type:            domain.NotificationTripCreated,
		Content:         tripCreatedContent(trip),
		RelatedEntityID: trip.ID,
	})
	s.publish(ctx, domain.TripEvent{Type: domain.TripEventCreated, TripID: trip.ID, ActorID: trip.DriverID, Seats: trip.AvailableSeats, Status: string(trip.Status)})

	return trip, nil
}

// GetTrip retrieves a trip by ID.
func (s *TripService) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, invalidArgument("trip id is required")
	}

	if s.cache != nil {
		cached, err := s.cache.GetTrip(ctx, tripID)
		if err != nil {
			s.logger.Warn("trip cache read failed", "trip_id", tripID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetTrip(ctx, trip); err != nil {
			s.logger.Warn("trip cache write failed", "trip_id", tripID, "error", err)
		}
	}
	return trip, nil
}

// ListTrips retrieves all trips, optionally filtered by status.
func (s *TripService) ListTrips(ctx context.Context, status domain.TripStatus) ([]*domain.Trip, error) {
	return s.list(ctx, domain.TripFilter{Status: status})
}

// ListDriverTrips retrieves the trips published by a driver.
func (s *TripService) ListDriverTrips(ctx context.Context, driverID string, status domain.TripStatus) ([]*domain.Trip, error) {
	if driverID == "" {
		return nil, invalidArgument("driver id is required")
	}
	return s.list(ctx, domain.TripFilter{Status: status, DriverID: driverID})
}

// ListPassengerTrips retrieves the trips a passenger currently rides on.
func (s *TripService) ListPassengerTrips(ctx context.Context, passengerID string, status domain.TripStatus) ([]*domain.Trip, error) {
	if passengerID == "" {
		return nil, invalidArgument("passenger id is required")
	}
	return s.list(ctx, domain.TripFilter{Status: status, PassengerID: passengerID})
}

func (s *TripService) list(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidArgument("unknown trip status %q", filter.Status)
	}
	return s.trips.List(ctx, filter)
}

// UpdateTripRequest contains the editable fields of a trip. Nil fields are
// left unchanged.
type UpdateTripRequest struct {
	TripID            string
	DriverID          string
	DepartureLocation *string
	ArrivalLocation   *string
	DepartureDate     *string
	DepartureTime     *string
	AvailableSeats    *int
	PricePerSeat      *float64
	Description       *string
}

// UpdateTrip edits a PENDING trip owned by the caller. Reservations keep the
// price they were made at.
func (s *TripService) UpdateTrip(ctx context.Context, req UpdateTripRequest) (*domain.Trip, error) {
	if req.TripID == "" {
		return nil, invalidArgument("trip id is required")
	}

	unlock, err := s.lockTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var trip *domain.Trip
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		trip, err = repos.Trips.GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}
		if trip.DriverID != req.DriverID {
			return ErrNotTripDriver
		}
		if trip.Status != domain.TripStatusPending {
			return ErrTripNotEditable
		}

		if err := s.applyTripChanges(ctx, trip, req); err != nil {
			return err
		}
		return s.saveTrip(ctx, repos, trip)
	})
	if err != nil {
		return nil, err
	}

	s.refresh(ctx, trip)
	s.notify(ctx, NotificationRequest{
		UserID:          trip.DriverID,
		Type:            domain.NotificationTripUpdate,
		Content:         tripUpdatedDriverContent(trip),
		RelatedEntityID: trip.ID,
	})
	for _, passengerID := range trip.PassengerIDs {
		s.notify(ctx, NotificationRequest{
			UserID:          passengerID,
			Type:            domain.NotificationTripUpdate,
			Content:         tripUpdatedPassengerContent(trip),
			RelatedEntityID: trip.ID,
		})
	}
	s.publish(ctx, domain.TripEvent{Type: domain.TripEventUpdated, TripID: trip.ID, ActorID: req.DriverID, Seats: trip.AvailableSeats, Status: string(trip.Status)})

	return trip, nil
}

func (s *TripService) applyTripChanges(ctx context.Context, trip *domain.Trip, req UpdateTripRequest) error {
	if req.DepartureLocation != nil {
		if strings.TrimSpace(*req.DepartureLocation) == "" {
			return invalidArgument("departure location cannot be empty")
		}
		trip.DepartureLocation = strings.TrimSpace(*req.DepartureLocation)
	}
	if req.ArrivalLocation != nil {
		if strings.TrimSpace(*req.ArrivalLocation) == "" {
			return invalidArgument("arrival location cannot be empty")
		}
		trip.ArrivalLocation = strings.TrimSpace(*req.ArrivalLocation)
	}
	if req.DepartureDate != nil {
		trip.DepartureDate = *req.DepartureDate
	}
	if req.DepartureTime != nil {
		trip.DepartureTime = *req.DepartureTime
	}
	if err := validateSchedule(trip.DepartureDate, trip.DepartureTime); err != nil {
		return err
	}
	if req.PricePerSeat != nil {
		if *req.PricePerSeat < 0 {
			return invalidArgument("price per seat cannot be negative")
		}
		trip.PricePerSeat = domain.RoundMoney(*req.PricePerSeat)
	}
	if req.Description != nil {
		trip.Description = *req.Description
	}

	if req.AvailableSeats != nil {
		available := *req.AvailableSeats
		if available < 1 {
			return invalidArgument("available seats must be at least 1")
		}
		car, err := s.cars.GetByID(ctx, trip.CarID)
		if err != nil {
			return err
		}
		reserved := trip.ReservedSeats()
		if reserved+available > car.NumberOfSeats {
			return invalidArgument("available seats cannot exceed remaining car capacity of %d", car.NumberOfSeats-reserved)
		}
		trip.AvailableSeats = available
		trip.TotalSeats = reserved + available
	}
	return nil
}

// RemoveTrip deletes a PENDING trip that has never been booked.
func (s *TripService) RemoveTrip(ctx context.Context, tripID, userID string) error {
	if tripID == "" {
		return invalidArgument("trip id is required")
	}

	unlock, err := s.lockTrip(ctx, tripID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		trip, err := repos.Trips.GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}
		if trip.DriverID != userID {
			return ErrNotTripDriver
		}
		if trip.Status != domain.TripStatusPending {
			return ErrTripNotEditable
		}

		// Cancelled reservations still carry payment history.
		booked, err := repos.Reservations.ListByTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if len(booked) > 0 {
			return ErrTripHasReservations
		}

		if err := repos.Trips.Delete(ctx, tripID); err != nil {
			if errors.Is(err, repository.ErrReferenced) {
				return ErrTripHasReservations
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, tripID)
	s.publish(ctx, domain.TripEvent{Type: domain.TripEventRemoved, TripID: tripID, ActorID: userID})
	return nil
}

// UpdateTripStatusRequest contains the parameters for an explicit status change.
type UpdateTripStatusRequest struct {
	TripID string
	UserID string
	Status domain.TripStatus
}

// UpdateTripStatus moves a trip along the transition table. Completing a
// trip also completes its confirmed reservations.
func (s *TripService) UpdateTripStatus(ctx context.Context, req UpdateTripStatusRequest) (*domain.Trip, error) {
	if req.TripID == "" {
		return nil, invalidArgument("trip id is required")
	}
	if !req.Status.Valid() {
		return nil, invalidArgument("unknown trip status %q", req.Status)
	}

	unlock, err := s.lockTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var trip *domain.Trip
	var from domain.TripStatus
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		trip, err = repos.Trips.GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}
		if trip.DriverID != req.UserID {
			return ErrNotTripDriver
		}
		if !domain.CanTransition(trip.Status, req.Status) {
			return &TransitionError{From: trip.Status, To: req.Status}
		}

		from = trip.Status
		trip.Status = req.Status

		if req.Status == domain.TripStatusCompleted {
			if _, err := repos.Reservations.CompleteByTrip(ctx, trip.ID); err != nil {
				return err
			}
		}
		return s.saveTrip(ctx, repos, trip)
	})
	if err != nil {
		return nil, err
	}

	observability.TripTransitions.WithLabelValues(string(req.Status)).Inc()
	s.logger.Info("trip status changed", "trip_id", trip.ID, "from", from, "to", trip.Status)

	s.refresh(ctx, trip)
	content := tripStatusContent(trip.Status)
	for _, userID := range append([]string{trip.DriverID}, trip.PassengerIDs...) {
		s.notify(ctx, NotificationRequest{
			UserID:          userID,
			Type:            domain.NotificationTripStatusUpdate,
			Content:         content,
			RelatedEntityID: trip.ID,
		})
	}
	s.publish(ctx, domain.TripEvent{Type: domain.TripEventStatusChanged, TripID: trip.ID, ActorID: req.UserID, Status: string(trip.Status)})

	return trip, nil
}

// SearchTripsRequest contains the search criteria. PassengerCount defaults to 1.
type SearchTripsRequest struct {
	DepartureLocation string
	ArrivalLocation   string
	DepartureDate     string
	PassengerCount    int
}

// SearchTrips returns open trips on an exact route and date with enough seats.
func (s *TripService) SearchTrips(ctx context.Context, req SearchTripsRequest) ([]*domain.Trip, error) {
	if strings.TrimSpace(req.DepartureLocation) == "" || strings.TrimSpace(req.ArrivalLocation) == "" {
		return nil, invalidArgument("departure and arrival locations are required")
	}
	if _, err := time.Parse(dateLayout, req.DepartureDate); err != nil {
		return nil, invalidArgument("departure date must be YYYY-MM-DD")
	}
	if req.PassengerCount < 0 {
		return nil, invalidArgument("passenger count cannot be negative")
	}
	if req.PassengerCount == 0 {
		req.PassengerCount = 1
	}

	return s.trips.Search(ctx, domain.TripSearch{
		DepartureLocation: strings.TrimSpace(req.DepartureLocation),
		ArrivalLocation:   strings.TrimSpace(req.ArrivalLocation),
		DepartureDate:     req.DepartureDate,
		MinSeats:          req.PassengerCount,
		Statuses:          domain.SearchableStatuses,
	})
}

// GetPopularTrips ranks open and full trips by their number of active
// reservations, ties broken by trip id.
// TODO: move the ranking into a grouped SQL count once the number of open
// trips makes loading every reservation too slow.
func (s *TripService) GetPopularTrips(ctx context.Context, limit int) ([]*domain.Trip, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	if limit > maxPopularLimit {
		limit = maxPopularLimit
	}

	if s.cache != nil {
		cached, err := s.cache.GetPopularTrips(ctx, limit)
		if err != nil {
			s.logger.Warn("popular cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	trips, err := s.trips.ListByStatuses(ctx, domain.PopularStatuses)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(trips))
	for i, t := range trips {
		ids[i] = t.ID
	}
	reservations, err := s.reservations.ListActiveByTrips(ctx, ids)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(trips))
	for _, r := range reservations {
		counts[r.TripID]++
	}

	sort.SliceStable(trips, func(i, j int) bool {
		ci, cj := counts[trips[i].ID], counts[trips[j].ID]
		if ci != cj {
			return ci > cj
		}
		return trips[i].ID < trips[j].ID
	})
	if len(trips) > limit {
		trips = trips[:limit]
	}

	if s.cache != nil {
		if err := s.cache.SetPopularTrips(ctx, limit, trips); err != nil {
			s.logger.Warn("popular cache write failed", "error", err)
		}
	}
	return trips, nil
}

// lockTrip takes the distributed trip lock. When the lock backend is down
// the row lock taken inside the transaction still serializes writers.
func (s *TripService) lockTrip(ctx context.Context, tripID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	token, ok, err := s.locker.AcquireTripLock(ctx, tripID, s.lockTTL)
	if err != nil {
		observability.TripLockOutcomes.WithLabelValues("unavailable").Inc()
		s.logger.Warn("trip lock unavailable, relying on row lock", "trip_id", tripID, "error", err)
		return func() {}, nil
	}
	if !ok {
		observability.TripLockOutcomes.WithLabelValues("busy").Inc()
		return nil, ErrTripBusy
	}
	observability.TripLockOutcomes.WithLabelValues("acquired").Inc()

	return func() {
		if err := s.locker.ReleaseTripLock(context.WithoutCancel(ctx), tripID, token); err != nil {
			s.logger.Warn("trip lock release failed", "trip_id", tripID, "error", err)
		}
	}, nil
}

// saveTrip writes the trip with its version guard.
func (s *TripService) saveTrip(ctx context.Context, repos repository.Repositories, trip *domain.Trip) error {
	if err := repos.Trips.Update(ctx, trip); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrConcurrentModification
		}
		return err
	}
	return nil
}

func (s *TripService) notify(ctx context.Context, req NotificationRequest) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, req); err != nil {
		s.logger.Warn("notification failed", "user_id", req.UserID, "type", req.Type, "error", err)
	}
}

func (s *TripService) publish(ctx context.Context, event domain.TripEvent) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("trip event publish failed", "trip_id", event.TripID, "type", event.Type, "error", err)
	}
}

func (s *TripService) invalidate(ctx context.Context, tripID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTrip(ctx, tripID); err != nil {
		s.logger.Warn("trip cache invalidation failed", "trip_id", tripID, "error", err)
	}
}

// refresh replaces the cached trip with the committed one so a reader still
// holding an older copy cannot put it back.
func (s *TripService) refresh(ctx context.Context, trip *domain.Trip) {
	if s.cache == nil {
		return
	}
	s.invalidate(ctx, trip.ID)
	if err := s.cache.SetTrip(ctx, trip); err != nil {
		s.logger.Warn("trip cache write failed", "trip_id", trip.ID, "error", err)
	}
}
