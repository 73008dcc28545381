package tests

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"carpool/internal/domain"
	"carpool/internal/repository"
	"carpool/internal/service"
)

// ──────────────────────────────────────────────
// MOCK STORE (trips, reservations, payments)
// ──────────────────────────────────────────────

// MockStore is an in-memory implementation of the transactional
// repositories. WithinTx serializes transactions and restores the previous
// state when fn fails.
type MockStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	trips        map[string]*domain.Trip
	reservations map[string]*domain.Reservation
	payments     map[string]*domain.Payment

	// Counters for verification
	TxCount       int32
	RollbackCount int32

	// Error injection
	UpdateTripError    error
	CreatePaymentError error
	StaleTripUpdates   int32 // number of upcoming trip updates that lose the version race
}

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		trips:        make(map[string]*domain.Trip),
		reservations: make(map[string]*domain.Reservation),
		payments:     make(map[string]*domain.Payment),
	}
}

// Repositories returns repositories bound to the store.
func (s *MockStore) Repositories() repository.Repositories {
	return repository.Repositories{
		Trips:        &MockTripRepository{store: s},
		Reservations: &MockReservationRepository{store: s},
		Payments:     &MockPaymentRepository{store: s},
	}
}

// WithinTx implements repository.Transactor.
func (s *MockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	atomic.AddInt32(&s.TxCount, 1)

	snapshot := s.snapshot()
	if err := fn(ctx, s.Repositories()); err != nil {
		atomic.AddInt32(&s.RollbackCount, 1)
		s.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	trips        map[string]*domain.Trip
	reservations map[string]*domain.Reservation
	payments     map[string]*domain.Payment
}

func (s *MockStore) snapshot() storeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := storeSnapshot{
		trips:        make(map[string]*domain.Trip, len(s.trips)),
		reservations: make(map[string]*domain.Reservation, len(s.reservations)),
		payments:     make(map[string]*domain.Payment, len(s.payments)),
	}
	for id, t := range s.trips {
		snap.trips[id] = copyTrip(t)
	}
	for id, r := range s.reservations {
		c := *r
		snap.reservations[id] = &c
	}
	for id, p := range s.payments {
		c := *p
		snap.payments[id] = &c
	}
	return snap
}

func (s *MockStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips = snap.trips
	s.reservations = snap.reservations
	s.payments = snap.payments
}

// AddTrip seeds a trip.
func (s *MockStore) AddTrip(trip *domain.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[trip.ID] = copyTrip(trip)
}

// Trip returns a copy of the stored trip, or nil.
func (s *MockStore) Trip(id string) *domain.Trip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	if !ok {
		return nil
	}
	return copyTrip(t)
}

// AddReservation seeds a reservation.
func (s *MockStore) AddReservation(res *domain.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *res
	s.reservations[res.ID] = &c
}

// Reservations returns copies of every stored reservation of a trip.
func (s *MockStore) Reservations(tripID string) []*domain.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Reservation
	for _, r := range s.reservations {
		if r.TripID == tripID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ActiveSeats sums the seats of a trip's active reservations.
func (s *MockStore) ActiveSeats(tripID string) int {
	total := 0
	for _, r := range s.Reservations(tripID) {
		if r.Status.Active() {
			total += r.NumberOfSeats
		}
	}
	return total
}

// AddPayment seeds a payment.
func (s *MockStore) AddPayment(p *domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.payments[p.ID] = &c
}

// Payment returns a copy of the stored payment, or nil.
func (s *MockStore) Payment(id string) *domain.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil
	}
	c := *p
	return &c
}

// CountPayments returns the number of stored payments.
func (s *MockStore) CountPayments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}

func copyTrip(t *domain.Trip) *domain.Trip {
	c := *t
	c.PassengerIDs = append([]string{}, t.PassengerIDs...)
	return &c
}

func hasStatus(statuses []domain.TripStatus, s domain.TripStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository implements repository.TripRepository over a MockStore.
type MockTripRepository struct {
	store *MockStore
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	m.store.AddTrip(trip)
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	t := m.store.Trip(id)
	if t == nil {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (m *MockTripRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	return m.GetByID(ctx, id)
}

func (m *MockTripRepository) filter(keep func(*domain.Trip) bool) []*domain.Trip {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	out := []*domain.Trip{}
	for _, t := range m.store.trips {
		if keep(t) {
			out = append(out, copyTrip(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockTripRepository) List(ctx context.Context, f domain.TripFilter) ([]*domain.Trip, error) {
	return m.filter(func(t *domain.Trip) bool {
		if f.Status != "" && t.Status != f.Status {
			return false
		}
		if f.DriverID != "" && t.DriverID != f.DriverID {
			return false
		}
		if f.PassengerID != "" && !t.HasPassenger(f.PassengerID) {
			return false
		}
		return true
	}), nil
}

func (m *MockTripRepository) Search(ctx context.Context, c domain.TripSearch) ([]*domain.Trip, error) {
	return m.filter(func(t *domain.Trip) bool {
		return t.DepartureLocation == c.DepartureLocation &&
			t.ArrivalLocation == c.ArrivalLocation &&
			t.DepartureDate == c.DepartureDate &&
			t.AvailableSeats >= c.MinSeats &&
			hasStatus(c.Statuses, t.Status)
	}), nil
}

func (m *MockTripRepository) ListByStatuses(ctx context.Context, statuses []domain.TripStatus) ([]*domain.Trip, error) {
	return m.filter(func(t *domain.Trip) bool { return hasStatus(statuses, t.Status) }), nil
}

func (m *MockTripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	if m.store.UpdateTripError != nil {
		return m.store.UpdateTripError
	}
	if atomic.LoadInt32(&m.store.StaleTripUpdates) > 0 {
		atomic.AddInt32(&m.store.StaleTripUpdates, -1)
		return repository.ErrVersionConflict
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	stored, ok := m.store.trips[trip.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != trip.Version {
		return repository.ErrVersionConflict
	}
	trip.Version++
	trip.UpdatedAt = time.Now().UTC()
	m.store.trips[trip.ID] = copyTrip(trip)
	return nil
}

func (m *MockTripRepository) Delete(ctx context.Context, id string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.trips[id]; !ok {
		return repository.ErrNotFound
	}
	for _, r := range m.store.reservations {
		if r.TripID == id {
			return repository.ErrReferenced
		}
	}
	delete(m.store.trips, id)
	return nil
}

// ──────────────────────────────────────────────
// MOCK RESERVATION REPOSITORY
// ──────────────────────────────────────────────

// MockReservationRepository implements repository.ReservationRepository over a MockStore.
type MockReservationRepository struct {
	store *MockStore
}

func (m *MockReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, r := range m.store.reservations {
		if r.TripID == res.TripID && r.PassengerID == res.PassengerID && r.Status.Active() {
			return repository.ErrDuplicate
		}
	}
	c := *res
	m.store.reservations[res.ID] = &c
	return nil
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	r, ok := m.store.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *MockReservationRepository) GetActive(ctx context.Context, tripID, passengerID string) (*domain.Reservation, error) {
	for _, r := range m.store.Reservations(tripID) {
		if r.PassengerID == passengerID && r.Status.Active() {
			return r, nil
		}
	}
	return nil, nil
}

func (m *MockReservationRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.Reservation, error) {
	return m.store.Reservations(tripID), nil
}

func (m *MockReservationRepository) ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Reservation, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	out := []*domain.Reservation{}
	for _, r := range m.store.reservations {
		if r.PassengerID == passengerID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockReservationRepository) ListActiveByTrips(ctx context.Context, tripIDs []string) ([]*domain.Reservation, error) {
	out := []*domain.Reservation{}
	for _, id := range tripIDs {
		for _, r := range m.store.Reservations(id) {
			if r.Status.Active() {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (m *MockReservationRepository) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	r, ok := m.store.reservations[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockReservationRepository) CompleteByTrip(ctx context.Context, tripID string) (int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var n int64
	for _, r := range m.store.reservations {
		if r.TripID == tripID && r.Status == domain.ReservationStatusConfirmed {
			r.Status = domain.ReservationStatusCompleted
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository implements repository.PaymentRepository over a MockStore.
type MockPaymentRepository struct {
	store *MockStore
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if m.store.CreatePaymentError != nil {
		return m.store.CreatePaymentError
	}
	m.store.AddPayment(p)
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	p := m.store.Payment(id)
	if p == nil {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *MockPaymentRepository) find(match func(*domain.Payment) bool) (*domain.Payment, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	for _, p := range m.store.payments {
		if match(p) {
			c := *p
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockPaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	return m.find(func(p *domain.Payment) bool { return p.IntentID != "" && p.IntentID == intentID })
}

func (m *MockPaymentRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error) {
	return m.find(func(p *domain.Payment) bool { return p.ReservationID == reservationID })
}

func (m *MockPaymentRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Payment, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	out := []*domain.Payment{}
	for _, p := range m.store.payments {
		if p.UserID == userID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockPaymentRepository) SetIntent(ctx context.Context, id, intentID string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.IntentID != "" && p.IntentID != intentID {
		return repository.ErrVersionConflict
	}
	p.IntentID = intentID
	return nil
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────
// MOCK USER AND CAR REPOSITORIES
// ──────────────────────────────────────────────

// MockUserRepository implements both UserRepository and CarRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
	cars  map[string]*domain.Car
}

// NewMockUserRepository creates an empty user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]*domain.User),
		cars:  make(map[string]*domain.Car),
	}
}

// AddUser seeds a user.
func (m *MockUserRepository) AddUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddCar seeds a car.
func (m *MockUserRepository) AddCar(c *domain.Car) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cars[c.ID] = c
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

// Cars returns a CarRepository view.
func (m *MockUserRepository) Cars() *MockCarRepository {
	return &MockCarRepository{users: m}
}

// MockCarRepository implements repository.CarRepository.
type MockCarRepository struct {
	users *MockUserRepository
}

func (m *MockCarRepository) GetByID(ctx context.Context, id string) (*domain.Car, error) {
	m.users.mu.RLock()
	defer m.users.mu.RUnlock()
	car, ok := m.users.cars[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *car
	return &c, nil
}

func (m *MockCarRepository) GetByIDAndDriver(ctx context.Context, carID, driverID string) (*domain.Car, error) {
	car, err := m.GetByID(ctx, carID)
	if err != nil {
		return nil, err
	}
	if car.DriverID != driverID {
		return nil, repository.ErrNotFound
	}
	return car, nil
}

// ──────────────────────────────────────────────
// MOCK NOTIFICATION REPOSITORY
// ──────────────────────────────────────────────

// MockNotificationRepository implements repository.NotificationRepository.
type MockNotificationRepository struct {
	mu            sync.Mutex
	notifications []*domain.Notification

	// Error injection
	CreateError error
}

// NewMockNotificationRepository creates an empty notification repository.
func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{}
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *n
	m.notifications = append(m.notifications, &c)
	return nil
}

func (m *MockNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Notification{}
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.UserID != userID {
			continue
		}
		c := *n
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			c := *n
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockNotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

// MockNotifier records notification requests.
type MockNotifier struct {
	mu       sync.Mutex
	requests []service.NotificationRequest

	// Error injection
	NotifyError error
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, req service.NotificationRequest) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.NotifyError != nil {
		return nil, m.NotifyError
	}
	return &domain.Notification{ID: fmt.Sprintf("n-%d", len(m.requests)), UserID: req.UserID, Type: req.Type, Content: req.Content}, nil
}

// Sent returns the requests delivered to userID.
func (m *MockNotifier) Sent(userID string) []service.NotificationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []service.NotificationRequest
	for _, r := range m.requests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// CountType returns how many requests of type t were made.
func (m *MockNotifier) CountType(t domain.NotificationType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Type == t {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// MOCK PAYMENT PROCESSOR
// ──────────────────────────────────────────────

// MockPSP is an in-memory payment processor.
type MockPSP struct {
	mu      sync.Mutex
	intents map[string]*domain.PaymentIntent
	seq     int

	// Counters for verification
	CreateCallCount int32

	// Error injection
	CreateError   error
	RetrieveError error

	// CreateDelay widens the window between reading a payment and
	// recording its intent.
	CreateDelay time.Duration
}

// NewMockPSP creates a new MockPSP.
func NewMockPSP() *MockPSP {
	return &MockPSP{intents: make(map[string]*domain.PaymentIntent)}
}

func (m *MockPSP) CreatePaymentIntent(ctx context.Context, amount int64, currency, customerID string, metadata map[string]string) (*domain.PaymentIntent, error) {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	if m.CreateDelay > 0 {
		time.Sleep(m.CreateDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	intent := &domain.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", m.seq),
		ClientSecret: fmt.Sprintf("pi_%d_secret", m.seq),
		Status:       domain.PaymentIntentRequiresPaymentMethod,
		Amount:       amount,
		Currency:     currency,
	}
	m.intents[intent.ID] = intent
	c := *intent
	return &c, nil
}

func (m *MockPSP) RetrievePaymentIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, errors.New("no such payment intent")
	}
	c := *intent
	return &c, nil
}

// SetStatus changes the processor-side status of an intent.
func (m *MockPSP) SetStatus(intentID string, status domain.PaymentIntentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intent, ok := m.intents[intentID]; ok {
		intent.Status = status
	}
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory TripLocker.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string
	seq   int

	// Counters for verification
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new MockLockStore.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]string)}
}

// Hold takes the lock on tripID as another holder would.
func (m *MockLockStore) Hold(tripID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[tripID] = "someone-else"
}

// Held reports whether tripID is locked.
func (m *MockLockStore) Held(tripID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[tripID]
	return ok
}

func (m *MockLockStore) AcquireTripLock(ctx context.Context, tripID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[tripID]; held {
		return "", false, nil
	}
	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[tripID] = token
	return token, true, nil
}

func (m *MockLockStore) ReleaseTripLock(ctx context.Context, tripID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[tripID] == token {
		delete(m.locks, tripID)
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK TRIP CACHE
// ──────────────────────────────────────────────

// MockCache is an in-memory TripCache.
type MockCache struct {
	mu      sync.Mutex
	trips   map[string]*domain.Trip
	popular map[int][]*domain.Trip

	// Counters for verification
	InvalidateCallCount int32
}

// NewMockCache creates a new MockCache.
func NewMockCache() *MockCache {
	return &MockCache{trips: make(map[string]*domain.Trip), popular: make(map[int][]*domain.Trip)}
}

func (m *MockCache) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return nil, nil
	}
	return copyTrip(t), nil
}

func (m *MockCache) SetTrip(ctx context.Context, trip *domain.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.trips[trip.ID]; ok && cached.Version > trip.Version {
		return nil
	}
	m.trips[trip.ID] = copyTrip(trip)
	return nil
}

func (m *MockCache) InvalidateTrip(ctx context.Context, tripID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trips, tripID)
	m.popular = make(map[int][]*domain.Trip)
	return nil
}

func (m *MockCache) GetPopularTrips(ctx context.Context, limit int) ([]*domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trips, ok := m.popular[limit]
	if !ok {
		return nil, nil
	}
	return trips, nil
}

func (m *MockCache) SetPopularTrips(ctx context.Context, limit int, trips []*domain.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.popular[limit] = trips
	return nil
}

// Cached reports whether tripID is cached.
func (m *MockCache) Cached(tripID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.trips[tripID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK EVENT PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher records published trip events.
type MockPublisher struct {
	mu     sync.Mutex
	events []domain.TripEvent

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.TripEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.PublishError
}

// Types returns the published event types in order.
func (m *MockPublisher) Types() []domain.TripEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TripEventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// ──────────────────────────────────────────────
// TEST ENVIRONMENT
// ──────────────────────────────────────────────

const (
	driverID    = "driver-1"
	carID       = "car-1"
	carCapacity = 4
)

// testEnv wires the services over in-memory collaborators.
type testEnv struct {
	store    *MockStore
	users    *MockUserRepository
	notifier *MockNotifier
	psp      *MockPSP
	locks    *MockLockStore
	cache    *MockCache
	events   *MockPublisher

	trips        *service.TripService
	payments     *service.PaymentService
	reservations *service.ReservationService
}

// newTestEnv builds a testEnv with a verified driver owning a car and
// passengers passenger-1 through passenger-10.
func newTestEnv() *testEnv {
	env := &testEnv{
		store:    NewMockStore(),
		users:    NewMockUserRepository(),
		notifier: NewMockNotifier(),
		psp:      NewMockPSP(),
		locks:    NewMockLockStore(),
		cache:    NewMockCache(),
		events:   NewMockPublisher(),
	}

	env.users.AddUser(&domain.User{ID: driverID, Name: "Dana", IsVerifiedDriver: true})
	env.users.AddUser(&domain.User{ID: "unverified-1", Name: "Uma"})
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("passenger-%d", i)
		env.users.AddUser(&domain.User{ID: id, Name: id, StripeCustomerID: "cus_" + id})
	}
	env.users.AddCar(&domain.Car{ID: carID, DriverID: driverID, Make: "Toyota", Model: "Prius", NumberOfSeats: carCapacity})
	env.users.AddCar(&domain.Car{ID: "car-2", DriverID: "unverified-1", NumberOfSeats: 4})

	repos := env.store.Repositories()
	identity := service.NewIdentityService(env.users)

	env.payments = service.NewPaymentService(service.PaymentServiceDeps{
		Tx:        env.store,
		Payments:  repos.Payments,
		Identity:  identity,
		Processor: env.psp,
		Notifier:  env.notifier,
		Events:    env.events,
	})
	env.trips = service.NewTripService(service.TripServiceDeps{
		Tx:           env.store,
		Trips:        repos.Trips,
		Reservations: repos.Reservations,
		Cars:         env.users.Cars(),
		Identity:     identity,
		Notifier:     env.notifier,
		Payments:     env.payments,
		Locker:       env.locks,
		Cache:        env.cache,
		Events:       env.events,
	})
	env.reservations = service.NewReservationService(repos.Reservations, repos.Trips, repos.Payments)
	return env
}

// seedTrip stores a trip with the given seats offered and no reservations.
func (e *testEnv) seedTrip(id string, seats int, status domain.TripStatus) *domain.Trip {
	trip := &domain.Trip{
		ID:                id,
		DriverID:          driverID,
		CarID:             carID,
		DepartureLocation: "Lyon",
		ArrivalLocation:   "Paris",
		DepartureDate:     "2026-11-02",
		DepartureTime:     "08:30",
		TotalSeats:        seats,
		AvailableSeats:    seats,
		PricePerSeat:      10,
		Status:            status,
		PassengerIDs:      []string{},
		CreatedAt:         time.Now().UTC(),
	}
	e.store.AddTrip(trip)
	return trip
}

// seatInvariantHolds checks available + active reservations == total seats
// and that FULL matches zero available seats on open trips.
func (e *testEnv) seatInvariantHolds(tripID string) (bool, string) {
	trip := e.store.Trip(tripID)
	active := e.store.ActiveSeats(tripID)
	if trip.AvailableSeats+active != trip.TotalSeats {
		return false, fmt.Sprintf("available %d + active %d != total %d", trip.AvailableSeats, active, trip.TotalSeats)
	}
	if (trip.AvailableSeats == 0) != (trip.Status == domain.TripStatusFull) && !trip.Status.Terminal() && trip.Status != domain.TripStatusInProgress {
		return false, fmt.Sprintf("status %s with %d seats available", trip.Status, trip.AvailableSeats)
	}
	return true, ""
}
