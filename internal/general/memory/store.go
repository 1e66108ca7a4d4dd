// Package memory keeps the ride projection and saga instances in process memory.
// It backs the `storage: memory` mode and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/ports"
)

// Store is the shared state behind the repositories and the unit of work.
// A unit of work holds the store lock for its whole duration, so units are serialized.
type Store struct {
	mu sync.Mutex

	rides       map[int64]*ride.Ride
	instances   map[int64]*saga.Instance
	transitions []saga.Transition

	nextRideID       int64
	nextInstanceID   int64
	nextTransitionID int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		rides:     make(map[int64]*ride.Ride),
		instances: make(map[int64]*saga.Instance),
	}
}

type snapshot struct {
	rides            map[int64]*ride.Ride
	instances        map[int64]*saga.Instance
	transitions      []saga.Transition
	nextRideID       int64
	nextInstanceID   int64
	nextTransitionID int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		rides:            make(map[int64]*ride.Ride, len(s.rides)),
		instances:        make(map[int64]*saga.Instance, len(s.instances)),
		transitions:      append([]saga.Transition(nil), s.transitions...),
		nextRideID:       s.nextRideID,
		nextInstanceID:   s.nextInstanceID,
		nextTransitionID: s.nextTransitionID,
	}
	for id, r := range s.rides {
		snap.rides[id] = r.Clone()
	}
	for id, in := range s.instances {
		snap.instances[id] = in.Clone()
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.rides = snap.rides
	s.instances = snap.instances
	s.transitions = snap.transitions
	s.nextRideID = snap.nextRideID
	s.nextInstanceID = snap.nextInstanceID
	s.nextTransitionID = snap.nextTransitionID
}

// ----- unit of work -----

type ctxKey struct{}

type txState struct {
	hooks []func(ctx context.Context)
}

type unitOfWork struct {
	store *Store
}

// NewUnitOfWork returns a unit of work that rolls the store back to its snapshot on failure.
func NewUnitOfWork(store *Store) ports.UnitOfWork {
	return &unitOfWork{store: store}
}

func (uow *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(ctxKey{}).(*txState); ok {
		return fn(ctx)
	}

	uow.store.mu.Lock()
	snap := uow.store.snapshot()
	state := &txState{}

	var err error
	func() {
		committed := false
		defer func() {
			if !committed {
				uow.store.restore(snap)
			}
			uow.store.mu.Unlock()
		}()
		err = fn(context.WithValue(ctx, ctxKey{}, state))
		committed = err == nil
	}()
	if err != nil {
		return err
	}

	// hooks run after the lock is released, like after a real commit
	for _, hook := range state.hooks {
		hook(ctx)
	}
	return nil
}

func (uow *unitOfWork) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if state, ok := ctx.Value(ctxKey{}).(*txState); ok {
		state.hooks = append(state.hooks, fn)
		return
	}
	fn(ctx)
}

// lock takes the store lock unless ctx is inside a unit of work, which already holds it.
func (s *Store) lock(ctx context.Context) func() {
	if _, ok := ctx.Value(ctxKey{}).(*txState); ok {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// ----- rides -----

// RideRepo implements ports.RideRepository over a Store.
type RideRepo struct {
	store *Store
}

// NewRideRepo constructs a RideRepo.
func NewRideRepo(store *Store) ports.RideRepository {
	return &RideRepo{store: store}
}

func (repo *RideRepo) Create(ctx context.Context, r *ride.Ride) error {
	defer repo.store.lock(ctx)()

	for _, existing := range repo.store.rides {
		if existing.RideID == r.RideID {
			return ride.ErrDuplicateRide
		}
	}
	repo.store.nextRideID++
	now := time.Now().UTC()
	r.ID = repo.store.nextRideID
	r.CreatedAt, r.UpdatedAt = now, now
	repo.store.rides[r.ID] = r.Clone()
	return nil
}

func (repo *RideRepo) FindByID(ctx context.Context, id int64) (*ride.Ride, error) {
	defer repo.store.lock(ctx)()

	r, ok := repo.store.rides[id]
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	return r.Clone(), nil
}

func (repo *RideRepo) FindByRideID(ctx context.Context, rideID string) (*ride.Ride, error) {
	defer repo.store.lock(ctx)()

	for _, r := range repo.store.rides {
		if r.RideID == rideID {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

// FindByRideIDForUpdate needs no row lock: the unit of work already holds the store lock.
func (repo *RideRepo) FindByRideIDForUpdate(ctx context.Context, rideID string) (*ride.Ride, error) {
	return repo.FindByRideID(ctx, rideID)
}

func (repo *RideRepo) Update(ctx context.Context, r *ride.Ride) error {
	defer repo.store.lock(ctx)()

	if _, ok := repo.store.rides[r.ID]; !ok {
		return ride.ErrRideNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	repo.store.rides[r.ID] = r.Clone()
	return nil
}

func (repo *RideRepo) Delete(ctx context.Context, r *ride.Ride) error {
	defer repo.store.lock(ctx)()

	if _, ok := repo.store.rides[r.ID]; !ok {
		return ride.ErrRideNotFound
	}
	delete(repo.store.rides, r.ID)
	return nil
}

func (repo *RideRepo) FindAll(ctx context.Context, limit, offset int) ([]*ride.Ride, error) {
	defer repo.store.lock(ctx)()

	all := make([]*ride.Ride, 0, len(repo.store.rides))
	for _, r := range repo.store.rides {
		all = append(all, r.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (repo *RideRepo) CountByStatus(ctx context.Context) (map[ride.Status]int, error) {
	defer repo.store.lock(ctx)()

	out := make(map[ride.Status]int)
	for _, r := range repo.store.rides {
		out[r.Status]++
	}
	return out, nil
}

// ----- saga instances -----

// SagaRepo implements ports.SagaInstanceRepository over a Store.
type SagaRepo struct {
	store *Store
}

// NewSagaRepo constructs a SagaRepo.
func NewSagaRepo(store *Store) ports.SagaInstanceRepository {
	return &SagaRepo{store: store}
}

func (repo *SagaRepo) Insert(ctx context.Context, instance *saga.Instance) error {
	defer repo.store.lock(ctx)()

	if repo.findByKey(instance.Key) != nil {
		return saga.ErrDuplicateInstance
	}
	repo.store.nextInstanceID++
	now := time.Now().UTC()
	instance.ID = repo.store.nextInstanceID
	instance.CreatedAt, instance.UpdatedAt = now, now
	repo.store.instances[instance.ID] = instance.Clone()
	return nil
}

// FindByKey ignores forUpdate: the unit of work already holds the store exclusively.
func (repo *SagaRepo) FindByKey(ctx context.Context, key saga.CorrelationKey, _ bool) (*saga.Instance, error) {
	defer repo.store.lock(ctx)()

	if in := repo.findByKey(key); in != nil {
		return in.Clone(), nil
	}
	return nil, saga.ErrInstanceNotFound
}

func (repo *SagaRepo) Update(ctx context.Context, instance *saga.Instance) error {
	defer repo.store.lock(ctx)()

	if _, ok := repo.store.instances[instance.ID]; !ok {
		return saga.ErrInstanceNotFound
	}
	instance.UpdatedAt = time.Now().UTC()
	repo.store.instances[instance.ID] = instance.Clone()
	return nil
}

func (repo *SagaRepo) ClaimExpired(ctx context.Context, now time.Time, limit int) ([]*saga.Instance, error) {
	defer repo.store.lock(ctx)()

	var due []*saga.Instance
	for _, in := range repo.store.instances {
		if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
			due = append(due, in.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (repo *SagaRepo) findByKey(key saga.CorrelationKey) *saga.Instance {
	for _, in := range repo.store.instances {
		if in.Key == key {
			return in
		}
	}
	return nil
}

// ----- saga history -----

// SagaHistoryRepo implements ports.SagaHistoryRepository over a Store.
type SagaHistoryRepo struct {
	store *Store
}

// NewSagaHistoryRepo constructs a SagaHistoryRepo.
func NewSagaHistoryRepo(store *Store) ports.SagaHistoryRepository {
	return &SagaHistoryRepo{store: store}
}

func (repo *SagaHistoryRepo) Append(ctx context.Context, t *saga.Transition) error {
	defer repo.store.lock(ctx)()

	repo.store.nextTransitionID++
	t.ID = repo.store.nextTransitionID
	t.CreatedAt = time.Now().UTC()
	repo.store.transitions = append(repo.store.transitions, *t)
	return nil
}

func (repo *SagaHistoryRepo) ListByInstance(ctx context.Context, instanceID int64) ([]saga.Transition, error) {
	defer repo.store.lock(ctx)()

	var out []saga.Transition
	for _, t := range repo.store.transitions {
		if t.InstanceID == instanceID {
			out = append(out, t)
		}
	}
	return out, nil
}
