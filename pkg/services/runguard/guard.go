package runguard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultLease   = 15 * time.Minute
	releaseTimeout = 10 * time.Second
)

var ErrAlreadyRunning = errors.New("another report run is already in progress")

// Lock is a lease-bounded mutual exclusion flag. Acquire must be a single
// compare-and-set: at most one holder observes success while the lease lasts.
type Lock interface {
	Name() string
	Acquire(ctx context.Context, holder string, lease time.Duration) (bool, error)
	Release(ctx context.Context, holder string) error
}

type Guard struct {
	lock  Lock
	lease time.Duration
	newID func() string
}

func New(lock Lock, lease time.Duration) *Guard {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Guard{lock: lock, lease: lease, newID: uuid.NewString}
}

func (g *Guard) Lease() time.Duration {
	return g.lease
}

// Admission is held by the one admitted run until Release.
type Admission struct {
	RunID string

	lock    Lock
	lease   time.Duration
	once    sync.Once
	release error
}

// TryAdmit returns ErrAlreadyRunning when another run holds the lock.
func (g *Guard) TryAdmit(ctx context.Context) (*Admission, error) {
	runID := g.newID()

	ok, err := g.lock.Acquire(ctx, runID, g.lease)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s run lock: %w", g.lock.Name(), err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	return &Admission{RunID: runID, lock: g.lock, lease: g.lease}, nil
}

// Release is idempotent and runs even when ctx is already cancelled.
func (a *Admission) Release(ctx context.Context) error {
	a.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		a.release = a.lock.Release(ctx, a.RunID)
	})
	return a.release
}

// Run executes fn bounded by the lease. The admission is released on every
// exit path, including a panic in fn, which is returned as an error.
func (a *Admission) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if relErr := a.Release(ctx); relErr != nil {
			zerolog.Ctx(ctx).Error().
				Err(relErr).
				Str("run_id", a.RunID).
				Str("lock", a.lock.Name()).
				Msg("failed to release run lock")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run %s panicked: %v", a.RunID, r)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, a.lease)
	defer cancel()

	return fn(runCtx)
}

// Do admits and runs fn in one step.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context, runID string) error) error {
	adm, err := g.TryAdmit(ctx)
	if err != nil {
		return err
	}
	return adm.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, adm.RunID)
	})
}
