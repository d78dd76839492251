package roomlock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/metrics"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotOwned = errors.New("room lock is not owned by this holder")

	ErrTimeout = errors.New("timed out waiting for room lock")
)

const (
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 200 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// Locker serializes writes that touch one room's bookings.
// Acquire blocks until the lock is held, the wait budget is spent or ctx ends.
// The returned release func is safe to call once the caller is done.
type Locker interface {
	Acquire(ctx context.Context, roomID string) (release func(), err error)
}

type Options struct {
	Backend string
	TTL     time.Duration
	Wait    time.Duration
}

type locker struct {
	store Store
	opts  Options
	log   *logger.Logger
}

func NewLocker(store Store, opts Options, log *logger.Logger) Locker {
	return &locker{
		store: store,
		opts:  opts,
		log:   log,
	}
}

func (l *locker) Acquire(ctx context.Context, roomID string) (func(), error) {
	owner := uuid.NewString()
	started := time.Now()
	deadline := started.Add(l.opts.Wait)
	backoff := initialBackoff

	for {
		ok, err := l.store.TryAcquire(ctx, roomID, owner, l.opts.TTL)
		if err != nil {
			metrics.ObserveLockWait(l.opts.Backend, "error", time.Since(started))
			l.log.Error("Failed to acquire room lock", "room_id", roomID, "backend", l.opts.Backend, "error", err)
			return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "Room lock store is temporarily unavailable", http.StatusServiceUnavailable)
		}
		if ok {
			metrics.ObserveLockWait(l.opts.Backend, "acquired", time.Since(started))
			return l.releaseFunc(ctx, roomID, owner), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, l.timeout(roomID, started)
		}

		timer := time.NewTimer(min(backoff, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, l.timeout(roomID, started)
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *locker) timeout(roomID string, started time.Time) error {
	waited := time.Since(started)
	metrics.ObserveLockWait(l.opts.Backend, "timeout", waited)
	l.log.Warn("Timed out waiting for room lock", "room_id", roomID, "waited", waited)
	return apperrors.Wrap(
		fmt.Errorf("%w: room %s", ErrTimeout, roomID),
		apperrors.CodeTimeout,
		"The room is busy, please try again",
		http.StatusGatewayTimeout,
	)
}

func (l *locker) releaseFunc(ctx context.Context, roomID, owner string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		if err := l.store.Release(releaseCtx, roomID, owner); err != nil {
			l.log.Warn("Failed to release room lock", "room_id", roomID, "backend", l.opts.Backend, "error", err)
		}
	}
}
