package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/model"
)

var (
	// ErrSuperseded is the cancellation cause of a search replaced by a
	// newer one.
	ErrSuperseded = errors.New("search superseded by a newer search")
	// ErrCancelled is the cancellation cause of Session.Cancel.
	ErrCancelled = errors.New("search cancelled")
	// ErrClosed is the cancellation cause used by Orchestrator.Close.
	ErrClosed = errors.New("orchestrator closed")
	// ErrTimeout is the cancellation cause of a search exceeding its
	// configured timeout.
	ErrTimeout = errors.New("search timed out")
)

// Session is one user-initiated search. It owns the candidate list, the
// profile table and the progress counters for that search; none of it is
// shared with other sessions.
type Session struct {
	ID        string
	Epoch     uint64
	Point     model.InstallationPoint
	RadiusKm  float64
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	processed atomic.Int64
	total     atomic.Int64

	// profiles is written and read by the session worker only.
	profiles map[profileKey]model.TerrainProfile

	mu     sync.Mutex
	status kb.Status
	err    error
}

func newSession(ctx context.Context, cancel context.CancelCauseFunc, id string, epoch uint64, point model.InstallationPoint, radiusKm float64, now time.Time) *Session {
	return &Session{
		ID:        id,
		Epoch:     epoch,
		Point:     point,
		RadiusKm:  radiusKm,
		StartedAt: now,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		profiles:  make(map[profileKey]model.TerrainProfile),
		status:    kb.StatusFetching,
	}
}

// Done is closed once the session reached a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel stops the search. The board shows it as cancelled unless a newer
// search already replaced it.
func (s *Session) Cancel() { s.cancel(ErrCancelled) }

// Wait blocks until the session finishes or ctx is done. It returns the
// terminal status and the error that caused a non-Done outcome.
func (s *Session) Wait(ctx context.Context) (kb.Status, error) {
	select {
	case <-s.done:
		return s.Result()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Result returns the current status and error without blocking.
func (s *Session) Result() (kb.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

// Progress returns processed and total candidate counts.
func (s *Session) Progress() kb.Progress {
	return kb.Progress{Processed: int(s.processed.Load()), Total: int(s.total.Load())}
}

func (s *Session) setStatus(status kb.Status, err error) {
	s.mu.Lock()
	s.status = status
	s.err = err
	s.mu.Unlock()
}

// profileKey identifies a terrain profile. Support ids from the backend are
// not guaranteed unique, so the location is part of the key.
type profileKey struct {
	supportID string
	location  model.Coordinate
}

// profile returns the terrain profile of sup, resolving it through fetch
// on first use. A failed fetch is not cached.
func (s *Session) profile(sup model.Support, fetch func() (model.TerrainProfile, error)) (model.TerrainProfile, error) {
	key := profileKey{supportID: sup.ID, location: sup.Location}
	if p, ok := s.profiles[key]; ok {
		return p, nil
	}
	p, err := fetch()
	if err != nil {
		return model.TerrainProfile{}, err
	}
	s.profiles[key] = p
	return p, nil
}
