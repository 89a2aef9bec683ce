package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/avue/model"
)

// ErrStaleEpoch is returned when a write carries the epoch of a search that
// has since been superseded. Callers drop the write.
var ErrStaleEpoch = errors.New("stale search epoch")

// Status is the lifecycle state of the displayed search.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusFetching       Status = "fetching"
	StatusProcessing     Status = "processing"
	StatusDone           Status = "done"
	StatusTooManyResults Status = "too_many_results"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// Terminal reports whether no further updates are expected for the search.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusTooManyResults, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// EventType indicates what kind of change happened on the board.
type EventType int

const (
	EventSearchStarted EventType = iota
	EventStatusChanged
	EventSupportResult
	EventCandidateFailed
)

// Progress counts processed candidates against the total.
type Progress struct {
	Processed int
	Total     int
}

// AntennaResult is the evaluated state of one antenna of a support.
type AntennaResult struct {
	Antenna    model.Antenna
	Visibility model.Visibility
	// Ray is the line-of-sight height at each profile distance.
	Ray []model.ProfileSample
}

// SupportResult is everything presentation needs for one support.
type SupportResult struct {
	Index      int
	Support    model.Support
	DistanceKm float64
	Profile    model.TerrainProfile
	Antennas   []AntennaResult
	Visible    []model.Operator
	Masked     []model.Operator
}

// VisibleOverall reports whether at least one operator is visible.
func (r SupportResult) VisibleOverall() bool { return len(r.Visible) > 0 }

// FailureKind classifies a failed candidate.
type FailureKind string

const (
	FailureInput    FailureKind = "input"
	FailureUpstream FailureKind = "upstream"
)

// CandidateFailure records a candidate whose processing did not complete.
type CandidateFailure struct {
	Index     int
	SupportID string
	Kind      FailureKind
	Reason    string
}

// Snapshot is a copy of the displayed search state.
type Snapshot struct {
	Epoch    uint64
	SearchID string
	Point    model.InstallationPoint
	RadiusKm float64
	Status   Status
	Message  string
	Progress Progress
	Results  []SupportResult
	Failures []CandidateFailure
}

// Event is emitted to subscribers after every accepted write.
type Event struct {
	Type     EventType
	Epoch    uint64
	SearchID string
	Status   Status
	Message  string
	Progress Progress
	Result   *SupportResult
	Failure  *CandidateFailure
}

// KnowledgeBase holds the state of the most recent search as shown to
// users. Every write carries the epoch of the search that produced it and
// is rejected with ErrStaleEpoch unless that search is still current.
type KnowledgeBase struct {
	mu sync.RWMutex

	current Snapshot

	subs    map[int]func(Event)
	nextSub int
}

// NewKnowledgeBase constructs an idle board.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		current: Snapshot{Status: StatusIdle},
		subs:    make(map[int]func(Event)),
	}
}

// Epoch returns the epoch of the displayed search (0 before any search).
func (kb *KnowledgeBase) Epoch() uint64 {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.current.Epoch
}

// Begin discards everything shown for previous searches and starts
// displaying the search identified by epoch. Epochs must increase.
func (kb *KnowledgeBase) Begin(epoch uint64, searchID string, point model.InstallationPoint, radiusKm float64) error {
	kb.mu.Lock()
	if epoch <= kb.current.Epoch {
		kb.mu.Unlock()
		return fmt.Errorf("%w: begin %d, current %d", ErrStaleEpoch, epoch, kb.current.Epoch)
	}
	kb.current = Snapshot{
		Epoch:    epoch,
		SearchID: searchID,
		Point:    point,
		RadiusKm: radiusKm,
		Status:   StatusFetching,
	}
	ev := kb.eventLocked(EventSearchStarted)
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, ev)
	return nil
}

// SetStatus moves the displayed search to status with an optional
// user-facing message.
func (kb *KnowledgeBase) SetStatus(epoch uint64, status Status, message string) error {
	return kb.update(epoch, EventStatusChanged, func(s *Snapshot) {
		s.Status = status
		s.Message = message
	})
}

// SetTotal records how many candidates the search will process and moves
// it to StatusProcessing.
func (kb *KnowledgeBase) SetTotal(epoch uint64, total int) error {
	return kb.update(epoch, EventStatusChanged, func(s *Snapshot) {
		s.Status = StatusProcessing
		s.Progress = Progress{Total: total}
	})
}

// ApplyResult appends a support result and advances progress by one.
func (kb *KnowledgeBase) ApplyResult(epoch uint64, res SupportResult) error {
	return kb.update(epoch, EventSupportResult, func(s *Snapshot) {
		s.Results = append(s.Results, res)
		s.Progress.Processed++
	})
}

// ApplyFailure records a failed candidate and advances progress by one.
func (kb *KnowledgeBase) ApplyFailure(epoch uint64, f CandidateFailure) error {
	return kb.update(epoch, EventCandidateFailed, func(s *Snapshot) {
		s.Failures = append(s.Failures, f)
		s.Progress.Processed++
	})
}

func (kb *KnowledgeBase) update(epoch uint64, typ EventType, fn func(*Snapshot)) error {
	kb.mu.Lock()
	if epoch != kb.current.Epoch {
		kb.mu.Unlock()
		return fmt.Errorf("%w: write %d, current %d", ErrStaleEpoch, epoch, kb.current.Epoch)
	}
	fn(&kb.current)
	ev := kb.eventLocked(typ)
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, ev)
	return nil
}

func (kb *KnowledgeBase) eventLocked(typ EventType) Event {
	ev := Event{
		Type:     typ,
		Epoch:    kb.current.Epoch,
		SearchID: kb.current.SearchID,
		Status:   kb.current.Status,
		Message:  kb.current.Message,
		Progress: kb.current.Progress,
	}
	switch typ {
	case EventSupportResult:
		r := kb.current.Results[len(kb.current.Results)-1]
		ev.Result = &r
	case EventCandidateFailed:
		f := kb.current.Failures[len(kb.current.Failures)-1]
		ev.Failure = &f
	}
	return ev
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	out := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}

// Snapshot returns a copy of the displayed search. Result slices are
// copied; the model values inside them must be treated as read-only.
func (kb *KnowledgeBase) Snapshot() Snapshot {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	snap := kb.current
	snap.Results = append([]SupportResult(nil), kb.current.Results...)
	snap.Failures = append([]CandidateFailure(nil), kb.current.Failures...)
	return snap
}

// Subscribe registers a callback for board events. It returns an
// unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
