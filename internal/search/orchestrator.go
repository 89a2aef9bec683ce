// Package search runs visibility searches: it fetches candidate supports
// around an installation point, evaluates each one against its terrain
// profile and publishes results on the display board.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/avue/core"
	"github.com/signalsfoundry/avue/internal/elevation"
	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/observability"
	"github.com/signalsfoundry/avue/internal/supports"
	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/model"
	"github.com/signalsfoundry/avue/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Candidate outcomes reported to MetricsRecorder.CandidateProcessed.
const (
	ResultVisible        = "visible"
	ResultMasked         = "masked"
	ResultFailedInput    = "failed_input"
	ResultFailedUpstream = "failed_upstream"
)

// MetricsRecorder receives search pipeline measurements.
type MetricsRecorder interface {
	SearchStarted()
	SearchFinished(outcome string, d time.Duration)
	CandidateProcessed(result string)
	ObserveElevationFetch(d time.Duration)
	SetQueuedTasks(count int)
	StaleResultDropped()
}

type noopMetrics struct{}

func (noopMetrics) SearchStarted()                       {}
func (noopMetrics) SearchFinished(string, time.Duration) {}
func (noopMetrics) CandidateProcessed(string)            {}
func (noopMetrics) ObserveElevationFetch(time.Duration)  {}
func (noopMetrics) SetQueuedTasks(int)                   {}
func (noopMetrics) StaleResultDropped()                  {}

// Orchestrator starts searches and owns the current one. Starting a search
// cancels the previous one; results of a superseded search never reach the
// board.
type Orchestrator struct {
	supports  supports.Source
	elevation elevation.Source
	board     *kb.KnowledgeBase

	filter   core.RadiusFilter
	sampling core.SamplingPolicy
	timeout  time.Duration
	clock    timectrl.Clock
	newID    func() string

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	mu      sync.Mutex
	epoch   uint64
	current *Session
	closed  bool
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the base logger; every search derives a logger carrying
// its search_id.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithMaxCandidates overrides the candidate limit.
func WithMaxCandidates(n int) Option {
	return func(o *Orchestrator) { o.filter = core.RadiusFilter{MaxCandidates: n} }
}

// WithSamplingPolicy overrides the elevation sampling density.
func WithSamplingPolicy(p core.SamplingPolicy) Option {
	return func(o *Orchestrator) { o.sampling = p }
}

// WithSearchTimeout bounds the duration of a search. Zero disables it.
func WithSearchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithClock sets the clock used for timestamps and durations.
func WithClock(c timectrl.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// NewOrchestrator wires the support and elevation sources to board.
func NewOrchestrator(src supports.Source, elev elevation.Source, board *kb.KnowledgeBase, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		supports:  src,
		elevation: elev,
		board:     board,
		filter:    core.RadiusFilter{MaxCandidates: core.DefaultMaxCandidates},
		sampling:  core.DefaultSamplingPolicy(),
		clock:     timectrl.RealClock{},
		newID:     func() string { return uuid.NewString() },
		log:       logging.Noop(),
		metrics:   noopMetrics{},
		tracer:    observability.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Board returns the display board the orchestrator publishes to.
func (o *Orchestrator) Board() *kb.KnowledgeBase { return o.board }

// Current returns the most recently started session, or nil.
func (o *Orchestrator) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Start begins a search around point and returns immediately. The previous
// search, if any, is cancelled. Invalid input is rejected before the board
// changes. The search outlives ctx's cancellation but keeps its values.
//
// Board subscribers are notified while Start holds the orchestrator lock
// and must not call back into the orchestrator.
func (o *Orchestrator) Start(ctx context.Context, point model.InstallationPoint, radiusKm float64) (*Session, error) {
	if err := point.Location.Validate(); err != nil {
		return nil, fmt.Errorf("%w: installation point: %v", core.ErrInvalidInput, err)
	}
	if point.HeightM < 0 || math.IsNaN(point.HeightM) || math.IsInf(point.HeightM, 0) {
		return nil, fmt.Errorf("%w: installation height must be a non-negative number, got %v", core.ErrInvalidInput, point.HeightM)
	}
	if !(radiusKm > 0) || math.IsInf(radiusKm, 0) {
		return nil, fmt.Errorf("%w: radius must be positive, got %v", core.ErrInvalidInput, radiusKm)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}

	if o.current != nil {
		o.current.cancel(ErrSuperseded)
	}
	o.epoch++

	base := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancelCause(base)
	if o.timeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeoutCause(runCtx, o.timeout, ErrTimeout)
		parent := cancel
		cancel = func(cause error) {
			parent(cause)
			stop()
		}
	}

	sess := newSession(runCtx, cancel, o.newID(), o.epoch, point, radiusKm, o.clock.Now())
	if err := o.board.Begin(sess.Epoch, sess.ID, point, radiusKm); err != nil {
		cancel(err)
		return nil, err
	}
	o.current = sess

	go o.run(sess)
	return sess, nil
}

// Close cancels the current search and rejects further ones.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.current != nil {
		o.current.cancel(ErrClosed)
	}
}

type task struct {
	index   int
	support model.Support
}

func (o *Orchestrator) run(sess *Session) {
	defer close(sess.done)
	defer sess.cancel(nil)

	ctx, log := logging.WithSearchLogger(sess.ctx, o.log, sess.ID)
	ctx, span := o.tracer.Start(ctx, "search.Run", trace.WithAttributes(
		attribute.String("search.id", sess.ID),
		attribute.Int64("search.epoch", int64(sess.Epoch)),
		attribute.Float64("search.radius_km", sess.RadiusKm),
	))
	defer span.End()

	o.metrics.SearchStarted()
	log.Info(ctx, "search started",
		logging.String("point", sess.Point.Location.String()),
		logging.Float64("height_m", sess.Point.HeightM),
		logging.Float64("radius_km", sess.RadiusKm),
		logging.Uint64("epoch", sess.Epoch),
	)

	status, err := o.execute(ctx, sess, log)
	if status == "" {
		status, err = o.interrupted(ctx, sess, log)
	}
	sess.setStatus(status, err)

	elapsed := o.clock.Now().Sub(sess.StartedAt)
	o.metrics.SearchFinished(string(status), elapsed)
	span.SetAttributes(attribute.String("search.status", string(status)))
	if err != nil && status == kb.StatusFailed {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	progress := sess.Progress()
	log.Info(ctx, "search finished",
		logging.String("status", string(status)),
		logging.Int("processed", progress.Processed),
		logging.Int("total", progress.Total),
		logging.Duration("elapsed", elapsed),
	)
}

// execute runs the search. An empty status means the search was
// interrupted and the caller decides how to report it.
func (o *Orchestrator) execute(ctx context.Context, sess *Session, log logging.Logger) (kb.Status, error) {
	found, err := o.supports.Supports(ctx, sess.Point.Location, sess.RadiusKm)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil
		}
		log.Warn(ctx, "support source failed", logging.Err(err))
		return o.fail(ctx, log, sess, kb.StatusFailed, fmt.Sprintf("support source unavailable: %v", err), err)
	}

	candidates, err := o.filter.Filter(sess.Point.Location, sess.RadiusKm, found)
	if err != nil {
		var tooMany *core.TooManyCandidatesError
		if errors.As(err, &tooMany) {
			log.Info(ctx, "search rejected: too many candidates",
				logging.Int("count", tooMany.Count),
				logging.Int("max", tooMany.Max),
			)
			return o.fail(ctx, log, sess, kb.StatusTooManyResults, tooMany.Error(), err)
		}
		return o.fail(ctx, log, sess, kb.StatusFailed, err.Error(), err)
	}

	sess.total.Store(int64(len(candidates)))
	if err := o.board.SetTotal(sess.Epoch, len(candidates)); err != nil {
		o.dropStale(ctx, log, err)
		return "", nil
	}

	queue := make(chan task, len(candidates))
	for i, sup := range candidates {
		queue <- task{index: i, support: sup}
	}
	close(queue)

	failures := 0
	for t := range queue {
		o.metrics.SetQueuedTasks(len(queue))
		if ctx.Err() != nil {
			return "", nil
		}

		res, failure := o.process(ctx, sess, t, log)
		if ctx.Err() != nil {
			// The fetch may have completed after cancellation.
			o.dropStale(ctx, log, context.Cause(ctx))
			return "", nil
		}

		var applyErr error
		if failure != nil {
			failures++
			applyErr = o.board.ApplyFailure(sess.Epoch, *failure)
		} else {
			applyErr = o.board.ApplyResult(sess.Epoch, res)
		}
		if applyErr != nil {
			o.dropStale(ctx, log, applyErr)
			return "", nil
		}
		sess.processed.Add(1)
	}
	o.metrics.SetQueuedTasks(0)

	msg := ""
	if failures > 0 {
		msg = fmt.Sprintf("%d of %d supports could not be evaluated", failures, len(candidates))
	}
	if err := o.board.SetStatus(sess.Epoch, kb.StatusDone, msg); err != nil {
		o.dropStale(ctx, log, err)
		return "", nil
	}
	return kb.StatusDone, nil
}

func (o *Orchestrator) fail(ctx context.Context, log logging.Logger, sess *Session, status kb.Status, msg string, cause error) (kb.Status, error) {
	if err := o.board.SetStatus(sess.Epoch, status, msg); err != nil {
		o.dropStale(ctx, log, err)
		return "", nil
	}
	return status, cause
}

// interrupted maps the cancellation cause of an interrupted search onto a
// terminal status. A superseded search leaves the board alone.
func (o *Orchestrator) interrupted(ctx context.Context, sess *Session, log logging.Logger) (kb.Status, error) {
	cause := context.Cause(sess.ctx)
	switch {
	case cause == nil:
		// Interrupted by a stale board write without cancellation: a newer
		// search exists.
		return kb.StatusCancelled, ErrSuperseded
	case errors.Is(cause, ErrSuperseded):
		return kb.StatusCancelled, cause
	case errors.Is(cause, ErrTimeout):
		if err := o.board.SetStatus(sess.Epoch, kb.StatusFailed, cause.Error()); err != nil {
			o.dropStale(ctx, log, err)
			return kb.StatusCancelled, ErrSuperseded
		}
		return kb.StatusFailed, cause
	default:
		if err := o.board.SetStatus(sess.Epoch, kb.StatusCancelled, cause.Error()); err != nil {
			o.dropStale(ctx, log, err)
		}
		return kb.StatusCancelled, cause
	}
}

func (o *Orchestrator) dropStale(ctx context.Context, log logging.Logger, reason error) {
	o.metrics.StaleResultDropped()
	log.Debug(ctx, "dropping result of superseded search", logging.Err(reason))
}

// process evaluates one candidate. Exactly one of the returned values is
// meaningful: the result, or the failure when failure is non-nil.
func (o *Orchestrator) process(ctx context.Context, sess *Session, t task, log logging.Logger) (kb.SupportResult, *kb.CandidateFailure) {
	sup := t.support
	ctx, span := o.tracer.Start(ctx, "search.Candidate", trace.WithAttributes(
		attribute.String("support.id", sup.ID),
		attribute.Int("candidate.index", t.index),
	))
	defer span.End()

	fail := func(kind kb.FailureKind, err error) (kb.SupportResult, *kb.CandidateFailure) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			result := ResultFailedUpstream
			if kind == kb.FailureInput {
				result = ResultFailedInput
			}
			o.metrics.CandidateProcessed(result)
			log.Warn(ctx, "candidate failed",
				logging.String("support_id", sup.ID),
				logging.Int("index", t.index),
				logging.String("kind", string(kind)),
				logging.Err(err),
			)
		}
		return kb.SupportResult{}, &kb.CandidateFailure{
			Index:     t.index,
			SupportID: sup.ID,
			Kind:      kind,
			Reason:    err.Error(),
		}
	}

	distM := core.Distance(sup.Location, sess.Point.Location, core.Meters)
	if distM <= 0 {
		return fail(kb.FailureInput, fmt.Errorf("%w: support %s coincides with the installation point", core.ErrInvalidInput, sup.ID))
	}

	profile, err := sess.profile(sup, func() (model.TerrainProfile, error) {
		samples := o.sampling.Count(distM)
		start := o.clock.Now()
		raw, err := o.elevation.Profile(ctx, sup.Location, sess.Point.Location, samples)
		o.metrics.ObserveElevationFetch(o.clock.Now().Sub(start))
		if err != nil {
			return model.TerrainProfile{}, err
		}
		return core.BuildProfile(raw, sup.Location)
	})
	if err != nil {
		return fail(failureKind(err), err)
	}

	res := kb.SupportResult{
		Index:      t.index,
		Support:    sup,
		DistanceKm: distM / 1000,
		Profile:    profile,
		Antennas:   make([]kb.AntennaResult, 0, len(sup.Antennas)),
	}
	evaluated := make([]core.AntennaVisibility, 0, len(sup.Antennas))
	for _, ant := range sup.Antennas {
		vr, err := core.Evaluate(ant, sup, profile, sess.Point)
		if err != nil {
			return fail(failureKind(err), err)
		}
		res.Antennas = append(res.Antennas, kb.AntennaResult{Antenna: ant, Visibility: vr.Visibility, Ray: vr.Ray})
		evaluated = append(evaluated, core.AntennaVisibility{Antenna: ant, Visibility: vr.Visibility})
	}

	cov, err := core.Aggregate(evaluated)
	if err != nil {
		return fail(failureKind(err), err)
	}
	res.Visible = cov.Visible.Sorted()
	res.Masked = cov.Masked.Sorted()

	outcome := ResultMasked
	if res.VisibleOverall() {
		outcome = ResultVisible
	}
	if ctx.Err() == nil {
		o.metrics.CandidateProcessed(outcome)
	}
	span.SetAttributes(attribute.Bool("support.visible", res.VisibleOverall()))
	return res, nil
}

func failureKind(err error) kb.FailureKind {
	if errors.Is(err, core.ErrInvalidInput) {
		return kb.FailureInput
	}
	return kb.FailureUpstream
}
