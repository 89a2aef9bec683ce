package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchCollector exposes search-pipeline Prometheus metrics.
type SearchCollector struct {
	gatherer prometheus.Gatherer

	SearchesStarted        prometheus.Counter
	SearchesFinished       *prometheus.CounterVec
	SearchDuration         prometheus.Histogram
	CandidatesProcessed    *prometheus.CounterVec
	ElevationFetchDuration prometheus.Histogram
	TasksQueued            prometheus.Gauge
	StaleResultsDropped    prometheus.Counter
}

// NewSearchCollector registers search metrics against the provided registerer.
func NewSearchCollector(reg prometheus.Registerer) (*SearchCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := gathererFor(reg)

	started, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "avue_searches_started_total",
		Help: "Number of searches started.",
	}), "avue_searches_started_total")
	if err != nil {
		return nil, err
	}

	finished, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avue_searches_finished_total",
		Help: "Number of searches that reached a terminal state, labeled by outcome.",
	}, []string{"outcome"}), "avue_searches_finished_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "avue_search_duration_seconds",
		Help:    "Wall time from search start to its terminal state.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}), "avue_search_duration_seconds")
	if err != nil {
		return nil, err
	}

	candidates, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avue_candidates_processed_total",
		Help: "Candidate supports processed, labeled by result (visible, masked, failed_input, failed_upstream).",
	}, []string{"result"}), "avue_candidates_processed_total")
	if err != nil {
		return nil, err
	}

	fetch, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "avue_elevation_fetch_duration_seconds",
		Help:    "Duration of elevation-line requests, retries included.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "avue_elevation_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	queued, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "avue_search_tasks_queued",
		Help: "Number of candidate tasks waiting for the search worker.",
	}), "avue_search_tasks_queued")
	if err != nil {
		return nil, err
	}

	stale, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "avue_stale_results_dropped_total",
		Help: "Results discarded because their search had been superseded.",
	}), "avue_stale_results_dropped_total")
	if err != nil {
		return nil, err
	}

	return &SearchCollector{
		gatherer:               gatherer,
		SearchesStarted:        started,
		SearchesFinished:       finished,
		SearchDuration:         duration,
		CandidatesProcessed:    candidates,
		ElevationFetchDuration: fetch,
		TasksQueued:            queued,
		StaleResultsDropped:    stale,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SearchCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a /metrics handler for the collector's gatherer.
func (c *SearchCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// SearchStarted counts a new search.
func (c *SearchCollector) SearchStarted() {
	if c == nil || c.SearchesStarted == nil {
		return
	}
	c.SearchesStarted.Inc()
}

// SearchFinished records the terminal outcome and total duration of a search.
func (c *SearchCollector) SearchFinished(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.SearchesFinished != nil {
		c.SearchesFinished.WithLabelValues(outcome).Inc()
	}
	if c.SearchDuration != nil {
		c.SearchDuration.Observe(d.Seconds())
	}
}

// CandidateProcessed counts one candidate under result.
func (c *SearchCollector) CandidateProcessed(result string) {
	if c == nil || c.CandidatesProcessed == nil {
		return
	}
	c.CandidatesProcessed.WithLabelValues(result).Inc()
}

// ObserveElevationFetch records an elevation request duration.
func (c *SearchCollector) ObserveElevationFetch(d time.Duration) {
	if c == nil || c.ElevationFetchDuration == nil {
		return
	}
	c.ElevationFetchDuration.Observe(d.Seconds())
}

// SetQueuedTasks updates the queue depth gauge.
func (c *SearchCollector) SetQueuedTasks(count int) {
	if c == nil || c.TasksQueued == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.TasksQueued.Set(float64(count))
}

// StaleResultDropped counts a discarded result.
func (c *SearchCollector) StaleResultDropped() {
	if c == nil || c.StaleResultsDropped == nil {
		return
	}
	c.StaleResultsDropped.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
