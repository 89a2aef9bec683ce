package supports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/observability"
	"github.com/signalsfoundry/avue/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	maxBodyBytes      = 16 << 20
)

// Backend queries the supports HTTP API:
//
//	GET {base}/supports/{lat}/{lon}/{radiusKm}
//
// The backend answers with every support in the bounding box of the circle.
type Backend struct {
	base       *url.URL
	httpClient *http.Client
	maxRetries int
	newBackOff func() backoff.BackOff
	log        logging.Logger
	tracer     trace.Tracer
}

// BackendOption customises a Backend.
type BackendOption func(*Backend)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) BackendOption {
	return func(b *Backend) {
		if hc != nil {
			b.httpClient = hc
		}
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) BackendOption {
	return func(b *Backend) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

// WithBackOff sets the retry interval policy.
func WithBackOff(fn func() backoff.BackOff) BackendOption {
	return func(b *Backend) {
		if fn != nil {
			b.newBackOff = fn
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l logging.Logger) BackendOption {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBackend constructs a client for the supports API rooted at baseURL.
func NewBackend(baseURL string, opts ...BackendOption) (*Backend, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse supports backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("supports backend url %q must be absolute", baseURL)
	}
	b := &Backend{
		base:       u,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:        logging.Noop(),
		tracer:     observability.Tracer(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Supports implements Source.
func (b *Backend) Supports(ctx context.Context, center model.Coordinate, radiusKm float64) ([]model.Support, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 || math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return nil, fmt.Errorf("radius must be positive, got %v", radiusKm)
	}

	ctx, span := b.tracer.Start(ctx, "supports.Backend", trace.WithAttributes(
		attribute.String("supports.center", center.String()),
		attribute.Float64("supports.radius_km", radiusKm),
	))
	defer span.End()

	reqURL := b.requestURL(center, radiusKm)
	op := func() ([]model.Support, error) { return b.fetch(ctx, reqURL) }
	notify := func(err error, next time.Duration) {
		b.log.Warn(ctx, "supports request failed; retrying", logging.Err(err), logging.Duration("retry_in", next))
	}

	sups, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b.newBackOff()),
		backoff.WithMaxTries(uint(b.maxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrUpstream) {
			return nil, ctxErr
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("supports.count", len(sups)))
	return sups, nil
}

func (b *Backend) requestURL(center model.Coordinate, radiusKm float64) string {
	u := *b.base
	u.Path = u.Path + "/supports/" +
		strconv.FormatFloat(center.Lat, 'f', -1, 64) + "/" +
		strconv.FormatFloat(center.Lon, 'f', -1, 64) + "/" +
		FormatRadius(radiusKm)
	return u.String()
}

func (b *Backend) fetch(ctx context.Context, reqURL string) ([]model.Support, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: creating request: %v", ErrUpstream, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: executing request: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}
	doc, err := Decode(body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: parsing response: %v", ErrUpstream, err))
	}
	sups, err := doc.Model()
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrUpstream, err))
	}
	return sups, nil
}

// FormatRadius renders r with three significant digits, keeping trailing
// zeros ("10.0", "5.00", "0.500") as the backend route expects.
func FormatRadius(r float64) string {
	if r == 0 {
		return "0.00"
	}
	decimals := 2 - int(math.Floor(math.Log10(math.Abs(r))))
	if decimals < 0 {
		decimals = 0
	}
	s := strconv.FormatFloat(r, 'f', decimals, 64)
	// Rounding can carry into a new digit (9.995 -> "10.00").
	if decimals > 0 {
		if v, err := strconv.ParseFloat(s, 64); err == nil && math.Floor(math.Log10(math.Abs(v))) > math.Floor(math.Log10(math.Abs(r))) {
			s = strconv.FormatFloat(v, 'f', decimals-1, 64)
		}
	}
	return s
}
