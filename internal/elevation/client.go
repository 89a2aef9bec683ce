// Package elevation fetches terrain elevation lines from an IGN-compatible
// elevationLine.json service.
package elevation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/observability"
	"github.com/signalsfoundry/avue/model"
	"github.com/signalsfoundry/avue/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUpstream marks failures of the elevation service: transport errors,
// non-2xx answers and undecodable bodies.
var ErrUpstream = errors.New("elevation service failure")

const (
	defaultTimeout         = 15 * time.Second
	defaultMaxRetries      = 3
	defaultInitialInterval = 250 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second

	maxBodyBytes = 4 << 20
)

// Source returns the raw elevation samples along the straight line from
// `from` to `to`, ordered from `from`.
type Source interface {
	Profile(ctx context.Context, from, to model.Coordinate, samples int) ([]model.RawElevation, error)
}

// Client is an HTTP Source.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxRetries int
	newBackOff func() backoff.BackOff
	pacer      *timectrl.Pacer
	log        logging.Logger
	tracer     trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxRetries sets how many times a failed request is retried. Zero
// disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackOff sets the retry interval policy. The factory is called once per
// Profile call.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		if fn != nil {
			c.newBackOff = fn
		}
	}
}

// WithPacer spaces consecutive requests, retries included.
func WithPacer(p *timectrl.Pacer) Option {
	return func(c *Client) { c.pacer = p }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient constructs a client for the elevationLine.json endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = defaultInitialInterval
			b.MaxInterval = defaultMaxInterval
			return b
		},
		log:    logging.Noop(),
		tracer: observability.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type elevationLineResponse struct {
	Elevations []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
		Z   float64 `json:"z"`
	} `json:"elevations"`
}

// Profile implements Source.
func (c *Client) Profile(ctx context.Context, from, to model.Coordinate, samples int) ([]model.RawElevation, error) {
	if err := from.Validate(); err != nil {
		return nil, fmt.Errorf("elevation line origin: %w", err)
	}
	if err := to.Validate(); err != nil {
		return nil, fmt.Errorf("elevation line target: %w", err)
	}
	if samples < 2 {
		return nil, fmt.Errorf("elevation line needs at least 2 samples, got %d", samples)
	}

	ctx, span := c.tracer.Start(ctx, "elevation.Profile", trace.WithAttributes(
		attribute.Int("elevation.samples", samples),
		attribute.String("elevation.from", from.String()),
		attribute.String("elevation.to", to.String()),
	))
	defer span.End()

	reqURL, err := c.requestURL(from, to, samples)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	attempts := 0
	op := func() ([]model.RawElevation, error) {
		attempts++
		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		return c.fetch(ctx, reqURL)
	}
	notify := func(err error, next time.Duration) {
		c.log.Warn(ctx, "elevation request failed; retrying",
			logging.Err(err),
			logging.Int("attempt", attempts),
			logging.Duration("retry_in", next),
		)
	}

	raw, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	span.SetAttributes(attribute.Int("elevation.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrUpstream) {
			return nil, ctxErr
		}
		return nil, err
	}
	return raw, nil
}

func (c *Client) requestURL(from, to model.Coordinate, samples int) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: invalid endpoint %q: %v", ErrUpstream, c.endpoint, err)
	}
	q := u.Query()
	q.Set("lat", formatCoord(from.Lat)+"|"+formatCoord(to.Lat))
	q.Set("lon", formatCoord(from.Lon)+"|"+formatCoord(to.Lon))
	q.Set("zonly", "false")
	q.Set("sampling", strconv.Itoa(samples))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]model.RawElevation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: creating request: %v", ErrUpstream, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: executing request: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
		if retryable(resp.StatusCode) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}

	var parsed elevationLineResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: parsing response: %v", ErrUpstream, err))
	}
	if len(parsed.Elevations) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("%w: empty elevation line", ErrUpstream))
	}

	out := make([]model.RawElevation, len(parsed.Elevations))
	for i, e := range parsed.Elevations {
		out[i] = model.RawElevation{Lat: e.Lat, Lon: e.Lon, Elevation: e.Z}
	}
	return out, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
