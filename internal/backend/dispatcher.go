package backend

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jaennil/guide_helper/backend/wmscache/internal/backend"

var (
	ErrAllBackendsFailed = errors.New("all backends failed")
	ErrNoBackends        = errors.New("no backends configured")
)

// ExhaustedError is returned when no backend produced an image.
type ExhaustedError struct {
	LastURL  string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d backends failed, last tried %s: %v", e.Attempts, e.LastURL, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrAllBackendsFailed, e.Err}
}

type Config struct {
	Timeout             time.Duration
	UserAgent           string
	MaxIdleConnsPerHost int
}

type Options struct {
	// ReadExpiration asks for the Cache-Control max-age of the answering backend.
	ReadExpiration bool
	Decode         DecodeConfig
}

type Result struct {
	Image  image.Image
	Format string
	URL    string
	// MaxAge is the backend max-age in seconds, valid when HasMaxAge is set.
	MaxAge       int64
	HasMaxAge    bool
	CacheControl string
	Attempts     int
}

type Dispatcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    logger.Logger
	tracer    trace.Tracer
}

func NewDispatcher(cfg Config, l logger.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = 32
	}

	return &Dispatcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: maxIdle,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		logger:    l,
		tracer:    otel.Tracer(tracerName),
	}
}

// Fetch requests the composite image from the target's backends in order and
// returns the first one that decodes. Each attempt gets its own timeout.
func (d *Dispatcher) Fetch(ctx context.Context, target Target, srs grid.SRS, box grid.BBox, mime string, width, height int, opts Options) (*Result, error) {
	if len(target.URLs) == 0 {
		return nil, ErrNoBackends
	}

	var (
		lastURL string
		lastErr error
	)

	for i, base := range target.URLs {
		if i > 0 {
			metrics.BackendFailovers.Inc()
		}

		reqURL, err := target.RequestURL(base, srs, box, mime, width, height)
		if err != nil {
			d.logger.Warn("skipping backend with invalid url", "url", base, "error", err)
			lastURL, lastErr = base, err
			continue
		}
		lastURL = reqURL

		res, err := d.attempt(ctx, reqURL, width, height, opts)
		if err != nil {
			d.logger.Warn("backend request failed, trying next backend",
				"url", reqURL,
				"attempt", i+1,
				"of", len(target.URLs),
				"error", err,
			)
			lastErr = err
			continue
		}

		res.Attempts = i + 1
		return res, nil
	}

	return nil, &ExhaustedError{
		LastURL:  lastURL,
		Attempts: len(target.URLs),
		Err:      lastErr,
	}
}

func (d *Dispatcher) attempt(ctx context.Context, reqURL string, width, height int, opts Options) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx, span := d.tracer.Start(ctx, "backend GetMap",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(http.MethodGet),
			semconv.URLFull(reqURL),
		),
	)
	defer span.End()

	outcome := "ok"
	start := time.Now()
	defer func() {
		metrics.BackendLatency.Observe(time.Since(start).Seconds())
		metrics.BackendRequests.WithLabelValues(outcome).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := d.client.Do(req)
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch from backend: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		outcome = "status"
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		outcome = "error"
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read backend response: %w", err)
	}

	img, format, err := decodeImage(body, width, height, opts.Decode)
	if err != nil {
		outcome = "undecodable"
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("content type %q: %w", resp.Header.Get("Content-Type"), err)
	}

	res := &Result{
		Image:  img,
		Format: format,
		URL:    reqURL,
	}

	if opts.ReadExpiration {
		res.CacheControl = resp.Header.Get("Cache-Control")
		res.MaxAge, res.HasMaxAge = ParseMaxAge(res.CacheControl)
		if res.HasMaxAge {
			d.logger.Debug("backend max-age", "url", reqURL, "max_age", res.MaxAge)
		}
	}

	span.SetAttributes(
		attribute.String("image.format", format),
		attribute.Int("http.response.size", len(body)),
	)
	span.SetStatus(codes.Ok, "")

	return res, nil
}
