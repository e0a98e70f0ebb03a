package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	apperrors "github.com/merchpulse/storesync/pkg/errors"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/metrics"
)

// Config holds client construction options.
type Config struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	RequestTimeout time.Duration
	// MaxRetries bounds the client's own transport-level retry, separate
	// from the dispatcher's job-level 5xx requeueing.
	MaxRetries int
	RateLimit  float64
	RateBurst  int
}

// Client talks to the recommendation service. One instance per credential
// pair; endpoint groups share the transport, breaker and limiter.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *logger.Logger

	Products   *EntityEndpoint
	Categories *EntityEndpoint
	Users      *EntityEndpoint
	Orders     *OrdersEndpoint
	Events     *EventsEndpoint
	Overview   *OverviewEndpoint
}

func NewClient(cfg Config, m *metrics.Metrics, log *logger.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "remote-api",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		metrics: m,
		logger:  log.WithComponent("remote"),
	}

	c.Products = &EntityEndpoint{client: c, entity: "products"}
	c.Categories = &EntityEndpoint{client: c, entity: "categories"}
	c.Users = &EntityEndpoint{client: c, entity: "users"}
	c.Orders = &OrdersEndpoint{EntityEndpoint{client: c, entity: "orders"}}
	c.Events = &EventsEndpoint{client: c}
	c.Overview = &OverviewEndpoint{client: c}
	return c
}

// Sync fetches the drift signal describing what the remote side believes
// has diverged.
func (c *Client) Sync(ctx context.Context) (*SyncData, error) {
	res, err := c.do(ctx, http.MethodGet, "/v1/client/sync", nil)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("sync signal request returned %d", res.HTTPCode)
	}

	var data SyncData
	if err := res.DecodeData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Clear tears down all remote state for this store. Used on disconnect.
func (c *Client) Clear(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodPost, "/v1/client/clear", nil)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("clear request returned %d", res.HTTPCode)
	}
	return nil
}

// do performs one authenticated request with the outbound rate limit,
// circuit breaker and bounded transport retry applied. A 401 is the
// distinct credential error; other non-2xx codes come back as values.
func (c *Client) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	start := time.Now()
	attempt := func() (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		res := &Response{HTTPCode: resp.StatusCode, Data: data}
		if res.ServerError() {
			// Retryable within this call; surfaced as a value once the
			// retry budget is spent.
			return res, fmt.Errorf("remote returned %d", res.HTTPCode)
		}
		return res, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var last *Response
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries-1)),
			ctx,
		)
		err := backoff.Retry(func() error {
			res, err := attempt()
			last = res
			return err
		}, policy)
		if err != nil && last == nil {
			return nil, err
		}
		return last, nil
	})
	c.metrics.RemoteLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.RemoteCalls.WithLabelValues(path, "transport_error").Inc()
		return nil, fmt.Errorf("remote %s %s failed: %w", method, path, err)
	}

	res := result.(*Response)
	c.metrics.RemoteCalls.WithLabelValues(path, httpClass(res.HTTPCode)).Inc()
	if res.HTTPCode == http.StatusUnauthorized {
		return nil, apperrors.Unauthorized(fmt.Errorf("remote rejected credentials"))
	}

	c.logger.Debug("remote call", "method", method, "path", path, "status", res.HTTPCode)
	return res, nil
}

func httpClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 500:
		return "5xx"
	default:
		return "4xx"
	}
}
