package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/kilimopesa/internal/config"
	"github.com/kilimopesa/internal/domain"
)

// maxResponseBody caps how much of an answer is read
const maxResponseBody = 1 << 20

// Options configures a Client
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	Transport         string // config.TransportBearer or config.TransportCookie
	SessionCookieName string
	CSRFEnabled       bool
	CSRFCookieName    string
	CSRFHeaderName    string
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	Logger            *slog.Logger
}

// OptionsFromConfig builds client options from application config
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		Transport:         cfg.Auth.Transport,
		SessionCookieName: cfg.Auth.SessionCookieName,
		CSRFEnabled:       cfg.Auth.CSRFEnabled,
		CSRFCookieName:    cfg.Auth.CSRFCookieName,
		CSRFHeaderName:    cfg.Auth.CSRFHeaderName,
		BreakerThreshold:  cfg.Breaker.Threshold,
		BreakerCooldown:   cfg.Breaker.Cooldown,
		Logger:            logger,
	}
}

// Client handles communication with the marketplace API. The attached
// credential is process-wide state: it is sent with every request until
// DetachCredential is called.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	jar            *cookiejar.Jar
	circuitBreaker *CircuitBreaker
	opts           Options
	logger         *slog.Logger

	mu         sync.RWMutex
	credential string
	csrfToken  string
}

// NewClient creates a new marketplace API client
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Transport == "" {
		opts.Transport = config.TransportBearer
	}
	if opts.SessionCookieName == "" {
		opts.SessionCookieName = "sessionid"
	}
	if opts.CSRFCookieName == "" {
		opts.CSRFCookieName = "csrftoken"
	}
	if opts.CSRFHeaderName == "" {
		opts.CSRFHeaderName = "X-CSRFToken"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
		},
		jar:            jar,
		circuitBreaker: NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		opts:           opts,
		logger:         opts.Logger.With("component", "api"),
	}, nil
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Breaker exposes the circuit breaker for diagnostics
func (c *Client) Breaker() *CircuitBreaker {
	return c.circuitBreaker
}

// do sends one request. in is JSON-encoded when non-nil; a 2xx body is
// decoded into out when out is non-nil. The raw body is returned either way.
func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	host := c.baseURL.Host

	if c.circuitBreaker.IsOpen(host) {
		stats := c.circuitBreaker.GetStats(host)
		return nil, domain.WrapNetworkUnavailable(path, &CircuitOpenError{Host: host, Stats: stats})
	}

	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setCredentialHeader(req)

	if c.opts.CSRFEnabled && !isSafeMethod(method) {
		token, err := c.csrf(ctx)
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set(c.opts.CSRFHeaderName, token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The caller giving up says nothing about the server's health
		if ctx.Err() == nil {
			c.circuitBreaker.RecordFailure(host)
		}
		c.logger.Warn("API request failed",
			"method", method, "path", path, "request_id", requestID, "error", err)
		return nil, domain.WrapNetworkUnavailable(path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.circuitBreaker.RecordFailure(host)
		return nil, domain.WrapNetworkUnavailable(path, err)
	}

	c.logger.Debug("API request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode >= http.StatusInternalServerError {
		c.circuitBreaker.RecordFailure(host)
	} else {
		c.circuitBreaker.RecordSuccess(host)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusForbidden {
			// A stale CSRF token answers 403; fetch a fresh one next time
			c.resetCSRF()
		}
		return data, normalizeResponse(path, resp.StatusCode, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return data, domain.WrapServerError(resp.StatusCode, "invalid response from server", err)
		}
	}

	return data, nil
}

func (c *Client) resolve(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + path
	u.RawQuery = ""
	return u.String()
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// isNotFound reports whether err is a 404 answer
func isNotFound(err error) bool {
	var domainErr *domain.DomainError
	return errors.As(err, &domainErr) && domainErr.Status == http.StatusNotFound
}
