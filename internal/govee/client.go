package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	controlPath  = "/v1/devices/control"
	devicesPath  = "/v1/devices"
	apiKeyHeader = "Govee-API-Key"

	// maxResponseBytes caps how much of a vendor response we read.
	maxResponseBytes = 1 << 20
)

// Limiter hands out permission to send one request.
// *limiter.Bucket satisfies it.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Logger is the logging subset the client uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds the vendor connection settings.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration

	// Backoff lists the sleep before each retry; its length is the retry count.
	Backoff []time.Duration
}

// CommandResult is reported to the command hook once per logical command,
// after retries have settled.
type CommandResult struct {
	Target   Target
	Command  string
	Attempts int
	Latency  time.Duration
	Err      error
}

// Outcome classifies the result for metrics: ok, transient, permanent, canceled.
func (r CommandResult) Outcome() string {
	switch {
	case r.Err == nil:
		return "ok"
	case IsTransient(r.Err):
		return "transient"
	case IsPermanent(r.Err):
		return "permanent"
	default:
		return "canceled"
	}
}

// Client turns logical light operations into rate-limited vendor requests.
//
// Every attempt, including retries, takes one token from the limiter, so a
// retry storm cannot exceed the vendor ceiling.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter Limiter
	cache   *stateCache
	logger  Logger
	now     func() time.Time
	onCmd   func(CommandResult)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCommandHook registers a callback for every settled command.
func WithCommandHook(fn func(CommandResult)) Option {
	return func(c *Client) {
		c.onCmd = fn
	}
}

// WithClock replaces time.Now for cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a client. The limiter is required.
func New(cfg Config, lim Limiter, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidArgument)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidArgument)
	}
	if lim == nil {
		return nil, fmt.Errorf("%w: limiter is required", ErrInvalidArgument)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: lim,
		cache:   newStateCache(),
		logger:  noopLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetPower turns a light on or off.
func (c *Client) SetPower(ctx context.Context, t Target, p Power) error {
	if p != PowerOn && p != PowerOff {
		return fmt.Errorf("%w: power %q", ErrInvalidArgument, p)
	}
	return c.control(ctx, t, CmdTurn, string(p), func(s *DeviceState) {
		s.Power = p
	})
}

// SetColor sets a solid color. A running pattern is forgotten.
func (c *Client) SetColor(ctx context.Context, t Target, col Color) error {
	return c.control(ctx, t, CmdColor, col, func(s *DeviceState) {
		s.Color = col
		s.PatternID = nil
	})
}

// SetBrightness sets brightness in percent (0–100).
func (c *Client) SetBrightness(ctx context.Context, t Target, percent int) error {
	if percent < MinBrightness || percent > MaxBrightness {
		return fmt.Errorf("%w: brightness %d out of range", ErrInvalidArgument, percent)
	}
	return c.control(ctx, t, CmdBrightness, percent, func(s *DeviceState) {
		s.Brightness = percent
	})
}

// RunPattern shows the named pattern. Unknown ids fail without a request.
func (c *Client) RunPattern(ctx context.Context, t Target, id int) error {
	p, err := LookupPattern(id)
	if err != nil {
		return err
	}
	return c.control(ctx, t, CmdColor, p.Color, func(s *DeviceState) {
		s.Color = p.Color
		s.PatternID = &id
	})
}

// State returns the cached state of a light and whether one is known.
func (c *Client) State(t Target) (DeviceState, bool) {
	return c.cache.get(t)
}

// Remember records a state learned out of band, such as from configuration.
func (c *Client) Remember(t Target, s DeviceState) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = c.now()
	}
	c.cache.set(t, s)
}

// ListDevices returns every device registered to the API key.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := c.do(ctx, Target{DeviceID: "*", Model: "*"}, "list", func(callCtx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(callCtx, http.MethodGet, c.cfg.BaseURL+devicesPath, nil)
	}, func(resp *vendorResponse) {
		devices = resp.Data.Devices
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *Client) control(ctx context.Context, t Target, name string, value any, apply func(*DeviceState)) error {
	if err := t.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(controlRequest{
		Device: t.DeviceID,
		Model:  t.Model,
		Cmd:    controlCmd{Name: name, Value: value},
	})
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrInvalidArgument, name, err)
	}

	err = c.do(ctx, t, name, func(callCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPut, c.cfg.BaseURL+controlPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, nil)
	if err != nil {
		return err
	}

	c.cache.update(t, c.now(), apply)
	return nil
}

// do runs one logical request with limiter gating and bounded retries.
func (c *Client) do(
	ctx context.Context,
	t Target,
	command string,
	build func(ctx context.Context) (*http.Request, error),
	decode func(*vendorResponse),
) error {
	start := time.Now()
	attempts := 0

	err := func() error {
		for {
			if err := c.limiter.Acquire(ctx); err != nil {
				return fmt.Errorf("govee %s %s: waiting for rate limit: %w", command, t, err)
			}
			attempts++

			status, err := c.attempt(ctx, build, decode)
			if err == nil {
				return nil
			}

			retryIdx := attempts - 1
			if !errors.Is(err, ErrTransient) || retryIdx >= len(c.cfg.Backoff) {
				return &CommandError{Command: command, Target: t, StatusCode: status, Attempts: attempts, Err: err}
			}

			wait := c.cfg.Backoff[retryIdx]
			c.logger.Debug("retrying device command",
				"command", command, "target", t.String(), "attempt", attempts, "backoff", wait, "error", err)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("govee %s %s: %w", command, t, ctx.Err())
			case <-timer.C:
			}
		}
	}()

	if err != nil {
		c.logger.Warn("device command failed", "command", command, "target", t.String(), "attempts", attempts, "error", err)
	}
	if c.onCmd != nil {
		c.onCmd(CommandResult{Target: t, Command: command, Attempts: attempts, Latency: time.Since(start), Err: err})
	}
	return err
}

// attempt sends one request under the per-call timeout and classifies the result.
func (c *Client) attempt(
	ctx context.Context,
	build func(ctx context.Context) (*http.Request, error),
	decode func(*vendorResponse),
) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := build(callCtx)
	if err != nil {
		return 0, fmt.Errorf("%w: building request: %w", ErrPermanent, err)
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; not a device failure.
			return 0, ctx.Err()
		}
		if isRetryableError(err) {
			return 0, fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: reading response: %w", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, classifyStatus(resp.StatusCode, vendorMessage(raw))
	}

	var vr vendorResponse
	if err := json.Unmarshal(raw, &vr); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decoding response: %w", ErrTransient, err)
	}
	if vr.Code != 0 && vr.Code != http.StatusOK {
		return vr.Code, classifyStatus(vr.Code, vr.Message)
	}
	if decode != nil {
		decode(&vr)
	}
	return resp.StatusCode, nil
}

func classifyStatus(code int, message string) error {
	if message == "" {
		message = http.StatusText(code)
	}
	if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s", ErrTransient, message)
	}
	return fmt.Errorf("%w: %s", ErrPermanent, message)
}

func vendorMessage(raw []byte) string {
	var vr vendorResponse
	if err := json.Unmarshal(raw, &vr); err == nil && vr.Message != "" {
		return vr.Message
	}
	return strings.TrimSpace(string(raw))
}

// isRetryableError reports whether a transport error is worth another try.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}

	message := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "broken pipe", "connection refused", "use of closed network connection"} {
		if strings.Contains(message, s) {
			return true
		}
	}
	return false
}
