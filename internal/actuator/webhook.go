package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/infrastructure/config"
)

// Webhook defaults, used when configuration leaves a value at zero.
const (
	defaultWebhookTimeout     = 10 * time.Second
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
	defaultBreakerInterval    = 60 * time.Second

	// maxErrorBody caps how much of a failed response is kept for the error.
	maxErrorBody = 512
)

// Webhook sends an HTTP request per execution. Requests share one rate
// limiter; each target host has its own circuit breaker so one dead
// endpoint does not block the others.
type Webhook struct {
	client  *http.Client
	limiter *rate.Limiter
	breaker config.BreakerConfig
	logger  Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// WebhookBody is the default JSON body when an action has none configured.
type WebhookBody struct {
	PuckID  string    `json:"puck_id"`
	Trigger string    `json:"trigger"`
	RuleID  string    `json:"rule_id"`
	FiredAt time.Time `json:"fired_at"`
}

// NewWebhook creates a webhook actuator.
func NewWebhook(deps Deps) *Webhook {
	cfg := deps.Config.Webhook

	client := deps.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultWebhookTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Webhook{
		client:   client,
		limiter:  limiter,
		breaker:  cfg.Breaker,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (w *Webhook) Kind() automation.ActuatorKind { return KindWebhook }

func (w *Webhook) Describe() string { return "Call a webhook" }

// BuildConfiguration requires "url" (http or https) and accepts "method"
// (POST or PUT, default POST), "headers" (string map) and "body".
func (w *Webhook) BuildConfiguration(ctx context.Context, initial automation.Action, rule *automation.Rule, params map[string]any, onComplete func(automation.Action, *automation.Rule)) error {
	raw, err := requireString(params, "url")
	if err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url %q", ErrInvalidParam, raw)
	}

	method, hasMethod, err := stringParam(params, "method")
	if err != nil {
		return err
	}
	method = strings.ToUpper(method)
	switch {
	case !hasMethod:
		method = http.MethodPost
	case method != http.MethodPost && method != http.MethodPut:
		return fmt.Errorf("%w: method %q", ErrInvalidParam, method)
	}

	headers, err := headerParam(params)
	if err != nil {
		return err
	}
	if body, ok := params["body"]; ok {
		if _, err := json.Marshal(body); err != nil {
			return fmt.Errorf("%w: body: %w", ErrInvalidParam, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	action := initial.DeepCopy()
	action.Actuator = KindWebhook
	action.Config = map[string]any{
		"url":     u.String(),
		"method":  method,
		"headers": headers,
	}
	if body, ok := params["body"]; ok {
		action.Config["body"] = body
	}
	onComplete(action, rule)
	return nil
}

// Execute sends the request through the limiter and the host's breaker.
func (w *Webhook) Execute(ctx context.Context, fired automation.Firing, action automation.Action) error {
	target := configString(action.Config, "url")
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: url %q", ErrInvalidParam, target)
	}
	method := configString(action.Config, "method")
	if method == "" {
		method = http.MethodPost
	}

	var body []byte
	if custom, ok := action.Config["body"]; ok {
		body, err = json.Marshal(custom)
	} else {
		body, err = json.Marshal(WebhookBody{
			PuckID:  fired.PuckID,
			Trigger: string(fired.Trigger),
			RuleID:  fired.RuleID,
			FiredAt: time.Now().UTC(),
		})
	}
	if err != nil {
		return fmt.Errorf("encoding webhook body: %w", err)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit: %w", err)
	}

	_, err = w.breakerFor(u.Host).Execute(func() (struct{}, error) {
		return struct{}{}, w.send(ctx, method, u.String(), headersFromConfig(action.Config), body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("webhook %s circuit open: %w", u.Host, err)
	}
	return err
}

func (w *Webhook) send(ctx context.Context, method, target string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "puckcentral-webhook")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort error detail
		return fmt.Errorf("%w: %d %s", ErrHTTPStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
	return nil
}

// breakerFor returns the circuit breaker for host, creating it on first use.
func (w *Webhook) breakerFor(host string) *gobreaker.CircuitBreaker[struct{}] {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cb, ok := w.breakers[host]; ok {
		return cb
	}

	maxFailures := w.breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := w.breaker.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := w.breaker.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "webhook:" + host,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	w.breakers[host] = cb
	return cb
}

// BreakerState reports the breaker state for host; closed if none exists yet.
func (w *Webhook) BreakerState(host string) gobreaker.State {
	w.mu.Lock()
	cb, ok := w.breakers[host]
	w.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func headerParam(params map[string]any) (map[string]string, error) {
	out := map[string]string{}
	raw, ok := params["headers"]
	if !ok || raw == nil {
		return out, nil
	}
	switch h := raw.(type) {
	case map[string]string:
		for k, v := range h {
			out[k] = v
		}
	case map[string]any:
		for k, v := range h {
			s, isString := v.(string)
			if !isString {
				return nil, fmt.Errorf("%w: header %s must be a string", ErrInvalidParam, k)
			}
			out[k] = s
		}
	default:
		return nil, fmt.Errorf("%w: headers must be an object", ErrInvalidParam)
	}
	return out, nil
}

// headersFromConfig reads headers back from stored config, where JSON
// decoding has turned them into map[string]any.
func headersFromConfig(cfg map[string]any) map[string]string {
	h, err := headerParam(cfg)
	if err != nil {
		return nil
	}
	return h
}
