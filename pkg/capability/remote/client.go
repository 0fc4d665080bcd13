// Package remote implements a Classifier backed by an HTTP classifier
// service. Requests carry the turn and the policy; the service answers with
// a judgment. Transient failures are retried with exponential backoff, and
// exhausted retries surface as capability.ErrUnavailable so the routing
// engine falls back to manual approval.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"hivemind-hq/scribe/pkg/capability"
)

// Options configures the remote classifier.
type Options struct {
	// BaseURL is the classifier service root, e.g. http://classifier:8090.
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Timeout bounds each HTTP attempt. Defaults to 10s.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Defaults to 2.
	MaxRetries int

	// MaxIdleConns and MaxIdleConnsPerHost tune the connection pool.
	MaxIdleConns        int
	MaxIdleConnsPerHost int

	Logger *slog.Logger
}

// Classifier calls an external classifier service over HTTP.
type Classifier struct {
	opts   Options
	client *http.Client
	logger *slog.Logger

	// mu protects the failure counters below.
	mu                  sync.RWMutex
	consecutiveFailures int
	totalRequests       int64
	failedRequests      int64
}

// consecutive failures before IsHealthy reports false
const unhealthyThreshold = 3

// New creates a remote classifier.
func New(opts Options) *Classifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 20
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Classifier{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		logger: opts.Logger.With("component", "capability.remote"),
	}
}

// wire types for the classifier service

type evaluateRequest struct {
	UserMessage      string     `json:"user_message"`
	AssistantMessage string     `json:"assistant_message"`
	Topics           []string   `json:"topics,omitempty"`
	Policy           wirePolicy `json:"policy"`
}

type wirePolicy struct {
	InclusionCriteria []string  `json:"inclusion_criteria"`
	ExclusionCriteria []string  `json:"exclusion_criteria,omitempty"`
	TriggerKeywords   []string  `json:"trigger_keywords,omitempty"`
	Transformation    wireRules `json:"transformation"`
}

type wireRules struct {
	RemoveNames           bool   `json:"remove_names"`
	RemoveLocations       bool   `json:"remove_locations"`
	RemoveOrganizations   bool   `json:"remove_organizations"`
	GeneralizeSituations  bool   `json:"generalize_situations"`
	PreserveEmotionalTone bool   `json:"preserve_emotional_tone"`
	DetailLevel           string `json:"detail_level"`
	CustomPrompt          string `json:"custom_prompt,omitempty"`
}

type evaluateResponse struct {
	Relevant    bool     `json:"relevant"`
	Reason      string   `json:"reason"`
	Content     string   `json:"content"`
	Topics      []string `json:"topics"`
	Confidence  float64  `json:"confidence"`
	Sensitivity float64  `json:"sensitivity"`
}

// Evaluate sends the turn and policy to the classifier service.
func (c *Classifier) Evaluate(ctx context.Context, req capability.Request) (capability.Judgment, error) {
	body, err := json.Marshal(toWire(req))
	if err != nil {
		return capability.Judgment{}, fmt.Errorf("marshaling classifier request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 500 * time.Millisecond
			c.logger.Debug("retrying classifier request",
				"attempt", attempt,
				"max_retries", c.opts.MaxRetries,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return capability.Judgment{}, c.unavailable(ctx.Err())
			case <-time.After(backoff):
			}
		}

		judgment, retryable, err := c.attempt(ctx, body)
		if err == nil {
			c.recordRequest(true)
			return judgment, nil
		}
		lastErr = err
		c.recordRequest(false)
		if !retryable {
			break
		}
		c.logger.Warn("classifier request failed, will retry",
			"attempt", attempt+1,
			"error", err,
		)
	}

	return capability.Judgment{}, c.unavailable(lastErr)
}

// attempt performs one HTTP round trip. The second return reports whether
// the failure is worth retrying.
func (c *Classifier) attempt(ctx context.Context, body []byte) (capability.Judgment, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return capability.Judgment{}, false, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return capability.Judgment{}, false, ctx.Err()
		}
		return capability.Judgment{}, true, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return capability.Judgment{}, true, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var wire evaluateResponse
		if err := json.Unmarshal(respBody, &wire); err != nil {
			return capability.Judgment{}, false, fmt.Errorf("malformed classifier response: %w", err)
		}
		return fromWire(wire), false, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return capability.Judgment{}, false, fmt.Errorf("classifier rejected credentials: status %d", resp.StatusCode)

	case resp.StatusCode == http.StatusBadRequest:
		return capability.Judgment{}, false, fmt.Errorf("classifier rejected request: %s", truncateBody(respBody))

	default:
		// 5xx and everything else is transient.
		return capability.Judgment{}, true, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, truncateBody(respBody))
	}
}

// IsHealthy reports false after several consecutive failures.
func (c *Classifier) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.consecutiveFailures < unhealthyThreshold
}

// Stats returns total and failed request counts.
func (c *Classifier) Stats() (total, failed int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalRequests, c.failedRequests
}

// Close releases idle connections.
func (c *Classifier) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Classifier) recordRequest(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	if success {
		c.consecutiveFailures = 0
		return
	}
	c.failedRequests++
	c.consecutiveFailures++
	if c.consecutiveFailures == unhealthyThreshold {
		c.logger.Warn("classifier marked unhealthy",
			"consecutive_failures", c.consecutiveFailures,
		)
	}
}

func (c *Classifier) unavailable(cause error) error {
	return fmt.Errorf("%w: %v", capability.ErrUnavailable, cause)
}

func toWire(req capability.Request) evaluateRequest {
	t := req.Policy.Transformation
	return evaluateRequest{
		UserMessage:      req.Turn.UserMessage,
		AssistantMessage: req.Turn.AssistantMessage,
		Topics:           req.Turn.Topics,
		Policy: wirePolicy{
			InclusionCriteria: req.Policy.InclusionCriteria,
			ExclusionCriteria: req.Policy.ExclusionCriteria,
			TriggerKeywords:   req.Policy.TriggerKeywords,
			Transformation: wireRules{
				RemoveNames:           t.RemoveNames,
				RemoveLocations:       t.RemoveLocations,
				RemoveOrganizations:   t.RemoveOrganizations,
				GeneralizeSituations:  t.GeneralizeSituations,
				PreserveEmotionalTone: t.PreserveEmotionalTone,
				DetailLevel:           string(t.DetailLevel),
				CustomPrompt:          t.CustomPrompt,
			},
		},
	}
}

func fromWire(wire evaluateResponse) capability.Judgment {
	return capability.Judgment{
		Relevant:        wire.Relevant,
		Reason:          wire.Reason,
		ProposedContent: wire.Content,
		Topics:          wire.Topics,
		Confidence:      clamp01(wire.Confidence),
		Sensitivity:     clamp01(wire.Sensitivity),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) > limit {
		b = b[:limit]
	}
	return string(b)
}

var _ capability.Classifier = (*Classifier)(nil)
