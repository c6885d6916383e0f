// Package transform drives third-party AI media endpoints through a
// bounded retry/backoff executor that classifies ambiguous responses by
// inspecting their payloads.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Outcome is the tagged decoding of a 200 response from an external AI
// endpoint, decoded once at the boundary instead of probing fields ad hoc.
type Outcome interface{ outcome() }

// Success carries a usable response body (image bytes or a JSON result).
type Success struct {
	Body []byte
}

// StructuredError is a 200-status response carrying an embedded error
// object. RetryDelay is a server-suggested wait when one was discoverable.
type StructuredError struct {
	Message    string
	RetryDelay time.Duration
	HasDelay   bool
}

// UnknownShape is a response that is neither a usable result nor a
// recognizable error; treated as terminal.
type UnknownShape struct {
	Raw []byte
}

func (Success) outcome()         {}
func (StructuredError) outcome() {}
func (UnknownShape) outcome()    {}

// TerminalError marks a failure that must not be retried.
type TerminalError struct {
	msg string
}

func (e *TerminalError) Error() string { return e.msg }

func terminal(format string, args ...interface{}) *TerminalError {
	return &TerminalError{msg: fmt.Sprintf(format, args...)}
}

// IsTerminal reports whether err was classified non-retryable.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// Executor wraps an external HTTP call with bounded retries. Transient
// failures (5xx, network, 429, rate-limit-shaped 200 bodies) are retried
// with exponential backoff unless the upstream suggests a concrete delay;
// everything else is terminal. There is no wall-clock bound beyond the
// attempt cap; callers impose deadlines through ctx.
type Executor struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	RetryAfterMargin time.Duration
	MinImageBytes    int
	Extractors       []DelayExtractor

	client *http.Client
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor with the default policy: 3 attempts, 2s
// initial delay, 1s retry-after margin, 1 KiB minimum image size.
func NewExecutor(client *http.Client, logger zerolog.Logger) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Executor{
		MaxAttempts:      3,
		InitialDelay:     2 * time.Second,
		RetryAfterMargin: time.Second,
		MinImageBytes:    1024,
		Extractors:       DefaultExtractors(),
		client:           client,
		logger:           logger,
		sleep:            ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// verdict is the classification of a single attempt.
type verdict struct {
	body        []byte
	err         error
	retry       bool
	serverDelay time.Duration
	hasDelay    bool
}

// Do executes the request built by build, retrying per policy. build is
// invoked once per attempt so request bodies are fresh each time.
func (e *Executor) Do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	delay := e.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		v := e.attempt(ctx, build)
		if v.err == nil {
			return v.body, nil
		}
		if !v.retry {
			return nil, v.err
		}
		lastErr = v.err

		if attempt >= e.MaxAttempts {
			break
		}

		wait := delay
		if v.hasDelay {
			wait = v.serverDelay + e.RetryAfterMargin
		} else {
			delay *= 2
		}
		if wait < 0 {
			wait = 0
		}

		e.logger.Warn().
			Err(v.err).
			Int("attempt", attempt).
			Int("max_attempts", e.MaxAttempts).
			Dur("retry_delay", wait).
			Msg("retrying external call")

		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("transform: giving up after %d attempts: %w", e.MaxAttempts, lastErr)
}

func (e *Executor) attempt(ctx context.Context, build func() (*http.Request, error)) verdict {
	req, err := build()
	if err != nil {
		return verdict{err: terminal("transform: build request: %v", err)}
	}

	resp, err := e.client.Do(req.WithContext(ctx))
	if err != nil {
		return verdict{err: fmt.Errorf("transform: %w", err), retry: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return verdict{err: fmt.Errorf("transform: read response: %w", err), retry: true}
	}

	switch {
	case resp.StatusCode >= 500:
		return verdict{
			err:   fmt.Errorf("transform: upstream status %d: %s", resp.StatusCode, snippet(body)),
			retry: true,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		v := verdict{
			err:   fmt.Errorf("transform: upstream rate limited (429)"),
			retry: true,
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil && secs >= 0 {
				v.serverDelay = time.Duration(secs) * time.Second
				v.hasDelay = true
			}
		}
		return v

	case resp.StatusCode >= 400:
		return verdict{err: terminal("transform: upstream status %d: %s", resp.StatusCode, snippet(body))}
	}

	return e.classifyOK(body)
}

// classifyOK decodes a 2xx body into an Outcome and maps it to a verdict.
// Some upstreams return HTTP 200 with an embedded error object, or an
// "image" that is really an error page; both are detected here.
func (e *Executor) classifyOK(body []byte) verdict {
	switch o := e.DecodeOutcome(body).(type) {
	case Success:
		return verdict{body: o.Body}

	case StructuredError:
		if o.HasDelay {
			return verdict{
				err:         fmt.Errorf("transform: upstream error: %s", o.Message),
				retry:       true,
				serverDelay: o.RetryDelay,
				hasDelay:    true,
			}
		}
		if mentionsRateLimit(o.Message) {
			return verdict{err: fmt.Errorf("transform: upstream error: %s", o.Message), retry: true}
		}
		return verdict{err: terminal("transform: upstream error: %s", o.Message)}

	case UnknownShape:
		if LooksLikeMarkup(o.Raw) {
			return verdict{err: terminal("transform: upstream returned an error page: %s", snippet(o.Raw))}
		}
		return verdict{err: terminal("transform: unrecognized response payload: %s", snippet(o.Raw))}
	}
	return verdict{err: terminal("transform: unreachable outcome")}
}

// DecodeOutcome turns a raw 200 body into a tagged Outcome.
func (e *Executor) DecodeOutcome(body []byte) Outcome {
	if LooksLikeJSON(body) {
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return UnknownShape{Raw: body}
		}
		if msg, isErr := errorMessage(payload); isErr {
			se := StructuredError{Message: msg}
			for _, ex := range e.Extractors {
				if d, ok := ex.Extract(msg, payload); ok {
					se.RetryDelay = d
					se.HasDelay = true
					break
				}
			}
			return se
		}
		return Success{Body: body}
	}

	if format := DetectImageFormat(body); format != "" {
		// A plausible image below the size floor is suspect: decode it
		// before trusting it.
		if len(body) < e.MinImageBytes && !DecodesAsImage(body) {
			return UnknownShape{Raw: body}
		}
		return Success{Body: body}
	}

	// Not JSON and no image signature: an error page or garbage.
	return UnknownShape{Raw: body}
}

// errorMessage detects an embedded error object in a decoded 200 payload
// and returns its message.
func errorMessage(payload map[string]interface{}) (string, bool) {
	if v, ok := payload["error"]; ok {
		switch t := v.(type) {
		case string:
			return t, true
		case map[string]interface{}:
			if msg, ok := t["message"].(string); ok {
				return msg, true
			}
			return "upstream error", true
		case bool:
			if !t {
				return "", false
			}
			if msg, ok := payload["message"].(string); ok {
				return msg, true
			}
			return "upstream error", true
		}
	}
	if ok, present := payload["success"].(bool); present && !ok {
		if msg, has := payload["message"].(string); has {
			return msg, true
		}
		return "upstream reported failure", true
	}
	return "", false
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
