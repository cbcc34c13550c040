package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/resilience"
	"github.com/maremma/maremma/internal/store"
)

// PushoverPriority mirrors Pushover's priority levels.
type PushoverPriority int

const (
	PushoverPriorityLowest    PushoverPriority = -2
	PushoverPriorityLow       PushoverPriority = -1
	PushoverPriorityNormal    PushoverPriority = 0
	PushoverPriorityHigh      PushoverPriority = 1
	PushoverPriorityEmergency PushoverPriority = 2
)

const pushoverAPIURL = "https://api.pushover.net/1/messages.json"

// pushoverClientError marks a 4xx response: our request was malformed
// or unauthorized, and resending it unchanged would fail identically.
type pushoverClientError struct {
	statusCode int
}

func (e *pushoverClientError) Error() string {
	return fmt.Sprintf("pushover: client error %d (not retried)", e.statusCode)
}

// retryOn5xx treats a pushoverClientError as non-retryable and
// everything else (network errors, 5xx responses) as retryable.
type retryOn5xx struct{}

func (retryOn5xx) IsRetryable(err error) bool {
	var clientErr *pushoverClientError
	return !errors.As(err, &clientErr)
}

// PushoverNotifier posts one message per armed status transition to
// the Pushover API. A 5xx response is retried with backoff; a 4xx
// response is a fatal condition for that invocation only — it is
// logged and dropped, never retried or treated as grounds to disable
// the notifier permanently.
type PushoverNotifier struct {
	Token     string
	UserKey   string
	Priority  PushoverPriority
	ArmStates map[store.CheckStatus]bool

	apiURL      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewPushoverNotifier builds a notifier rate-limited to Pushover's
// published ceiling (7500 messages/month is the free tier; this
// limits burst rate, not the monthly quota).
func NewPushoverNotifier(token, userKey string, armStates map[store.CheckStatus]bool) *PushoverNotifier {
	return &PushoverNotifier{
		Token:       token,
		UserKey:     userKey,
		Priority:    PushoverPriorityNormal,
		ArmStates:   armStates,
		apiURL:      pushoverAPIURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

func (p *PushoverNotifier) Name() string { return "pushover" }

func (p *PushoverNotifier) RunStates() map[store.CheckStatus]bool { return p.ArmStates }

type pushoverPayload struct {
	Token    string `json:"token"`
	User     string `json:"user"`
	Message  string `json:"message"`
	Title    string `json:"title"`
	Priority int    `json:"priority"`
}

func (p *PushoverNotifier) Execute(ctx context.Context, check store.ServiceCheck, service store.Service, result checks.Result) error {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("pushover: rate limiter: %w", err)
	}

	payload := pushoverPayload{
		Token:    p.Token,
		User:     p.UserKey,
		Title:    fmt.Sprintf("%s: %s", service.Name, result.Status),
		Message:  result.ResultText,
		Priority: int(p.Priority),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pushover: marshal payload: %w", err)
	}

	retryPolicy := &resilience.RetryPolicy{
		MaxRetries:    2,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2,
		OperationName: "pushover_notify",
		ErrorChecker:  retryOn5xx{},
	}

	return resilience.WithRetry(ctx, retryPolicy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// Fatal for this invocation: not retryable, and the
			// caller (Dispatch) logs it without disabling the notifier.
			return &pushoverClientError{statusCode: resp.StatusCode}
		default:
			return fmt.Errorf("pushover: server error %d", resp.StatusCode)
		}
	})
}
