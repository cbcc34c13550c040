package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maremma/maremma/internal/resilience"
	"github.com/maremma/maremma/internal/store"
)

// HTTPRunner builds https://<hostname>/<http_uri?> and compares the
// response status to the configured expectation (default 200).
// Transport errors get one retry through internal/resilience before
// being reported critical.
type HTTPRunner struct{}

func (HTTPRunner) Run(ctx context.Context, target Target) (Result, error) {
	start := now()
	method := stringParam(target.ExtraConfig, "method", "GET")
	uri := stringParam(target.ExtraConfig, "http_uri", "")
	expectedStatus := intParam(target.ExtraConfig, "http_status", http.StatusOK)
	timeout := durationSecondsParam(target.ExtraConfig, "timeout", 10*time.Second)

	url := fmt.Sprintf("https://%s/%s", target.Host.Hostname, uri)

	client := &http.Client{Timeout: timeout}

	var resp *http.Response
	retryPolicy := &resilience.RetryPolicy{
		MaxRetries:    1,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		Multiplier:    2,
		OperationName: "http_probe",
	}
	err := resilience.WithRetry(ctx, retryPolicy, func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return err
		}
		resp, err = client.Do(req)
		return err
	})
	if err != nil {
		return Result{
			Status:      store.StatusCritical,
			ResultText:  resilience.Classify(err).Error(),
			TimeElapsed: time.Since(start),
			Timestamp:   now(),
		}, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	status := store.StatusOK
	text := "OK"
	if resp.StatusCode != expectedStatus {
		status = store.StatusCritical
		text = fmt.Sprintf("expected status %d, got %d", expectedStatus, resp.StatusCode)
	}

	return Result{
		Status:      status,
		ResultText:  text,
		TimeElapsed: time.Since(start),
		Timestamp:   now(),
	}, nil
}
