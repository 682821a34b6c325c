package restapi

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Retry policy for idempotent calls. The budget is deliberately small
// and the delays short: every caller is either interactive or runs on
// the thread poll ticker, so an endpoint that needs more than a couple
// of seconds of coaxing should fail now and let the next trigger try
// again.
const (
	defaultMaxRetries = 2
	retryBaseDelay    = 500 * time.Millisecond
	retryMaxDelay     = 2 * time.Second
)

// retryDelay doubles per attempt up to the cap, plus jitter.
func retryDelay(attempt int) time.Duration {
	d := retryBaseDelay << (attempt - 1)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d + time.Duration(rand.Int63n(int64(d/2+1)))
}

// transientStatus reports whether a response is worth retrying.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// doWithRetry runs an idempotent request, retrying network errors and
// transient statuses up to the client's retry budget. Never used for
// Send: a retried POST could double-send a message. A retry is skipped
// when its delay would not fit in the caller's remaining deadline.
func (c *Client) doWithRetry(ctx context.Context, buildReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if attempt > c.retries {
				return nil, fmt.Errorf("giving up after %d retries: %w", c.retries, lastErr)
			}
			delay := retryDelay(attempt)
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
				return nil, fmt.Errorf("no time left to retry: %w", lastErr)
			}
			c.logger.Warn("retrying request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if transientStatus(resp.StatusCode) {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
			continue
		}
		return resp, nil
	}
}
