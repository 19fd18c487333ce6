package urlqueue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sethvargo/go-retry"

	"github.com/roach88/sqlscript/internal/sqlerr"
)

// parseMethod maps a stored action to an HTTP method.
func parseMethod(action string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "", "GET":
		return http.MethodGet, nil
	case "POST", "+":
		return http.MethodPost, nil
	case "PUT":
		return http.MethodPut, nil
	case "DELETE":
		return http.MethodDelete, nil
	}
	return "", sqlerr.New(sqlerr.KindConfig, "unsupported HTTP verb %q", action)
}

// deliver performs one request, retrying network errors and 5xx responses.
func (q *Queue) deliver(ctx context.Context, method, url, payload string) error {
	backoff := retry.WithMaxRetries(q.retries, retry.NewExponential(q.backoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var body io.Reader
		if method != http.MethodGet && payload != "" {
			body = strings.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", contentType(payload))
		}

		resp, err := q.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("server returned %s", resp.Status))
		case resp.StatusCode >= 300:
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return nil
	})
}

// contentType guesses JSON for payloads that look like JSON.
func contentType(payload string) string {
	p := strings.TrimSpace(payload)
	if strings.HasPrefix(p, "{") || strings.HasPrefix(p, "[") {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}
