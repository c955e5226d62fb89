package apiclient

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
)

// descriptor is the RequestDescriptor: everything needed to (re)send one
// logical request. The body is buffered so every attempt sends identical bytes.
type descriptor struct {
	method    string
	url       string
	header    http.Header
	body      []byte
	retryable bool
	requestID string

	// retried is set when the request is replayed after a refresh. A replay
	// that still gets 401 is terminal.
	retried bool
	// replayToken, when set, is used instead of reading the store, so a replay
	// carries the token its refresh produced even if persisting it failed.
	replayToken string
	// sentToken is the access token attached to the latest attempt.
	sentToken string

	progress *progressTracker
}

// rawResponse is a 2xx response with its body read.
type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

func (d *descriptor) build(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if d.body != nil {
		body = bytes.NewReader(d.body)
		if d.progress != nil {
			body = d.progress.wrap(body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, d.method, d.url, body)
	if err != nil {
		return nil, &ValidationError{Field: "request", Message: err.Error()}
	}
	if d.body != nil {
		req.ContentLength = int64(len(d.body))
	}
	req.Header = d.header.Clone()
	return req, nil
}

// execute is the whole pipeline for one logical request.
func (c *Client) execute(ctx context.Context, d *descriptor) (*rawResponse, error) {
	resp, err := c.sendWithRetry(ctx, d)
	if err == nil {
		return resp, nil
	}

	cause, unauthorized := isUnauthorized(err)
	if !unauthorized {
		return nil, err
	}
	if d.retried {
		return nil, c.loseSession(ReauthRequired, cause)
	}
	return c.refreshAndReplay(ctx, d, cause)
}

// sendWithRetry is the retry-on-transient stage wrapped around auth-inject and send.
func (c *Client) sendWithRetry(ctx context.Context, d *descriptor) (*rawResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, d)
		if err == nil {
			return resp, nil
		}
		if !c.policy.ShouldRetry(attempt, d.method, d.retryable, err) {
			return nil, err
		}

		delay := c.policy.Delay(attempt)
		c.logger.Debug("retrying request",
			slog.String("method", d.method),
			slog.String("url", d.url),
			slog.String("request_id", d.requestID),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("err", err),
		)
		c.metrics.retries.WithLabelValues(d.method).Inc()
		if c.hooks.OnRetry != nil {
			c.hooks.OnRetry(RetryEvent{
				Method:    d.method,
				URL:       d.url,
				RequestID: d.requestID,
				Attempt:   attempt,
				Delay:     delay,
				Err:       err,
			})
		}

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// send performs one attempt: auth-inject, transport call bounded by
// Config.Timeout, and classification of the outcome.
func (c *Client) send(ctx context.Context, d *descriptor) (*rawResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := d.build(attemptCtx)
	if err != nil {
		return nil, err
	}
	d.sentToken = c.injectAuth(req, d)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &NetworkError{Method: d.method, URL: d.url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &NetworkError{Method: d.method, URL: d.url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Method: d.method, URL: d.url, Status: resp.StatusCode, Body: body}
	}
	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// injectAuth attaches the bearer token, if any, and returns it. A missing
// token is not an error; the request simply goes out unauthenticated.
func (c *Client) injectAuth(req *http.Request, d *descriptor) string {
	token := d.replayToken
	if token == "" {
		if cred := c.store.Get(); cred != nil {
			token = cred.AccessToken
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return token
}

// refreshAndReplay is the refresh-on-401 stage: obtain a fresh token (own
// refresh or a shared one) and resend the original request exactly once.
func (c *Client) refreshAndReplay(ctx context.Context, d *descriptor, cause *HTTPError) (*rawResponse, error) {
	cred, err := c.awaitRefresh(ctx, d.sentToken, cause)
	if err != nil {
		return nil, err
	}

	d.retried = true
	d.replayToken = cred.AccessToken
	c.logger.Debug("replaying request after refresh",
		slog.String("method", d.method),
		slog.String("url", d.url),
		slog.String("request_id", d.requestID),
	)

	resp, err := c.sendWithRetry(ctx, d)
	if err == nil {
		return resp, nil
	}
	if replayCause, unauthorized := isUnauthorized(err); unauthorized {
		return nil, c.loseSession(ReauthRequired, replayCause)
	}
	return nil, err
}

// loseSession clears stored credentials, emits the session-expired signal and
// returns the terminal AuthError.
func (c *Client) loseSession(reason AuthReason, cause error) *AuthError {
	authErr := &AuthError{Reason: reason, Err: cause}

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear tokens", slog.Any("err", err))
	}
	c.logger.Warn("session expired", slog.String("reason", reason.String()), slog.Any("err", cause))

	c.session.emit(SessionEvent{Reason: reason, Err: authErr, At: c.now()})
	return authErr
}
