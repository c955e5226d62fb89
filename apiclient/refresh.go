package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/avl-fleet/fleetctl/tokenstore"
)

const refreshKey = "refresh"

// ErrEmptyRefreshResponse is returned when the refresh endpoint answers 2xx
// without an access token.
var ErrEmptyRefreshResponse = errors.New("refresh response has no access token")

// awaitRefresh returns a credential to replay with after a 401 on a request
// sent with sentToken. At most one refresh call is in flight per Client; every
// caller arriving while it runs waits for that call's result.
func (c *Client) awaitRefresh(ctx context.Context, sentToken string, cause *HTTPError) (*tokenstore.Credential, error) {
	c.refreshMu.Lock()
	// A refresh that completed after this request went out already rotated
	// the token; replay with it instead of refreshing again.
	if cur := c.store.Get(); cur != nil && cur.AccessToken != sentToken {
		c.refreshMu.Unlock()
		return cur, nil
	}
	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		c.refreshMu.Unlock()
		return nil, c.loseSession(NoRefreshToken, cause)
	}
	ch := c.refreshes.DoChan(refreshKey, func() (any, error) {
		// Detached from any single caller: one waiter giving up must not fail the others.
		return c.runRefresh(context.WithoutCancel(ctx), refreshToken)
	})
	c.refreshMu.Unlock()

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.coalesced.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tokenstore.Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runRefresh performs the refresh call and applies its outcome to the store.
// Failure clears credentials and emits the session signal exactly once, no
// matter how many requests are waiting.
func (c *Client) runRefresh(ctx context.Context, refreshToken string) (*tokenstore.Credential, error) {
	start := c.now()
	c.logger.Info("refreshing access token")
	if c.hooks.OnRefreshStart != nil {
		c.hooks.OnRefreshStart()
	}

	cred, err := c.requestRefresh(ctx, refreshToken)
	elapsed := c.now().Sub(start)
	if c.hooks.OnRefresh != nil {
		c.hooks.OnRefresh(RefreshEvent{Err: err, Duration: elapsed})
	}

	// The store changes under refreshMu so a late 401 either sees the new
	// state or still finds this flight in the group.
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	// Drop the flight now so a 401 arriving after this point starts a new one
	// instead of joining a finished result.
	c.refreshes.Forget(refreshKey)

	if err != nil {
		c.metrics.refreshes.WithLabelValues("failed").Inc()
		return nil, c.loseSession(RefreshFailed, err)
	}

	c.metrics.refreshes.WithLabelValues("succeeded").Inc()
	if err := c.store.Set(*cred); err != nil {
		// Waiters still replay with the new token.
		c.logger.Warn("failed to persist refreshed tokens", slog.Any("err", err))
	}
	c.logger.Info("access token refreshed", slog.Duration("took", elapsed))
	return cred, nil
}

// refreshPayload is the refresh endpoint's data member.
type refreshPayload struct {
	Token        string `json:"token"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// requestRefresh calls POST {baseURL}{RefreshPath} with {"refreshToken": ...}.
func (c *Client) requestRefresh(ctx context.Context, refreshToken string) (*tokenstore.Credential, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}

	target := c.cfg.BaseURL + "/" + strings.TrimLeft(c.cfg.RefreshPath, "/")
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.refresh.DoWithContext(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &oauth2.RetrieveError{Response: resp, Body: body}
	}

	norm, err := Normalize(body)
	if err != nil {
		return nil, err
	}
	var p refreshPayload
	if err := json.Unmarshal(norm.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}

	access := p.Token
	if access == "" {
		access = p.AccessToken
	}
	if access == "" {
		return nil, ErrEmptyRefreshResponse
	}

	// Servers that do not rotate refresh tokens omit it; keep the old one.
	newRefresh := p.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	return &tokenstore.Credential{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresAt:    ExpiryFor(access, p.ExpiresIn, c.now()),
	}, nil
}

// ExpiryFor computes when an access token expires: now+expiresIn seconds when
// the server said so, otherwise the token's own "exp" claim if it is a JWT,
// otherwise the zero time (no local expiry).
func ExpiryFor(accessToken string, expiresIn int64, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
