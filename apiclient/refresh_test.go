package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/avl-fleet/fleetctl/tokenstore"
)

// authServer serves /auth/refresh and a protected /vehicles endpoint that
// accepts only the token named in valid.
type authServer struct {
	refreshCalls   atomic.Int32
	protectedCalls atomic.Int32

	mu    sync.Mutex
	valid string

	refreshDelay  time.Duration
	refreshStatus int
	refreshBody   any
	lastRefresh   map[string]string
}

func (s *authServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.lastRefresh = body
		s.mu.Unlock()

		time.Sleep(s.refreshDelay)
		if s.refreshStatus != 0 && s.refreshStatus != http.StatusOK {
			writeJSON(w, s.refreshStatus, map[string]any{"success": false, "message": "invalid refresh token"})
			return
		}
		writeJSON(w, http.StatusOK, s.refreshBody)
	})
	mux.HandleFunc("GET /vehicles", func(w http.ResponseWriter, r *http.Request) {
		s.protectedCalls.Add(1)
		s.mu.Lock()
		valid := s.valid
		s.mu.Unlock()
		if valid == "" || r.Header.Get("Authorization") != "Bearer "+valid {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []string{"v1"}})
	})
	return mux
}

func (s *authServer) refreshRequest() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

func TestRefresh_ReplaysWithNewToken(t *testing.T) {
	as := &authServer{
		valid:       "access-2",
		refreshBody: map[string]any{"success": true, "data": map[string]any{"token": "access-2", "refreshToken": "refresh-2", "expiresIn": 3600}},
	}
	srv := httptest.NewServer(as.handler())
	defer srv.Close()

	var events []string
	c, _ := newTestClient(t, srv.URL, WithHooks(Hooks{
		OnRefreshStart: func() {
			assert.Zero(t, as.refreshCalls.Load(), "start fires before the refresh call")
			events = append(events, "start")
		},
		OnRefresh: func(ev RefreshEvent) {
			assert.NoError(t, ev.Err)
			events = append(events, "done")
		},
	}))
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	resp, err := c.Get(context.Background(), "/vehicles")
	require.NoError(t, err)
	assert.JSONEq(t, `["v1"]`, string(resp.Data))

	assert.Equal(t, int32(1), as.refreshCalls.Load())
	assert.Equal(t, int32(2), as.protectedCalls.Load())
	assert.Equal(t, map[string]string{"refreshToken": "refresh-1"}, as.refreshRequest())
	assert.Equal(t, []string{"start", "done"}, events)

	cred := c.store.Get()
	require.NotNil(t, cred)
	assert.Equal(t, "access-2", cred.AccessToken)
	assert.Equal(t, "refresh-2", cred.RefreshToken)
	assert.False(t, cred.ExpiresAt.IsZero())
}

func TestRefresh_FlatResponseKeepsRefreshToken(t *testing.T) {
	as := &authServer{
		valid:       "access-2",
		refreshBody: map[string]any{"token": "access-2"},
	}
	srv := httptest.NewServer(as.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	_, err := c.Get(context.Background(), "/vehicles")
	require.NoError(t, err)

	cred := c.store.Get()
	require.NotNil(t, cred)
	assert.Equal(t, "access-2", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.True(t, cred.ExpiresAt.IsZero())
}

func TestRefresh_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const requests = 5

	as := &authServer{
		valid:        "access-2",
		refreshDelay: 100 * time.Millisecond,
		refreshBody:  map[string]any{"data": map[string]any{"token": "access-2", "refreshToken": "refresh-2"}},
	}

	// Hold every stale request until all have arrived so each one joins the
	// same pending refresh.
	var arrived sync.WaitGroup
	arrived.Add(requests)
	var protectedCalls atomic.Int32
	mux := http.NewServeMux()
	mux.Handle("POST /auth/refresh", as.handler())
	mux.HandleFunc("GET /vehicles", func(w http.ResponseWriter, r *http.Request) {
		protectedCalls.Add(1)
		if r.Header.Get("Authorization") == "Bearer access-1" {
			arrived.Done()
			arrived.Wait()
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
			return
		}
		as.handler().ServeHTTP(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	var wg sync.WaitGroup
	errs := make(chan error, requests)
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "/vehicles")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), as.refreshCalls.Load(), "concurrent 401s must share one refresh")
	assert.Equal(t, int32(2*requests), protectedCalls.Load(), "every request replays once")
	assert.Equal(t, "access-2", c.Token())
}

func TestRefresh_FailureClearsStoreAndSignalsOnce(t *testing.T) {
	const requests = 3

	as := &authServer{
		refreshDelay:  100 * time.Millisecond,
		refreshStatus: http.StatusUnauthorized,
	}

	// Hold every protected request until all have arrived so they all carry
	// the same stale token into the refresh.
	var arrived sync.WaitGroup
	arrived.Add(requests)
	mux := http.NewServeMux()
	mux.Handle("POST /auth/refresh", as.handler())
	mux.HandleFunc("GET /vehicles", func(w http.ResponseWriter, r *http.Request) {
		arrived.Done()
		arrived.Wait()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	var events atomic.Int32
	var lastReason atomic.Value
	c.OnSessionExpired(func(ev SessionEvent) {
		events.Add(1)
		lastReason.Store(ev.Reason)
	})

	var wg sync.WaitGroup
	errs := make(chan error, requests)
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "/vehicles")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, ErrRefreshFailed)

		var retrieveErr *oauth2.RetrieveError
		require.ErrorAs(t, err, &retrieveErr)
		assert.Equal(t, http.StatusUnauthorized, retrieveErr.Response.StatusCode)
	}
	assert.Equal(t, int32(1), as.refreshCalls.Load())
	assert.Equal(t, int32(1), events.Load())
	assert.Equal(t, RefreshFailed, lastReason.Load())
	assert.Nil(t, c.store.Get())
	assert.Equal(t, "", c.store.RefreshToken())
}

func TestRefresh_ReplayRejectedIsReauthRequired(t *testing.T) {
	as := &authServer{
		// The server never accepts any token.
		refreshBody: map[string]any{"data": map[string]any{"token": "access-2", "refreshToken": "refresh-2"}},
	}
	srv := httptest.NewServer(as.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	var events atomic.Int32
	c.OnSessionExpired(func(SessionEvent) { events.Add(1) })

	_, err := c.Get(context.Background(), "/vehicles")
	require.ErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, 401, StatusCode(err))

	assert.Equal(t, int32(1), as.refreshCalls.Load(), "a replay is never refreshed again")
	assert.Equal(t, int32(2), as.protectedCalls.Load())
	assert.Equal(t, int32(1), events.Load())
	assert.False(t, c.IsAuthenticated())
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	as := &authServer{}
	srv := httptest.NewServer(as.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1"}))

	_, err := c.Get(context.Background(), "/vehicles")
	require.ErrorIs(t, err, ErrNoRefreshToken)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, NoRefreshToken, authErr.Reason)
	assert.Equal(t, int32(0), as.refreshCalls.Load())
	assert.Nil(t, c.store.Get())
}

func TestRefresh_StaleTokenReplaysWithoutRefreshing(t *testing.T) {
	var c *Client
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /vehicles", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer rotated":
			writeJSON(w, http.StatusOK, map[string]any{"data": "ok"})
		default:
			// Another caller rotated the token while this request was in flight.
			_ = c.SetTokens(tokenstore.Credential{AccessToken: "rotated", RefreshToken: "refresh-2"})
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ = newTestClient(t, srv.URL)
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	resp, err := c.Get(context.Background(), "/vehicles")
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(resp.Data))
	assert.Equal(t, int32(0), refreshCalls.Load())
}

// notifyingStore runs onSet after every successful Set.
type notifyingStore struct {
	tokenstore.TokenStore
	onSet func(tokenstore.Credential)
}

func (s *notifyingStore) Set(cred tokenstore.Credential) error {
	if err := s.TokenStore.Set(cred); err != nil {
		return err
	}
	if s.onSet != nil {
		s.onSet(cred)
	}
	return nil
}

func TestRefresh_UnauthorizedRightAfterRefreshStartsNewOne(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		n := refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"token":        fmt.Sprintf("access-%d", n+1),
			"refreshToken": fmt.Sprintf("refresh-%d", n+1),
		}})
	})
	mux.HandleFunc("GET /vehicles", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer access-2", "Bearer access-3":
			writeJSON(w, http.StatusOK, map[string]any{"data": "ok"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	// The server revokes access-2 here the moment it is issued.
	mux.HandleFunc("GET /trips", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer access-3" {
			writeJSON(w, http.StatusOK, map[string]any{"data": "ok"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &notifyingStore{TokenStore: tokenstore.NewMemory()}
	c, _ := newTestClient(t, srv.URL, WithTokenStore(store))
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	// The late request is sent with the freshly stored token while the first
	// refresh still holds the refresh lock.
	late := make(chan error, 1)
	var once sync.Once
	store.onSet = func(cred tokenstore.Credential) {
		if cred.AccessToken != "access-2" {
			return
		}
		once.Do(func() {
			go func() {
				_, err := c.Get(context.Background(), "/trips")
				late <- err
			}()
		})
	}

	_, err := c.Get(context.Background(), "/vehicles")
	require.NoError(t, err)
	require.NoError(t, <-late)
	assert.Equal(t, int32(2), refreshCalls.Load())
	assert.Equal(t, "access-3", c.Token())
}

func TestRefresh_EmptyTokenInResponseFails(t *testing.T) {
	as := &authServer{refreshBody: map[string]any{"success": true, "data": map[string]any{"refreshToken": "refresh-2"}}}
	srv := httptest.NewServer(as.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	_, err := c.Get(context.Background(), "/vehicles")
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, ErrEmptyRefreshResponse)
}

func TestExpiryFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	exp := now.Add(2 * time.Hour)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "u1",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		token     string
		expiresIn int64
		want      time.Time
	}{
		{"expiresIn wins", signed, 60, now.Add(time.Minute)},
		{"jwt exp claim", signed, 0, exp},
		{"jwt without exp", noExp, 0, time.Time{}},
		{"opaque token", "opaque-token", 0, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpiryFor(tt.token, tt.expiresIn, now)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}
