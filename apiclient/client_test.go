package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avl-fleet/fleetctl/tokenstore"
)

// newTestClient builds a Client against baseURL whose backoff sleeps are
// recorded instead of waited out.
func newTestClient(t *testing.T, baseURL string, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()

	c, err := New(Config{
		BaseURL:        baseURL,
		Timeout:        5 * time.Second,
		RetryBaseDelay: 100 * time.Millisecond,
	}, opts...)
	require.NoError(t, err)

	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{"empty", ""},
		{"no scheme", "api.example.com"},
		{"ftp", "ftp://api.example.com"},
		{"no host", "https://"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{BaseURL: tt.baseURL})
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "baseURL", vErr.Field)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{BaseURL: "https://api.example.com/"}.withDefaults()

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultRetryAttempts, cfg.RetryAttempts)
	assert.Equal(t, DefaultRefreshPath, cfg.RefreshPath)
	assert.Equal(t, 400*time.Millisecond, cfg.RetryDelay(2))

	disabled := Config{BaseURL: "https://api.example.com", RetryAttempts: -1}.withDefaults()
	assert.Equal(t, 0, disabled.RetryAttempts)
}

func TestDo_InjectsBearerToken(t *testing.T) {
	var gotAuth, gotRequestID, gotAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotRequestID.Store(r.Header.Get("X-Request-Id"))
		gotAgent.Store(r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": "u1"}})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.SetTokens(tokenstore.Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	resp, err := c.Get(context.Background(), "/users/u1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer access-1", gotAuth.Load())
	assert.Equal(t, DefaultUserAgent, gotAgent.Load())
	assert.NotEmpty(t, gotRequestID.Load())
	assert.Equal(t, gotRequestID.Load(), resp.RequestID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"u1"}`, string(resp.Data))
}

func TestDo_UnauthenticatedSendsNoHeader(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.Get(context.Background(), "/health")
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load())
	assert.False(t, c.IsAuthenticated())
	assert.Equal(t, "", c.Token())
}

func TestDo_QueryHeaderAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/vehicles", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "trace-1", r.Header.Get("X-Request-Id"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ABC-123", body["licensePlate"])
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]string{"id": "v1"}, "message": "created"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	resp, err := c.Post(context.Background(), "vehicles",
		map[string]string{"licensePlate": "ABC-123"},
		WithQuery(url.Values{"page": {"2"}}),
		WithHeader("X-Request-Id", "trace-1"),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "created", resp.Message)
	assert.Equal(t, "trace-1", resp.RequestID)
}

func TestDo_HTTPErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "vehicle not found"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.Get(context.Background(), "/vehicles/missing")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, "vehicle not found", httpErr.Message())
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ValidationBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing method", Request{Path: "/users"}, "method"},
		{"missing path", Request{Method: http.MethodGet}, "path"},
		{"unencodable body", Request{Method: http.MethodPost, Path: "/users", Body: func() {}}, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Do(ctx, tt.req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestDo_CanceledContextIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/users")
	require.ErrorIs(t, err, context.Canceled)

	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr))
	assert.Empty(t, rec.recorded())
	assert.Equal(t, int32(0), calls.Load())
}

func TestDo_AbsoluteURLBypassesBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/elsewhere", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, "https://api.invalid")
	resp, err := c.Delete(context.Background(), srv.URL+"/elsewhere")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Data)
}

func TestTyped_DecodesData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    []map[string]string{{"id": "c1"}, {"id": "c2"}},
			"meta":    map[string]any{"page": 1, "limit": 2, "total": 4, "totalPages": 2, "hasNext": true},
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	type company struct {
		ID string `json:"id"`
	}
	resp, err := Get[[]company](context.Background(), c, "/companies")
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "c2", resp.Data[1].ID)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	assert.True(t, resp.Meta.HasNext)
}

func TestOnSessionExpired_Unsubscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	var kept, dropped atomic.Int32
	c.OnSessionExpired(func(SessionEvent) { kept.Add(1) })
	unsubscribe := c.OnSessionExpired(func(SessionEvent) { dropped.Add(1) })
	unsubscribe()
	unsubscribe()

	_, err := c.Get(context.Background(), "/users")
	require.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Equal(t, int32(1), kept.Load())
	assert.Equal(t, int32(0), dropped.Load())
}
