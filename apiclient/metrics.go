package apiclient

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fleet_apiclient"

// Request outcomes used as the "outcome" label.
const (
	outcomeSuccess    = "success"
	outcomeHTTPError  = "http_error"
	outcomeNetwork    = "network_error"
	outcomeAuth       = "auth_error"
	outcomeValidation = "validation_error"
	outcomeCanceled   = "canceled"
	outcomeOther      = "error"
)

type metrics struct {
	requests  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	coalesced prometheus.Counter
}

// newMetrics builds the collectors and registers them with reg when non-nil.
// Collectors already registered by another client on the same registry are reused.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Logical API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retries_total",
			Help:      "Transient-failure retries by method.",
		}, []string{"method"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_refreshes_total",
			Help:      "Refresh calls issued, by result.",
		}, []string{"result"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_refresh_coalesced_total",
			Help:      "Requests that joined a refresh already in flight.",
		}),
	}
	if reg == nil {
		return m
	}

	m.requests = register(reg, m.requests)
	m.retries = register(reg, m.retries)
	m.refreshes = register(reg, m.refreshes)
	m.coalesced = register(reg, m.coalesced)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observe(method string, err error) {
	m.requests.WithLabelValues(method, outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	var (
		httpErr  *HTTPError
		netErr   *NetworkError
		authErr  *AuthError
		validErr *ValidationError
	)
	switch {
	case errors.As(err, &authErr):
		return outcomeAuth
	case errors.As(err, &validErr):
		return outcomeValidation
	case errors.As(err, &httpErr):
		return outcomeHTTPError
	case errors.As(err, &netErr):
		return outcomeNetwork
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeOther
	}
}
