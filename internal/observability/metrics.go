package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa os coletores do serviço.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SSOExchangesTotal *prometheus.CounterVec
	HubValidations    *prometheus.CounterVec
	HubDuration       prometheus.Histogram
	ProfilesCreated   prometheus.Counter
	SessionsIssued    *prometheus.CounterVec
}

// NewMetrics cria e registra os coletores num registry próprio.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsso_http_requests_total",
				Help: "Total de requisições HTTP",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatsso_http_request_duration_seconds",
				Help:    "Duração das requisições HTTP",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		SSOExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsso_sso_exchanges_total",
				Help: "Trocas de token SSO por resultado e etapa final",
			},
			[]string{"outcome", "stage"},
		),
		HubValidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsso_hub_validations_total",
				Help: "Consultas ao Hub por resultado",
			},
			[]string{"result"},
		),
		HubDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatsso_hub_validation_duration_seconds",
				Help:    "Latência da validação no Hub",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8},
			},
		),
		ProfilesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsso_profiles_created_total",
				Help: "Perfis criados no primeiro acesso via SSO",
			},
		),
		SessionsIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsso_sessions_issued_total",
				Help: "Sessões emitidas por modo",
			},
			[]string{"mode"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SSOExchangesTotal,
		m.HubValidations,
		m.HubDuration,
		m.ProfilesCreated,
		m.SessionsIssued,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler expõe o endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry devolve o registry (usado em testes).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHub registra uma consulta ao Hub.
func (m *Metrics) ObserveHub(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.HubValidations.WithLabelValues(result).Inc()
	m.HubDuration.Observe(d.Seconds())
}

// ObserveExchange registra o desfecho de uma troca SSO.
func (m *Metrics) ObserveExchange(outcome, stage string) {
	if m == nil {
		return
	}
	m.SSOExchangesTotal.WithLabelValues(outcome, stage).Inc()
}

// ObserveProfileCreated conta perfis novos.
func (m *Metrics) ObserveProfileCreated() {
	if m == nil {
		return
	}
	m.ProfilesCreated.Inc()
}

// ObserveSession conta sessões emitidas.
func (m *Metrics) ObserveSession(mode string) {
	if m == nil {
		return
	}
	m.SessionsIssued.WithLabelValues(mode).Inc()
}

// HTTPMiddleware mede requisições usando o padrão de rota do chi, nunca a URL crua.
func HTTPMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
