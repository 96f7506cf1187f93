package metrics

import (
	"net"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/jaeger"
	"contrib.go.opencensus.io/exporter/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"
)

// Namespace prefixes every exported metric name.
const Namespace = "porep"

// PrometheusEndpoint serves the registered views at /metrics.
type PrometheusEndpoint struct {
	exporter *prometheus.Exporter
	ln       net.Listener
	srv      *http.Server
}

// RegisterPrometheusEndpoint exports every view to prometheus and serves
// them on addr. An addr with port 0 picks a free port; Addr reports it.
func RegisterPrometheusEndpoint(addr string, reportInterval time.Duration) (*PrometheusEndpoint, error) {
	registry := prom.NewRegistry()
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: Namespace,
		Registry:  registry,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create the prometheus stats exporter: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Errorf("listening for prometheus on %s: %w", addr, err)
	}

	view.RegisterExporter(pe)
	if reportInterval > 0 {
		view.SetReportingPeriod(reportInterval)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", pe)
	e := &PrometheusEndpoint{exporter: pe, ln: ln, srv: &http.Server{Handler: mux}}
	go func() {
		if err := e.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("failed to serve /metrics endpoint on %s: %s", ln.Addr(), err)
		}
	}()
	log.Infof("serving metrics at http://%s/metrics", ln.Addr())
	return e, nil
}

// Addr returns the address the endpoint listens on.
func (e *PrometheusEndpoint) Addr() string {
	return e.ln.Addr().String()
}

// Close stops serving and unregisters the exporter.
func (e *PrometheusEndpoint) Close() error {
	view.UnregisterExporter(e.exporter)
	return e.srv.Close()
}

// Tracer exports spans to a jaeger agent.
type Tracer struct {
	exporter *jaeger.Exporter
}

// RegisterJaeger exports spans of serviceName to the jaeger agent at
// agentEndpoint, sampling the given fraction of traces.
func RegisterJaeger(serviceName, agentEndpoint string, probability float64) (*Tracer, error) {
	if agentEndpoint == "" {
		return nil, xerrors.New("jaeger agent endpoint must be set")
	}
	je, err := jaeger.NewExporter(jaeger.Options{
		AgentEndpoint: agentEndpoint,
		Process: jaeger.Process{
			ServiceName: serviceName,
		},
		OnError: func(err error) {
			log.Warnf("exporting spans: %s", err)
		},
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create the jaeger exporter: %w", err)
	}

	trace.RegisterExporter(je)
	trace.ApplyConfig(trace.Config{DefaultSampler: trace.ProbabilitySampler(probability)})
	log.Infof("exporting traces of %s to jaeger agent %s", serviceName, agentEndpoint)
	return &Tracer{exporter: je}, nil
}

// Close flushes buffered spans and unregisters the exporter.
func (t *Tracer) Close() error {
	trace.UnregisterExporter(t.exporter)
	t.exporter.Flush()
	return nil
}
