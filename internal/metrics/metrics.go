// Package metrics exposes Prometheus collectors for deployment sessions and
// pushes them to a Pushgateway once a session ends.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

const namespace = "deployctl"

// Deployments holds the session collectors on a private registry. It is a
// sequencer.Observer.
type Deployments struct {
	registry *prometheus.Registry
	network  string

	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	sessionsTotal *prometheus.CounterVec
	deployedSteps prometheus.Gauge
}

// NewDeployments registers the collectors. The network is not a metric label;
// Push sends it as the Pushgateway grouping key.
func NewDeployments(network string) *Deployments {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Deployments{
		registry: reg,
		network:  network,
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of deployment steps by outcome",
			},
			[]string{"kind", "status"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time from submission to confirmation of one deployment step",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of deployment sessions by outcome",
			},
			[]string{"status"},
		),
		deployedSteps: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_deployed_steps",
				Help:      "Number of steps deployed by the last session",
			},
		),
	}
}

// Registry returns the private registry.
func (d *Deployments) Registry() *prometheus.Registry {
	return d.registry
}

// SessionStarted implements sequencer.Observer.
func (d *Deployments) SessionStarted(context.Context, []sequencer.Step) {
	d.deployedSteps.Set(0)
}

// StepStarted implements sequencer.Observer.
func (d *Deployments) StepStarted(context.Context, sequencer.Step) {}

// StepFinished implements sequencer.Observer.
func (d *Deployments) StepFinished(_ context.Context, res *sequencer.Result) {
	kind := res.Kind.String()
	d.stepsTotal.WithLabelValues(kind, res.Status.String()).Inc()
	d.stepDuration.WithLabelValues(kind).Observe(res.Duration().Seconds())
	if res.Status == sequencer.StatusDeployed {
		d.deployedSteps.Inc()
	}
}

// SessionFinished implements sequencer.Observer.
func (d *Deployments) SessionFinished(_ context.Context, _ sequencer.Results, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	d.sessionsTotal.WithLabelValues(status).Inc()
}

// Push sends the collected metrics to the Pushgateway at url, grouped by job
// and network.
func (d *Deployments) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(d.registry).
		Grouping("network", d.network).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

var _ sequencer.Observer = (*Deployments)(nil)
