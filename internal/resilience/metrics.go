package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stateGauge  *prometheus.GaugeVec
	transitions *prometheus.CounterVec
)

// RegisterMetrics exposes breaker state on reg. Calling it again with the same
// registry reuses the existing collectors.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tagihan",
		Name:      "breaker_state",
		Help:      "Breaker state per dependency: 0=closed, 1=open, 2=half-open.",
	}, []string{"dependency"})
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagihan",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state transitions per dependency.",
	}, []string{"dependency", "from", "to"})

	var err error
	if g, err = reuse(reg, g); err != nil {
		return err
	}
	if c, err = reuse(reg, c); err != nil {
		return err
	}
	stateGauge, transitions = g, c
	return nil
}

func reuse[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
