package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "voxrec"

// register registers every collector, stopping at the first failure.
func register(registry prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
