// Package simulator generates synthetic scale-device traffic: each simulated
// device publishes movement payloads to the movement queue the way real
// shelf firmware would.
package simulator

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shelfsense/shelfd/pkg/metrics"
	"github.com/shelfsense/shelfd/pkg/mq"
	"github.com/shelfsense/shelfd/pkg/scale"
)

// Simulator is one fake scale device publishing movements to the queue.
type Simulator struct {
	MQClient  mq.ClientInterface
	Device    *scale.Device
	generator *scale.MovementGenerator
	metrics   *metrics.SimulatorMetrics // Optional metrics
}

// NewSimulator creates a simulator with a fabricated device identity.
func NewSimulator(mqClient mq.ClientInterface) (*Simulator, error) {
	device, err := scale.NewDevice()
	if err != nil {
		return nil, err
	}
	return &Simulator{
		MQClient:  mqClient,
		Device:    device,
		generator: scale.NewMovementGenerator(device.DeviceID),
	}, nil
}

// SetMetrics sets the metrics collector for this simulator. Call it before
// publishing starts.
func (s *Simulator) SetMetrics(m *metrics.SimulatorMetrics) {
	s.metrics = m
}

// PublishMovement generates one movement payload, single or batch, and
// pushes it to the queue.
func (s *Simulator) PublishMovement(ctx context.Context) error {
	payload, kind, err := s.generator.GeneratePayload(time.Now())
	if err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues(kind, "marshal_error").Inc()
		}
		return err
	}

	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.GenerationDuration.WithLabelValues(kind))
		defer timer.ObserveDuration()
	}

	if err := s.MQClient.Push(ctx, payload); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues(kind, "push_error").Inc()
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.PayloadsGenerated.WithLabelValues(kind).Inc()
		s.metrics.MovementsGenerated.Inc()
	}
	return nil
}
