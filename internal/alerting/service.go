package alerting

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mr1hm/go-sensor-alerts/internal/metrics"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

const TopicAlerts = "/topic/alerts"

type Broadcaster interface {
	Publish(topic string, msg any)
}

// Service publishes an alert to the stream and starts the channel fan-out
// without waiting for it.
type Service struct {
	dispatcher  *Dispatcher
	broadcaster Broadcaster
	metrics     metrics.Sink
	ctx         context.Context
	wg          sync.WaitGroup
}

func NewService(dispatcher *Dispatcher, broadcaster Broadcaster, sink metrics.Sink) *Service {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Service{
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		metrics:     sink,
		ctx:         context.Background(),
	}
}

func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

func (s *Service) Publish(msg models.AlertMessage) {
	s.PublishTo(msg, nil)
}

// PublishTo restricts the fan-out to the given channel types.
func (s *Service) PublishTo(msg models.AlertMessage, types []string) {
	s.broadcast(msg)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		results := s.dispatcher.DispatchTo(s.ctx, msg, types)
		slog.Info("alert published", "alert_id", msg.ID, "sensor", msg.SensorName, "severity", msg.Severity, "results", results)
	}()
}

// PublishCustom is synchronous so callers can report per-channel results.
func (s *Service) PublishCustom(ctx context.Context, req *models.AlertRequest) (models.AlertMessage, map[string]bool) {
	msg, results := s.dispatcher.DispatchCustom(ctx, req)
	s.broadcast(msg)
	slog.Info("custom alert published", "alert_id", msg.ID, "sensor", msg.SensorName, "results", results)
	return msg, results
}

func (s *Service) broadcast(msg models.AlertMessage) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(TopicAlerts, msg)
	}
	s.metrics.IncrementCounter(metrics.AlertsPublished, map[string]string{"severity": msg.Severity.String()})
}

// Wait blocks until every fan-out started by Publish has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}
