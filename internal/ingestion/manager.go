package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-sensor-alerts/internal/classifier"
	"github.com/mr1hm/go-sensor-alerts/internal/config"
	"github.com/mr1hm/go-sensor-alerts/internal/metrics"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
	"github.com/mr1hm/go-sensor-alerts/internal/repository"
	"github.com/mr1hm/go-sensor-alerts/internal/worker"
)

var (
	ErrSensorNotFound = errors.New("sensor not found")
	ErrSensorInactive = errors.New("sensor inactive")
)

// Publisher receives alerts for events at WARN or above. Publish must
// return as soon as fan-out has been started.
type Publisher interface {
	Publish(msg models.AlertMessage)
}

type Stats struct {
	Received   int64         `json:"received"`
	Processed  int64         `json:"processed"`
	Dropped    int64         `json:"dropped"`
	Failed     int64         `json:"failed"`
	Alerts     int64         `json:"alerts"`
	Queued     int           `json:"queued"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}

type Manager struct {
	cfg        config.WorkerConfig
	sensors    repository.SensorRepository
	persister  *Persister
	classifier *classifier.Classifier
	publisher  Publisher
	metrics    metrics.Sink
	queue      *Queue
	pool       *worker.WorkerPool
	now        func() time.Time

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once

	received     atomic.Int64
	processed    atomic.Int64
	dropped      atomic.Int64
	failed       atomic.Int64
	alerts       atomic.Int64
	latencyNanos atomic.Int64
	latencyCount atomic.Int64
}

func NewManager(cfg *config.Config, repo repository.Store, cls *classifier.Classifier, publisher Publisher, sink metrics.Sink) *Manager {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Manager{
		cfg:        cfg.Worker,
		sensors:    repo,
		persister:  NewPersister(repo),
		classifier: cls,
		publisher:  publisher,
		metrics:    sink,
		queue:      NewQueue(),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
}

func (m *Manager) Start(ctx context.Context) {
	processor := func(ctx context.Context, job worker.Job) error {
		reading := job.(models.SensorReading)
		_, err := m.process(ctx, reading)
		if errors.Is(err, ErrSensorNotFound) || errors.Is(err, ErrSensorInactive) {
			slog.Debug("reading dropped", "sensor_id", reading.SensorID, "reason", err)
			return nil
		}
		return err
	}

	m.pool = worker.NewWorkerPool("ingestion", m.cfg.Count, m.cfg.BufferSize, processor)
	m.pool.Start(ctx)

	m.wg.Add(1)
	go m.runDrainer(ctx)

	slog.Info("ingestion manager started", "workers", m.cfg.Count, "drain_interval", m.cfg.DrainInterval)
}

func (m *Manager) runDrainer(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.drain()
		}
	}
}

// drain hands the queued readings to the pool without waiting for them.
// Whatever does not fit in the pool buffer goes back to the queue head.
func (m *Manager) drain() {
	readings := m.queue.Drain()
	for i, r := range readings {
		if !m.pool.TrySubmit(r) {
			m.queue.Requeue(readings[i:])
			slog.Debug("worker pool saturated, requeued readings", "count", len(readings)-i)
			return
		}
	}
}

// Enqueue never blocks and never fails.
func (m *Manager) Enqueue(r models.SensorReading) {
	m.received.Add(1)
	m.queue.Enqueue(r)
}

// IngestNow runs the whole pipeline inline and returns the persisted event.
func (m *Manager) IngestNow(ctx context.Context, r models.SensorReading) (*models.SensorEvent, error) {
	m.received.Add(1)
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = m.now()
	}
	return m.process(ctx, r)
}

func (m *Manager) process(ctx context.Context, r models.SensorReading) (event *models.SensorEvent, err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		m.metrics.RecordDuration(metrics.EventsLatency, elapsed)
		m.latencyNanos.Add(int64(elapsed))
		m.latencyCount.Add(1)
	}()

	sensor, err := m.sensors.FindSensorByID(ctx, r.SensorID)
	if errors.Is(err, repository.ErrNotFound) {
		m.dropped.Add(1)
		return nil, ErrSensorNotFound
	}
	if err != nil {
		m.failed.Add(1)
		return nil, fmt.Errorf("error looking up sensor %s: %w", r.SensorID, err)
	}
	if !sensor.Active {
		m.dropped.Add(1)
		return nil, ErrSensorInactive
	}

	typ := r.Type
	if typ == "" {
		typ = sensor.Type
	}

	now := m.now()
	severity := m.classifier.Classify(typ, r.Value, now)
	if r.Severity != nil {
		severity = *r.Severity
	}
	defer m.metrics.IncrementCounter(metrics.EventsProcessed, map[string]string{
		"type":     string(typ),
		"severity": severity.String(),
	})

	event = &models.SensorEvent{
		SensorID:  sensor.ID,
		Type:      typ,
		Value:     r.Value,
		Severity:  severity,
		Timestamp: now,
	}
	if _, err := m.persister.Save(ctx, event); err != nil {
		m.failed.Add(1)
		slog.Error("error persisting event", "sensor_id", sensor.ID, "error", err)
		return nil, err
	}
	m.processed.Add(1)

	if severity.AtLeast(models.SeverityWarn) && m.publisher != nil {
		m.alerts.Add(1)
		m.publisher.Publish(models.NewAlertMessage(sensor, event))
	}

	slog.Debug("event processed", "event_id", event.ID, "sensor_id", sensor.ID, "severity", severity)
	return event, nil
}

func (m *Manager) Stats() Stats {
	s := Stats{
		Received:  m.received.Load(),
		Processed: m.processed.Load(),
		Dropped:   m.dropped.Load(),
		Failed:    m.failed.Load(),
		Alerts:    m.alerts.Load(),
		Queued:    m.queue.Len(),
	}
	if n := m.latencyCount.Load(); n > 0 {
		s.AvgLatency = time.Duration(m.latencyNanos.Load() / n)
	}
	return s
}

// Stop halts draining, then waits for in-flight readings. Readings still
// queued are abandoned.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
	if m.pool != nil {
		m.pool.Stop()
	}
	slog.Info("ingestion manager stopped", "abandoned", m.queue.Len())
}
