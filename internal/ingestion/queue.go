package ingestion

import (
	"sync"
	"time"

	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

// Queue is an unbounded in-memory FIFO. Producers never block on a slow
// drainer; memory grows instead.
type Queue struct {
	mu   sync.Mutex
	data []models.SensorReading
	now  func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Enqueue stamps the submission time and appends the reading.
func (q *Queue) Enqueue(r models.SensorReading) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = q.now()
	}
	q.data = append(q.data, r)
}

// Drain removes and returns everything currently queued.
func (q *Queue) Drain() []models.SensorReading {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	out := q.data
	q.data = nil
	return out
}

// Requeue puts readings back at the head, ahead of anything enqueued since
// they were drained.
func (q *Queue) Requeue(rs []models.SensorReading) {
	if len(rs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]models.SensorReading, 0, len(rs)+len(q.data))
	merged = append(merged, rs...)
	q.data = append(merged, q.data...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}
