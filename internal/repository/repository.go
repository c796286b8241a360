package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

type EventFilter struct {
	Type     *models.SensorType
	Severity *models.Severity
	From     *time.Time
	To       *time.Time
	Page     int // zero based
	Size     int
}

type EventPage struct {
	Events []models.SensorEvent `json:"events"`
	Total  int                  `json:"total"`
	Page   int                  `json:"page"`
	Size   int                  `json:"size"`
}

type SensorRepository interface {
	SaveSensor(ctx context.Context, s *models.Sensor) error
	FindSensorByID(ctx context.Context, id string) (*models.Sensor, error)
	SetSensorActive(ctx context.Context, id string, active bool) error
	ListSensors(ctx context.Context) ([]models.Sensor, error)
}

type EventRepository interface {
	SaveEvent(ctx context.Context, e *models.SensorEvent) error
	QueryEvents(ctx context.Context, f EventFilter) (*EventPage, error)
}

type Store interface {
	SensorRepository
	EventRepository
}

// normalize clamps paging to sane bounds.
func (f EventFilter) normalize() EventFilter {
	if f.Page < 0 {
		f.Page = 0
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
	return f
}
