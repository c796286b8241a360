package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mr1hm/go-sensor-alerts/internal/models"
	"github.com/mr1hm/go-sensor-alerts/internal/repository"
)

type PersistenceError struct {
	EventID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting event %s: %v", e.EventID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persister writes classified events. Failures are not retried.
type Persister struct {
	events repository.EventRepository
}

func NewPersister(events repository.EventRepository) *Persister {
	return &Persister{events: events}
}

func (p *Persister) Save(ctx context.Context, e *models.SensorEvent) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := p.events.SaveEvent(ctx, e); err != nil {
		return "", &PersistenceError{EventID: e.ID, Err: err}
	}
	return e.ID, nil
}
