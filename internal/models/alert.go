package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AlertMessage struct {
	ID         string     `json:"id"`
	SensorName string     `json:"sensor_name"`
	Type       SensorType `json:"type"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewAlertMessage derives the alert for a persisted event of the given sensor.
func NewAlertMessage(sensor *Sensor, event *SensorEvent) AlertMessage {
	return AlertMessage{
		ID:         uuid.NewString(),
		SensorName: sensor.Name,
		Type:       event.Type,
		Severity:   event.Severity,
		Message:    fmt.Sprintf("Sensor %s [%s] => %s (%s)", sensor.Name, event.Type, event.Value, event.Severity),
		Timestamp:  event.Timestamp,
	}
}

// AlertRequest is the operator-triggered path. Non-empty recipient lists
// select which channels receive the alert, and replace their configured
// recipients for this one call.
type AlertRequest struct {
	SensorName      string     `json:"sensor_name" binding:"required"`
	SensorType      SensorType `json:"sensor_type" binding:"required"`
	Severity        Severity   `json:"severity"`
	Message         string     `json:"message" binding:"required"`
	EmailRecipients []string   `json:"email_recipients,omitempty"`
	PhoneNumbers    []string   `json:"phone_numbers,omitempty"`
	DeviceTokens    []string   `json:"device_tokens,omitempty"`
}

func (r *AlertRequest) AlertMessage(now time.Time) AlertMessage {
	return AlertMessage{
		ID:         uuid.NewString(),
		SensorName: r.SensorName,
		Type:       r.SensorType,
		Severity:   r.Severity,
		Message:    r.Message,
		Timestamp:  now,
	}
}

// Recipients returns the explicit recipient list for a channel type.
func (r *AlertRequest) Recipients(channelType string) []string {
	switch channelType {
	case "EMAIL":
		return r.EmailRecipients
	case "SMS":
		return r.PhoneNumbers
	case "PUSH":
		return r.DeviceTokens
	default:
		return nil
	}
}
