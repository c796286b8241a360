package models

import (
	"strings"
	"time"
)

// SensorType is open for extension: any string is a valid type, only the
// registered ones get a dedicated classification strategy.
type SensorType string

const (
	SensorTypeMotion      SensorType = "MOTION"
	SensorTypeTemperature SensorType = "TEMPERATURE"
	SensorTypeAccess      SensorType = "ACCESS"
)

func ParseSensorType(s string) SensorType {
	return SensorType(strings.ToUpper(strings.TrimSpace(s)))
}

type Sensor struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      SensorType `json:"type"`
	Location  string     `json:"location"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

// SensorReading is a transient input that lives only until a worker consumes it.
type SensorReading struct {
	SensorID    string     `json:"sensor_id"`
	Type        SensorType `json:"type"`
	Value       string     `json:"value"`
	Severity    *Severity  `json:"severity,omitempty"` // pre-assigned override, skips classification
	SubmittedAt time.Time  `json:"-"`
}

type SensorEvent struct {
	ID        string     `json:"id"`
	SensorID  string     `json:"sensor_id"`
	Type      SensorType `json:"type"`
	Value     string     `json:"value"`
	Severity  Severity   `json:"severity"`
	Timestamp time.Time  `json:"timestamp"` // set at classification time
}
