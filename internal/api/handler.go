package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mr1hm/go-sensor-alerts/internal/alerting"
	"github.com/mr1hm/go-sensor-alerts/internal/classifier"
	"github.com/mr1hm/go-sensor-alerts/internal/ingestion"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
	"github.com/mr1hm/go-sensor-alerts/internal/repository"
)

type Ingestor interface {
	Enqueue(r models.SensorReading)
	IngestNow(ctx context.Context, r models.SensorReading) (*models.SensorEvent, error)
	Stats() ingestion.Stats
}

// RecipientBook is a channel recipient list that can grow at runtime.
type RecipientBook interface {
	AddRecipient(r string) bool
	Recipients() []string
}

type Deps struct {
	Store    repository.Store
	Ingestor Ingestor
	Alerts   *alerting.Service
	Registry *classifier.Registry
	Phones   RecipientBook
	Devices  RecipientBook
	Stream   http.Handler // websocket alert stream
	Metrics  http.Handler // prometheus exposition
}

type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")

	api.POST("/sensors", h.createSensor)
	api.GET("/sensors", h.listSensors)
	api.GET("/sensors/metrics", h.sensorMetrics)
	api.GET("/sensors/:id", h.getSensor)
	api.PATCH("/sensors/:id/active", h.setSensorActive)
	api.GET("/sensor-types", h.sensorTypes)

	api.POST("/events", h.enqueueEvent)
	api.POST("/events/ingest", h.ingestEvent)
	api.GET("/events", h.queryEvents)

	msg := api.Group("/messaging")
	msg.GET("/status", h.messagingStatus)
	msg.GET("/info", h.messagingInfo)
	msg.POST("/test", h.sendTestAlert)
	msg.POST("/send", h.sendAlert)
	msg.POST("/send-custom", h.sendCustomAlert)
	msg.POST("/sms/phones", h.addPhone)
	msg.GET("/sms/phones", h.listPhones)
	msg.POST("/push/devices", h.addDevice)
	msg.GET("/push/devices", h.listDevices)

	if h.Stream != nil {
		r.GET("/ws/alerts", gin.WrapH(h.Stream))
	}
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type sensorRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type" binding:"required"`
	Location string `json:"location"`
	Active   *bool  `json:"active"`
}

func (h *Handler) createSensor(c *gin.Context) {
	var req sensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sensor := &models.Sensor{
		ID:        req.ID,
		Name:      req.Name,
		Type:      models.ParseSensorType(req.Type),
		Location:  req.Location,
		Active:    req.Active == nil || *req.Active,
		CreatedAt: time.Now(),
	}
	if sensor.ID == "" {
		sensor.ID = uuid.NewString()
	}

	if err := h.Store.SaveSensor(c.Request.Context(), sensor); err != nil {
		slog.Error("error saving sensor", "id", sensor.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save sensor"})
		return
	}
	c.JSON(http.StatusCreated, sensor)
}

func (h *Handler) listSensors(c *gin.Context) {
	sensors, err := h.Store.ListSensors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch sensors"})
		return
	}
	if sensors == nil {
		sensors = []models.Sensor{}
	}
	c.JSON(http.StatusOK, sensors)
}

func (h *Handler) getSensor(c *gin.Context) {
	sensor, err := h.Store.FindSensorByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sensor not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch sensor"})
		return
	}
	c.JSON(http.StatusOK, sensor)
}

func (h *Handler) setSensorActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	err := h.Store.SetSensorActive(c.Request.Context(), id, *req.Active)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sensor not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update sensor"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": *req.Active})
}

func (h *Handler) sensorTypes(c *gin.Context) {
	types := make([]gin.H, 0)
	for _, t := range h.Registry.Types() {
		s, _ := h.Registry.Resolve(t)
		types = append(types, gin.H{"type": t, "strategy": s.Describe()})
	}
	c.JSON(http.StatusOK, types)
}

func (h *Handler) sensorMetrics(c *gin.Context) {
	stats := h.Ingestor.Stats()
	c.JSON(http.StatusOK, gin.H{
		"received":       stats.Received,
		"processed":      stats.Processed,
		"dropped":        stats.Dropped,
		"failed":         stats.Failed,
		"alerts":         stats.Alerts,
		"queued":         stats.Queued,
		"avg_latency_ms": float64(stats.AvgLatency) / float64(time.Millisecond),
	})
}

type readingRequest struct {
	SensorID string           `json:"sensor_id" binding:"required"`
	Type     string           `json:"type"`
	Value    string           `json:"value"`
	Severity *models.Severity `json:"severity"`
}

func (r readingRequest) reading() models.SensorReading {
	return models.SensorReading{
		SensorID: r.SensorID,
		Type:     models.ParseSensorType(r.Type),
		Value:    r.Value,
		Severity: r.Severity,
	}
}

func (h *Handler) enqueueEvent(c *gin.Context) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Ingestor.Enqueue(req.reading())
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "sensor_id": req.SensorID})
}

func (h *Handler) ingestEvent(c *gin.Context) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.Ingestor.IngestNow(c.Request.Context(), req.reading())
	switch {
	case errors.Is(err, ingestion.ErrSensorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ingestion.ErrSensorInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest reading"})
	default:
		c.JSON(http.StatusCreated, event)
	}
}

func (h *Handler) queryEvents(c *gin.Context) {
	var filter repository.EventFilter

	if t := c.Query("type"); t != "" {
		st := models.ParseSensorType(t)
		filter.Type = &st
	}
	if s := c.Query("severity"); s != "" {
		sev, err := models.ParseSeverity(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Severity = &sev
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := c.Query(p.key)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + p.key + ", expected RFC3339"})
			return
		}
		*p.dst = &ts
	}
	if p, err := strconv.Atoi(c.Query("page")); err == nil {
		filter.Page = p
	}
	if s, err := strconv.Atoi(c.Query("size")); err == nil {
		filter.Size = s
	}

	page, err := h.Store.QueryEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch events"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) messagingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Alerts.Dispatcher().Status())
}

func (h *Handler) messagingInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.Alerts.Dispatcher().Info())
}

func (h *Handler) sendTestAlert(c *gin.Context) {
	sev, err := models.ParseSeverity(c.DefaultQuery("severity", "CRITICAL"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := models.AlertMessage{
		ID:         uuid.NewString(),
		SensorName: "Test Sensor",
		Type:       models.SensorTypeTemperature,
		Severity:   sev,
		Message:    "This is a test alert from the messaging system",
		Timestamp:  time.Now(),
	}
	h.Alerts.Publish(msg)

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "test alert sent",
		"alert_id": msg.ID,
		"severity": sev,
		"services": h.Alerts.Dispatcher().Status(),
	})
}

type sendRequest struct {
	SensorName string          `json:"sensor_name" binding:"required"`
	Severity   models.Severity `json:"severity"`
	Message    string          `json:"message" binding:"required"`
	Services   []string        `json:"services" binding:"required,min=1"`
}

func (h *Handler) sendAlert(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := models.AlertMessage{
		ID:         uuid.NewString(),
		SensorName: req.SensorName,
		Type:       models.SensorTypeTemperature,
		Severity:   req.Severity,
		Message:    req.Message,
		Timestamp:  time.Now(),
	}
	services := make([]string, len(req.Services))
	for i, s := range req.Services {
		services[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	h.Alerts.PublishTo(msg, services)

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "alert sent to services",
		"alert_id": msg.ID,
		"services": services,
	})
}

func (h *Handler) sendCustomAlert(c *gin.Context) {
	var req models.AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, results := h.Alerts.PublishCustom(c.Request.Context(), &req)
	c.JSON(http.StatusOK, gin.H{
		"message":  "custom alert sent",
		"alert_id": msg.ID,
		"results":  results,
		"recipients": gin.H{
			"emails":  len(req.EmailRecipients),
			"phones":  len(req.PhoneNumbers),
			"devices": len(req.DeviceTokens),
		},
	})
}

func (h *Handler) addPhone(c *gin.Context) {
	var req struct {
		PhoneNumber string `json:"phone_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	added := h.Phones.AddRecipient(req.PhoneNumber)
	c.JSON(http.StatusOK, gin.H{
		"added":        added,
		"phone_number": req.PhoneNumber,
		"total_phones": len(h.Phones.Recipients()),
	})
}

func (h *Handler) listPhones(c *gin.Context) {
	c.JSON(http.StatusOK, h.Phones.Recipients())
}

func (h *Handler) addDevice(c *gin.Context) {
	var req struct {
		DeviceToken string `json:"device_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	added := h.Devices.AddRecipient(req.DeviceToken)
	c.JSON(http.StatusOK, gin.H{
		"added":         added,
		"device_token":  maskToken(req.DeviceToken),
		"total_devices": len(h.Devices.Recipients()),
	})
}

func (h *Handler) listDevices(c *gin.Context) {
	tokens := h.Devices.Recipients()
	masked := make([]string, len(tokens))
	for i, t := range tokens {
		masked[i] = maskToken(t)
	}
	c.JSON(http.StatusOK, masked)
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return token + "..."
	}
	return token[:8] + "..."
}
