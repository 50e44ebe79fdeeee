package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storewatch/app/internal/database"
	"storewatch/app/internal/logging"
	"storewatch/app/internal/metrics"
	"storewatch/app/internal/models"
)

// Topic names below the configured prefix
const (
	TopicStatus      = "status"
	TopicTelemetry   = "telemetry"
	TopicJitter      = "jitter"
	TopicBreakage    = "breakage"
	TopicStore       = "store"
	TopicCamera      = "camera"
	TopicApplication = "application"
)

// Topics lists every topic the subscriber handles
var Topics = []string{TopicStatus, TopicTelemetry, TopicJitter, TopicBreakage, TopicStore, TopicCamera, TopicApplication}

// ErrUnknownTopic is returned for a message outside the handled topics
var ErrUnknownTopic = errors.New("unknown topic")

// BreakageMessage is the payload of the breakage topic
type BreakageMessage struct {
	models.BreakageEvent
	ObservedAt time.Time `json:"observed_at"`
}

// CameraMessage is the payload of the camera topic. Visible cameras have an
// aisle mapping and count towards store health.
type CameraMessage struct {
	models.CameraInfo
	Visible bool `json:"visible"`
}

// Invalidator drops cached responses by key prefix
type Invalidator interface {
	DeletePrefix(prefix string)
}

// cachedViews are the response cache prefixes a recorded message can change
var cachedViews = []string{"map:", "summary:"}

// Handler decodes ingest messages and records them
type Handler struct {
	rec     database.Recorder
	prefix  string
	metrics *metrics.Collector
	log     logging.Logger
	cache   Invalidator
	now     func() time.Time
}

// NewHandler creates a Handler for topics under prefix. m may be nil.
func NewHandler(rec database.Recorder, prefix string, m *metrics.Collector, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Discard()
	}
	return &Handler{rec: rec, prefix: prefix, metrics: m, log: log, now: time.Now}
}

// Invalidate makes the handler drop cached map and summary responses after
// every recorded message that can change them.
func (h *Handler) Invalidate(c Invalidator) *Handler {
	h.cache = c
	return h
}

// Handle records one message. The topic is the full MQTT topic including prefix.
func (h *Handler) Handle(ctx context.Context, topic string, payload []byte) error {
	name := strings.TrimPrefix(topic, h.prefix)
	err := h.dispatch(ctx, name, payload)
	if h.metrics != nil {
		label := name
		if errors.Is(err, ErrUnknownTopic) {
			label = "unknown"
		}
		h.metrics.IngestMessage(label, err == nil)
	}
	if err != nil {
		h.log.WithError(err).WithField("topic", topic).Warn("ingest message rejected")
		return err
	}
	if h.cache != nil && name != TopicTelemetry && name != TopicApplication {
		for _, p := range cachedViews {
			h.cache.DeletePrefix(p)
		}
	}
	return nil
}

func (h *Handler) dispatch(ctx context.Context, name string, payload []byte) error {
	switch name {
	case TopicStatus:
		var s models.StatusSample
		if err := decode(payload, &s); err != nil {
			return err
		}
		if s.StoreID <= 0 {
			return errors.New("status: store_id is required")
		}
		s.ObservedAt = h.stamp(s.ObservedAt)
		return h.rec.RecordSample(ctx, s)

	case TopicTelemetry:
		var r models.TelemetryRecord
		if err := decode(payload, &r); err != nil {
			return err
		}
		if err := requirePos(r.StoreID, r.PosID); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		r.ObservedAt = h.stamp(r.ObservedAt)
		return h.rec.RecordTelemetry(ctx, r)

	case TopicJitter:
		var e models.JitterEvent
		if err := decode(payload, &e); err != nil {
			return err
		}
		if err := requirePos(e.StoreID, e.PosID); err != nil {
			return fmt.Errorf("jitter: %w", err)
		}
		e.ObservedAt = h.stamp(e.ObservedAt)
		return h.rec.RecordJitter(ctx, e)

	case TopicBreakage:
		var m BreakageMessage
		if err := decode(payload, &m); err != nil {
			return err
		}
		if err := requirePos(m.StoreID, m.PosID); err != nil {
			return fmt.Errorf("breakage: %w", err)
		}
		if m.BreakageDuration < 0 {
			return errors.New("breakage: breakage_duration must not be negative")
		}
		return h.rec.RecordBreakage(ctx, m.BreakageEvent, h.stamp(m.ObservedAt))

	case TopicStore:
		var s models.Store
		if err := decode(payload, &s); err != nil {
			return err
		}
		if s.ID <= 0 || s.Name == "" {
			return errors.New("store: id and name are required")
		}
		return h.rec.UpsertStore(ctx, s)

	case TopicCamera:
		var m CameraMessage
		if err := decode(payload, &m); err != nil {
			return err
		}
		if m.StoreID <= 0 || m.CameraNo <= 0 {
			return errors.New("camera: store_id and camera_no are required")
		}
		return h.rec.UpsertCamera(ctx, m.CameraInfo, m.Visible)

	case TopicApplication:
		var a models.AppStatus
		if err := decode(payload, &a); err != nil {
			return err
		}
		if a.StoreID <= 0 || a.ScriptName == "" || a.Status == "" {
			return errors.New("application: store_id, script_name and status are required")
		}
		a.CreatedAt = h.stamp(a.CreatedAt)
		return h.rec.RecordAppStatus(ctx, a)
	}
	return fmt.Errorf("%w: %q", ErrUnknownTopic, name)
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func requirePos(storeID int, posID string) error {
	if storeID <= 0 || posID == "" {
		return errors.New("store_id and pos_id are required")
	}
	return nil
}

// stamp defaults a missing observation time to now and normalises to UTC
func (h *Handler) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return h.now().UTC()
	}
	return t.UTC()
}
