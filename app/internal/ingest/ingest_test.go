package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"storewatch/app/internal/cache"
	"storewatch/app/internal/database"
	"storewatch/app/internal/metrics"
	"storewatch/app/internal/models"
)

var now = time.Date(2024, 3, 10, 14, 25, 0, 0, time.UTC)

func newTestDB(t *testing.T) *database.SQLite {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestHandler(t *testing.T) (*Handler, *database.SQLite, *metrics.Collector) {
	t.Helper()
	db := newTestDB(t)
	m := metrics.New("test")
	h := NewHandler(db, "storewatch/", m, nil)
	h.now = func() time.Time { return now }
	return h, db, m
}

func handle(t *testing.T, h *Handler, topic, payload string) {
	t.Helper()
	if err := h.Handle(context.Background(), "storewatch/"+topic, []byte(payload)); err != nil {
		t.Fatalf("Handle(%s) failed: %v", topic, err)
	}
}

// counterValue reads a counter from the collector's registry, matching every given label
func counterValue(t *testing.T, m *metrics.Collector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func ingestCount(t *testing.T, m *metrics.Collector, topic, result string) float64 {
	t.Helper()
	return counterValue(t, m, "test_ingest_messages_total", map[string]string{"topic": topic, "result": result})
}

// --------------- Handler ---------------

func TestHandle_StoreAndCamera(t *testing.T) {
	h, db, _ := newTestHandler(t)
	ctx := context.Background()

	handle(t, h, TopicStore, `{"id":7,"store_num":"S007","name":"Croydon","region_id":2,"running":true}`)
	handle(t, h, TopicCamera, `{"store_id":7,"camera_no":1,"pos_id":"POS-1","camera_ip":"10.0.0.1","visible":true}`)
	handle(t, h, TopicCamera, `{"store_id":7,"camera_no":2,"pos_id":"POS-2","visible":false}`)

	stores, err := db.FetchStores(ctx, database.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(stores) != 1 || stores[0].Name != "Croydon" || !stores[0].Running {
		t.Fatalf("stores = %+v", stores)
	}

	cams, err := db.FetchCameras(ctx, database.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cams) != 2 {
		t.Fatalf("cameras = %+v", cams)
	}

	visible, err := db.FetchVisibleCameras(ctx, []int{7})
	if err != nil {
		t.Fatal(err)
	}
	if !visible[7][1] || visible[7][2] {
		t.Errorf("visible = %v, want only camera 1", visible)
	}
}

func TestHandle_StatusDefaultsTimestamp(t *testing.T) {
	h, db, m := newTestHandler(t)

	handle(t, h, TopicStatus, `{"store_id":7,"camera_no":1,"is_online":true}`)
	handle(t, h, TopicStatus, `{"store_id":7,"system_name":"nvr","is_online":false,"observed_at":"2024-03-10T14:20:00Z"}`)

	got, err := db.FetchRecentSamples(context.Background(), nil, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("samples = %+v", got)
	}
	// newest first: the defaulted camera sample is stamped with now
	if !got[0].ObservedAt.Equal(now) || got[0].CameraNo == nil {
		t.Errorf("first sample = %+v", got[0])
	}
	if got[1].SystemName != "nvr" || got[1].IsOnline {
		t.Errorf("second sample = %+v", got[1])
	}

	if n := ingestCount(t, m, TopicStatus, "ok"); n != 2 {
		t.Errorf("ingest ok count = %v, want 2", n)
	}
}

func TestHandle_TelemetryJitterBreakage(t *testing.T) {
	h, db, _ := newTestHandler(t)
	ctx := context.Background()

	handle(t, h, TopicStore, `{"id":7,"name":"Croydon","running":true}`)
	handle(t, h, TopicCamera, `{"store_id":7,"camera_no":1,"pos_id":"POS-1","visible":true}`)
	handle(t, h, TopicTelemetry, `{"store_id":7,"pos_id":"POS-1","fps":12.5,"bitrate":800,"frame_width":640,"frame_height":480}`)
	handle(t, h, TopicJitter, `{"store_id":7,"pos_id":"POS-1"}`)
	handle(t, h, TopicBreakage, `{"store_id":7,"pos_id":"POS-1","breakage_duration":0}`)

	tel, err := db.FetchStreamTelemetry(ctx, database.Scope{}, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(tel) != 1 || tel[0].FPS == nil || *tel[0].FPS != 12.5 {
		t.Fatalf("telemetry = %+v", tel)
	}

	jit, err := db.FetchJitterEvents(ctx, database.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jit) != 1 || !jit[0].ObservedAt.Equal(now) {
		t.Errorf("jitter = %+v", jit)
	}

	brk, err := db.FetchBreakageEvents(ctx, database.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(brk) != 1 || brk[0].PosID != "POS-1" {
		t.Errorf("breakage = %+v", brk)
	}

	// a finished breakage is no longer reported
	handle(t, h, TopicBreakage, `{"store_id":7,"pos_id":"POS-1","breakage_duration":42}`)
	brk, err = db.FetchBreakageEvents(ctx, database.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(brk) != 0 {
		t.Errorf("breakage after recovery = %+v", brk)
	}
}

func TestHandle_Rejects(t *testing.T) {
	h, _, m := newTestHandler(t)

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"invalid json", TopicStatus, `{not json`},
		{"status without store", TopicStatus, `{"is_online":true}`},
		{"telemetry without pos", TopicTelemetry, `{"store_id":1}`},
		{"jitter without store", TopicJitter, `{"pos_id":"POS-1"}`},
		{"negative breakage", TopicBreakage, `{"store_id":1,"pos_id":"POS-1","breakage_duration":-1}`},
		{"store without name", TopicStore, `{"id":1}`},
		{"camera without number", TopicCamera, `{"store_id":1}`},
		{"application without script", TopicApplication, `{"store_id":1,"status":"Not Running"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.Handle(context.Background(), "storewatch/"+tt.topic, []byte(tt.payload)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if n := ingestCount(t, m, TopicStatus, "error"); n != 2 {
		t.Errorf("status error count = %v, want 2", n)
	}
}

func TestHandle_ApplicationStatus(t *testing.T) {
	h, db, _ := newTestHandler(t)
	handle(t, h, TopicStore, `{"id":7,"store_num":"007","name":"Kendal","running":true}`)
	handle(t, h, TopicApplication, `{"store_id":7,"cam_no":2,"script_name":"sco_watch","status":"Not Running","client_name":"Acme"}`)

	got, err := db.FetchAppStatus(context.Background(), models.AppStatusFilter{
		Day:    now.Format("2006-01-02"),
		Status: models.AppNotRunning,
	})
	if err != nil {
		t.Fatalf("FetchAppStatus: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %+v", got)
	}
	a := got[0]
	if a.StoreNum != "007" || a.ScriptName != "sco_watch" || a.ClientName != "Acme" || !a.CreatedAt.Equal(now) {
		t.Errorf("row = %+v", a)
	}
}

func TestHandle_UnknownTopic(t *testing.T) {
	h, _, m := newTestHandler(t)
	err := h.Handle(context.Background(), "storewatch/weather", []byte(`{}`))
	if !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("err = %v, want ErrUnknownTopic", err)
	}
	if n := ingestCount(t, m, "unknown", "error"); n != 1 {
		t.Errorf("unknown topic count = %v, want 1", n)
	}
}

func TestFilters(t *testing.T) {
	got := filters("stores/")
	if len(got) != len(Topics) {
		t.Fatalf("filters = %v", got)
	}
	for _, topic := range Topics {
		if qos, ok := got["stores/"+topic]; !ok || qos != 1 {
			t.Errorf("missing subscription for %s", topic)
		}
	}
}

// --------------- Retention ---------------

func TestRetention_PruneOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cam := 1

	old := now.AddDate(0, 0, -40)
	for _, s := range []models.StatusSample{
		{StoreID: 1, CameraNo: &cam, IsOnline: true, ObservedAt: old},
		{StoreID: 1, CameraNo: &cam, IsOnline: false, ObservedAt: now.Add(-time.Hour)},
	} {
		if err := db.RecordSample(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.RecordJitter(ctx, models.JitterEvent{StoreID: 1, PosID: "POS-1", ObservedAt: old}); err != nil {
		t.Fatal(err)
	}

	m := metrics.New("test")
	r := NewRetention(db, 30, time.Hour, m, nil)
	r.now = func() time.Time { return now }

	n, err := r.PruneOnce(ctx)
	if err != nil {
		t.Fatalf("PruneOnce failed: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}
	if got := counterValue(t, m, "test_pruned_rows_total", nil); got != 2 {
		t.Errorf("pruned counter = %v, want 2", got)
	}

	left, err := db.FetchRecentSamples(ctx, nil, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Errorf("remaining samples = %+v", left)
	}
}

func TestRetention_RunStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	r := NewRetention(db, 30, time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRetention_Disabled(t *testing.T) {
	db := newTestDB(t)
	r := NewRetention(db, 0, time.Hour, nil, nil)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero retention should return immediately")
	}
}

func TestHandle_InvalidatesCachedViews(t *testing.T) {
	h, _, _ := newTestHandler(t)
	c := cache.New(time.Minute)
	defer c.Stop()
	h.Invalidate(c)

	c.Set("map:all", 1)
	c.Set("summary:all", 2)
	c.Set("other", 3)

	handle(t, h, TopicTelemetry, `{"store_id":1,"pos_id":"p1","fps":25}`)
	if _, ok := c.Get("map:all"); !ok {
		t.Fatal("telemetry should not drop cached map")
	}

	handle(t, h, TopicStatus, `{"store_id":1,"camera_no":2,"is_online":true}`)
	if _, ok := c.Get("map:all"); ok {
		t.Error("map entry survived a status message")
	}
	if _, ok := c.Get("summary:all"); ok {
		t.Error("summary entry survived a status message")
	}
	if _, ok := c.Get("other"); !ok {
		t.Error("unrelated entry was dropped")
	}
}

func TestHandle_RejectedMessageKeepsCache(t *testing.T) {
	h, _, _ := newTestHandler(t)
	c := cache.New(time.Minute)
	defer c.Stop()
	h.Invalidate(c)
	c.Set("summary:all", 1)

	if err := h.Handle(context.Background(), "storewatch/status", []byte(`{"camera_no":2}`)); err == nil {
		t.Fatal("expected error for missing store_id")
	}
	if _, ok := c.Get("summary:all"); !ok {
		t.Error("rejected message dropped cached summary")
	}
}
