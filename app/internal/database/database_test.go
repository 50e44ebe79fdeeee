package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"storewatch/app/internal/config"
	"storewatch/app/internal/models"
)

func intp(v int) *int { return &v }

func fp(v float64) *float64 { return &v }

var base = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)

func initTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *SQLite) {
	t.Helper()
	ctx := context.Background()
	stores := []models.Store{
		{ID: 1, StoreNum: "001", Name: "Bravo", RegionID: 10, AreaID: 100, ClientRegionID: 7, Running: true},
		{ID: 2, StoreNum: "002", Name: "Alpha", RegionID: 20, AreaID: 200, Running: true},
		{ID: 3, StoreNum: "003", Name: "Closed", RegionID: 10, Running: false},
	}
	for _, s := range stores {
		if err := db.UpsertStore(ctx, s); err != nil {
			t.Fatalf("UpsertStore: %v", err)
		}
	}
	setup := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	cameras := []struct {
		c       models.CameraInfo
		visible bool
	}{
		{models.CameraInfo{StoreID: 1, CameraNo: 1, PosID: "11", CameraIP: "10.1.0.1", SetupDate: &setup}, true},
		{models.CameraInfo{StoreID: 1, CameraNo: 2, PosID: "12", CameraIP: "10.1.0.2"}, true},
		{models.CameraInfo{StoreID: 1, CameraNo: 3, PosID: "13"}, false},
		{models.CameraInfo{StoreID: 2, CameraNo: 1, PosID: "21"}, true},
	}
	for _, c := range cameras {
		if err := db.UpsertCamera(ctx, c.c, c.visible); err != nil {
			t.Fatalf("UpsertCamera: %v", err)
		}
	}
}

// --------------- Open / EnsureSchema ---------------

func TestOpenSQLite_InMemory(t *testing.T) {
	db := initTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	db := initTestDB(t)
	if err := db.EnsureSchema(); err != nil {
		t.Fatalf("second EnsureSchema call failed: %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(&config.Config{DBDriver: "oracle"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpen_SQLite(t *testing.T) {
	src, err := Open(&config.Config{DBDriver: "sqlite", DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()
	if _, ok := src.(Recorder); !ok {
		t.Error("sqlite source should implement Recorder")
	}
}

// --------------- Samples ---------------

func TestRecordSample_FetchStatusSamples(t *testing.T) {
	db := initTestDB(t)
	ctx := context.Background()

	samples := []models.StatusSample{
		{StoreID: 1, CameraNo: intp(1), IsOnline: true, ObservedAt: base},
		{StoreID: 1, CameraNo: intp(1), IsOnline: false, ObservedAt: base.Add(time.Hour)},
		{StoreID: 1, CameraNo: intp(2), IsOnline: true, ObservedAt: base.Add(30 * time.Minute)},
		{StoreID: 1, SystemName: "nvr", IsOnline: true, ObservedAt: base.Add(10 * time.Minute)},
		{StoreID: 2, CameraNo: intp(1), IsOnline: true, ObservedAt: base},
	}
	for _, s := range samples {
		if err := db.RecordSample(ctx, s); err != nil {
			t.Fatalf("RecordSample: %v", err)
		}
	}

	from, to := base.Add(-time.Hour), base.Add(2*time.Hour)

	cam, err := db.FetchStatusSamples(ctx, 1, intp(1), false, from, to)
	if err != nil {
		t.Fatalf("FetchStatusSamples: %v", err)
	}
	if len(cam) != 2 || !cam[0].ObservedAt.Equal(base) || cam[1].IsOnline {
		t.Errorf("camera samples = %+v", cam)
	}

	sys, err := db.FetchStatusSamples(ctx, 1, nil, true, from, to)
	if err != nil {
		t.Fatalf("FetchStatusSamples: %v", err)
	}
	if len(sys) != 1 || sys[0].SystemName != "nvr" || !sys[0].IsSystem() {
		t.Errorf("system samples = %+v", sys)
	}

	all, err := db.FetchStatusSamples(ctx, 1, nil, false, from, to)
	if err != nil {
		t.Fatalf("FetchStatusSamples: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ObservedAt.Before(all[i-1].ObservedAt) {
			t.Errorf("samples not ascending at %d", i)
		}
	}
}

func TestFetchStatusSamples_RangeBounds(t *testing.T) {
	db := initTestDB(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(1), IsOnline: true, ObservedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	got, err := db.FetchStatusSamples(ctx, 1, intp(1), false, base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("FetchStatusSamples: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected inclusive bounds to give 3 samples, got %d", len(got))
	}
}

func TestFetchRecentSamples_NewestFirst(t *testing.T) {
	db := initTestDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(i + 1), IsOnline: true, ObservedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	db.RecordSample(ctx, models.StatusSample{StoreID: 2, CameraNo: intp(1), IsOnline: true, ObservedAt: base})

	got, err := db.FetchRecentSamples(ctx, intp(1), base.Add(-time.Second))
	if err != nil {
		t.Fatalf("FetchRecentSamples: %v", err)
	}
	if len(got) != 3 || *got[0].CameraNo != 3 {
		t.Errorf("recent = %+v", got)
	}

	all, _ := db.FetchRecentSamples(ctx, nil, base.Add(-time.Second))
	if len(all) != 4 {
		t.Errorf("expected 4 samples across stores, got %d", len(all))
	}
}

// --------------- Latest status ---------------

func TestRecordSample_LatestStatus(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	ctx := context.Background()

	db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(1), IsOnline: true, ObservedAt: base})
	db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(1), IsOnline: false, ObservedAt: base.Add(time.Hour)})
	db.RecordSample(ctx, models.StatusSample{StoreID: 1, IsOnline: false, ObservedAt: base})
	// out of order sample must not overwrite newer state
	db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(1), IsOnline: true, ObservedAt: base.Add(-time.Hour)})

	latest, err := db.FetchLatestStatus(ctx, Scope{StoreID: intp(1)})
	if err != nil {
		t.Fatalf("FetchLatestStatus: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 latest rows, got %+v", latest)
	}

	var cam, sys *models.LatestStatus
	for i := range latest {
		if latest[i].CameraNo == nil {
			sys = &latest[i]
		} else {
			cam = &latest[i]
		}
	}
	if cam == nil || sys == nil {
		t.Fatalf("missing rows: %+v", latest)
	}
	if cam.IsOnline || !cam.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("camera row = %+v", cam)
	}
	if cam.LastActive == nil || !cam.LastActive.Equal(base) {
		t.Errorf("last_active = %v, want %v", cam.LastActive, base)
	}
	if sys.LastActive != nil || sys.LastSeen() != models.NeverSeen {
		t.Errorf("system row = %+v", sys)
	}
}

func TestFetchStatusCounts(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	ctx := context.Background()

	db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(1), IsOnline: true, ObservedAt: base})
	db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(2), IsOnline: false, ObservedAt: base})
	db.RecordSample(ctx, models.StatusSample{StoreID: 1, IsOnline: true, ObservedAt: base})
	db.RecordSample(ctx, models.StatusSample{StoreID: 3, CameraNo: intp(1), IsOnline: true, ObservedAt: base})

	cameras, stores, err := db.FetchStatusCounts(ctx, Scope{})
	if err != nil {
		t.Fatalf("FetchStatusCounts: %v", err)
	}
	if len(cameras) != 1 || cameras[0] != (models.GroupCount{StoreID: 1, Online: 1, Offline: 1, Total: 2}) {
		t.Errorf("camera counts = %+v", cameras)
	}
	if len(stores) != 1 || stores[0].Online != 1 {
		t.Errorf("store counts = %+v", stores)
	}
}

// --------------- Telemetry / events ---------------

func TestFetchStreamTelemetry_NewestPerPos(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	ctx := context.Background()

	db.RecordTelemetry(ctx, models.TelemetryRecord{StoreID: 1, PosID: "11", FPS: fp(10), Bitrate: fp(100), FrameWidth: 640, FrameHeight: 480, ObservedAt: base.Add(time.Minute)})
	db.RecordTelemetry(ctx, models.TelemetryRecord{StoreID: 1, PosID: "11", FPS: fp(25), Bitrate: fp(500), FrameWidth: 640, FrameHeight: 480, ObservedAt: base.Add(5 * time.Minute)})
	db.RecordTelemetry(ctx, models.TelemetryRecord{StoreID: 1, PosID: "12", FrameWidth: 640, FrameHeight: 480, ObservedAt: base.Add(2 * time.Minute)})
	db.RecordTelemetry(ctx, models.TelemetryRecord{StoreID: 1, PosID: "12", FPS: fp(30), ObservedAt: base.Add(-time.Hour)})
	// no installed camera on this counter
	db.RecordTelemetry(ctx, models.TelemetryRecord{StoreID: 1, PosID: "99", FPS: fp(30), ObservedAt: base.Add(time.Minute)})

	got, err := db.FetchStreamTelemetry(ctx, Scope{StoreID: intp(1)}, base)
	if err != nil {
		t.Fatalf("FetchStreamTelemetry: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %+v", got)
	}
	byPos := map[string]models.TelemetryRecord{}
	for _, r := range got {
		byPos[r.PosID] = r
	}
	r11 := byPos["11"]
	if r11.FPS == nil || *r11.FPS != 25 || r11.CameraNo != 1 || r11.CameraIP != "10.1.0.1" || r11.StoreName != "Bravo" || r11.StoreNum != "001" {
		t.Errorf("pos 11 = %+v", r11)
	}
	r12 := byPos["12"]
	if r12.FPS != nil || r12.Bitrate != nil {
		t.Errorf("pos 12 should carry nil readings, got %+v", r12)
	}
}

func TestFetchJitterEvents_Newest(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	ctx := context.Background()

	db.RecordJitter(ctx, models.JitterEvent{StoreID: 1, PosID: "11", ObservedAt: base})
	db.RecordJitter(ctx, models.JitterEvent{StoreID: 1, PosID: "11", ObservedAt: base.Add(time.Hour)})
	db.RecordJitter(ctx, models.JitterEvent{StoreID: 2, PosID: "21", ObservedAt: base})

	got, err := db.FetchJitterEvents(ctx, Scope{RegionID: intp(10)})
	if err != nil {
		t.Fatalf("FetchJitterEvents: %v", err)
	}
	if len(got) != 1 || !got[0].ObservedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("jitter = %+v", got)
	}
}

func TestFetchBreakageEvents_OnlyOngoing(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	ctx := context.Background()

	db.RecordBreakage(ctx, models.BreakageEvent{StoreID: 1, PosID: "11", BreakageDuration: 0}, base)
	db.RecordBreakage(ctx, models.BreakageEvent{StoreID: 1, PosID: "12", BreakageDuration: 0}, base)
	db.RecordBreakage(ctx, models.BreakageEvent{StoreID: 1, PosID: "12", BreakageDuration: 40}, base.Add(time.Minute))

	got, err := db.FetchBreakageEvents(ctx, Scope{})
	if err != nil {
		t.Fatalf("FetchBreakageEvents: %v", err)
	}
	if len(got) != 1 || got[0].PosID != "11" {
		t.Errorf("breakage = %+v", got)
	}
}

// --------------- Metadata ---------------

func TestFetchStores_Scope(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	ctx := context.Background()

	all, err := db.FetchStores(ctx, Scope{})
	if err != nil {
		t.Fatalf("FetchStores: %v", err)
	}
	if len(all) != 3 || all[0].Name != "Alpha" {
		t.Errorf("stores = %+v", all)
	}

	region, _ := db.FetchStores(ctx, Scope{RegionID: intp(10)})
	if len(region) != 2 {
		t.Errorf("region 10 stores = %+v", region)
	}
	client, _ := db.FetchStores(ctx, Scope{ClientRegionID: intp(7)})
	if len(client) != 1 || client[0].ID != 1 || !client[0].Running {
		t.Errorf("client region stores = %+v", client)
	}
}

func TestUpsertStore_Updates(t *testing.T) {
	db := initTestDB(t)
	ctx := context.Background()
	db.UpsertStore(ctx, models.Store{ID: 5, Name: "Old", Running: true})
	db.UpsertStore(ctx, models.Store{ID: 5, Name: "New", Running: false})

	got, _ := db.FetchStores(ctx, Scope{StoreID: intp(5)})
	if len(got) != 1 || got[0].Name != "New" || got[0].Running {
		t.Errorf("store = %+v", got)
	}
}

func TestFetchCameras(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)

	got, err := db.FetchCameras(context.Background(), Scope{StoreID: intp(1)})
	if err != nil {
		t.Fatalf("FetchCameras: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 cameras, got %d", len(got))
	}
	if got[0].SetupDate == nil || got[0].SetupDate.Format("2006-01-02") != "2023-01-05" {
		t.Errorf("setup date = %v", got[0].SetupDate)
	}
	if got[1].SetupDate != nil {
		t.Errorf("camera 2 setup date should be nil")
	}
}

func TestFetchVisibleCameras(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	ctx := context.Background()

	got, err := db.FetchVisibleCameras(ctx, []int{1, 2, 3})
	if err != nil {
		t.Fatalf("FetchVisibleCameras: %v", err)
	}
	if len(got[1]) != 2 || !got[1][1] || !got[1][2] || got[1][3] {
		t.Errorf("store 1 visible = %v", got[1])
	}
	if set, ok := got[3]; !ok || len(set) != 0 {
		t.Errorf("store 3 should map to an empty set, got %v", set)
	}

	// hiding a camera removes its mapping
	db.UpsertCamera(ctx, models.CameraInfo{StoreID: 1, CameraNo: 2, PosID: "12"}, false)
	got, _ = db.FetchVisibleCameras(ctx, []int{1})
	if got[1][2] {
		t.Error("camera 2 should no longer be visible")
	}

	empty, err := db.FetchVisibleCameras(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty lookup = %v, %v", empty, err)
	}
}

// --------------- Prune ---------------

func TestPrune(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	ctx := context.Background()

	old := base.Add(-500 * 24 * time.Hour)
	db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(1), IsOnline: true, ObservedAt: old})
	db.RecordSample(ctx, models.StatusSample{StoreID: 1, CameraNo: intp(1), IsOnline: true, ObservedAt: base})
	db.RecordTelemetry(ctx, models.TelemetryRecord{StoreID: 1, PosID: "11", ObservedAt: old})
	db.RecordJitter(ctx, models.JitterEvent{StoreID: 1, PosID: "11", ObservedAt: old})

	n, err := db.Prune(ctx, base.Add(-400*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 3 {
		t.Errorf("pruned %d rows, want 3", n)
	}

	var count int
	db.DB().QueryRow(`SELECT COUNT(*) FROM status_samples`).Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 remaining sample, got %d", count)
	}
	db.DB().QueryRow(`SELECT COUNT(*) FROM latest_status`).Scan(&count)
	if count != 1 {
		t.Errorf("latest_status should survive pruning, got %d rows", count)
	}
}

// --------------- helpers ---------------

func TestParseTS(t *testing.T) {
	for _, v := range []string{"2024-04-02T09:00:00Z", "2024-04-02 09:00:00", "2024-04-02T09:00:00.5Z"} {
		got, err := parseTS(v)
		if err != nil {
			t.Errorf("parseTS(%q): %v", v, err)
			continue
		}
		if got.Truncate(time.Second) != base {
			t.Errorf("parseTS(%q) = %v", v, got)
		}
	}
	if _, err := parseTS("yesterday"); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}

func TestScopeWhere(t *testing.T) {
	where, args := scopeWhere(Scope{}, "s")
	if where != "1=1" || len(args) != 0 {
		t.Errorf("empty scope = %q %v", where, args)
	}
	where, args = scopeWhere(Scope{StoreID: intp(1), AreaID: intp(3)}, "s")
	if where != "s.id = ? AND s.area_id = ?" || len(args) != 2 {
		t.Errorf("scope = %q %v", where, args)
	}
}
