package status

import (
	"math/rand/v2"
	"testing"
	"time"

	"storewatch/app/internal/models"
)

// --------------- Summarize ---------------

func TestSummarize_OneOfEach(t *testing.T) {
	cameras := []models.GroupCount{
		{StoreID: 1, Online: 3, Offline: 0, Total: 3},
		{StoreID: 2, Online: 0, Offline: 2, Total: 2},
		{StoreID: 3, Online: 1, Offline: 1, Total: 2},
	}
	stores := []models.GroupCount{
		{StoreID: 1, Online: 1, Total: 1},
		{StoreID: 2, Offline: 1, Total: 1},
	}
	got := Summarize(cameras, stores)
	want := models.StatusSummary{
		Camera: models.CameraSummary{Online: 1, Offline: 1, Warning: 1},
		Store:  models.StoreSummary{Online: 1, Offline: 1},
	}
	if got != want {
		t.Errorf("Summarize = %+v, want %+v", got, want)
	}
}

func TestSummarize_Empty(t *testing.T) {
	if got := Summarize(nil, nil); got != (models.StatusSummary{}) {
		t.Errorf("Summarize(nil, nil) = %+v", got)
	}
}

func TestSummarize_CameraBucketsCoverEveryGroup(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 200; round++ {
		rows := make([]models.GroupCount, r.IntN(20))
		for i := range rows {
			total := 1 + r.IntN(8)
			online := r.IntN(total + 1)
			rows[i] = models.GroupCount{StoreID: i + 1, Online: online, Offline: total - online, Total: total}
		}
		got := Summarize(rows, nil).Camera
		if sum := got.Online + got.Offline + got.Warning; sum != len(rows) {
			t.Fatalf("round %d: online+offline+warning = %d, want %d (%+v)", round, sum, len(rows), got)
		}
	}
}

func TestSummarize_EndToEndFromLatest(t *testing.T) {
	stores := []models.Store{
		{ID: 1, Running: true},
		{ID: 2, Running: true},
		{ID: 3, Running: true},
		{ID: 4, Running: false},
	}
	latest := []models.LatestStatus{
		{StoreID: 1, CameraNo: intp(1), IsOnline: true},
		{StoreID: 1, CameraNo: intp(2), IsOnline: true},
		{StoreID: 1, IsOnline: true},
		{StoreID: 2, CameraNo: intp(1), IsOnline: false},
		{StoreID: 2, IsOnline: false},
		{StoreID: 3, CameraNo: intp(1), IsOnline: true},
		{StoreID: 3, CameraNo: intp(2), IsOnline: false},
		{StoreID: 4, CameraNo: intp(1), IsOnline: false},
		{StoreID: 4, IsOnline: false},
	}
	cameras, systems := GroupLatest(latest, stores)
	if len(cameras) != 3 || cameras[0].StoreID != 1 || cameras[2].StoreID != 3 {
		t.Fatalf("camera groups = %+v", cameras)
	}
	if len(systems) != 2 {
		t.Fatalf("system groups = %+v", systems)
	}

	got := Summarize(cameras, systems)
	if got.Camera != (models.CameraSummary{Online: 1, Offline: 1, Warning: 1}) {
		t.Errorf("camera summary = %+v", got.Camera)
	}
	if got.Store != (models.StoreSummary{Online: 1, Offline: 1}) {
		t.Errorf("store summary = %+v", got.Store)
	}
}

// --------------- Uptime ---------------

func TestUptimeDurations(t *testing.T) {
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	samples := []models.StatusSample{
		{CameraNo: intp(2), IsOnline: true, ObservedAt: base},
		{CameraNo: intp(1), IsOnline: true, ObservedAt: base},
		{SystemName: "nvr", IsOnline: true, ObservedAt: base},
		{CameraNo: intp(2), IsOnline: true, ObservedAt: base.Add(time.Hour)},
		{CameraNo: intp(1), IsOnline: false, ObservedAt: base.Add(30 * time.Minute)},
		{SystemName: "nvr", IsOnline: false, ObservedAt: base.Add(26 * time.Hour)},
		{CameraNo: intp(2), IsOnline: false, ObservedAt: base.Add(90 * time.Minute)},
	}
	got := UptimeDurations(samples, map[int]string{1: "POS-1", 2: "POS-2"})

	if len(got.CameraData) != 2 {
		t.Fatalf("camera data = %+v", got.CameraData)
	}
	// first-seen order
	c2, c1 := got.CameraData[0], got.CameraData[1]
	if *c2.CameraNo != 2 || c2.PosID != "POS-2" {
		t.Errorf("first entry = %+v", c2)
	}
	if c2.WorkingDuration != "1:00:00" || c2.NonWorkingDuration != "0:30:00" {
		t.Errorf("camera 2 = %+v", c2)
	}
	if c1.WorkingDuration != "0:00:00" || c1.NonWorkingDuration != "0:30:00" {
		t.Errorf("camera 1 = %+v", c1)
	}

	if len(got.SystemData) != 1 {
		t.Fatalf("system data = %+v", got.SystemData)
	}
	sys := got.SystemData[0]
	if sys.SystemName != "nvr" || sys.NonWorkingDuration != "1 day, 2:00:00" || sys.WorkingDuration != "0:00:00" {
		t.Errorf("system = %+v", sys)
	}
}

func TestUptimeDurations_NoSystemSamples(t *testing.T) {
	got := UptimeDurations([]models.StatusSample{
		{CameraNo: intp(1), IsOnline: true, ObservedAt: time.Now()},
	}, nil)
	if got.SystemData == nil || len(got.SystemData) != 0 {
		t.Errorf("system data = %#v, want empty slice", got.SystemData)
	}
	if len(got.CameraData) != 1 || got.CameraData[0].WorkingDuration != "0:00:00" {
		t.Errorf("camera data = %+v", got.CameraData)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00:00"},
		{-time.Minute, "0:00:00"},
		{59 * time.Second, "0:00:59"},
		{90 * time.Minute, "1:30:00"},
		{24 * time.Hour, "1 day, 0:00:00"},
		{49*time.Hour + 5*time.Second, "2 days, 1:00:05"},
		{1500 * time.Millisecond, "0:00:01"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
