package status

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"storewatch/app/internal/models"
)

// Thresholds are the accepted stream bounds. Anything outside is Misconfigured.
type Thresholds struct {
	MinFPS      float64
	MinBitrate  float64
	FrameWidth  int
	FrameHeight int
}

// DefaultThresholds match the camera installation standard
var DefaultThresholds = Thresholds{
	MinFPS:      25,
	MinBitrate:  400,
	FrameWidth:  640,
	FrameHeight: 480,
}

// Misconfigured reports whether a telemetry record is out of bounds. Missing fps or
// bitrate readings count as zero.
func (t Thresholds) Misconfigured(r models.TelemetryRecord) bool {
	return valueOf(r.FPS) < t.MinFPS ||
		valueOf(r.Bitrate) < t.MinBitrate ||
		r.FrameWidth != t.FrameWidth ||
		r.FrameHeight != t.FrameHeight
}

func valueOf(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// MergeMode selects which telemetry-derived records are kept
type MergeMode int

const (
	// ProblemsOnly drops cameras whose final status is Pinging
	ProblemsOnly MergeMode = iota
	// FullView keeps every camera
	FullView
)

// MergeInput holds the four status sources plus the last-seen lookup
type MergeInput struct {
	NotPinging []models.DerivedCameraStatus
	Telemetry  []models.TelemetryRecord
	Jitter     []models.JitterEvent
	Breakage   []models.BreakageEvent
	LastSeen   map[CameraKey]string
}

// MergeOptions control a merge. Now anchors jitter freshness to its clock hour.
type MergeOptions struct {
	Now          time.Time
	Mode         MergeMode
	StatusFilter string
	Thresholds   Thresholds
}

// CameraKey identifies a camera by store and camera number
type CameraKey struct {
	StoreID  int
	CameraNo int
}

// PosKey identifies a camera by store and the POS counter it watches
type PosKey struct {
	StoreID int
	PosID   string
}

// Merge combines ping status, stream telemetry, jitter and VTC breakage into one
// status per camera. Ping results are authoritative: a camera that is not pinging
// is never re-derived from telemetry. Among telemetry-derived records the checks
// run Misconfigured, Stream Breakage, Jittery, and the last match wins.
func Merge(in MergeInput, opts MergeOptions) []models.DerivedCameraStatus {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds
	}

	notPinging := make(map[CameraKey]bool, len(in.NotPinging))
	for _, r := range in.NotPinging {
		notPinging[CameraKey{r.StoreID, r.CameraNo}] = true
	}

	breakage := make(map[PosKey]bool, len(in.Breakage))
	for _, b := range in.Breakage {
		if b.BreakageDuration == 0 {
			breakage[PosKey{b.StoreID, b.PosID}] = true
		}
	}

	jitter := make(map[PosKey]time.Time, len(in.Jitter))
	for _, j := range in.Jitter {
		k := PosKey{j.StoreID, j.PosID}
		if prev, ok := jitter[k]; !ok || j.ObservedAt.After(prev) {
			jitter[k] = j.ObservedAt
		}
	}

	hourStart := HourStart(opts.Now)

	out := make([]models.DerivedCameraStatus, 0, len(in.NotPinging)+len(in.Telemetry))
	out = append(out, in.NotPinging...)

	for _, t := range in.Telemetry {
		key := CameraKey{t.StoreID, t.CameraNo}
		if notPinging[key] {
			continue
		}
		pos := PosKey{t.StoreID, t.PosID}

		label := models.StatusPinging
		if opts.Thresholds.Misconfigured(t) {
			label = models.StatusMisconfigured
		}
		if breakage[pos] {
			label = models.StatusStreamBreakage
		}
		if at, ok := jitter[pos]; ok && !at.Before(hourStart) {
			label = models.StatusJittery
		}

		if opts.Mode == ProblemsOnly && label == models.StatusPinging {
			continue
		}

		lastSeen, ok := in.LastSeen[key]
		if !ok {
			lastSeen = models.NeverSeen
		}

		out = append(out, models.DerivedCameraStatus{
			StoreID:   t.StoreID,
			StoreNum:  t.StoreNum,
			StoreName: t.StoreName,
			CameraNo:  t.CameraNo,
			PosID:     t.PosID,
			CameraIP:  t.CameraIP,
			Status:    label,
			CheckedOn: t.ObservedAt.Format(models.DisplayLayout),
			LastSeen:  lastSeen,
		})
	}

	if opts.StatusFilter != "" {
		out = FilterByStatus(out, opts.StatusFilter)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StoreName != out[j].StoreName {
			return out[i].StoreName < out[j].StoreName
		}
		return out[i].CameraNo < out[j].CameraNo
	})
	return out
}

// FilterByStatus keeps only records with the given label. An unknown label matches nothing.
func FilterByStatus(in []models.DerivedCameraStatus, label string) []models.DerivedCameraStatus {
	out := make([]models.DerivedCameraStatus, 0, len(in))
	for _, r := range in {
		if r.Status == label {
			out = append(out, r)
		}
	}
	return out
}

// HourStart truncates t to the start of its clock hour in t's location
func HourStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// LastSeenIndex builds the last-seen lookup from latest-status rows
func LastSeenIndex(latest []models.LatestStatus) map[CameraKey]string {
	idx := make(map[CameraKey]string, len(latest))
	for _, l := range latest {
		if l.CameraNo == nil {
			continue
		}
		idx[CameraKey{l.StoreID, *l.CameraNo}] = l.LastSeen()
	}
	return idx
}

// OfflineStores lists running stores whose system-level latest status is offline,
// ordered by store name.
func OfflineStores(latest []models.LatestStatus, stores []models.Store) []models.StoreStatus {
	byID := storeIndex(stores)
	var out []models.StoreStatus
	for _, l := range latest {
		if l.CameraNo != nil || l.IsOnline {
			continue
		}
		st, ok := byID[l.StoreID]
		if !ok || !st.Running {
			continue
		}
		out = append(out, models.StoreStatus{
			StoreID:   st.ID,
			StoreNum:  st.StoreNum,
			StoreName: st.Name,
			Status:    models.StatusNotPinging,
			CheckedOn: l.UpdatedAt.Format(models.DisplayLayout),
			LastSeen:  l.LastSeen(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StoreName < out[j].StoreName })
	return out
}

// NotPingingFromLatest derives the ping-based camera statuses. Only installed cameras
// of running stores are considered, and cameras of stores that are offline as a whole
// are left to the store-level report.
func NotPingingFromLatest(latest []models.LatestStatus, cameras []models.CameraInfo, stores []models.Store) []models.DerivedCameraStatus {
	byID := storeIndex(stores)

	offline := make(map[int]bool)
	for _, s := range OfflineStores(latest, stores) {
		offline[s.StoreID] = true
	}

	installed := make(map[CameraKey]models.CameraInfo, len(cameras))
	for _, c := range cameras {
		installed[CameraKey{c.StoreID, c.CameraNo}] = c
	}

	var out []models.DerivedCameraStatus
	for _, l := range latest {
		if l.CameraNo == nil || l.IsOnline || offline[l.StoreID] {
			continue
		}
		st, ok := byID[l.StoreID]
		if !ok || !st.Running {
			continue
		}
		cam, ok := installed[CameraKey{l.StoreID, *l.CameraNo}]
		if !ok {
			continue
		}
		out = append(out, models.DerivedCameraStatus{
			StoreID:   st.ID,
			StoreNum:  st.StoreNum,
			StoreName: st.Name,
			CameraNo:  cam.CameraNo,
			PosID:     cam.PosID,
			CameraIP:  cam.CameraIP,
			Status:    models.StatusNotPinging,
			CheckedOn: l.UpdatedAt.Format(models.DisplayLayout),
			LastSeen:  l.LastSeen(),
		})
	}
	return out
}

// LiveView lists every installed camera with the stream quality measured this hour.
// Cameras without a reading in the current clock hour are shown blank.
func LiveView(cameras []models.CameraInfo, stores []models.Store, telemetry []models.TelemetryRecord, now time.Time) []models.LiveCamera {
	byID := storeIndex(stores)

	latest := make(map[PosKey]models.TelemetryRecord, len(telemetry))
	for _, t := range telemetry {
		k := PosKey{t.StoreID, t.PosID}
		if prev, ok := latest[k]; !ok || t.ObservedAt.After(prev.ObservedAt) {
			latest[k] = t
		}
	}

	hourStart := HourStart(now)
	out := make([]models.LiveCamera, 0, len(cameras))
	for _, c := range cameras {
		st, ok := byID[c.StoreID]
		if !ok || !st.Running {
			continue
		}
		row := models.LiveCamera{
			StoreID:  st.ID,
			StoreNum: st.StoreNum,
			Name:     st.Name,
			CameraIP: c.CameraIP,
			PosID:    c.PosID,
		}
		if c.SetupDate != nil {
			row.SetupDate = c.SetupDate.Format("2006-01-02")
		}
		if t, ok := latest[PosKey{c.StoreID, c.PosID}]; ok && !t.ObservedAt.Before(hourStart) {
			if v := valueOf(t.FPS); v != 0 {
				row.FPS = formatNumber(v) + " FPS"
			}
			if v := valueOf(t.Bitrate); v != 0 {
				row.Bitrate = formatNumber(v) + " kb/sec"
			}
			row.FrameWidth = strconv.Itoa(t.FrameWidth)
			row.FrameHeight = strconv.Itoa(t.FrameHeight)
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return fmt.Sprintf("%.2f", v)
}

func storeIndex(stores []models.Store) map[int]models.Store {
	idx := make(map[int]models.Store, len(stores))
	for _, s := range stores {
		idx[s.ID] = s
	}
	return idx
}
