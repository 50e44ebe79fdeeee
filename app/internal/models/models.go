package models

import "time"

// Camera status labels
const (
	StatusPinging        = "Pinging"
	StatusNotPinging     = "Not Pinging"
	StatusMisconfigured  = "Misconfigured"
	StatusStreamBreakage = "Stream Breakage"
	StatusJittery        = "Jittery"
)

// StatusLabels lists every derived camera status, in the order the dashboard shows them
var StatusLabels = []string{
	StatusMisconfigured,
	StatusStreamBreakage,
	StatusJittery,
	StatusPinging,
	StatusNotPinging,
}

// NeverSeen is reported when a camera has no recorded last-active time
const NeverSeen = "Never"

// DisplayLayout is the timestamp layout used in every response
const DisplayLayout = "2006-01-02 15:04:05"

// StatusSample is one polled liveness observation. CameraNo is nil for the
// store system itself.
type StatusSample struct {
	StoreID    int       `json:"store_id"`
	CameraNo   *int      `json:"camera_no,omitempty"`
	SystemName string    `json:"system_name,omitempty"`
	IsOnline   bool      `json:"is_online"`
	ObservedAt time.Time `json:"observed_at"`
}

// IsSystem reports whether the sample describes the store system rather than a camera
func (s StatusSample) IsSystem() bool {
	return s.CameraNo == nil
}

// TelemetryRecord is the latest stream measurement for a camera in the current hour
type TelemetryRecord struct {
	StoreID     int       `json:"store_id"`
	StoreNum    string    `json:"store_num"`
	StoreName   string    `json:"store_name"`
	CameraNo    int       `json:"camera_no"`
	PosID       string    `json:"pos_id"`
	CameraIP    string    `json:"camera_ip"`
	FPS         *float64  `json:"fps"`
	Bitrate     *float64  `json:"bitrate"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`
	ObservedAt  time.Time `json:"observed_at"`
}

// JitterEvent marks unstable stream timing on a POS camera
type JitterEvent struct {
	StoreID    int       `json:"store_id"`
	PosID      string    `json:"pos_id"`
	ObservedAt time.Time `json:"observed_at"`
}

// BreakageEvent is a VTC stream continuity record. A zero duration means the
// breakage is still ongoing.
type BreakageEvent struct {
	StoreID          int    `json:"store_id"`
	PosID            string `json:"pos_id"`
	BreakageDuration int    `json:"breakage_duration"`
}

// LatestStatus is the last known state of a camera or store system
type LatestStatus struct {
	StoreID    int        `json:"store_id"`
	CameraNo   *int       `json:"camera_no,omitempty"`
	IsOnline   bool       `json:"is_online"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// LastSeen renders LastActive for display, falling back to NeverSeen
func (l LatestStatus) LastSeen() string {
	if l.LastActive == nil {
		return NeverSeen
	}
	return l.LastActive.Format(DisplayLayout)
}

// Store holds the metadata of a store
type Store struct {
	ID             int     `json:"id"`
	StoreNum       string  `json:"store_num"`
	Name           string  `json:"name"`
	RegionID       int     `json:"region_id"`
	AreaID         int     `json:"area_id"`
	ClientRegionID int     `json:"client_region_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Running        bool    `json:"running"`
}

// CameraInfo describes an installed camera and the POS counter it watches
type CameraInfo struct {
	StoreID   int        `json:"store_id"`
	CameraNo  int        `json:"camera_no"`
	PosID     string     `json:"pos_id"`
	CameraIP  string     `json:"camera_ip"`
	SetupDate *time.Time `json:"setup_date,omitempty"`
}

// DerivedCameraStatus is the merged status of a single camera
type DerivedCameraStatus struct {
	StoreID   int    `json:"store_id_dashboard"`
	StoreNum  string `json:"store_id"`
	StoreName string `json:"store_name"`
	CameraNo  int    `json:"camera_no"`
	PosID     string `json:"pos_id"`
	CameraIP  string `json:"camera_ip"`
	Status    string `json:"status"`
	CheckedOn string `json:"checked_on"`
	LastSeen  string `json:"last_seen"`
}

// StoreStatus is a store whose system is not responding
type StoreStatus struct {
	StoreID   int    `json:"store_id_dashboard"`
	StoreNum  string `json:"store_id"`
	StoreName string `json:"store_name"`
	Status    string `json:"status"`
	CheckedOn string `json:"checked_on"`
	LastSeen  string `json:"last_seen"`
}

// DownwindowRecord is a reconstructed period where an entity was offline
type DownwindowRecord struct {
	CameraNo   *int   `json:"camera_no,omitempty"`
	SystemName string `json:"system_name,omitempty"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Working    bool   `json:"working"`
}

// DowntimePage is one page of down-windows with the overall count
type DowntimePage struct {
	Data       []DownwindowRecord `json:"data"`
	TotalCount int                `json:"total_count"`
}

// GroupCount holds pre-grouped online/offline counts for one store
type GroupCount struct {
	StoreID int `json:"store_id"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Total   int `json:"total"`
}

// CameraSummary counts stores by how many of their cameras are online
type CameraSummary struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Warning int `json:"warning"`
}

// StoreSummary counts stores by system status
type StoreSummary struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// StatusSummary is the dashboard headline of camera and store health
type StatusSummary struct {
	Camera CameraSummary `json:"camera"`
	Store  StoreSummary  `json:"store"`
}

// StatusMessage is the store-level health message shown on the dashboard
type StatusMessage struct {
	Camera      string `json:"camera"`
	System      string `json:"system"`
	LastChecked string `json:"last_checked"`
}

// StoreHealth is a store pin on the status map
type StoreHealth struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	RegionID      int     `json:"region_id"`
	AreaID        int     `json:"area_id"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Issue         string  `json:"issue"`
	CategoryColor string  `json:"category_color"`
}

// UptimeEntry holds working and non-working durations for a camera or system
type UptimeEntry struct {
	CameraNo           *int   `json:"camera_no,omitempty"`
	PosID              string `json:"pos_id,omitempty"`
	SystemName         string `json:"system_name,omitempty"`
	WorkingDuration    string `json:"working_duration"`
	NonWorkingDuration string `json:"non_working_duration"`
}

// UptimeReport groups per-camera and system uptime durations for a store
type UptimeReport struct {
	CameraData []UptimeEntry `json:"camera_data"`
	SystemData []UptimeEntry `json:"system_data"`
}

// LiveCamera is one row of the live stream-quality view
type LiveCamera struct {
	StoreID     int    `json:"store_id_dashboard"`
	StoreNum    string `json:"store_id"`
	Name        string `json:"name"`
	CameraIP    string `json:"camera_ip"`
	PosID       string `json:"pos_id"`
	SetupDate   string `json:"setup_date"`
	FPS         string `json:"fps"`
	Bitrate     string `json:"bitrate"`
	FrameWidth  string `json:"frame_width"`
	FrameHeight string `json:"frame_height"`
}

// Page is a generic paginated response
type Page[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

// StoreOption is a running store in the dashboard store picker
type StoreOption struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CameraLiveness is one visible camera of a store with whether it reported
// online in the recent window
type CameraLiveness struct {
	CameraNo      int    `json:"camera_no"`
	PosID         string `json:"pos_id"`
	CameraIP      string `json:"camera_ip"`
	OneHourStatus int    `json:"one_hour_status"`
}
