package status

import (
	"storewatch/app/internal/models"
)

// Camera messages
const (
	NoCameras        = "No cameras are working"
	AllCameras       = "All cameras are working"
	PartialCameras   = "Partial cameras are working"
	CamerasUnchecked = "Unable to check cameras status"
)

// System messages
const (
	SystemDown = "System not responding"
	SystemUp   = "System responding"
)

// Severity colors
const (
	ColorRed    = "RED"
	ColorYellow = "YELLOW"
	ColorGreen  = "GREEN"
)

// Issue messages that are not also camera or system messages
const (
	IssueNone    = "Everything is working"
	IssueUnknown = "Unknown issue"
)

// Classification is the health verdict for one store
type Classification struct {
	Camera string
	System string
	Color  string
}

// Classify turns current camera and system samples into status messages and a color.
// A system that is not fully responding masks the camera result.
func Classify(camera, system []bool) Classification {
	c := Classification{Camera: cameraMessage(camera)}

	if len(system) == 0 || !allTrue(system) {
		c.System = SystemDown
		c.Camera = CamerasUnchecked
	} else {
		c.System = SystemUp
	}

	c.Color = color(c.Camera, c.System)
	return c
}

func cameraMessage(samples []bool) string {
	switch {
	case len(samples) == 0:
		return NoCameras
	case allTrue(samples):
		return AllCameras
	case anyTrue(samples):
		return PartialCameras
	default:
		return NoCameras
	}
}

func color(camera, system string) string {
	switch {
	case system == SystemDown || camera == NoCameras:
		return ColorRed
	case camera == PartialCameras:
		return ColorYellow
	case camera == AllCameras && system == SystemUp:
		return ColorGreen
	default:
		return ColorRed
	}
}

// IssueMessage collapses a camera and system message into the single line shown on the map
func IssueMessage(camera, system string) string {
	switch {
	case system == SystemDown:
		return SystemDown
	case camera == NoCameras:
		return NoCameras
	case camera == AllCameras && system == SystemUp:
		return IssueNone
	case camera == PartialCameras:
		return PartialCameras
	default:
		return IssueUnknown
	}
}

func allTrue(v []bool) bool {
	for _, b := range v {
		if !b {
			return false
		}
	}
	return true
}

func anyTrue(v []bool) bool {
	for _, b := range v {
		if b {
			return true
		}
	}
	return false
}

// VisibleCameras maps a store ID to the set of camera numbers shown on its dashboard
type VisibleCameras map[int]map[int]bool

// StatusMessage classifies the current samples of a single store. Camera samples for
// cameras outside visible are ignored; a nil visible set keeps them all. Samples
// are expected newest first, as the last-checked time is taken from the first one.
func StatusMessage(samples []models.StatusSample, visible map[int]bool) models.StatusMessage {
	camera, system, lastChecked := splitSamples(samples, visible)
	c := Classify(camera, system)
	return models.StatusMessage{
		Camera:      c.Camera,
		System:      c.System,
		LastChecked: lastChecked,
	}
}

func splitSamples(samples []models.StatusSample, visible map[int]bool) (camera, system []bool, lastChecked string) {
	for _, s := range samples {
		if s.IsSystem() {
			system = append(system, s.IsOnline)
			continue
		}
		if lastChecked == "" {
			lastChecked = s.ObservedAt.Format(models.DisplayLayout)
		}
		if visible != nil && !visible[*s.CameraNo] {
			continue
		}
		camera = append(camera, s.IsOnline)
	}
	return camera, system, lastChecked
}

// StoreHealth classifies every store for the status map using its recent samples
func StoreHealth(stores []models.Store, samples []models.StatusSample, visible VisibleCameras) []models.StoreHealth {
	byStore := make(map[int][]models.StatusSample)
	for _, s := range samples {
		byStore[s.StoreID] = append(byStore[s.StoreID], s)
	}

	out := make([]models.StoreHealth, 0, len(stores))
	for _, st := range stores {
		cams := visible[st.ID]
		if cams == nil {
			cams = map[int]bool{}
		}
		camera, system, _ := splitSamples(byStore[st.ID], cams)
		c := Classify(camera, system)
		out = append(out, models.StoreHealth{
			ID:            st.ID,
			Name:          st.Name,
			RegionID:      st.RegionID,
			AreaID:        st.AreaID,
			Latitude:      st.Latitude,
			Longitude:     st.Longitude,
			Issue:         IssueMessage(c.Camera, c.System),
			CategoryColor: c.Color,
		})
	}
	return out
}
