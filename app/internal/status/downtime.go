package status

import (
	"sort"
	"time"

	"storewatch/app/internal/models"
)

// DowntimePageSize is the fixed page size of the downtime report
const DowntimePageSize = 10

// DefaultMinDowntime is the shortest offline stretch reported as a down-window
const DefaultMinDowntime = 1800 * time.Second

// Sample is a single (timestamp, online) observation
type Sample struct {
	At     time.Time
	Online bool
	// Label is carried through to the window closed by this sample
	Label string
}

// Window is a reconstructed down-window. Label comes from the sample that closed it.
type Window struct {
	Start time.Time
	End   time.Time
	Label string
}

// Duration returns how long the window lasted
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Reconstruct scans samples in chronological order and returns every offline stretch
// lasting at least minDuration, most recent first. Each stretch is judged on its own;
// short blips are dropped rather than merged with later ones. A stretch still open at
// the end of input is closed at the last sample.
func Reconstruct(samples []Sample, minDuration time.Duration) []Window {
	if len(samples) == 0 {
		return nil
	}

	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].At.Before(ordered[j].At)
	})

	var windows []Window
	var start *time.Time

	for i := range ordered {
		s := ordered[i]
		if start == nil && !s.Online {
			at := s.At
			start = &at
		}
		if start != nil && s.Online {
			if s.At.Sub(*start) >= minDuration {
				windows = append(windows, Window{Start: *start, End: s.At, Label: s.Label})
			}
			start = nil
		}
	}

	last := ordered[len(ordered)-1]
	if start != nil && !last.Online && last.At.Sub(*start) >= minDuration {
		windows = append(windows, Window{Start: *start, End: last.At, Label: last.Label})
	}

	for i, j := 0, len(windows)-1; i < j; i, j = i+1, j-1 {
		windows[i], windows[j] = windows[j], windows[i]
	}
	return windows
}

// Paginate returns the requested page of items and the total count. Pages start at 1.
func Paginate[T any](items []T, page, size int) ([]T, int) {
	total := len(items)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		return []T{}, total
	}
	from := (page - 1) * size
	if from >= total {
		return []T{}, total
	}
	to := from + size
	if to > total {
		to = total
	}
	return items[from:to], total
}

// SamplesOf converts stored status samples into reconstruction input. The system
// name is carried as the window label.
func SamplesOf(in []models.StatusSample) []Sample {
	out := make([]Sample, 0, len(in))
	for _, s := range in {
		out = append(out, Sample{At: s.ObservedAt, Online: s.IsOnline, Label: s.SystemName})
	}
	return out
}

// CameraDowntime builds the paginated down-window report for one camera
func CameraDowntime(samples []models.StatusSample, cameraNo int, minDuration time.Duration, page int, display DisplayFunc) models.DowntimePage {
	windows := Reconstruct(SamplesOf(samples), minDuration)
	records := make([]models.DownwindowRecord, 0, len(windows))
	for _, w := range windows {
		cam := cameraNo
		records = append(records, models.DownwindowRecord{
			CameraNo:  &cam,
			StartTime: display(w.Start),
			EndTime:   display(w.End),
		})
	}
	return pageOf(records, page)
}

// SystemDowntime builds the paginated down-window report for a store system
func SystemDowntime(samples []models.StatusSample, minDuration time.Duration, page int, display DisplayFunc) models.DowntimePage {
	windows := Reconstruct(SamplesOf(samples), minDuration)
	records := make([]models.DownwindowRecord, 0, len(windows))
	for _, w := range windows {
		records = append(records, models.DownwindowRecord{
			SystemName: w.Label,
			StartTime:  display(w.Start),
			EndTime:    display(w.End),
		})
	}
	return pageOf(records, page)
}

func pageOf(records []models.DownwindowRecord, page int) models.DowntimePage {
	data, total := Paginate(records, page, DowntimePageSize)
	return models.DowntimePage{Data: data, TotalCount: total}
}
