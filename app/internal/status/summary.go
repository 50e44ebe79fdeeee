package status

import (
	"fmt"
	"sort"
	"time"

	"storewatch/app/internal/models"
)

// Summarize counts stores by camera health and by system health. A store whose
// cameras are all online is online, all offline is offline, anything else is a
// warning. Store rows are single valued and have no warning bucket.
func Summarize(cameraRows, storeRows []models.GroupCount) models.StatusSummary {
	var s models.StatusSummary
	for _, r := range cameraRows {
		switch {
		case r.Online == r.Total:
			s.Camera.Online++
		case r.Offline == r.Total:
			s.Camera.Offline++
		default:
			s.Camera.Warning++
		}
	}
	for _, r := range storeRows {
		switch {
		case r.Online == 1:
			s.Store.Online++
		case r.Offline == 1:
			s.Store.Offline++
		}
	}
	return s
}

// GroupLatest groups latest-status rows of running stores into per-store camera
// and system counts, ordered by store ID.
func GroupLatest(latest []models.LatestStatus, stores []models.Store) (cameras, systems []models.GroupCount) {
	running := make(map[int]bool, len(stores))
	for _, s := range stores {
		if s.Running {
			running[s.ID] = true
		}
	}

	camIdx := map[int]*models.GroupCount{}
	sysIdx := map[int]*models.GroupCount{}
	for _, l := range latest {
		if !running[l.StoreID] {
			continue
		}
		idx := camIdx
		if l.CameraNo == nil {
			idx = sysIdx
		}
		g, ok := idx[l.StoreID]
		if !ok {
			g = &models.GroupCount{StoreID: l.StoreID}
			idx[l.StoreID] = g
		}
		g.Total++
		if l.IsOnline {
			g.Online++
		} else {
			g.Offline++
		}
	}
	return flatten(camIdx), flatten(sysIdx)
}

func flatten(idx map[int]*models.GroupCount) []models.GroupCount {
	out := make([]models.GroupCount, 0, len(idx))
	for _, g := range idx {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out
}

type uptimeAcc struct {
	cameraNo   *int
	posID      string
	systemName string
	working    time.Duration
	nonWorking time.Duration
	prev       time.Time
}

func (a *uptimeAcc) add(at time.Time, online bool) {
	d := at.Sub(a.prev).Truncate(time.Second)
	a.prev = at
	if online {
		a.working += d
	} else {
		a.nonWorking += d
	}
}

// UptimeDurations sums working and non-working time per camera and for the store
// system. Each gap between consecutive samples is attributed to the status of the
// later sample. Samples must be in chronological order. posIDs maps camera numbers
// to their POS counter.
func UptimeDurations(samples []models.StatusSample, posIDs map[int]string) models.UptimeReport {
	report := models.UptimeReport{
		CameraData: []models.UptimeEntry{},
		SystemData: []models.UptimeEntry{},
	}

	var order []int
	cams := map[int]*uptimeAcc{}
	var sys *uptimeAcc

	for _, s := range samples {
		if s.IsSystem() {
			if sys == nil {
				sys = &uptimeAcc{systemName: s.SystemName, prev: s.ObservedAt}
				continue
			}
			sys.add(s.ObservedAt, s.IsOnline)
			continue
		}

		no := *s.CameraNo
		acc, ok := cams[no]
		if !ok {
			n := no
			cams[no] = &uptimeAcc{cameraNo: &n, posID: posIDs[no], prev: s.ObservedAt}
			order = append(order, no)
			continue
		}
		acc.add(s.ObservedAt, s.IsOnline)
	}

	for _, no := range order {
		report.CameraData = append(report.CameraData, cams[no].entry())
	}
	if sys != nil {
		report.SystemData = append(report.SystemData, sys.entry())
	}
	return report
}

func (a *uptimeAcc) entry() models.UptimeEntry {
	return models.UptimeEntry{
		CameraNo:           a.cameraNo,
		PosID:              a.posID,
		SystemName:         a.systemName,
		WorkingDuration:    FormatDuration(a.working),
		NonWorkingDuration: FormatDuration(a.nonWorking),
	}
}

// FormatDuration renders d as H:MM:SS, prefixed with a day count once it reaches a day
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	days := secs / 86400
	secs %= 86400
	clock := fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	switch {
	case days == 1:
		return "1 day, " + clock
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
	return clock
}
