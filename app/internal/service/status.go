package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"storewatch/app/internal/database"
	"storewatch/app/internal/models"
	"storewatch/app/internal/status"
)

// Downtime kinds
const (
	KindCamera = "camera"
	KindSystem = "system"
)

var (
	// ErrInvalidKind is returned for a downtime query that is neither camera nor system
	ErrInvalidKind = errors.New("type must be camera or system")
	// ErrCameraRequired is returned for a camera downtime query without a camera number
	ErrCameraRequired = errors.New("camera_no is required for camera downtime")
	// ErrInvalidRange is returned when from_date is after to_date
	ErrInvalidRange = errors.New("from_date must not be after to_date")
)

// Filters lists the camera status labels accepted by the report filter
func (s *Service) Filters() []string {
	out := make([]string, len(models.StatusLabels))
	copy(out, models.StatusLabels)
	return out
}

// StatusMessage classifies the current health of one store
func (s *Service) StatusMessage(ctx context.Context, storeID int) (models.StatusMessage, error) {
	var (
		samples []models.StatusSample
		visible map[int]map[int]bool
	)
	since := s.now().UTC().Add(-RecentWindow)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		samples, err = fetch(gctx, s, "recent_samples", func(ctx context.Context) ([]models.StatusSample, error) {
			return s.src.FetchRecentSamples(ctx, &storeID, since)
		})
		return err
	})
	g.Go(func() (err error) {
		visible, err = fetch(gctx, s, "visible_cameras", func(ctx context.Context) (map[int]map[int]bool, error) {
			return s.src.FetchVisibleCameras(ctx, []int{storeID})
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return models.StatusMessage{}, err
	}

	cams := visible[storeID]
	if cams == nil {
		cams = map[int]bool{}
	}
	return status.StatusMessage(samples, cams), nil
}

// DowntimeQuery selects the down-windows to reconstruct
type DowntimeQuery struct {
	Kind     string
	StoreID  int
	CameraNo *int
	// From and To are calendar dates. To is inclusive. Both nil means the
	// current year to date.
	From *time.Time
	To   *time.Time
	// MinDuration overrides the configured minimum down-window length
	MinDuration *time.Duration
	Page        int
}

// dateRange resolves the sample range of a downtime query
func (s *Service) dateRange(q DowntimeQuery) (time.Time, time.Time, error) {
	now := s.now().UTC()
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	to := now
	if q.From != nil {
		from = q.From.UTC()
	}
	if q.To != nil {
		to = q.To.UTC().AddDate(0, 0, 1)
	}
	if from.After(to) {
		return from, to, ErrInvalidRange
	}
	return from, to, nil
}

// Downtime reconstructs the down-windows of a camera or of the store system
func (s *Service) Downtime(ctx context.Context, q DowntimeQuery) (models.DowntimePage, error) {
	switch q.Kind {
	case KindCamera:
		if q.CameraNo == nil {
			return models.DowntimePage{}, ErrCameraRequired
		}
	case KindSystem:
	default:
		return models.DowntimePage{}, ErrInvalidKind
	}
	from, to, err := s.dateRange(q)
	if err != nil {
		return models.DowntimePage{}, err
	}
	minDuration := s.minDowntime
	if q.MinDuration != nil {
		minDuration = *q.MinDuration
	}

	if q.Kind == KindSystem {
		samples, err := fetch(ctx, s, "status_samples", func(ctx context.Context) ([]models.StatusSample, error) {
			return s.src.FetchStatusSamples(ctx, q.StoreID, nil, true, from, to)
		})
		if err != nil {
			return models.DowntimePage{}, err
		}
		return status.SystemDowntime(samples, minDuration, q.Page, s.display), nil
	}

	var (
		samples []models.StatusSample
		visible map[int]map[int]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		samples, err = fetch(gctx, s, "status_samples", func(ctx context.Context) ([]models.StatusSample, error) {
			return s.src.FetchStatusSamples(ctx, q.StoreID, q.CameraNo, false, from, to)
		})
		return err
	})
	g.Go(func() (err error) {
		visible, err = fetch(gctx, s, "visible_cameras", func(ctx context.Context) (map[int]map[int]bool, error) {
			return s.src.FetchVisibleCameras(ctx, []int{q.StoreID})
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return models.DowntimePage{}, err
	}

	// cameras without an aisle mapping are not reported
	if !visible[q.StoreID][*q.CameraNo] {
		samples = nil
	}
	return status.CameraDowntime(samples, *q.CameraNo, minDuration, q.Page, s.display), nil
}

// Uptime totals the working and non-working time of every visible camera and
// the system of one store
func (s *Service) Uptime(ctx context.Context, storeID int) (models.UptimeReport, error) {
	var (
		samples []models.StatusSample
		cameras []models.CameraInfo
		visible map[int]map[int]bool
	)
	to := s.now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		samples, err = fetch(gctx, s, "status_samples", func(ctx context.Context) ([]models.StatusSample, error) {
			return s.src.FetchStatusSamples(ctx, storeID, nil, false, time.Time{}, to)
		})
		return err
	})
	g.Go(func() (err error) {
		cameras, err = fetch(gctx, s, "cameras", func(ctx context.Context) ([]models.CameraInfo, error) {
			return s.src.FetchCameras(ctx, database.Scope{StoreID: &storeID})
		})
		return err
	})
	g.Go(func() (err error) {
		visible, err = fetch(gctx, s, "visible_cameras", func(ctx context.Context) (map[int]map[int]bool, error) {
			return s.src.FetchVisibleCameras(ctx, []int{storeID})
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return models.UptimeReport{}, err
	}

	posIDs := make(map[int]string, len(cameras))
	for _, c := range cameras {
		posIDs[c.CameraNo] = c.PosID
	}
	cams := visible[storeID]
	kept := samples[:0:0]
	for _, smp := range samples {
		if smp.IsSystem() || cams[*smp.CameraNo] {
			kept = append(kept, smp)
		}
	}
	return status.UptimeDurations(kept, posIDs), nil
}

// StoreMap classifies every store in scope for the status map
func (s *Service) StoreMap(ctx context.Context, sc database.Scope) (models.Page[models.StoreHealth], error) {
	return remember(ctx, s, "map:"+scopeKey(sc), func(ctx context.Context) (models.Page[models.StoreHealth], error) {
		var (
			stores  []models.Store
			samples []models.StatusSample
		)
		since := s.now().UTC().Add(-RecentWindow)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			stores, err = fetch(gctx, s, "stores", func(ctx context.Context) ([]models.Store, error) {
				return s.src.FetchStores(ctx, sc)
			})
			return err
		})
		g.Go(func() (err error) {
			samples, err = fetch(gctx, s, "recent_samples", func(ctx context.Context) ([]models.StatusSample, error) {
				return s.src.FetchRecentSamples(ctx, sc.StoreID, since)
			})
			return err
		})
		if err := g.Wait(); err != nil {
			return models.Page[models.StoreHealth]{}, err
		}

		ids := make([]int, 0, len(stores))
		for _, st := range stores {
			ids = append(ids, st.ID)
		}
		visible, err := fetch(ctx, s, "visible_cameras", func(ctx context.Context) (map[int]map[int]bool, error) {
			return s.src.FetchVisibleCameras(ctx, ids)
		})
		if err != nil {
			return models.Page[models.StoreHealth]{}, err
		}
		data := status.StoreHealth(stores, samples, visible)
		return models.Page[models.StoreHealth]{Data: data, Count: len(data)}, nil
	})
}

// ReportQuery scopes and pages the camera report
type ReportQuery struct {
	Scope        database.Scope
	StatusFilter string
	Mode         status.MergeMode
	Page         int
	PerPage      int
}

// CameraReport merges ping, telemetry, jitter and breakage into one status per camera
func (s *Service) CameraReport(ctx context.Context, q ReportQuery) (models.Page[models.DerivedCameraStatus], error) {
	var (
		latest    []models.LatestStatus
		cameras   []models.CameraInfo
		stores    []models.Store
		telemetry []models.TelemetryRecord
		jitter    []models.JitterEvent
		breakage  []models.BreakageEvent
	)
	now := s.now().UTC()
	sc := q.Scope

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		latest, err = fetch(gctx, s, "latest_status", func(ctx context.Context) ([]models.LatestStatus, error) {
			return s.src.FetchLatestStatus(ctx, sc)
		})
		return err
	})
	g.Go(func() (err error) {
		cameras, err = fetch(gctx, s, "cameras", func(ctx context.Context) ([]models.CameraInfo, error) {
			return s.src.FetchCameras(ctx, sc)
		})
		return err
	})
	g.Go(func() (err error) {
		stores, err = fetch(gctx, s, "stores", func(ctx context.Context) ([]models.Store, error) {
			return s.src.FetchStores(ctx, sc)
		})
		return err
	})
	g.Go(func() (err error) {
		telemetry, err = fetch(gctx, s, "stream_telemetry", func(ctx context.Context) ([]models.TelemetryRecord, error) {
			return s.src.FetchStreamTelemetry(ctx, sc, status.HourStart(now))
		})
		return err
	})
	g.Go(func() (err error) {
		jitter, err = fetch(gctx, s, "jitter_events", func(ctx context.Context) ([]models.JitterEvent, error) {
			return s.src.FetchJitterEvents(ctx, sc)
		})
		return err
	})
	g.Go(func() (err error) {
		breakage, err = fetch(gctx, s, "breakage_events", func(ctx context.Context) ([]models.BreakageEvent, error) {
			return s.src.FetchBreakageEvents(ctx, sc)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Page[models.DerivedCameraStatus]{}, err
	}

	merged := status.Merge(status.MergeInput{
		NotPinging: status.NotPingingFromLatest(latest, cameras, stores),
		Telemetry:  telemetry,
		Jitter:     jitter,
		Breakage:   breakage,
		LastSeen:   status.LastSeenIndex(latest),
	}, status.MergeOptions{
		Now:          now,
		Mode:         q.Mode,
		StatusFilter: q.StatusFilter,
		Thresholds:   s.thresholds,
	})

	if s.metrics != nil && q.Mode == status.FullView && q.StatusFilter == "" && sc == (database.Scope{}) {
		counts := make(map[string]int, len(models.StatusLabels))
		for _, r := range merged {
			counts[r.Status]++
		}
		s.metrics.ObserveCameraStatuses(counts)
	}

	data, total := status.Paginate(merged, q.Page, q.PerPage)
	return models.Page[models.DerivedCameraStatus]{Data: data, Count: total}, nil
}

// OfflineStores lists running stores whose system is not responding
func (s *Service) OfflineStores(ctx context.Context, sc database.Scope, page, perPage int) (models.Page[models.StoreStatus], error) {
	var (
		latest []models.LatestStatus
		stores []models.Store
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		latest, err = fetch(gctx, s, "latest_status", func(ctx context.Context) ([]models.LatestStatus, error) {
			return s.src.FetchLatestStatus(ctx, sc)
		})
		return err
	})
	g.Go(func() (err error) {
		stores, err = fetch(gctx, s, "stores", func(ctx context.Context) ([]models.Store, error) {
			return s.src.FetchStores(ctx, sc)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Page[models.StoreStatus]{}, err
	}

	all := status.OfflineStores(latest, stores)
	data, total := status.Paginate(all, page, perPage)
	return models.Page[models.StoreStatus]{Data: data, Count: total}, nil
}

// LiveView lists installed cameras with their stream quality for the current hour
func (s *Service) LiveView(ctx context.Context, sc database.Scope, page, perPage int) (models.Page[models.LiveCamera], error) {
	var (
		cameras   []models.CameraInfo
		stores    []models.Store
		telemetry []models.TelemetryRecord
	)
	now := s.now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cameras, err = fetch(gctx, s, "cameras", func(ctx context.Context) ([]models.CameraInfo, error) {
			return s.src.FetchCameras(ctx, sc)
		})
		return err
	})
	g.Go(func() (err error) {
		stores, err = fetch(gctx, s, "stores", func(ctx context.Context) ([]models.Store, error) {
			return s.src.FetchStores(ctx, sc)
		})
		return err
	})
	g.Go(func() (err error) {
		telemetry, err = fetch(gctx, s, "stream_telemetry", func(ctx context.Context) ([]models.TelemetryRecord, error) {
			return s.src.FetchStreamTelemetry(ctx, sc, status.HourStart(now))
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Page[models.LiveCamera]{}, err
	}

	all := status.LiveView(cameras, stores, telemetry, now)
	data, total := status.Paginate(all, page, perPage)
	return models.Page[models.LiveCamera]{Data: data, Count: total}, nil
}

// Summary counts stores by camera health and by system status. Results are cached
// per scope for the cache TTL.
func (s *Service) Summary(ctx context.Context, sc database.Scope) (models.StatusSummary, error) {
	return remember(ctx, s, "summary:"+scopeKey(sc), func(ctx context.Context) (models.StatusSummary, error) {
		type counts struct{ cameras, stores []models.GroupCount }
		c, err := fetch(ctx, s, "status_counts", func(ctx context.Context) (counts, error) {
			cameras, stores, err := s.src.FetchStatusCounts(ctx, sc)
			return counts{cameras, stores}, err
		})
		if err != nil {
			return models.StatusSummary{}, err
		}
		return status.Summarize(c.cameras, c.stores), nil
	})
}

func scopeKey(sc database.Scope) string {
	part := func(p *int) string {
		if p == nil {
			return "-"
		}
		return fmt.Sprint(*p)
	}
	return part(sc.StoreID) + "/" + part(sc.RegionID) + "/" + part(sc.AreaID) + "/" + part(sc.ClientRegionID)
}
