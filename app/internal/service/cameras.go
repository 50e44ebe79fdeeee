package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"storewatch/app/internal/database"
	"storewatch/app/internal/models"
)

// ErrNoData is returned when nothing has been recorded yet
var ErrNoData = errors.New("no data found")

// LastUpdate returns the time of the newest status sample, in UTC
func (s *Service) LastUpdate(ctx context.Context) (string, error) {
	last, err := fetch(ctx, s, "last_update", func(ctx context.Context) (*time.Time, error) {
		return s.src.FetchLastUpdate(ctx)
	})
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", ErrNoData
	}
	return last.UTC().Format(models.DisplayLayout), nil
}

// StoreOptions lists the running stores by name
func (s *Service) StoreOptions(ctx context.Context) ([]models.StoreOption, error) {
	stores, err := fetch(ctx, s, "stores", func(ctx context.Context) ([]models.Store, error) {
		return s.src.FetchStores(ctx, database.Scope{})
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.StoreOption, 0, len(stores))
	for _, st := range stores {
		if st.Running {
			out = append(out, models.StoreOption{ID: st.ID, Name: st.Name})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CameraLiveness lists the visible cameras of a store, flagging those that
// reported online within RecentWindow
func (s *Service) CameraLiveness(ctx context.Context, storeID int) ([]models.CameraLiveness, error) {
	var (
		cameras []models.CameraInfo
		visible map[int]map[int]bool
		samples []models.StatusSample
	)
	since := s.now().UTC().Add(-RecentWindow)

	g, gctx := errgroup.WithContext(ctx)
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
	g.Go(func() (err error) {
		samples, err = fetch(gctx, s, "recent_samples", func(ctx context.Context) ([]models.StatusSample, error) {
			return s.src.FetchRecentSamples(ctx, &storeID, since)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	online := map[int]bool{}
	for _, smp := range samples {
		if !smp.IsSystem() && smp.IsOnline {
			online[*smp.CameraNo] = true
		}
	}
	cams := visible[storeID]
	out := make([]models.CameraLiveness, 0, len(cams))
	for _, c := range cameras {
		if !cams[c.CameraNo] {
			continue
		}
		row := models.CameraLiveness{CameraNo: c.CameraNo, PosID: c.PosID, CameraIP: c.CameraIP}
		if online[c.CameraNo] {
			row.OneHourStatus = 1
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraNo < out[j].CameraNo })
	return out, nil
}
