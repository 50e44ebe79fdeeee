package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storewatch/app/internal/models"
	"storewatch/app/internal/status"
)

var (
	// ErrInvalidDate is returned for a date that is not YYYY-MM-DD
	ErrInvalidDate = errors.New("invalid date format, use YYYY-MM-DD")
	// ErrInvalidUpdate is returned for an update without store, script or status
	ErrInvalidUpdate = errors.New("store_id, script_name and new_status are required")
)

const dayLayout = "2006-01-02"

// AppStatusQuery selects and pages application status rows. An empty Date
// means today (UTC) and an empty Status means Not Running.
type AppStatusQuery struct {
	StoreIDs    []int
	CameraNos   []int
	Search      string
	Date        string
	Status      string
	TechSupport bool
	Page        int
	PerPage     int
}

func (q AppStatusQuery) pageSize() int {
	if q.PerPage < 1 {
		return 10
	}
	return q.PerPage
}

func (s *Service) appFilter(q AppStatusQuery) (models.AppStatusFilter, error) {
	f := models.AppStatusFilter{
		StoreIDs:    q.StoreIDs,
		CameraNos:   q.CameraNos,
		Search:      q.Search,
		Day:         s.now().UTC().Format(dayLayout),
		Status:      q.Status,
		TechSupport: q.TechSupport,
	}
	if q.Date != "" {
		if _, err := time.Parse(dayLayout, q.Date); err != nil {
			return f, ErrInvalidDate
		}
		f.Day = q.Date
	}
	if f.Status == "" {
		f.Status = models.AppNotRunning
	}
	return f, nil
}

func (s *Service) appRows(ctx context.Context, q AppStatusQuery) ([]models.AppStatus, error) {
	f, err := s.appFilter(q)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, s, "application_status", func(ctx context.Context) ([]models.AppStatus, error) {
		return s.src.FetchAppStatus(ctx, f)
	})
}

// AppStatus returns one page of script groups, newest first
func (s *Service) AppStatus(ctx context.Context, q AppStatusQuery) (models.Page[models.AppStatus], error) {
	rows, err := s.appRows(ctx, q)
	if err != nil {
		return models.Page[models.AppStatus]{}, err
	}
	data, total := status.Paginate(rows, q.Page, q.pageSize())
	return models.Page[models.AppStatus]{Data: data, Count: total}, nil
}

// AppStatusByStore returns one page of stores with their failing scripts. Stores
// are ordered by their newest report.
func (s *Service) AppStatusByStore(ctx context.Context, q AppStatusQuery) (models.Page[models.AppStoreIssues], error) {
	rows, err := s.appRows(ctx, q)
	if err != nil {
		return models.Page[models.AppStoreIssues]{}, err
	}
	groups := groupByStore(rows)
	data, total := status.Paginate(groups, q.Page, q.pageSize())
	return models.Page[models.AppStoreIssues]{Data: data, Count: total}, nil
}

func groupByStore(rows []models.AppStatus) []models.AppStoreIssues {
	idx := map[int]int{}
	var out []models.AppStoreIssues
	for _, r := range rows {
		i, ok := idx[r.StoreID]
		if !ok {
			i = len(out)
			idx[r.StoreID] = i
			out = append(out, models.AppStoreIssues{
				StoreNum:   r.StoreNum,
				Name:       r.Name,
				ClientName: r.ClientName,
				StoreID:    r.StoreID,
			})
		}
		g := &out[i]
		if r.CreatedAt.After(g.CreatedAt) {
			g.CreatedAt = r.CreatedAt
		}
		g.Issues = append(g.Issues, models.AppIssue{
			ID:         r.ID,
			CameraNo:   r.CameraNo,
			ScriptName: r.ScriptName,
			Status:     r.Status,
			CreatedAt:  r.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func validUpdate(u models.AppStatusUpdate) error {
	if u.StoreID <= 0 || u.ScriptName == "" || u.NewStatus == "" {
		return ErrInvalidUpdate
	}
	if u.Date != "" {
		if _, err := time.Parse(dayLayout, u.Date); err != nil {
			return ErrInvalidDate
		}
	}
	return nil
}

func validTechSupport(u models.TechSupportUpdate) error {
	if u.StoreID <= 0 || u.ScriptName == "" {
		return fmt.Errorf("%w: store_id and script_name are required", ErrInvalidUpdate)
	}
	return nil
}

// write runs a status change and logs a failure. Writes are not retried.
func (s *Service) write(op string, fn func() (int64, error)) (int64, error) {
	n, err := fn()
	if err != nil {
		s.log.WithError(err).WithField("op", op).Warn("application status write failed")
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.WithField("op", op).WithField("rows", n).Info("application status updated")
	return n, nil
}

// UpdateAppStatus sets the status of one script on every matching row
func (s *Service) UpdateAppStatus(ctx context.Context, u models.AppStatusUpdate) (int64, error) {
	if err := validUpdate(u); err != nil {
		return 0, err
	}
	return s.write("update_application_status", func() (int64, error) {
		return s.src.UpdateAppStatus(ctx, []models.AppStatusUpdate{u}, false)
	})
}

// UpdateAppStatusBatch applies all updates in one transaction. Only rows that
// are still Not Running change.
func (s *Service) UpdateAppStatusBatch(ctx context.Context, updates []models.AppStatusUpdate) (int64, error) {
	for _, u := range updates {
		if err := validUpdate(u); err != nil {
			return 0, err
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}
	return s.write("update_application_status_batch", func() (int64, error) {
		return s.src.UpdateAppStatus(ctx, updates, true)
	})
}

// ResolveStoreApps marks every failing script of a store Running
func (s *Service) ResolveStoreApps(ctx context.Context, storeID int) (int64, error) {
	if storeID <= 0 {
		return 0, fmt.Errorf("%w: store_id is required", ErrInvalidUpdate)
	}
	return s.write("resolve_application_status", func() (int64, error) {
		return s.src.ResolveAppStatus(ctx, storeID)
	})
}

// SendToTechSupport flags a failing script for tech support
func (s *Service) SendToTechSupport(ctx context.Context, u models.TechSupportUpdate) (int64, error) {
	if err := validTechSupport(u); err != nil {
		return 0, err
	}
	return s.write("send_to_tech_support", func() (int64, error) {
		return s.src.FlagTechSupport(ctx, u)
	})
}

// ResolveTechSupport marks a flagged script as handled by tech support
func (s *Service) ResolveTechSupport(ctx context.Context, u models.TechSupportUpdate) (int64, error) {
	if err := validTechSupport(u); err != nil {
		return 0, err
	}
	return s.write("update_tech_support_status", func() (int64, error) {
		return s.src.ResolveTechSupport(ctx, u)
	})
}
