package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storewatch/app/internal/config"
	"storewatch/app/internal/models"
)

// ErrUnknownDriver is returned by Open for an unsupported DB_DRIVER
var ErrUnknownDriver = errors.New("unknown database driver")

// Scope narrows a query to a store, region, area or client region. Nil fields
// do not filter.
type Scope struct {
	StoreID        *int
	RegionID       *int
	AreaID         *int
	ClientRegionID *int
}

// Source is the read side of the status data. All samples are returned in UTC.
type Source interface {
	// FetchStatusSamples returns one store's samples between from and to, oldest
	// first. A non-nil cameraNo selects that camera; systemOnly selects the
	// system-level samples; otherwise both are returned.
	FetchStatusSamples(ctx context.Context, storeID int, cameraNo *int, systemOnly bool, from, to time.Time) ([]models.StatusSample, error)
	// FetchRecentSamples returns samples newer than since, newest first
	FetchRecentSamples(ctx context.Context, storeID *int, since time.Time) ([]models.StatusSample, error)
	FetchLatestStatus(ctx context.Context, sc Scope) ([]models.LatestStatus, error)
	// FetchStreamTelemetry returns the newest stream reading per (store, pos) observed since the given time
	FetchStreamTelemetry(ctx context.Context, sc Scope, since time.Time) ([]models.TelemetryRecord, error)
	// FetchJitterEvents returns the newest jitter event per (store, pos)
	FetchJitterEvents(ctx context.Context, sc Scope) ([]models.JitterEvent, error)
	// FetchBreakageEvents returns the ongoing (zero duration) VTC breakages
	FetchBreakageEvents(ctx context.Context, sc Scope) ([]models.BreakageEvent, error)
	FetchStores(ctx context.Context, sc Scope) ([]models.Store, error)
	FetchCameras(ctx context.Context, sc Scope) ([]models.CameraInfo, error)
	// FetchVisibleCameras returns the cameras that have an aisle mapping, per store
	FetchVisibleCameras(ctx context.Context, storeIDs []int) (map[int]map[int]bool, error)
	// FetchStatusCounts returns per-store online/offline counts of the cameras and
	// of the system, for running stores only
	FetchStatusCounts(ctx context.Context, sc Scope) (cameras, stores []models.GroupCount, err error)
	// FetchLastUpdate returns the newest sample time, nil when nothing is recorded
	FetchLastUpdate(ctx context.Context) (*time.Time, error)

	AppStatusStore

	Ping(ctx context.Context) error
	Close() error
}

// AppStatusStore reads and resolves the application status rows reported by the
// in-store scripts. Updates return the number of rows changed.
type AppStatusStore interface {
	// FetchAppStatus returns the newest row of every (store, camera, script)
	// group matching f, newest first
	FetchAppStatus(ctx context.Context, f models.AppStatusFilter) ([]models.AppStatus, error)
	// UpdateAppStatus applies every update in one transaction. notRunningOnly
	// limits each update to rows that are still Not Running.
	UpdateAppStatus(ctx context.Context, updates []models.AppStatusUpdate, notRunningOnly bool) (int64, error)
	// ResolveAppStatus marks every Not Running row of a store Running
	ResolveAppStatus(ctx context.Context, storeID int) (int64, error)
	// FlagTechSupport flags Not Running rows that are not flagged yet
	FlagTechSupport(ctx context.Context, u models.TechSupportUpdate) (int64, error)
	// ResolveTechSupport marks flagged Not Running rows as handled by tech support
	ResolveTechSupport(ctx context.Context, u models.TechSupportUpdate) (int64, error)
}

// Recorder is the write side used by ingest
type Recorder interface {
	RecordSample(ctx context.Context, s models.StatusSample) error
	RecordTelemetry(ctx context.Context, r models.TelemetryRecord) error
	RecordJitter(ctx context.Context, e models.JitterEvent) error
	RecordBreakage(ctx context.Context, e models.BreakageEvent, at time.Time) error
	UpsertStore(ctx context.Context, s models.Store) error
	UpsertCamera(ctx context.Context, c models.CameraInfo, visible bool) error
	RecordAppStatus(ctx context.Context, a models.AppStatus) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Open connects to the configured backend
func Open(cfg *config.Config) (Source, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return OpenSQLite(cfg.DBPath)
	case "mysql":
		return OpenCentral(cfg.MySQL.DSNString())
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.DBDriver)
}
