package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storewatch/app/internal/models"
)

// Central reads the upstream dashboard database. Its only writes resolve
// application status rows.
type Central struct {
	db *gorm.DB
}

// OpenCentral connects to MySQL with the given DSN
func OpenCentral(dsn string) (*Central, error) {
	return openCentral(mysql.Open(dsn))
}

// NewCentral wraps an existing connection, e.g. one provided by a test
func NewCentral(conn *sql.DB) (*Central, error) {
	return openCentral(mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true}))
}

func openCentral(dialector gorm.Dialector) (*Central, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open central db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	return &Central{db: db}, nil
}

func (c *Central) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Central) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// scoped applies the scope to a query joined with stores
func scoped(q *gorm.DB, sc Scope) *gorm.DB {
	if sc.StoreID != nil {
		q = q.Where("stores.id = ?", *sc.StoreID)
	}
	if sc.RegionID != nil {
		q = q.Where("stores.region_id = ?", *sc.RegionID)
	}
	if sc.AreaID != nil {
		q = q.Where("stores.area_id = ?", *sc.AreaID)
	}
	if sc.ClientRegionID != nil {
		q = q.Where("stores.company_region_id = ?", *sc.ClientRegionID)
	}
	return q
}

type sampleRow struct {
	StoreID       int
	CameraNo      *int
	SystemName    sql.NullString
	CurrentStatus int
	ObservedAt    time.Time
}

// sampleColumns reads the observation time from updated_at; rows are
// still selected by created_at.
const sampleColumns = "store_id, camera_no, system_name, current_status, COALESCE(updated_at, created_at) AS observed_at"

func (r sampleRow) model() models.StatusSample {
	return models.StatusSample{
		StoreID:    r.StoreID,
		CameraNo:   r.CameraNo,
		SystemName: r.SystemName.String,
		IsOnline:   r.CurrentStatus == 1,
		ObservedAt: r.ObservedAt.UTC(),
	}
}

func samplesOf(rows []sampleRow) []models.StatusSample {
	out := make([]models.StatusSample, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

func (c *Central) FetchStatusSamples(ctx context.Context, storeID int, cameraNo *int, systemOnly bool, from, to time.Time) ([]models.StatusSample, error) {
	q := c.db.WithContext(ctx).Table("status").
		Select(sampleColumns).
		Where("store_id = ? AND created_at >= ? AND created_at <= ?", storeID, from.UTC(), to.UTC())
	switch {
	case cameraNo != nil:
		q = q.Where("camera_no = ?", *cameraNo)
	case systemOnly:
		q = q.Where("camera_no IS NULL")
	}
	var rows []sampleRow
	if err := q.Order("observed_at ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch status samples: %w", err)
	}
	return samplesOf(rows), nil
}

func (c *Central) FetchRecentSamples(ctx context.Context, storeID *int, since time.Time) ([]models.StatusSample, error) {
	q := c.db.WithContext(ctx).Table("status").
		Select(sampleColumns).
		Where("created_at > ?", since.UTC())
	if storeID != nil {
		q = q.Where("store_id = ?", *storeID)
	}
	var rows []sampleRow
	if err := q.Order("observed_at DESC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch recent samples: %w", err)
	}
	return samplesOf(rows), nil
}

type latestRow struct {
	StoreID       int
	CameraNo      *int
	CurrentStatus int
	UpdatedAt     time.Time
	LastActive    *time.Time
}

func (c *Central) FetchLatestStatus(ctx context.Context, sc Scope) ([]models.LatestStatus, error) {
	q := c.db.WithContext(ctx).Table("latest_status").
		Select("latest_status.store_id, latest_status.camera_no, latest_status.current_status, latest_status.updated_at, latest_status.last_active").
		Joins("JOIN stores ON stores.id = latest_status.store_id")
	var rows []latestRow
	if err := scoped(q, sc).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch latest status: %w", err)
	}
	out := make([]models.LatestStatus, 0, len(rows))
	for _, r := range rows {
		l := models.LatestStatus{
			StoreID:   r.StoreID,
			CameraNo:  r.CameraNo,
			IsOnline:  r.CurrentStatus == 1,
			UpdatedAt: r.UpdatedAt.UTC(),
		}
		if r.LastActive != nil {
			t := r.LastActive.UTC()
			l.LastActive = &t
		}
		out = append(out, l)
	}
	return out, nil
}

type streamRow struct {
	StoreID     int
	StoreNum    string
	StoreName   string
	CameraNo    int
	PosID       string
	CameraIP    string
	FPS         *float64 `gorm:"column:fps"`
	Bitrate     *float64
	FrameWidth  int
	FrameHeight int
	CheckedOn   time.Time
}

// FetchStreamTelemetry joins the newest reading per (store, pos) with the camera
// installed on that counter
func (c *Central) FetchStreamTelemetry(ctx context.Context, sc Scope, since time.Time) ([]models.TelemetryRecord, error) {
	newest := c.db.Table("stream_data").
		Select("store_id, camera_no, MAX(created_at) AS created_at").
		Where("created_at >= ?", since.UTC()).
		Group("store_id, camera_no")

	q := c.db.WithContext(ctx).Table("stream_data").
		Select(`stores.id AS store_id, stores.store_num, stores.name AS store_name,
			camera_info.camera_no, stream_data.camera_no AS pos_id, camera_info.camera_ip,
			stream_data.fps, stream_data.bitrate, stream_data.frame_width, stream_data.frame_height,
			stream_data.created_at AS checked_on`).
		Joins("JOIN (?) AS newest ON newest.store_id = stream_data.store_id AND newest.camera_no = stream_data.camera_no AND newest.created_at = stream_data.created_at", newest).
		Joins("JOIN stores ON stores.id = stream_data.store_id").
		Joins("JOIN camera_info ON camera_info.store_id = stream_data.store_id AND camera_info.counter_no = stream_data.camera_no")

	var rows []streamRow
	if err := scoped(q, sc).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch stream telemetry: %w", err)
	}
	out := make([]models.TelemetryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.TelemetryRecord{
			StoreID:     r.StoreID,
			StoreNum:    r.StoreNum,
			StoreName:   r.StoreName,
			CameraNo:    r.CameraNo,
			PosID:       r.PosID,
			CameraIP:    r.CameraIP,
			FPS:         r.FPS,
			Bitrate:     r.Bitrate,
			FrameWidth:  r.FrameWidth,
			FrameHeight: r.FrameHeight,
			ObservedAt:  r.CheckedOn.UTC(),
		})
	}
	return out, nil
}

type jitterRow struct {
	StoreID   int
	PosID     string
	CreatedAt time.Time
}

func (c *Central) FetchJitterEvents(ctx context.Context, sc Scope) ([]models.JitterEvent, error) {
	q := c.db.WithContext(ctx).Table("jitter_data").
		Select("jitter_data.store_id, jitter_data.camera_no AS pos_id, MAX(jitter_data.created_at) AS created_at").
		Joins("JOIN stores ON stores.id = jitter_data.store_id")
	var rows []jitterRow
	if err := scoped(q, sc).Group("jitter_data.store_id, jitter_data.camera_no").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch jitter events: %w", err)
	}
	out := make([]models.JitterEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.JitterEvent{StoreID: r.StoreID, PosID: r.PosID, ObservedAt: r.CreatedAt.UTC()})
	}
	return out, nil
}

type breakageRow struct {
	StoreID          int
	PosID            string
	BreakageDuration int
}

func (c *Central) FetchBreakageEvents(ctx context.Context, sc Scope) ([]models.BreakageEvent, error) {
	q := c.db.WithContext(ctx).Table("vtc_data").
		Select("vtc_data.store_id, vtc_data.camera_no AS pos_id, MIN(vtc_data.breakage_duration) AS breakage_duration").
		Joins("JOIN stores ON stores.id = vtc_data.store_id").
		Where("vtc_data.breakage_duration = 0")
	var rows []breakageRow
	if err := scoped(q, sc).Group("vtc_data.store_id, vtc_data.camera_no").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch breakage events: %w", err)
	}
	out := make([]models.BreakageEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.BreakageEvent(r))
	}
	return out, nil
}

type storeRow struct {
	ID              int
	StoreNum        string
	Name            string
	RegionID        int
	AreaID          int
	CompanyRegionID int
	Latitude        float64
	Longitude       float64
	StoreRunning    int
}

func (c *Central) FetchStores(ctx context.Context, sc Scope) ([]models.Store, error) {
	q := c.db.WithContext(ctx).Table("stores").
		Select("stores.id, stores.store_num, stores.name, stores.region_id, stores.area_id, stores.company_region_id, stores.latitude, stores.longitude, stores.store_running")
	var rows []storeRow
	if err := scoped(q, sc).Order("stores.name").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch stores: %w", err)
	}
	out := make([]models.Store, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Store{
			ID:             r.ID,
			StoreNum:       r.StoreNum,
			Name:           r.Name,
			RegionID:       r.RegionID,
			AreaID:         r.AreaID,
			ClientRegionID: r.CompanyRegionID,
			Latitude:       r.Latitude,
			Longitude:      r.Longitude,
			Running:        r.StoreRunning == 1,
		})
	}
	return out, nil
}

type cameraRow struct {
	StoreID   int
	CameraNo  int
	CounterNo string
	CameraIP  string
	SetupDate *time.Time
}

func (c *Central) FetchCameras(ctx context.Context, sc Scope) ([]models.CameraInfo, error) {
	q := c.db.WithContext(ctx).Table("camera_info").
		Select("camera_info.store_id, camera_info.camera_no, camera_info.counter_no, camera_info.camera_ip, camera_info.setup_date").
		Joins("JOIN stores ON stores.id = camera_info.store_id")
	var rows []cameraRow
	if err := scoped(q, sc).Order("camera_info.store_id, camera_info.camera_no").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch cameras: %w", err)
	}
	out := make([]models.CameraInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CameraInfo{
			StoreID:   r.StoreID,
			CameraNo:  r.CameraNo,
			PosID:     r.CounterNo,
			CameraIP:  r.CameraIP,
			SetupDate: r.SetupDate,
		})
	}
	return out, nil
}

type aisleRow struct {
	StoreID  int
	CameraNo int
}

func (c *Central) FetchVisibleCameras(ctx context.Context, storeIDs []int) (map[int]map[int]bool, error) {
	out := make(map[int]map[int]bool, len(storeIDs))
	if len(storeIDs) == 0 {
		return out, nil
	}
	for _, id := range storeIDs {
		out[id] = map[int]bool{}
	}
	var rows []aisleRow
	err := c.db.WithContext(ctx).Table("aisle_images").
		Select("store_id, camera_no").
		Where("store_id IN ?", storeIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch visible cameras: %w", err)
	}
	for _, r := range rows {
		out[r.StoreID][r.CameraNo] = true
	}
	return out, nil
}

type countRow struct {
	StoreID int
	Online  int
	Offline int
	Total   int
}

// FetchStatusCounts aggregates latest_status per store in the database
func (c *Central) FetchStatusCounts(ctx context.Context, sc Scope) ([]models.GroupCount, []models.GroupCount, error) {
	count := func(cameraCond string) ([]models.GroupCount, error) {
		q := c.db.WithContext(ctx).Table("latest_status").
			Select(`latest_status.store_id,
				SUM(CASE WHEN latest_status.current_status = 1 THEN 1 ELSE 0 END) AS online,
				SUM(CASE WHEN latest_status.current_status = 0 THEN 1 ELSE 0 END) AS offline,
				COUNT(latest_status.store_id) AS total`).
			Joins("JOIN stores ON stores.id = latest_status.store_id").
			Where(cameraCond).
			Where("stores.store_running = 1")
		var rows []countRow
		if err := scoped(q, sc).Group("latest_status.store_id").Order("latest_status.store_id").Scan(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]models.GroupCount, 0, len(rows))
		for _, r := range rows {
			out = append(out, models.GroupCount(r))
		}
		return out, nil
	}

	cameras, err := count("latest_status.camera_no IS NOT NULL")
	if err != nil {
		return nil, nil, fmt.Errorf("count camera status: %w", err)
	}
	stores, err := count("latest_status.camera_no IS NULL")
	if err != nil {
		return nil, nil, fmt.Errorf("count store status: %w", err)
	}
	return cameras, stores, nil
}
