package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"storewatch/app/internal/models"
	"storewatch/app/internal/status"

	_ "modernc.org/sqlite"
)

// tsLayout is the stored timestamp format. Fixed width UTC so text order is time order.
const tsLayout = "2006-01-02T15:04:05Z"

// SQLite is the local store fed by ingest
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// single writer; also keeps a :memory: database on one connection
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.EnsureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(v string) (time.Time, error) {
	for _, layout := range []string{tsLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

func parseNullTS(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTS(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// scopeWhere renders the scope as conditions on the stores alias
func scopeWhere(sc Scope, alias string) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v *int) {
		if v != nil {
			conds = append(conds, alias+"."+col+" = ?")
			args = append(args, *v)
		}
	}
	add("id", sc.StoreID)
	add("region_id", sc.RegionID)
	add("area_id", sc.AreaID)
	add("client_region_id", sc.ClientRegionID)
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

func scanSamples(rows *sql.Rows) ([]models.StatusSample, error) {
	defer rows.Close()
	var out []models.StatusSample
	for rows.Next() {
		var (
			smp    models.StatusSample
			camera sql.NullInt64
			online int
			at     string
		)
		if err := rows.Scan(&smp.StoreID, &camera, &smp.SystemName, &online, &at); err != nil {
			return nil, err
		}
		if camera.Valid {
			n := int(camera.Int64)
			smp.CameraNo = &n
		}
		smp.IsOnline = online != 0
		t, err := parseTS(at)
		if err != nil {
			return nil, err
		}
		smp.ObservedAt = t
		out = append(out, smp)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchStatusSamples(ctx context.Context, storeID int, cameraNo *int, systemOnly bool, from, to time.Time) ([]models.StatusSample, error) {
	query := `SELECT store_id, camera_no, system_name, is_online, created_at
		FROM status_samples WHERE store_id = ? AND created_at >= ? AND created_at <= ?`
	args := []any{storeID, formatTS(from), formatTS(to)}
	switch {
	case cameraNo != nil:
		query += " AND camera_no = ?"
		args = append(args, *cameraNo)
	case systemOnly:
		query += " AND camera_no IS NULL"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch status samples: %w", err)
	}
	return scanSamples(rows)
}

func (s *SQLite) FetchRecentSamples(ctx context.Context, storeID *int, since time.Time) ([]models.StatusSample, error) {
	query := `SELECT store_id, camera_no, system_name, is_online, created_at
		FROM status_samples WHERE created_at > ?`
	args := []any{formatTS(since)}
	if storeID != nil {
		query += " AND store_id = ?"
		args = append(args, *storeID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch recent samples: %w", err)
	}
	return scanSamples(rows)
}

func (s *SQLite) FetchLatestStatus(ctx context.Context, sc Scope) ([]models.LatestStatus, error) {
	where, args := scopeWhere(sc, "s")
	rows, err := s.db.QueryContext(ctx, `SELECT l.store_id, l.camera_no, l.is_online, l.updated_at, l.last_active
		FROM latest_status l JOIN stores s ON s.id = l.store_id
		WHERE `+where+` ORDER BY l.store_id, l.camera_no`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch latest status: %w", err)
	}
	defer rows.Close()

	var out []models.LatestStatus
	for rows.Next() {
		var (
			l       models.LatestStatus
			camera  sql.NullInt64
			online  int
			updated string
			active  sql.NullString
		)
		if err := rows.Scan(&l.StoreID, &camera, &online, &updated, &active); err != nil {
			return nil, err
		}
		if camera.Valid {
			n := int(camera.Int64)
			l.CameraNo = &n
		}
		l.IsOnline = online != 0
		if l.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		if l.LastActive, err = parseNullTS(active); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchStreamTelemetry(ctx context.Context, sc Scope, since time.Time) ([]models.TelemetryRecord, error) {
	where, args := scopeWhere(sc, "s")
	args = append([]any{formatTS(since)}, args...)
	rows, err := s.db.QueryContext(ctx, `SELECT sd.store_id, s.store_num, s.name, ci.camera_no, sd.pos_id, ci.camera_ip,
			sd.fps, sd.bitrate, sd.frame_width, sd.frame_height, sd.created_at
		FROM stream_data sd
		JOIN stores s ON s.id = sd.store_id
		JOIN camera_info ci ON ci.store_id = sd.store_id AND ci.pos_id = sd.pos_id
		WHERE sd.created_at >= ? AND `+where+`
		ORDER BY sd.created_at ASC, sd.id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch stream telemetry: %w", err)
	}
	defer rows.Close()

	type key struct {
		store int
		pos   string
	}
	idx := map[key]int{}
	var out []models.TelemetryRecord
	for rows.Next() {
		var (
			r            models.TelemetryRecord
			fps, bitrate sql.NullFloat64
			at           string
		)
		if err := rows.Scan(&r.StoreID, &r.StoreNum, &r.StoreName, &r.CameraNo, &r.PosID, &r.CameraIP,
			&fps, &bitrate, &r.FrameWidth, &r.FrameHeight, &at); err != nil {
			return nil, err
		}
		if fps.Valid {
			r.FPS = &fps.Float64
		}
		if bitrate.Valid {
			r.Bitrate = &bitrate.Float64
		}
		if r.ObservedAt, err = parseTS(at); err != nil {
			return nil, err
		}
		// rows are oldest first, so a later row replaces the earlier reading
		k := key{r.StoreID, r.PosID}
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchJitterEvents(ctx context.Context, sc Scope) ([]models.JitterEvent, error) {
	where, args := scopeWhere(sc, "s")
	rows, err := s.db.QueryContext(ctx, `SELECT j.store_id, j.pos_id, MAX(j.created_at)
		FROM jitter_data j JOIN stores s ON s.id = j.store_id
		WHERE `+where+` GROUP BY j.store_id, j.pos_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch jitter events: %w", err)
	}
	defer rows.Close()

	var out []models.JitterEvent
	for rows.Next() {
		var (
			e  models.JitterEvent
			at string
		)
		if err := rows.Scan(&e.StoreID, &e.PosID, &at); err != nil {
			return nil, err
		}
		if e.ObservedAt, err = parseTS(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchBreakageEvents(ctx context.Context, sc Scope) ([]models.BreakageEvent, error) {
	where, args := scopeWhere(sc, "s")
	rows, err := s.db.QueryContext(ctx, `SELECT v.store_id, v.pos_id, v.breakage_duration
		FROM vtc_data v JOIN stores s ON s.id = v.store_id
		WHERE v.breakage_duration = 0 AND `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch breakage events: %w", err)
	}
	defer rows.Close()

	var out []models.BreakageEvent
	for rows.Next() {
		var e models.BreakageEvent
		if err := rows.Scan(&e.StoreID, &e.PosID, &e.BreakageDuration); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchStores(ctx context.Context, sc Scope) ([]models.Store, error) {
	where, args := scopeWhere(sc, "s")
	rows, err := s.db.QueryContext(ctx, `SELECT s.id, s.store_num, s.name, s.region_id, s.area_id,
			s.client_region_id, s.latitude, s.longitude, s.running
		FROM stores s WHERE `+where+` ORDER BY s.name, s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch stores: %w", err)
	}
	defer rows.Close()

	var out []models.Store
	for rows.Next() {
		var (
			st      models.Store
			running int
		)
		if err := rows.Scan(&st.ID, &st.StoreNum, &st.Name, &st.RegionID, &st.AreaID,
			&st.ClientRegionID, &st.Latitude, &st.Longitude, &running); err != nil {
			return nil, err
		}
		st.Running = running != 0
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchCameras(ctx context.Context, sc Scope) ([]models.CameraInfo, error) {
	where, args := scopeWhere(sc, "s")
	rows, err := s.db.QueryContext(ctx, `SELECT c.store_id, c.camera_no, c.pos_id, c.camera_ip, c.setup_date
		FROM camera_info c JOIN stores s ON s.id = c.store_id
		WHERE `+where+` ORDER BY c.store_id, c.camera_no`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch cameras: %w", err)
	}
	defer rows.Close()

	var out []models.CameraInfo
	for rows.Next() {
		var (
			c     models.CameraInfo
			setup sql.NullString
		)
		if err := rows.Scan(&c.StoreID, &c.CameraNo, &c.PosID, &c.CameraIP, &setup); err != nil {
			return nil, err
		}
		if c.SetupDate, err = parseNullTS(setup); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchVisibleCameras(ctx context.Context, storeIDs []int) (map[int]map[int]bool, error) {
	out := make(map[int]map[int]bool, len(storeIDs))
	if len(storeIDs) == 0 {
		return out, nil
	}
	for _, id := range storeIDs {
		out[id] = map[int]bool{}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT store_id, camera_no FROM aisle_images
		WHERE store_id IN (`+placeholders(len(storeIDs))+`)`, intArgs(storeIDs)...)
	if err != nil {
		return nil, fmt.Errorf("fetch visible cameras: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var store, camera int
		if err := rows.Scan(&store, &camera); err != nil {
			return nil, err
		}
		out[store][camera] = true
	}
	return out, rows.Err()
}

// FetchStatusCounts groups the latest-status rows of running stores
func (s *SQLite) FetchStatusCounts(ctx context.Context, sc Scope) ([]models.GroupCount, []models.GroupCount, error) {
	latest, err := s.FetchLatestStatus(ctx, sc)
	if err != nil {
		return nil, nil, err
	}
	stores, err := s.FetchStores(ctx, sc)
	if err != nil {
		return nil, nil, err
	}
	cameras, systems := status.GroupLatest(latest, stores)
	return cameras, systems, nil
}
