package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storewatch/app/internal/models"
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordSample stores a polled sample and folds it into latest_status. last_active
// moves forward only while the entity is online.
func (s *SQLite) RecordSample(ctx context.Context, smp models.StatusSample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	at := formatTS(smp.ObservedAt)
	var camera any
	if smp.CameraNo != nil {
		camera = *smp.CameraNo
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO status_samples (store_id, camera_no, system_name, is_online, created_at)
		VALUES (?,?,?,?,?)`, smp.StoreID, camera, smp.SystemName, boolInt(smp.IsOnline), at); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	var active any
	if smp.IsOnline {
		active = at
	}
	res, err := tx.ExecContext(ctx, `UPDATE latest_status
		SET is_online = ?, updated_at = ?, last_active = COALESCE(?, last_active)
		WHERE store_id = ? AND camera_no IS ? AND updated_at <= ?`,
		boolInt(smp.IsOnline), at, active, smp.StoreID, camera, at)
	if err != nil {
		return fmt.Errorf("update latest status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM latest_status WHERE store_id = ? AND camera_no IS ?`,
			smp.StoreID, camera).Scan(&exists)
		if err != nil {
			return err
		}
		// an existing row newer than this sample is left alone
		if exists == 0 {
			if _, err := tx.ExecContext(ctx, `INSERT INTO latest_status (store_id, camera_no, is_online, updated_at, last_active)
				VALUES (?,?,?,?,?)`, smp.StoreID, camera, boolInt(smp.IsOnline), at, active); err != nil {
				return fmt.Errorf("insert latest status: %w", err)
			}
		}
	}
	return tx.Commit()
}

// RecordTelemetry stores one stream reading for a POS camera
func (s *SQLite) RecordTelemetry(ctx context.Context, r models.TelemetryRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO stream_data (store_id, pos_id, fps, bitrate, frame_width, frame_height, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		r.StoreID, r.PosID, nullFloat(r.FPS), nullFloat(r.Bitrate), r.FrameWidth, r.FrameHeight, formatTS(r.ObservedAt))
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// RecordJitter stores a jitter event
func (s *SQLite) RecordJitter(ctx context.Context, e models.JitterEvent) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO jitter_data (store_id, pos_id, created_at) VALUES (?,?,?)`,
		e.StoreID, e.PosID, formatTS(e.ObservedAt))
	if err != nil {
		return fmt.Errorf("insert jitter: %w", err)
	}
	return nil
}

// RecordBreakage sets the current VTC breakage state of a POS camera
func (s *SQLite) RecordBreakage(ctx context.Context, e models.BreakageEvent, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO vtc_data (store_id, pos_id, breakage_duration, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(store_id, pos_id) DO UPDATE SET breakage_duration=excluded.breakage_duration, updated_at=excluded.updated_at`,
		e.StoreID, e.PosID, e.BreakageDuration, formatTS(at))
	if err != nil {
		return fmt.Errorf("upsert breakage: %w", err)
	}
	return nil
}

// UpsertStore creates or updates store metadata
func (s *SQLite) UpsertStore(ctx context.Context, st models.Store) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO stores (id, store_num, name, region_id, area_id, client_region_id, latitude, longitude, running)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			store_num=excluded.store_num, name=excluded.name, region_id=excluded.region_id,
			area_id=excluded.area_id, client_region_id=excluded.client_region_id,
			latitude=excluded.latitude, longitude=excluded.longitude, running=excluded.running`,
		st.ID, st.StoreNum, st.Name, st.RegionID, st.AreaID, st.ClientRegionID, st.Latitude, st.Longitude, boolInt(st.Running))
	if err != nil {
		return fmt.Errorf("upsert store %d: %w", st.ID, err)
	}
	return nil
}

// UpsertCamera creates or updates an installed camera. visible controls whether
// the camera has an aisle mapping and so counts towards store health.
func (s *SQLite) UpsertCamera(ctx context.Context, c models.CameraInfo, visible bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var setup any
	if c.SetupDate != nil {
		setup = formatTS(*c.SetupDate)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO camera_info (store_id, camera_no, pos_id, camera_ip, setup_date)
		VALUES (?,?,?,?,?)
		ON CONFLICT(store_id, camera_no) DO UPDATE SET
			pos_id=excluded.pos_id, camera_ip=excluded.camera_ip, setup_date=excluded.setup_date`,
		c.StoreID, c.CameraNo, c.PosID, c.CameraIP, setup); err != nil {
		return fmt.Errorf("upsert camera %d/%d: %w", c.StoreID, c.CameraNo, err)
	}

	if visible {
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO aisle_images (store_id, camera_no) VALUES (?,?)`, c.StoreID, c.CameraNo)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM aisle_images WHERE store_id = ? AND camera_no = ?`, c.StoreID, c.CameraNo)
	}
	if err != nil {
		return fmt.Errorf("update aisle mapping: %w", err)
	}
	return tx.Commit()
}

// RecordAppStatus stores one application status report
func (s *SQLite) RecordAppStatus(ctx context.Context, a models.AppStatus) error {
	var camera any
	if a.CameraNo != nil {
		camera = *a.CameraNo
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO application_store_status (store_id, cam_no, script_name, status, company, created_at)
		VALUES (?,?,?,?,?,?)`, a.StoreID, camera, a.ScriptName, a.Status, a.ClientName, formatTS(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert application status: %w", err)
	}
	return nil
}

// Prune removes samples, telemetry, jitter events and application status rows older than before and returns
// the number of rows deleted. latest_status and metadata are kept.
func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := formatTS(before)
	var total int64
	for _, table := range []string{"status_samples", "stream_data", "jitter_data", "application_store_status"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
