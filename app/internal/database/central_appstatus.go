package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storewatch/app/internal/models"
)

const appStatusTable = "application_store_status"

func (c *Central) FetchLastUpdate(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	if err := c.db.WithContext(ctx).Table("status").Select("MAX(created_at)").Row().Scan(&last); err != nil {
		return nil, fmt.Errorf("fetch last update: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

type appStatusRow struct {
	ID            int64
	StoreID       int
	StoreActualID sql.NullString
	Name          string
	CamNo         *int
	ScriptName    string
	Status        string
	ClientName    sql.NullString
	CreatedAt     time.Time
}

func (c *Central) FetchAppStatus(ctx context.Context, f models.AppStatusFilter) ([]models.AppStatus, error) {
	q := c.db.WithContext(ctx).Table(appStatusTable).
		Select(`ANY_VALUE(application_store_status.id) AS id, application_store_status.store_id,
			ANY_VALUE(stores.store_actual_id) AS store_actual_id, ANY_VALUE(stores.name) AS name,
			application_store_status.cam_no, application_store_status.script_name,
			ANY_VALUE(application_store_status.status) AS status,
			ANY_VALUE(application_store_status.company) AS client_name,
			MAX(application_store_status.created_at) AS created_at`).
		Joins("JOIN stores ON stores.id = application_store_status.store_id").
		Where("DATE(application_store_status.created_at) = ? AND application_store_status.status = ?", f.Day, f.Status)
	if len(f.StoreIDs) > 0 {
		q = q.Where("application_store_status.store_id IN ?", f.StoreIDs)
	}
	if len(f.CameraNos) > 0 {
		q = q.Where("application_store_status.cam_no IN ?", f.CameraNos)
	}
	if f.TechSupport {
		q = q.Where("application_store_status.tech_support = 1")
	}
	if f.Search != "" {
		q = q.Where(`application_store_status.script_name LIKE ?`, likePattern(f.Search))
	}

	var rows []appStatusRow
	err := q.Group("application_store_status.store_id, application_store_status.cam_no, application_store_status.script_name").
		Order("created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch application status: %w", err)
	}
	out := make([]models.AppStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.AppStatus{
			ID:         r.ID,
			StoreID:    r.StoreID,
			StoreNum:   r.StoreActualID.String,
			Name:       r.Name,
			CameraNo:   r.CamNo,
			ScriptName: r.ScriptName,
			Status:     r.Status,
			ClientName: r.ClientName.String,
			CreatedAt:  r.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func scriptRows(tx *gorm.DB, storeID int, script string, camera *int) *gorm.DB {
	q := tx.Table(appStatusTable).Where("store_id = ? AND script_name = ?", storeID, script)
	if camera != nil {
		q = q.Where("cam_no = ?", *camera)
	}
	return q
}

func (c *Central) UpdateAppStatus(ctx context.Context, updates []models.AppStatusUpdate, notRunningOnly bool) (int64, error) {
	var total int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			q := scriptRows(tx, u.StoreID, u.ScriptName, u.CameraNo)
			if notRunningOnly {
				q = q.Where("status = ?", models.AppNotRunning)
			}
			res := q.Update("status", u.NewStatus)
			if res.Error != nil {
				return fmt.Errorf("update application status %d/%s: %w", u.StoreID, u.ScriptName, res.Error)
			}
			total += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (c *Central) ResolveAppStatus(ctx context.Context, storeID int) (int64, error) {
	res := c.db.WithContext(ctx).Table(appStatusTable).
		Where("store_id = ? AND status = ?", storeID, models.AppNotRunning).
		Update("status", models.AppRunning)
	if res.Error != nil {
		return 0, fmt.Errorf("resolve application status %d: %w", storeID, res.Error)
	}
	return res.RowsAffected, nil
}

func (c *Central) FlagTechSupport(ctx context.Context, u models.TechSupportUpdate) (int64, error) {
	res := scriptRows(c.db.WithContext(ctx), u.StoreID, u.ScriptName, u.CameraNo).
		Where("tech_support = 0 AND status = ?", models.AppNotRunning).
		Update("tech_support", 1)
	if res.Error != nil {
		return 0, fmt.Errorf("flag tech support: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (c *Central) ResolveTechSupport(ctx context.Context, u models.TechSupportUpdate) (int64, error) {
	res := scriptRows(c.db.WithContext(ctx), u.StoreID, u.ScriptName, u.CameraNo).
		Where("tech_support = 1 AND tech_support_status = 0 AND status = ?", models.AppNotRunning).
		Update("tech_support_status", 1)
	if res.Error != nil {
		return 0, fmt.Errorf("resolve tech support: %w", res.Error)
	}
	return res.RowsAffected, nil
}
