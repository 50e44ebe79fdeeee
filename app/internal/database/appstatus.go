package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"storewatch/app/internal/models"
)

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func intArgs(v []int) []any {
	out := make([]any, len(v))
	for i, n := range v {
		out[i] = n
	}
	return out
}

// likePattern matches q anywhere in a column, with LIKE wildcards in q escaped
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// FetchLastUpdate returns the creation time of the newest sample
func (s *SQLite) FetchLastUpdate(ctx context.Context) (*time.Time, error) {
	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM status_samples`).Scan(&last); err != nil {
		return nil, fmt.Errorf("fetch last update: %w", err)
	}
	return parseNullTS(last)
}

func (s *SQLite) FetchAppStatus(ctx context.Context, f models.AppStatusFilter) ([]models.AppStatus, error) {
	conds := []string{"substr(a.created_at, 1, 10) = ?", "a.status = ?"}
	args := []any{f.Day, f.Status}
	if len(f.StoreIDs) > 0 {
		conds = append(conds, "a.store_id IN ("+placeholders(len(f.StoreIDs))+")")
		args = append(args, intArgs(f.StoreIDs)...)
	}
	if len(f.CameraNos) > 0 {
		conds = append(conds, "a.cam_no IN ("+placeholders(len(f.CameraNos))+")")
		args = append(args, intArgs(f.CameraNos)...)
	}
	if f.TechSupport {
		conds = append(conds, "a.tech_support = 1")
	}
	if f.Search != "" {
		conds = append(conds, `a.script_name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Search))
	}

	// bare columns take their values from the row holding MAX(created_at)
	rows, err := s.db.QueryContext(ctx, `SELECT a.id, a.store_id, s.store_num, s.name, a.cam_no, a.script_name,
			a.status, a.company, MAX(a.created_at) AS newest
		FROM application_store_status a JOIN stores s ON s.id = a.store_id
		WHERE `+strings.Join(conds, " AND ")+`
		GROUP BY a.store_id, a.cam_no, a.script_name
		ORDER BY newest DESC, a.id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch application status: %w", err)
	}
	defer rows.Close()

	var out []models.AppStatus
	for rows.Next() {
		var (
			a      models.AppStatus
			camera sql.NullInt64
			at     string
		)
		if err := rows.Scan(&a.ID, &a.StoreID, &a.StoreNum, &a.Name, &camera, &a.ScriptName,
			&a.Status, &a.ClientName, &at); err != nil {
			return nil, err
		}
		if camera.Valid {
			n := int(camera.Int64)
			a.CameraNo = &n
		}
		if a.CreatedAt, err = parseTS(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// scriptWhere selects the rows of one script, optionally on one camera
func scriptWhere(storeID int, script string, camera *int) (string, []any) {
	where := "store_id = ? AND script_name = ?"
	args := []any{storeID, script}
	if camera != nil {
		where += " AND cam_no = ?"
		args = append(args, *camera)
	}
	return where, args
}

func (s *SQLite) UpdateAppStatus(ctx context.Context, updates []models.AppStatusUpdate, notRunningOnly bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	for _, u := range updates {
		where, args := scriptWhere(u.StoreID, u.ScriptName, u.CameraNo)
		if notRunningOnly {
			where += " AND status = ?"
			args = append(args, models.AppNotRunning)
		}
		res, err := tx.ExecContext(ctx, `UPDATE application_store_status SET status = ? WHERE `+where,
			append([]any{u.NewStatus}, args...)...)
		if err != nil {
			return 0, fmt.Errorf("update application status %d/%s: %w", u.StoreID, u.ScriptName, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *SQLite) ResolveAppStatus(ctx context.Context, storeID int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE application_store_status SET status = ? WHERE store_id = ? AND status = ?`,
		models.AppRunning, storeID, models.AppNotRunning)
	if err != nil {
		return 0, fmt.Errorf("resolve application status %d: %w", storeID, err)
	}
	return res.RowsAffected()
}

func (s *SQLite) FlagTechSupport(ctx context.Context, u models.TechSupportUpdate) (int64, error) {
	where, args := scriptWhere(u.StoreID, u.ScriptName, u.CameraNo)
	res, err := s.db.ExecContext(ctx, `UPDATE application_store_status SET tech_support = 1
		WHERE `+where+` AND tech_support = 0 AND status = ?`, append(args, models.AppNotRunning)...)
	if err != nil {
		return 0, fmt.Errorf("flag tech support: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) ResolveTechSupport(ctx context.Context, u models.TechSupportUpdate) (int64, error) {
	where, args := scriptWhere(u.StoreID, u.ScriptName, u.CameraNo)
	res, err := s.db.ExecContext(ctx, `UPDATE application_store_status SET tech_support_status = 1
		WHERE `+where+` AND tech_support = 1 AND tech_support_status = 0 AND status = ?`, append(args, models.AppNotRunning)...)
	if err != nil {
		return 0, fmt.Errorf("resolve tech support: %w", err)
	}
	return res.RowsAffected()
}
