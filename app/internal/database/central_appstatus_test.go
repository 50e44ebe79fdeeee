package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"storewatch/app/internal/models"
)

func TestCentral_FetchLastUpdate(t *testing.T) {
	c, mock := newMockCentral(t)
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT MAX\\(created_at\\) FROM `status`").
		WillReturnRows(sqlmock.NewRows([]string{"MAX(created_at)"}).AddRow(at))

	got, err := c.FetchLastUpdate(context.Background())
	if err != nil {
		t.Fatalf("FetchLastUpdate: %v", err)
	}
	if got == nil || !got.Equal(at) {
		t.Errorf("last update = %v, want %v", got, at)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCentral_FetchLastUpdate_Empty(t *testing.T) {
	c, mock := newMockCentral(t)
	mock.ExpectQuery("SELECT MAX\\(created_at\\) FROM `status`").
		WillReturnRows(sqlmock.NewRows([]string{"MAX(created_at)"}).AddRow(nil))

	got, err := c.FetchLastUpdate(context.Background())
	if err != nil {
		t.Fatalf("FetchLastUpdate: %v", err)
	}
	if got != nil {
		t.Errorf("last update = %v, want nil", got)
	}
}

func TestCentral_FetchAppStatus(t *testing.T) {
	c, mock := newMockCentral(t)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "store_id", "store_actual_id", "name", "cam_no", "script_name", "status", "client_name", "created_at"}).
		AddRow(11, 4, "S004", "Leeds", 2, "sco_watch", "Not Running", "Acme", at)
	mock.ExpectQuery("FROM `application_store_status` JOIN stores .*DATE\\(application_store_status.created_at\\) = \\? .*store_id IN \\(\\?,\\?\\).*script_name LIKE \\? GROUP BY .*ORDER BY created_at DESC").
		WithArgs("2024-05-01", models.AppNotRunning, 4, 5, "%sco\\_%").
		WillReturnRows(rows)

	got, err := c.FetchAppStatus(context.Background(), models.AppStatusFilter{
		StoreIDs: []int{4, 5},
		Search:   "sco_",
		Day:      "2024-05-01",
		Status:   models.AppNotRunning,
	})
	if err != nil {
		t.Fatalf("FetchAppStatus: %v", err)
	}
	if len(got) != 1 || got[0].StoreNum != "S004" || got[0].CameraNo == nil || *got[0].CameraNo != 2 || got[0].ClientName != "Acme" {
		t.Errorf("rows = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCentral_UpdateAppStatus_OneTransaction(t *testing.T) {
	c, mock := newMockCentral(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `application_store_status` SET `status`=\\? WHERE .*script_name = \\?.*status = \\?").
		WithArgs(models.AppRunning, 4, "sco_watch", models.AppNotRunning).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE `application_store_status` SET `status`=\\? WHERE .*cam_no = \\?.*status = \\?").
		WithArgs(models.AppRunning, 4, "uploader", 3, models.AppNotRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := c.UpdateAppStatus(context.Background(), []models.AppStatusUpdate{
		{StoreID: 4, ScriptName: "sco_watch", NewStatus: models.AppRunning},
		{StoreID: 4, ScriptName: "uploader", NewStatus: models.AppRunning, CameraNo: intp(3)},
	}, true)
	if err != nil {
		t.Fatalf("UpdateAppStatus: %v", err)
	}
	if n != 3 {
		t.Errorf("updated %d rows, want 3", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCentral_UpdateAppStatus_RollsBackOnError(t *testing.T) {
	c, mock := newMockCentral(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `application_store_status`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `application_store_status`").WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	_, err := c.UpdateAppStatus(context.Background(), []models.AppStatusUpdate{
		{StoreID: 4, ScriptName: "a", NewStatus: models.AppRunning},
		{StoreID: 4, ScriptName: "b", NewStatus: models.AppRunning},
	}, true)
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCentral_FlagTechSupport(t *testing.T) {
	c, mock := newMockCentral(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `application_store_status` SET `tech_support`=\\? WHERE .*tech_support = 0 AND status = \\?").
		WithArgs(1, 4, "sco_watch", models.AppNotRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := c.FlagTechSupport(context.Background(), models.TechSupportUpdate{StoreID: 4, ScriptName: "sco_watch"})
	if err != nil {
		t.Fatalf("FlagTechSupport: %v", err)
	}
	if n != 1 {
		t.Errorf("updated %d rows, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
