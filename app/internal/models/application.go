package models

import "time"

// Application status values reported by the in-store scripts
const (
	AppRunning    = "Running"
	AppNotRunning = "Not Running"
)

// AppStatus is one application status row, as recorded or as the newest row of
// a (store, camera, script) group.
type AppStatus struct {
	ID         int64     `json:"id"`
	StoreID    int       `json:"store_id"`
	StoreNum   string    `json:"store_actual_id"`
	Name       string    `json:"name"`
	CameraNo   *int      `json:"cam_no"`
	ScriptName string    `json:"script_name"`
	Status     string    `json:"status"`
	ClientName string    `json:"client_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// AppStatusFilter selects application status rows. Day is a YYYY-MM-DD date
// matched against the row's creation day in UTC.
type AppStatusFilter struct {
	StoreIDs    []int
	CameraNos   []int
	Search      string
	Day         string
	Status      string
	TechSupport bool
}

// AppIssue is one script of a store in the grouped view
type AppIssue struct {
	ID         int64     `json:"id"`
	CameraNo   *int      `json:"cam_no"`
	ScriptName string    `json:"script_name"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// AppStoreIssues groups the failing scripts of one store
type AppStoreIssues struct {
	StoreNum   string     `json:"store_actual_id"`
	Name       string     `json:"name"`
	ClientName string     `json:"client_name"`
	StoreID    int        `json:"store_id"`
	CreatedAt  time.Time  `json:"created_at"`
	Issues     []AppIssue `json:"issues"`
}

// AppStatusUpdate sets the status of one script. Date is optional and must be
// YYYY-MM-DD when given.
type AppStatusUpdate struct {
	StoreID    int    `json:"store_id"`
	ScriptName string `json:"script_name"`
	NewStatus  string `json:"new_status"`
	Date       string `json:"date,omitempty"`
	CameraNo   *int   `json:"cam_no,omitempty"`
}

// TechSupportUpdate flags one failing script for tech support
type TechSupportUpdate struct {
	StoreID    int    `json:"store_id"`
	ScriptName string `json:"script_name"`
	CameraNo   *int   `json:"cam_no,omitempty"`
}
