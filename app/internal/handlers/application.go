package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"storewatch/app/internal/logging"
	"storewatch/app/internal/models"
	"storewatch/app/internal/service"
)

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return badRequest("request body is required")
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func writeUpdated(w http.ResponseWriter, n int64) {
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Updated %d record(s)", n)})
}

// HandleLastUpdate returns the time of the newest status sample
func HandleLastUpdate(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, err := svc.LastUpdate(r.Context())
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"last_update_at": last})
	}
}

// HandleStoreOptions lists running stores for the store picker
func HandleStoreOptions(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stores, err := svc.StoreOptions(r.Context())
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]models.StoreOption{"data": stores})
	}
}

// HandleCameraLiveness lists the visible cameras of a store with their recent
// online flag
func HandleCameraLiveness(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := requiredInt(r, "store_id")
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		cams, err := svc.CameraLiveness(r.Context(), storeID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]models.CameraLiveness{"data": cams})
	}
}

// HandleAppStatus returns one page of failing scripts filtered by query string
func HandleAppStatus(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := appStatusQuery(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := svc.AppStatus(r.Context(), q)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func appStatusQuery(r *http.Request) (service.AppStatusQuery, error) {
	q := service.AppStatusQuery{
		Date:   r.URL.Query().Get("search_date"),
		Status: r.URL.Query().Get("app_status"),
	}
	store, err := optionalInt(r, "store_id")
	if err != nil {
		return q, err
	}
	if store != nil {
		q.StoreIDs = []int{*store}
	}
	cam, err := optionalInt(r, "cam_no")
	if err != nil {
		return q, err
	}
	if cam != nil {
		q.CameraNos = []int{*cam}
	}
	ts, err := optionalInt(r, "tech_support")
	if err != nil {
		return q, err
	}
	q.TechSupport = ts != nil && *ts != 0
	if q.Page, q.PerPage, err = pageParams(r); err != nil {
		return q, err
	}
	return q, nil
}

// appSearchRequest is the body of the grouped application status search
type appSearchRequest struct {
	StoreIDs    []int  `json:"store_ids"`
	CameraNos   []int  `json:"cam_nos"`
	SearchQuery string `json:"search_query"`
	SearchDate  string `json:"search_date"`
	AppStatus   string `json:"app_status"`
	TechSupport int    `json:"tech_support"`
	Page        int    `json:"page"`
	PerPage     int    `json:"per_page"`
}

// HandleAppStatusByStore returns one page of stores with their failing scripts
func HandleAppStatusByStore(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := appSearchRequest{Page: 1, PerPage: defaultPerPage}
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		if req.Page < 1 || req.PerPage < 1 {
			writeError(w, r, log, badRequest("page and per_page must be at least 1"))
			return
		}
		res, err := svc.AppStatusByStore(r.Context(), service.AppStatusQuery{
			StoreIDs:    req.StoreIDs,
			CameraNos:   req.CameraNos,
			Search:      req.SearchQuery,
			Date:        req.SearchDate,
			Status:      req.AppStatus,
			TechSupport: req.TechSupport != 0,
			Page:        req.Page,
			PerPage:     min(req.PerPage, maxPerPage),
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleUpdateAppStatus sets the status of one script
func HandleUpdateAppStatus(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u models.AppStatusUpdate
		if err := decodeBody(w, r, &u); err != nil {
			writeError(w, r, log, err)
			return
		}
		n, err := svc.UpdateAppStatus(r.Context(), u)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeUpdated(w, n)
	}
}

// HandleUpdateAppStatusBatch applies a list of updates in one transaction
func HandleUpdateAppStatusBatch(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var updates []models.AppStatusUpdate
		if err := decodeBody(w, r, &updates); err != nil {
			writeError(w, r, log, err)
			return
		}
		n, err := svc.UpdateAppStatusBatch(r.Context(), updates)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeUpdated(w, n)
	}
}

// HandleResolveStoreApps marks every failing script of a store Running
func HandleResolveStoreApps(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StoreID int `json:"store_id"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		n, err := svc.ResolveStoreApps(r.Context(), req.StoreID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeUpdated(w, n)
	}
}

// HandleTechSupport flags a failing script for tech support, or with resolve
// set, marks a flagged one as handled
func HandleTechSupport(svc *service.Service, log logging.Logger, resolve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u models.TechSupportUpdate
		if err := decodeBody(w, r, &u); err != nil {
			writeError(w, r, log, err)
			return
		}
		apply := svc.SendToTechSupport
		if resolve {
			apply = svc.ResolveTechSupport
		}
		n, err := apply(r.Context(), u)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeUpdated(w, n)
	}
}
