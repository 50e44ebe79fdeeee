package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storewatch/app/internal/database"
	"storewatch/app/internal/logging"
	"storewatch/app/internal/service"
	"storewatch/app/internal/status"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
	dateLayout     = "2006-01-02"
)

// errBadRequest marks a parameter error that maps to a 400 response
type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return errBadRequest{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code. Data access failures are logged and hidden
// behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	var bad errBadRequest
	switch {
	case errors.As(err, &bad):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": bad.msg})
	case errors.Is(err, service.ErrInvalidKind), errors.Is(err, service.ErrCameraRequired), errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidDate), errors.Is(err, service.ErrInvalidUpdate):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrNoData):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No Data Found!"})
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// client went away
	default:
		log.WithError(err).WithField("request_id", RequestID(r.Context())).Error("status query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func optionalInt(r *http.Request, name string) (*int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, badRequest("%s must be an integer", name)
	}
	return &n, nil
}

func requiredInt(r *http.Request, name string) (int, error) {
	n, err := optionalInt(r, name)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, badRequest("%s is required", name)
	}
	return *n, nil
}

func optionalDate(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, badRequest("%s must be a date (YYYY-MM-DD)", name)
	}
	return &t, nil
}

func scopeFrom(r *http.Request) (database.Scope, error) {
	var (
		sc  database.Scope
		err error
	)
	if sc.StoreID, err = optionalInt(r, "store_id"); err != nil {
		return sc, err
	}
	if sc.RegionID, err = optionalInt(r, "region_id"); err != nil {
		return sc, err
	}
	if sc.AreaID, err = optionalInt(r, "area_id"); err != nil {
		return sc, err
	}
	if sc.ClientRegionID, err = optionalInt(r, "client_region_id"); err != nil {
		return sc, err
	}
	return sc, nil
}

// pageParams reads page and per_page. page defaults to 1; per_page defaults to 10
// and is capped at 100.
func pageParams(r *http.Request) (page, perPage int, err error) {
	page, perPage = 1, defaultPerPage
	p, err := optionalInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	if p != nil {
		if *p < 1 {
			return 0, 0, badRequest("page must be at least 1")
		}
		page = *p
	}
	pp, err := optionalInt(r, "per_page")
	if err != nil {
		return 0, 0, err
	}
	if pp != nil {
		if *pp < 1 {
			return 0, 0, badRequest("per_page must be at least 1")
		}
		perPage = min(*pp, maxPerPage)
	}
	return page, perPage, nil
}

// HandleFilters lists the camera status labels
func HandleFilters(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"data": svc.Filters()})
	}
}

// HandleStatusMessage returns the camera and system message of one store
func HandleStatusMessage(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := requiredInt(r, "store_id")
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		msg, err := svc.StatusMessage(r.Context(), storeID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// HandleDowntime returns a page of reconstructed down-windows
func HandleDowntime(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := downtimeQuery(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		page, err := svc.Downtime(r.Context(), q)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func downtimeQuery(r *http.Request) (service.DowntimeQuery, error) {
	q := service.DowntimeQuery{Kind: r.URL.Query().Get("type"), Page: 1}
	var err error
	if q.StoreID, err = requiredInt(r, "store_id"); err != nil {
		return q, err
	}
	if q.CameraNo, err = optionalInt(r, "camera_no"); err != nil {
		return q, err
	}
	if q.From, err = optionalDate(r, "from_date"); err != nil {
		return q, err
	}
	if q.To, err = optionalDate(r, "to_date"); err != nil {
		return q, err
	}
	secs, err := optionalInt(r, "total_seconds")
	if err != nil {
		return q, err
	}
	if secs != nil {
		if *secs < 0 {
			return q, badRequest("total_seconds must not be negative")
		}
		d := time.Duration(*secs) * time.Second
		q.MinDuration = &d
	}
	if q.Page, _, err = pageParams(r); err != nil {
		return q, err
	}
	return q, nil
}

// HandleUptime returns working and non-working durations of one store
func HandleUptime(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := requiredInt(r, "store_id")
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		report, err := svc.Uptime(r.Context(), storeID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// HandleStoreMap returns the issue and color of every store in scope
func HandleStoreMap(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := scopeFrom(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := svc.StoreMap(r.Context(), sc)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleCameraReport returns the merged camera status report. view=full keeps
// cameras that are healthy.
func HandleCameraReport(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := scopeFrom(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		page, perPage, err := pageParams(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		mode := status.ProblemsOnly
		switch r.URL.Query().Get("view") {
		case "", "problems":
		case "full":
			mode = status.FullView
		default:
			writeError(w, r, log, badRequest("view must be problems or full"))
			return
		}
		res, err := svc.CameraReport(r.Context(), service.ReportQuery{
			Scope:        sc,
			StatusFilter: r.URL.Query().Get("status_filter"),
			Mode:         mode,
			Page:         page,
			PerPage:      perPage,
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleOfflineStores returns running stores whose system is not responding
func HandleOfflineStores(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := scopeFrom(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		page, perPage, err := pageParams(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := svc.OfflineStores(r.Context(), sc, page, perPage)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleLiveView returns the live stream quality of installed cameras
func HandleLiveView(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := scopeFrom(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		page, perPage, err := pageParams(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := svc.LiveView(r.Context(), sc, page, perPage)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleSummary returns the online/offline/warning counts
func HandleSummary(svc *service.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := scopeFrom(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := svc.Summary(r.Context(), sc)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleHealth reports whether the data source is reachable
func HandleHealth(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := svc.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
