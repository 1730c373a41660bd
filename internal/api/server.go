// Package api exposes the ingestion pipeline over HTTP (management routes)
// and MCP (assistant-facing tools).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/procurely/tendersync/internal/pipeline"
	"github.com/procurely/tendersync/internal/storage"
)

// Runner is the pipeline surface the API layer drives.
type Runner interface {
	Run(ctx context.Context) (pipeline.Summary, error)
	Refresh(ctx context.Context, ocid string) (int, error)
	UnawardedReport() (int, error)
}

// NoticeStore is the cache surface the read routes query.
type NoticeStore interface {
	ListNotices(noticeType string, limit int) ([]storage.Notice, error)
	SearchNotices(term string, limit int) ([]storage.Notice, error)
	LatestRun() (storage.Run, error)
}

type Deps struct {
	Runner     Runner
	Controller *pipeline.Controller
	Store      NoticeStore
	Token      string // empty disables bearer auth
}

// NewHandler builds the management router. The health route is always open;
// everything else requires the bearer token when one is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/runs", handleStartRun(deps))
		r.Post("/reports/unawarded", handleUnawardedReport(deps))
		r.Post("/refresh/{ocid}", handleRefresh(deps))
		r.Get("/notices", handleListNotices(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":  "ok",
			"running": deps.Controller.Running(),
		}
		if run, err := deps.Store.LatestRun(); err == nil {
			resp["last_run"] = runView(run)
		} else if !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "reading run history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleStartRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Controller.TryStart() {
			httpError(w, http.StatusConflict, "invalid_request_error", "a run is already in progress")
			return
		}

		// The run outlives the request; progress lands in run history.
		go func() {
			defer deps.Controller.Finish()
			if _, err := deps.Runner.Run(context.Background()); err != nil {
				slog.Error("background run failed", "error", err)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

func handleUnawardedReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The report opens the same workbook the pipeline writes; it must
		// hold the run slot so two writers never race on one file.
		if !deps.Controller.TryStart() {
			httpError(w, http.StatusConflict, "invalid_request_error", "a run is already in progress")
			return
		}
		defer deps.Controller.Finish()

		n, err := deps.Runner.UnawardedReport()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "building report: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rows": n})
	}
}

func handleRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ocid := chi.URLParam(r, "ocid")
		if ocid == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ocid is required")
			return
		}
		// Refresh writes the workbook too, so it claims the run slot for the
		// duration of the request.
		if !deps.Controller.TryStart() {
			httpError(w, http.StatusConflict, "invalid_request_error", "a run is already in progress")
			return
		}
		defer deps.Controller.Finish()

		n, err := deps.Runner.Refresh(r.Context(), ocid)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "refreshing %s: %v", ocid, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ocid": ocid, "notices": n})
	}
}

func handleListNotices(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			if v > 500 {
				v = 500
			}
			limit = v
		}

		notices, err := deps.Store.ListNotices(r.URL.Query().Get("type"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing notices: %v", err)
			return
		}

		views := make([]map[string]any, 0, len(notices))
		for _, n := range notices {
			views = append(views, noticeView(n))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func runView(run storage.Run) map[string]any {
	v := map[string]any{
		"id":         run.ID,
		"status":     run.Status,
		"started_at": run.StartedAt,
		"releases":   run.Releases,
		"notices":    run.Notices,
	}
	if !run.FinishedAt.IsZero() {
		v["finished_at"] = run.FinishedAt
	}
	if run.Error != "" {
		v["error"] = run.Error
	}
	return v
}

func noticeView(n storage.Notice) map[string]any {
	return map[string]any{
		"ocid":         n.OCID,
		"notice_id":    n.NoticeID,
		"notice_type":  n.NoticeType,
		"family":       n.Family,
		"title":        n.Title,
		"published_at": n.PublishedAt,
		"updated_at":   n.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
