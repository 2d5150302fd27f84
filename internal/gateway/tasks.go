package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/briefwire/briefwire/internal/scheduler"
	"github.com/briefwire/briefwire/internal/task"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"` // "ok" or "stopped"
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveTasks   int    `json:"active_tasks"`
}

// handleHealth reports 200 while the scheduler runs, 503 once stopped.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := g.sched.Stats(r.Context())
		if err != nil {
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}

		resp := HealthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
			ActiveTasks:   stats.ActiveTasks,
		}
		code := http.StatusOK
		if !stats.Running {
			resp.Status = "stopped"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// handleStats returns the scheduler-wide snapshot.
func (g *Gateway) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := g.sched.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errJSON(err))
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// taskJSON is the list/detail shape for one task.
type taskJSON struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SourceRef    string     `json:"source_ref"`
	Rule         string     `json:"rule"`
	Destinations int        `json:"destinations"`
	Active       bool       `json:"active"`
	RunCount     int        `json:"run_count"`
	FailureCount int        `json:"failure_count"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

// handleListTasks returns every persisted task.
func (g *Gateway) handleListTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := g.tasks.LoadAll(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errJSON(err))
			return
		}

		out := make([]taskJSON, 0, len(all))
		for _, t := range all {
			out = append(out, taskJSON{
				ID:           t.ID,
				Name:         t.Name,
				SourceRef:    t.SourceRef,
				Rule:         string(t.Rule.Kind),
				Destinations: len(t.Destinations),
				Active:       t.Active,
				RunCount:     t.RunCount,
				FailureCount: t.FailureCount,
				NextRun:      t.NextRun,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleScheduleTask creates and arms a new task from the request body.
func (g *Gateway) handleScheduleTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t task.Task
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeJSON(w, http.StatusBadRequest, errJSON(err))
			return
		}
		// Server-assigned fields win over anything the caller sent.
		t.ID = ""
		t.RunCount = 0
		t.FailureCount = 0
		t.LastRun = nil
		t.NextRun = nil

		id, err := g.sched.Schedule(r.Context(), &t)
		if errors.Is(err, scheduler.ErrNotRunning) {
			writeJSON(w, http.StatusServiceUnavailable, errJSON(err))
			return
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errJSON(err))
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"id":       id,
			"next_run": t.NextRun,
		})
	}
}

// handleTaskStatus returns one task's counters and next fire time.
func (g *Gateway) handleTaskStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := g.sched.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errJSON(err))
			return
		}
		if st == nil {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// handleCancelTask removes the task and its trigger.
func (g *Gateway) handleCancelTask() http.HandlerFunc {
	return g.boolOp(g.sched.Cancel, http.StatusNoContent)
}

func (g *Gateway) handlePauseTask() http.HandlerFunc {
	return g.boolOp(g.sched.Pause, http.StatusOK)
}

func (g *Gateway) handleResumeTask() http.HandlerFunc {
	return g.boolOp(g.sched.Resume, http.StatusOK)
}

func (g *Gateway) handleResetFailures() http.HandlerFunc {
	return g.boolOp(g.sched.ResetFailures, http.StatusOK)
}

func (g *Gateway) handleRunNow() http.HandlerFunc {
	return g.boolOp(g.sched.RunNow, http.StatusAccepted)
}

// handleTaskResults returns the task's most recent execution results.
func (g *Gateway) handleTaskResults() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		results, err := g.tasks.LoadResults(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errJSON(err))
			return
		}
		if results == nil {
			results = []task.ExecutionResult{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// boolOp adapts a known/unknown scheduler operation to HTTP: okCode when
// the task was known, 404 when not.
func (g *Gateway) boolOp(op func(ctx context.Context, id string) (bool, error), okCode int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := op(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, scheduler.ErrNotRunning) {
			writeJSON(w, http.StatusServiceUnavailable, errJSON(err))
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errJSON(err))
			return
		}
		if !ok {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(okCode)
	}
}

func errJSON(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
