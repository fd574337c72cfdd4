package handler

import (
	"errors"
	"net/http"
	"strings"

	"garantio/internal/alert"
	"garantio/internal/auth"
	"garantio/internal/jobs"
)

type AlertHandler struct {
	Store alert.Store
	Queue jobs.Queue
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var status *alert.Status
	if s := strings.TrimSpace(strings.ToUpper(r.URL.Query().Get("status"))); s != "" {
		switch st := alert.Status(s); st {
		case alert.StatusScheduled, alert.StatusSent, alert.StatusCancelled, alert.StatusFailed:
			status = &st
		default:
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}

	rows, err := h.Store.ListByOwner(r.Context(), uid, status)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Job is a diagnostic: did this alert's reminder round-trip into the queue?
func (h *AlertHandler) Job(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	found, err := h.Store.GetByID(r.Context(), uid, id)
	if errors.Is(err, alert.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}

	job, err := h.Queue.Get(r.Context(), jobs.ReminderKey(found.WarrantyID, found.Kind, found.AlerteDate))
	if err != nil {
		writeErr(w, err)
		return
	}
	if job == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enqueued": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enqueued": true,
		"job_key":  job.JobKey,
		"status":   job.Status,
		"run_at":   job.RunAt,
		"attempts": job.Attempts,
	})
}

// OwnershipDrift runs the alert/warranty owner consistency scan over the
// caller's warranties.
func (h *AlertHandler) OwnershipDrift(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	rows, err := h.Store.ScanOwnershipDrift(r.Context(), uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(rows),
		"rows":  rows,
	})
}
