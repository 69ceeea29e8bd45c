package handlers

import (
	"net/http"
	"time"

	"neon/backend/services"

	"github.com/gorilla/mux"
)

// CreateTimeline registers a timeline and returns its first buckets
func (h *Handlers) CreateTimeline(w http.ResponseWriter, r *http.Request) {
	var opts services.TimelineOptions
	if !decodeBody(w, r, &opts) {
		return
	}

	state, err := h.Timelines.Create(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, "Failed to create timeline", err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (h *Handlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	state, err := h.Timelines.Get(mux.Vars(r)["key"])
	if err != nil {
		h.writeError(w, r, "Failed to get timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// RefreshTimeline re-queries a timeline, typically after filters changed
func (h *Handlers) RefreshTimeline(w http.ResponseWriter, r *http.Request) {
	state, err := h.Timelines.Refresh(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		h.writeError(w, r, "Failed to refresh timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) SetTimelineGranularity(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Granularity services.Granularity `json:"granularity"`
	}
	if !decodeBody(w, r, &request) {
		return
	}

	state, err := h.Timelines.SetGranularity(r.Context(), mux.Vars(r)["key"], request.Granularity)
	if err != nil {
		h.writeError(w, r, "Failed to set granularity", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// BrushTimeline selects a date range. An empty brush clears the selection.
func (h *Handlers) BrushTimeline(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Brush []time.Time `json:"brush"`
	}
	if !decodeBody(w, r, &request) {
		return
	}

	state, err := h.Timelines.Brush(r.Context(), mux.Vars(r)["key"], request.Brush)
	if err != nil {
		h.writeError(w, r, "Failed to brush timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) DeleteTimeline(w http.ResponseWriter, r *http.Request) {
	if err := h.Timelines.Delete(r.Context(), mux.Vars(r)["key"]); err != nil {
		h.writeError(w, r, "Failed to delete timeline", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
