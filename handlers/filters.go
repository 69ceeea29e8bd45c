package handlers

import (
	"net/http"

	"neon/backend/middleware"
	"neon/backend/models"

	"github.com/gorilla/mux"
)

// userID returns the authenticated user, answering 401 when there is none.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := middleware.GetUserIDFromContext(r)
	if id == "" {
		http.Error(w, "Unauthorized: No user ID found", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

// GetFilterTables returns all saved filter tables for the current user
func (h *Handlers) GetFilterTables(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	tables, err := h.Tables.GetFilterTables(uid)
	if err != nil {
		h.writeError(w, r, "Failed to get filter tables", err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

// GetFilterTable returns a specific saved filter table
func (h *Handlers) GetFilterTable(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	table, err := h.Tables.GetFilterTable(uid, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, "Failed to get filter table", err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// CreateFilterTable saves a new filter table
func (h *Handlers) CreateFilterTable(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var request models.SavedFilterTable
	if !decodeBody(w, r, &request) {
		return
	}

	table, err := h.Tables.CreateFilterTable(uid, &request)
	if err != nil {
		h.writeError(w, r, "Failed to create filter table", err)
		return
	}
	writeJSON(w, http.StatusCreated, table)
}

// UpdateFilterTable replaces the settings and rows of a saved table
func (h *Handlers) UpdateFilterTable(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var request models.SavedFilterTable
	if !decodeBody(w, r, &request) {
		return
	}

	table, err := h.Tables.UpdateFilterTable(uid, mux.Vars(r)["id"], &request)
	if err != nil {
		h.writeError(w, r, "Failed to update filter table", err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// DeleteFilterTable deletes a saved filter table
func (h *Handlers) DeleteFilterTable(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.Tables.DeleteFilterTable(uid, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, "Failed to delete filter table", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewFilterTable returns the filter a saved table compiles to
func (h *Handlers) PreviewFilterTable(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	filter, err := h.Tables.PreviewFilterTable(uid, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, "Failed to compile filter table", err)
		return
	}
	writeJSON(w, http.StatusOK, filter)
}

// ApplyFilterTable sends the compiled filter to the query service
func (h *Handlers) ApplyFilterTable(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	filter, resp, err := h.Tables.ApplyFilterTable(r.Context(), uid, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, "Failed to apply filter table", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filter":   filter,
		"response": resp,
	})
}

// RemoveAppliedFilterTable removes the filter a saved table applied
func (h *Handlers) RemoveAppliedFilterTable(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	resp, err := h.Tables.RemoveAppliedFilterTable(r.Context(), uid, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, "Failed to remove filter table", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
