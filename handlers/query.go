package handlers

import (
	"net/http"
	"strconv"

	"neon/backend/query"
)

// ExecuteQuery runs the posted query against the query service
func (h *Handlers) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var q query.Query
	if !decodeBody(w, r, &q) {
		return
	}

	if raw := r.URL.Query().Get("includefiltered"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "includefiltered must be true or false", http.StatusBadRequest)
			return
		}
		q.IncludeFiltered(include)
	}

	result, err := h.Query.ExecuteQuery(r.Context(), &q)
	if err != nil {
		h.writeError(w, r, "Failed to execute query", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetFieldNames lists the fields of a dataset
func (h *Handlers) GetFieldNames(w http.ResponseWriter, r *http.Request) {
	dataSourceName := r.URL.Query().Get("datasourcename")
	datasetID := r.URL.Query().Get("datasetid")
	if dataSourceName == "" || datasetID == "" {
		http.Error(w, "datasourcename and datasetid query parameters are required", http.StatusBadRequest)
		return
	}

	names, err := h.Query.GetFieldNames(r.Context(), dataSourceName, datasetID)
	if err != nil {
		h.writeError(w, r, "Failed to get field names", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}
