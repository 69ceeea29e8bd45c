package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (h *Handlers) GetHostnames(w http.ResponseWriter, r *http.Request) {
	names, err := h.Filters.Hostnames(r.Context())
	if err != nil {
		h.writeError(w, r, "Failed to get hostnames", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// ConnectDatastore points the query server at a datastore
func (h *Handlers) ConnectDatastore(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Datastore string `json:"datastore"`
		Hostname  string `json:"hostname"`
	}
	if !decodeBody(w, r, &request) {
		return
	}
	if request.Datastore == "" || request.Hostname == "" {
		http.Error(w, "datastore and hostname are required", http.StatusBadRequest)
		return
	}

	if err := h.Filters.Connect(r.Context(), request.Datastore, request.Hostname); err != nil {
		h.writeError(w, r, "Failed to connect to datastore", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"datastore": request.Datastore,
		"hostname":  request.Hostname,
	})
}

func (h *Handlers) GetDatabases(w http.ResponseWriter, r *http.Request) {
	names, err := h.Filters.DatabaseNames(r.Context())
	if err != nil {
		h.writeError(w, r, "Failed to get databases", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handlers) GetTables(w http.ResponseWriter, r *http.Request) {
	names, err := h.Filters.TableNames(r.Context(), mux.Vars(r)["database"])
	if err != nil {
		h.writeError(w, r, "Failed to get tables", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handlers) GetColumns(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	names, err := h.Filters.ColumnNames(r.Context(), vars["database"], vars["table"])
	if err != nil {
		h.writeError(w, r, "Failed to get columns", err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}
