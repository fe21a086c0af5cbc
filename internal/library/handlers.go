package library

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

func (m *Manager) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, err := m.List(r.Context())
	if err != nil {
		m.logger.Error("list artifacts", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (m *Manager) HandleGet(w http.ResponseWriter, r *http.Request) {
	e, ok := m.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleAudio streams the cached file itself.
func (m *Manager) HandleAudio(w http.ResponseWriter, r *http.Request) {
	e, ok := m.lookup(w, r)
	if !ok {
		return
	}
	http.ServeFile(w, r, e.Path)
}

func (m *Manager) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	if err := m.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) lookup(w http.ResponseWriter, r *http.Request) (*Entry, bool) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return nil, false
	}
	e, err := m.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return nil, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return e, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
