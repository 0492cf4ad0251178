package service

import (
	"net/http"
)

// handleClientList serves GET /rtc/api/client: live subscriber summaries,
// local and mirrored, optionally filtered by project.
func (s *Service) handleClientList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rows := s.registry.List(r.URL.Query().Get("config_name"))
	page, limit := pageParams(r)
	start, end := paginate(len(rows), page, limit)
	writePage(w, len(rows), rows[start:end])
}

// handleSystem serves GET /rtc/api/system: a one-shot snapshot of the
// server's shape for dashboards.
func (s *Service) handleSystem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names, err := s.store.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{
		"version":        s.version,
		"store_type":     s.storeType,
		"max_connection": s.maxConn,
		"project_num":    len(names),
		"client_num":     s.registry.Count(),
	})
}
