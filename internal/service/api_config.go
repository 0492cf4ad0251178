package service

import (
	"encoding/json"
	"net/http"

	"github.com/rtconf/rtconf/internal/document"
	"github.com/rtconf/rtconf/internal/rtcerr"
	"github.com/rtconf/rtconf/internal/validate"
)

// handleConfigList serves GET /rtc/api/config/list.
func (s *Service) handleConfigList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names, err := s.store.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	page, limit := pageParams(r)
	start, end := paginate(len(names), page, limit)
	rows := make([]map[string]any, 0, end-start)
	for _, name := range names[start:end] {
		doc, err := s.store.Get(r.Context(), name)
		if err != nil {
			// Deleted between List and Get.
			continue
		}
		rows = append(rows, s.projectRow(name, doc))
	}
	writePage(w, len(names), rows)
}

// handleConfig serves GET|POST|PUT|DELETE /rtc/api/config.
func (s *Service) handleConfig(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("config_name")
	if name == "" {
		writeErr(w, rtcerr.Global("config_name is required"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.getConfig(w, r, name)
	case http.MethodPost:
		s.createConfig(w, r, name)
	case http.MethodPut:
		s.updateConfig(w, r, name)
	case http.MethodDelete:
		s.deleteConfig(w, r, name)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) getConfig(w http.ResponseWriter, r *http.Request, name string) {
	doc, err := s.store.Get(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, s.projectRow(name, doc))
}

func (s *Service) createConfig(w http.ResponseWriter, r *http.Request, name string) {
	if !validate.ProjectName(name) {
		writeErr(w, rtcerr.NameInvalid(name))
		return
	}
	var body struct {
		CopyFrom string   `json:"copy_from"`
		Parent   []string `json:"parent"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, rtcerr.Globalf("%v", err))
		return
	}
	exists, err := s.store.Exists(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	if exists {
		writeErr(w, rtcerr.Exists(name))
		return
	}

	doc := document.New()
	if body.CopyFrom != "" {
		src, err := s.store.Get(r.Context(), body.CopyFrom)
		if err != nil {
			writeErr(w, err)
			return
		}
		doc = src.Clone()
	}
	if len(body.Parent) > 0 {
		doc.SetParents(body.Parent)
	}

	if err := s.store.Set(r.Context(), name, doc); err != nil {
		writeErr(w, err)
		return
	}
	s.engine.PublishConfigChanged(r.Context(), name)
	writeOK(w, nil)
}

func (s *Service) updateConfig(w http.ResponseWriter, r *http.Request, name string) {
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, rtcerr.Globalf("%v", err))
		return
	}
	data, err := dataObject(body.Data)
	if err != nil {
		writeErr(w, rtcerr.Globalf("%v", err))
		return
	}
	stored, err := s.store.Get(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}

	if env := r.URL.Query().Get("env"); env != "" {
		if !stored.HasEnv(env) || !envWritable(env) {
			writeErr(w, rtcerr.EnvInvalid(name, env))
			return
		}
		entries := make(map[string]any, len(data))
		for key, value := range data {
			if entry, ok := value.(map[string]any); ok {
				if _, ok := entry["key"]; ok {
					entries[key] = entry
					continue
				}
			}
			// Bare key: value pairs expand to full entries.
			entries[key] = document.NewEntry(key, "", value)
		}
		stored.SetEntries(env, entries, adminOperator)
	} else {
		stored = document.MergeDocuments(stored, document.Normalize(document.Document(data)))
	}

	if err := s.store.Set(r.Context(), name, stored); err != nil {
		writeErr(w, err)
		return
	}
	s.engine.PublishConfigChanged(r.Context(), name)
	writeOK(w, nil)
}

func (s *Service) deleteConfig(w http.ResponseWriter, r *http.Request, name string) {
	if err := s.store.Delete(r.Context(), name); err != nil {
		writeErr(w, err)
		return
	}
	s.engine.PublishConfigChanged(r.Context(), name)
	writeOK(w, nil)
}

func (s *Service) projectRow(name string, doc document.Document) map[string]any {
	return map[string]any{
		"config_name": name,
		"connect_num": len(s.registry.List(name)),
		"source_data": doc,
	}
}
