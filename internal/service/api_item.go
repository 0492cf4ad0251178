package service

import (
	"maps"
	"net/http"
	"sort"

	"github.com/rtconf/rtconf/internal/document"
	"github.com/rtconf/rtconf/internal/rtcerr"
	"github.com/rtconf/rtconf/internal/validate"
)

// handleItem serves GET|POST|PUT|DELETE /rtc/api/config/item.
func (s *Service) handleItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, env := q.Get("config_name"), q.Get("env")
	if name == "" || env == "" {
		writeErr(w, rtcerr.Global("config_name and env are required"))
		return
	}
	doc, err := s.store.Get(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !doc.HasEnv(env) || !envWritable(env) {
		writeErr(w, rtcerr.EnvInvalid(name, env))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.listItems(w, r, doc, env)
	case http.MethodPost:
		s.putItem(w, r, name, env, doc, false)
	case http.MethodPut:
		s.putItem(w, r, name, env, doc, true)
	case http.MethodDelete:
		s.deleteItem(w, r, name, env, doc)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// listItems returns the entries of one environment, each with its history
// records attached, sorted by key.
func (s *Service) listItems(w http.ResponseWriter, r *http.Request, doc document.Document, env string) {
	section := doc.Env(env)
	keys := make([]string, 0, len(section))
	for key := range section {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	page, limit := pageParams(r)
	start, end := paginate(len(keys), page, limit)
	rows := make([]map[string]any, 0, end-start)
	for _, key := range keys[start:end] {
		entry, ok := doc.Entry(env, key)
		if !ok {
			continue
		}
		row := make(map[string]any, len(entry)+1)
		maps.Copy(row, entry)
		row["history"] = doc.History(env, key)
		rows = append(rows, row)
	}
	writePage(w, len(keys), rows)
}

// putItem upserts one entry. POST refuses to overwrite an existing key.
func (s *Service) putItem(w http.ResponseWriter, r *http.Request, name, env string, doc document.Document, allowExisting bool) {
	var body struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
		Desc  string `json:"desc"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, rtcerr.Globalf("%v", err))
		return
	}
	if !validate.EntryKey(body.Key) {
		writeErr(w, rtcerr.Globalf("Item %s formatter error.", body.Key))
		return
	}
	if body.Value == nil || body.Value == "" {
		writeErr(w, rtcerr.Globalf("Item %s value is empty.", body.Key))
		return
	}
	if !allowExisting {
		if _, ok := doc.Entry(env, body.Key); ok {
			writeErr(w, rtcerr.Globalf("Item %s existed.", body.Key))
			return
		}
	}

	doc.SetEntries(env, map[string]any{
		body.Key: document.NewEntry(body.Key, body.Desc, body.Value),
	}, adminOperator)

	if err := s.store.Set(r.Context(), name, doc); err != nil {
		writeErr(w, err)
		return
	}
	s.engine.PublishConfigChanged(r.Context(), name)
	writeOK(w, nil)
}

// deleteItem removes one entry. A missing key is a silent no-op.
func (s *Service) deleteItem(w http.ResponseWriter, r *http.Request, name, env string, doc document.Document) {
	var body struct {
		Key string `json:"key"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, rtcerr.Globalf("%v", err))
		return
	}
	doc.RemoveEntries(env, []string{body.Key})
	if err := s.store.Set(r.Context(), name, doc); err != nil {
		writeErr(w, err)
		return
	}
	s.engine.PublishConfigChanged(r.Context(), name)
	writeOK(w, nil)
}
