package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rtconf/rtconf/internal/document"
)

// Envelope codes. Every admin response is HTTP 200 with code 0 on success
// and code 1 on a domain or validation failure; only transport-level
// problems use plain HTTP status codes.
const (
	codeOK  = 0
	codeErr = 1
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// maxBodySize bounds admin request bodies.
const maxBodySize = 4 << 20

// operator recorded on history entries written through the admin API,
// which carries no authentication.
const adminOperator = "admin"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes the success envelope. nil data renders as {}.
func writeOK(w http.ResponseWriter, data any) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": codeOK, "data": data})
}

// writePage writes the pagination envelope. count is the row total before
// slicing.
func writePage(w http.ResponseWriter, count int, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"code": codeOK, "count": count, "data": data})
}

// writeErr maps an error onto the admin error envelope.
func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusOK, map[string]any{"code": codeErr, "msg": err.Error(), "data": map[string]any{}})
}

// pageParams reads the page and limit query parameters, falling back to
// the defaults on absence or garbage.
func pageParams(r *http.Request) (page, limit int) {
	page, limit = defaultPage, defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	return page, limit
}

// paginate clamps the [start, end) slice bounds for n rows.
func paginate(n, page, limit int) (start, end int) {
	start = (page - 1) * limit
	if start > n {
		start = n
	}
	end = start + limit
	if end > n {
		end = n
	}
	return start, end
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched so handlers can treat every field as optional.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// dataObject extracts a document payload from the data field, accepting
// both a JSON object and a JSON-encoded object string.
func dataObject(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("data is required")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("decode data string: %w", err)
		}
		trimmed = []byte(s)
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("data must be a JSON object: %w", err)
	}
	return m, nil
}

// envWritable reports whether env names an entry section. The history and
// parent keys share the document's top level but hold audit records and
// the parent list, never entries.
func envWritable(env string) bool {
	return env != document.KeyHistory && env != document.KeyParent
}
