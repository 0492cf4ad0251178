// Package document models the persisted project document: a JSON mapping
// whose reserved top-level keys are default, environ, history and parent,
// and whose remaining top-level keys are user-defined environments. Entries
// within an environment are key → {key, desc, value} with the outer and
// inner key equal.
package document

import (
	"github.com/rtconf/rtconf/internal/confhash"
	"github.com/rtconf/rtconf/internal/util/timefmt"
)

// Reserved top-level keys of a project document.
const (
	KeyDefault = "default"
	KeyEnviron = "environ"
	KeyHistory = "history"
	KeyParent  = "parent"
)

// Document is a project document. The zero value is unusable; construct with
// New or normalise a decoded map with Normalize.
type Document map[string]any

// New returns an empty document with all reserved keys materialised.
func New() Document {
	return Document{
		KeyDefault: map[string]any{},
		KeyEnviron: map[string]any{},
		KeyHistory: map[string]any{},
		KeyParent:  []any{},
	}
}

// Normalize materialises missing reserved keys on a document read from
// storage and returns it. Documents written by hand may omit them.
func Normalize(d Document) Document {
	if d == nil {
		d = Document{}
	}
	for _, key := range []string{KeyDefault, KeyEnviron, KeyHistory} {
		if _, ok := d[key].(map[string]any); !ok {
			d[key] = map[string]any{}
		}
	}
	if _, ok := d[KeyParent].([]any); !ok {
		if ss, ok := d[KeyParent].([]string); ok {
			list := make([]any, len(ss))
			for i, s := range ss {
				list[i] = s
			}
			d[KeyParent] = list
		} else {
			d[KeyParent] = []any{}
		}
	}
	return d
}

// HasEnv reports whether env is a top-level key of the document. Reserved
// keys count, so "default" is always a valid environment after Normalize.
func (d Document) HasEnv(env string) bool {
	_, ok := d[env]
	return ok
}

// Env returns the entry map for env, or an empty map when absent.
func (d Document) Env(env string) map[string]any {
	if m, ok := d[env].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// Entry returns the entry stored under key in env.
func (d Document) Entry(env, key string) (map[string]any, bool) {
	e, ok := d.Env(env)[key].(map[string]any)
	return e, ok
}

// Parents returns the ordered parent project names.
func (d Document) Parents() []string {
	switch v := d[KeyParent].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SetParents replaces the parent list.
func (d Document) SetParents(parents []string) {
	list := make([]any, len(parents))
	for i, p := range parents {
		list[i] = p
	}
	d[KeyParent] = list
}

// Flatten reduces the entry map of env to inner key → value. Entries without
// the {key, value} shape are skipped.
func (d Document) Flatten(env string) map[string]any {
	src := d.Env(env)
	out := make(map[string]any, len(src))
	for _, raw := range src {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, ok := entry["key"].(string)
		if !ok {
			continue
		}
		value, ok := entry["value"]
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}

// NewEntry builds the canonical entry shape.
func NewEntry(key, desc string, value any) map[string]any {
	return map[string]any{"key": key, "desc": desc, "value": value}
}

// SetEntries writes entries into env, creating the env section on demand,
// and appends a history record for every entry whose content hash actually
// changed. operator is the acting user, empty when unauthenticated.
func (d Document) SetEntries(env string, entries map[string]any, operator string) {
	section, ok := d[env].(map[string]any)
	if !ok {
		section = map[string]any{}
		d[env] = section
	}
	for key, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			section[key] = raw
			continue
		}
		var before any = map[string]any{}
		if prev, ok := section[key].(map[string]any); ok {
			before = prev
		}
		if !confhash.Equal(before, entry) {
			d.appendHistory(env, key, before, entry, operator)
		}
		section[key] = entry
	}
}

// RemoveEntries deletes keys from env. Missing keys are ignored.
func (d Document) RemoveEntries(env string, keys []string) {
	section, ok := d[env].(map[string]any)
	if !ok {
		return
	}
	for _, key := range keys {
		delete(section, key)
	}
}

// History returns the audit records for key within env, oldest first.
func (d Document) History(env, key string) []any {
	hist, ok := d[KeyHistory].(map[string]any)
	if !ok {
		return nil
	}
	envHist, ok := hist[env].(map[string]any)
	if !ok {
		return nil
	}
	records, _ := envHist[key].([]any)
	return records
}

func (d Document) appendHistory(env, key string, before, after any, operator string) {
	hist, ok := d[KeyHistory].(map[string]any)
	if !ok {
		hist = map[string]any{}
		d[KeyHistory] = hist
	}
	envHist, ok := hist[env].(map[string]any)
	if !ok {
		envHist = map[string]any{}
		hist[env] = envHist
	}
	records, _ := envHist[key].([]any)
	envHist[key] = append(records, map[string]any{
		"before":   before,
		"after":    after,
		"operator": operator,
		"lut":      timefmt.Now(),
	})
}

// Clone returns a deep copy. Stored documents must never alias the maps
// handed to resolvers or admin handlers.
func (d Document) Clone() Document {
	return Document(deepCopy(map[string]any(d)).(map[string]any))
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
