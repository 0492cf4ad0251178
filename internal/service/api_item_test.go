package service

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemLifecycle(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "demo", nil)
	path := "/rtc/api/config/item?config_name=demo&env=default"

	env := e.call(t, http.MethodPost, path,
		map[string]any{"key": "timeout", "value": 30, "desc": "request timeout"})
	require.Equal(t, 0, envelopeCode(t, env))

	// POST refuses an existing key.
	env = e.call(t, http.MethodPost, path,
		map[string]any{"key": "timeout", "value": 60})
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Item timeout existed.", env["msg"])

	// PUT updates it and appends history.
	env = e.call(t, http.MethodPut, path,
		map[string]any{"key": "timeout", "value": 60, "desc": "request timeout"})
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, path, nil)
	require.Equal(t, 0, envelopeCode(t, env))
	assert.Equal(t, float64(1), env["count"])
	rows := envelopeRows(t, env)
	require.Len(t, rows, 1)
	entry := rows[0].(map[string]any)
	assert.Equal(t, "timeout", entry["key"])
	assert.Equal(t, float64(60), entry["value"])
	assert.Equal(t, "request timeout", entry["desc"])
	history, ok := entry["history"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 2)

	env = e.call(t, http.MethodDelete, path, map[string]any{"key": "timeout"})
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, path, nil)
	assert.Equal(t, float64(0), env["count"])

	// Deleting a missing key is silent.
	env = e.call(t, http.MethodDelete, path, map[string]any{"key": "timeout"})
	require.Equal(t, 0, envelopeCode(t, env))
}

func TestItemValidation(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "demo", nil)
	path := "/rtc/api/config/item?config_name=demo&env=default"

	env := e.call(t, http.MethodPost, path,
		map[string]any{"key": "bad key", "value": 1})
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Item bad key formatter error.", env["msg"])

	env = e.call(t, http.MethodPost, path,
		map[string]any{"key": "empty", "value": ""})
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Item empty value is empty.", env["msg"])

	env = e.call(t, http.MethodPost, path, map[string]any{"key": "novalue"})
	require.Equal(t, 1, envelopeCode(t, env))
}

func TestItemMissingProjectOrEnv(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "demo", nil)

	env := e.call(t, http.MethodGet, "/rtc/api/config/item?config_name=ghost&env=default", nil)
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Project ghost config manager not exist.", env["msg"])

	env = e.call(t, http.MethodGet, "/rtc/api/config/item?config_name=demo&env=prod", nil)
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Project demo env [prod] or value error.", env["msg"])

	env = e.call(t, http.MethodGet, "/rtc/api/config/item?config_name=demo", nil)
	require.Equal(t, 1, envelopeCode(t, env))
}

func TestItemListPagination(t *testing.T) {
	e := newTestEnv(t, 8, false)
	entries := map[string]any{}
	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		entries[k] = "v-" + k
	}
	e.seedProject(t, "demo", entries)

	env := e.call(t, http.MethodGet, "/rtc/api/config/item?config_name=demo&env=default&page=2&limit=2", nil)
	require.Equal(t, 0, envelopeCode(t, env))
	assert.Equal(t, float64(5), env["count"])
	rows := envelopeRows(t, env)
	require.Len(t, rows, 2)
	assert.Equal(t, "k3", rows[0].(map[string]any)["key"])
	assert.Equal(t, "k4", rows[1].(map[string]any)["key"])
}
