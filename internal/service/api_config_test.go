package service

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCreateAndGet(t *testing.T) {
	e := newTestEnv(t, 8, false)

	env := e.call(t, http.MethodPost, "/rtc/api/config?config_name=demo", nil)
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, "/rtc/api/config?config_name=demo", nil)
	require.Equal(t, 0, envelopeCode(t, env))
	data := envelopeData(t, env)
	assert.Equal(t, "demo", data["config_name"])
	assert.Equal(t, float64(0), data["connect_num"])
	source, ok := data["source_data"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "default")
	assert.Contains(t, source, "environ")
}

func TestConfigCreateDuplicate(t *testing.T) {
	e := newTestEnv(t, 8, false)

	e.call(t, http.MethodPost, "/rtc/api/config?config_name=demo", nil)
	env := e.call(t, http.MethodPost, "/rtc/api/config?config_name=demo", nil)
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Project demo config manager existed.", env["msg"])
}

func TestConfigCreateBadName(t *testing.T) {
	e := newTestEnv(t, 8, false)

	env := e.call(t, http.MethodPost, "/rtc/api/config?config_name=bad-name", nil)
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Project bad-name formatter error.", env["msg"])
}

func TestConfigGetMissing(t *testing.T) {
	e := newTestEnv(t, 8, false)

	env := e.call(t, http.MethodGet, "/rtc/api/config?config_name=ghost", nil)
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Project ghost config manager not exist.", env["msg"])
}

func TestConfigCreateCopyFrom(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "base", map[string]any{"k1": "v1"})

	env := e.call(t, http.MethodPost, "/rtc/api/config?config_name=copy",
		map[string]any{"copy_from": "base"})
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, "/rtc/api/config?config_name=copy", nil)
	source := envelopeData(t, env)["source_data"].(map[string]any)
	section := source["default"].(map[string]any)
	assert.Contains(t, section, "k1")

	env = e.call(t, http.MethodPost, "/rtc/api/config?config_name=orphan",
		map[string]any{"copy_from": "ghost"})
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Project ghost config manager not exist.", env["msg"])
}

func TestConfigCreateWithParents(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "base", map[string]any{"k1": "v1"})

	env := e.call(t, http.MethodPost, "/rtc/api/config?config_name=child",
		map[string]any{"parent": []string{"base"}})
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, "/rtc/api/config?config_name=child", nil)
	source := envelopeData(t, env)["source_data"].(map[string]any)
	assert.Equal(t, []any{"base"}, source["parent"])
}

func TestConfigUpdateWholeDocument(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "demo", map[string]any{"k1": "v1"})

	env := e.call(t, http.MethodPut, "/rtc/api/config?config_name=demo",
		map[string]any{"data": map[string]any{
			"prod": map[string]any{
				"k2": map[string]any{"key": "k2", "desc": "", "value": "v2"},
			},
		}})
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, "/rtc/api/config?config_name=demo", nil)
	source := envelopeData(t, env)["source_data"].(map[string]any)
	prod, ok := source["prod"].(map[string]any)
	require.True(t, ok, "prod section missing after whole-document write")
	assert.Contains(t, prod, "k2")
	// The merge keeps sections the write did not mention.
	section := source["default"].(map[string]any)
	assert.Contains(t, section, "k1")
}

func TestConfigUpdateDataAsString(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "demo", nil)

	env := e.call(t, http.MethodPut, "/rtc/api/config?config_name=demo",
		map[string]any{"data": `{"stage": {}}`})
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, "/rtc/api/config?config_name=demo", nil)
	source := envelopeData(t, env)["source_data"].(map[string]any)
	assert.Contains(t, source, "stage")
}

func TestConfigUpdateEnvScoped(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "demo", nil)

	// The target env must already exist.
	env := e.call(t, http.MethodPut, "/rtc/api/config?config_name=demo&env=prod",
		map[string]any{"data": map[string]any{"k1": "v1"}})
	require.Equal(t, 1, envelopeCode(t, env))
	assert.Equal(t, "Project demo env [prod] or value error.", env["msg"])

	// default is always present, and bare pairs expand to entries.
	env = e.call(t, http.MethodPut, "/rtc/api/config?config_name=demo&env=default",
		map[string]any{"data": map[string]any{"k1": "v1"}})
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, "/rtc/api/config/item?config_name=demo&env=default", nil)
	rows := envelopeRows(t, env)
	require.Len(t, rows, 1)
	entry := rows[0].(map[string]any)
	assert.Equal(t, "k1", entry["key"])
	assert.Equal(t, "v1", entry["value"])
	history, ok := entry["history"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 1)
}

func TestConfigUpdateRejectsReservedSections(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "demo", nil)

	for _, env := range []string{"history", "parent"} {
		out := e.call(t, http.MethodPut, "/rtc/api/config?config_name=demo&env="+env,
			map[string]any{"data": map[string]any{"k1": "v1"}})
		assert.Equal(t, 1, envelopeCode(t, out), "env %s must not accept entries", env)
	}
}

func TestConfigDelete(t *testing.T) {
	e := newTestEnv(t, 8, false)
	e.seedProject(t, "demo", nil)

	env := e.call(t, http.MethodDelete, "/rtc/api/config?config_name=demo", nil)
	require.Equal(t, 0, envelopeCode(t, env))

	env = e.call(t, http.MethodGet, "/rtc/api/config?config_name=demo", nil)
	require.Equal(t, 1, envelopeCode(t, env))

	// Deleting again stays a no-op.
	env = e.call(t, http.MethodDelete, "/rtc/api/config?config_name=demo", nil)
	require.Equal(t, 0, envelopeCode(t, env))
}

func TestConfigListPagination(t *testing.T) {
	e := newTestEnv(t, 8, false)
	for i := 0; i < 12; i++ {
		e.seedProject(t, fmt.Sprintf("p%02d", i), nil)
	}

	env := e.call(t, http.MethodGet, "/rtc/api/config/list?page=2&limit=5", nil)
	require.Equal(t, 0, envelopeCode(t, env))
	assert.Equal(t, float64(12), env["count"])
	rows := envelopeRows(t, env)
	require.Len(t, rows, 5)
	assert.Equal(t, "p05", rows[0].(map[string]any)["config_name"])

	// Defaults: page 1, limit 10.
	env = e.call(t, http.MethodGet, "/rtc/api/config/list", nil)
	assert.Len(t, envelopeRows(t, env), 10)

	// Past the end.
	env = e.call(t, http.MethodGet, "/rtc/api/config/list?page=4&limit=5", nil)
	assert.Empty(t, envelopeRows(t, env))
}

func TestConfigRequiresName(t *testing.T) {
	e := newTestEnv(t, 8, false)

	env := e.call(t, http.MethodGet, "/rtc/api/config", nil)
	require.Equal(t, 1, envelopeCode(t, env))
}

func TestSystemSnapshot(t *testing.T) {
	e := newTestEnv(t, 32, false)
	e.seedProject(t, "one", nil)
	e.seedProject(t, "two", nil)

	env := e.call(t, http.MethodGet, "/rtc/api/system", nil)
	require.Equal(t, 0, envelopeCode(t, env))
	data := envelopeData(t, env)
	assert.Equal(t, "json_file", data["store_type"])
	assert.Equal(t, float64(32), data["max_connection"])
	assert.Equal(t, float64(2), data["project_num"])
	assert.Equal(t, float64(0), data["client_num"])
}
