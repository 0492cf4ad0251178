package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rtconf/rtconf/internal/auth"
	"github.com/rtconf/rtconf/internal/document"
	"github.com/rtconf/rtconf/internal/pusher"
	"github.com/rtconf/rtconf/internal/registry"
	"github.com/rtconf/rtconf/internal/resolve"
	"github.com/rtconf/rtconf/internal/store"
)

// testEnv runs a fully wired service over the file backend, whose bus
// loops back in-process so admin writes dispatch pushes synchronously.
type testEnv struct {
	svc     *Service
	srv     *httptest.Server
	backend store.Backend
	reg     *registry.Registry
	auth    *auth.Manager
}

func newTestEnv(t *testing.T, maxConn int, requireToken bool) *testEnv {
	t.Helper()

	backend, err := store.Open(context.Background(), store.Config{
		Type:       store.TypeJSONFile,
		Dir:        t.TempDir(),
		OpenNotify: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close(context.Background()) })

	resolver := resolve.New(backend)
	reg := registry.New(maxConn)
	engine := pusher.New(backend, resolver, reg)
	runCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Start(runCtx))
	t.Cleanup(func() {
		cancel()
		reg.Close()
	})

	mgr := auth.New(backend)
	svc := New(Options{
		Store:              backend,
		Resolver:           resolver,
		Registry:           reg,
		Engine:             engine,
		Auth:               mgr,
		RequireClientToken: requireToken,
		MaxConnection:      maxConn,
		StoreType:          store.TypeJSONFile,
		Version:            "test",
	})
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{svc: svc, srv: srv, backend: backend, reg: reg, auth: mgr}
}

// call sends a JSON request and decodes the admin envelope.
func (e *testEnv) call(t *testing.T, method, path string, body any) map[string]any {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func envelopeCode(t *testing.T, env map[string]any) int {
	t.Helper()
	code, ok := env["code"].(float64)
	require.True(t, ok, "envelope without numeric code: %v", env)
	return int(code)
}

func envelopeData(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	data, ok := env["data"].(map[string]any)
	require.True(t, ok, "envelope without object data: %v", env)
	return data
}

func envelopeRows(t *testing.T, env map[string]any) []any {
	t.Helper()
	rows, ok := env["data"].([]any)
	require.True(t, ok, "envelope without list data: %v", env)
	return rows
}

// seedProject writes a project with one default entry directly into the
// backend, bypassing the admin API.
func (e *testEnv) seedProject(t *testing.T, name string, entries map[string]any) {
	t.Helper()
	doc := document.New()
	if len(entries) > 0 {
		wrapped := make(map[string]any, len(entries))
		for k, v := range entries {
			wrapped[k] = document.NewEntry(k, "", v)
		}
		doc.SetEntries(document.KeyDefault, wrapped, "seed")
	}
	require.NoError(t, e.backend.Set(context.Background(), name, doc))
}
