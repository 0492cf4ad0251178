package client

import (
	"os"
	"strings"
)

// environSkip lists process environment keys never sent to the server.
// LS_COLORS alone can exceed the size of the rest of the environment.
var environSkip = map[string]bool{
	"LS_COLORS": true,
}

// pullContext builds the client context sent with every pull. The server
// folds it into resolution variables and session summaries.
func (w *Watcher) pullContext() map[string]any {
	ctx := map[string]any{
		"pid":            os.Getpid(),
		"ping_interval":  w.opts.PingInterval.Seconds(),
		"retry_interval": w.opts.RetryInterval.Seconds(),
		"recv_interval":  w.opts.RecvInterval.Seconds(),
		"daemon":         w.opts.Daemon,
		"auto_start":     w.opts.AutoStart,
		"environ":        w.environ(),
	}
	for k, v := range w.opts.Context {
		ctx[k] = v
	}
	return ctx
}

// environ returns the process environment as a map, minus the skip list,
// overlaid with the user-supplied entries.
func (w *Watcher) environ() map[string]any {
	env := map[string]any{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || environSkip[k] {
			continue
		}
		env[k] = v
	}
	for k, v := range w.opts.Environ {
		env[k] = v
	}
	return env
}
