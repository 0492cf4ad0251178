// Package client implements the subscriber side of the wire protocol:
// pull/push frames over websocket, keepalive re-pulls, and automatic
// reconnection with exponential backoff.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/rtconf/rtconf/internal/auth"
	"github.com/rtconf/rtconf/internal/message"
)

// Default intervals, matching the server's expectations for client
// summaries.
const (
	DefaultPingInterval  = 300 * time.Second
	DefaultRetryInterval = 5 * time.Second
	DefaultRecvInterval  = time.Second
)

const (
	dialTimeout  = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// runLoopKey is the resolved entry that disables the watch loop when it
// holds a false value.
const runLoopKey = "CLIENT_RUN_LOOP"

// ServerError is an error frame received from the server.
type ServerError struct {
	Code int
	Msg  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Msg)
}

// Options carries fully resolved watcher settings. The public client
// package layers environment-variable defaults on top.
type Options struct {
	// Name is the project to watch.
	Name string
	// URL is the server's subscribe endpoint, e.g.
	// ws://localhost:8089/connect.
	URL string
	// Env selects the environment overlay. Empty means default.
	Env string
	// Token is sent as the authorization_token header.
	Token string

	PingInterval  time.Duration
	RetryInterval time.Duration
	RecvInterval  time.Duration

	// Daemon is reported in the pull context.
	Daemon bool
	// AutoStart false suppresses the watch loop after the initial sync.
	AutoStart bool

	// Context entries are merged into the pull context. Environ entries
	// overlay the process environment sent with it.
	Context map[string]any
	Environ map[string]string

	Logger *slog.Logger
}

// Watcher keeps a local copy of one project's resolved configuration
// fresh. Construct with New, then call Start.
type Watcher struct {
	opts   Options
	logger *slog.Logger

	mu        sync.RWMutex
	data      map[string]any
	hash      string
	callbacks []func(map[string]any)

	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
	closeOnce sync.Once
}

// New builds a watcher. Zero intervals select the defaults.
func New(opts Options) *Watcher {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.RecvInterval <= 0 {
		opts.RecvInterval = DefaultRecvInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		opts:   opts,
		logger: logger.With("component", "client", "config_name", opts.Name),
		done:   make(chan struct{}),
	}
}

// Start performs one synchronous sync, failing fast on dial or server
// errors, then runs the watch loop in the background until ctx is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	if err := w.syncOnce(runCtx); err != nil {
		cancel()
		close(w.done)
		return err
	}

	if !w.runLoopEnabled() {
		w.logger.Info("watch loop disabled", "hash_code", w.Hash())
		cancel()
		close(w.done)
		return nil
	}

	go func() {
		defer close(w.done)
		w.run(runCtx)
	}()
	return nil
}

// Close stops the watch loop and waits for it to exit. Safe to call
// multiple times; a no-op before Start.
func (w *Watcher) Close() {
	if !w.started {
		return
	}
	w.closeOnce.Do(func() {
		w.cancel()
	})
	<-w.done
}

// Data returns a snapshot of the resolved configuration.
func (w *Watcher) Data() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.data == nil {
		return map[string]any{}
	}
	return maps.Clone(w.data)
}

// Hash returns the content hash of the current view, empty before the
// first sync.
func (w *Watcher) Hash() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.hash
}

// String returns the value under key rendered as a string, or def when
// the key is absent.
func (w *Watcher) String(key, def string) string {
	w.mu.RLock()
	v, ok := w.data[key]
	w.mu.RUnlock()
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Watch registers fn to run after every applied change. Callbacks
// receive a shared snapshot and must treat it as read-only.
func (w *Watcher) Watch(fn func(map[string]any)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// syncOnce dials, pulls once, applies the reply, and closes.
func (w *Watcher) syncOnce(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.CloseNow() }()

	if err := w.sendPull(ctx, conn); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	rctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	_, data, err := conn.Read(rctx)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	if _, err := w.dispatch(data); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

// run keeps a live session, reconnecting with exponential backoff.
func (w *Watcher) run(ctx context.Context) {
	bo := newReconnectBackoff(w.opts.RetryInterval)
	for {
		start := time.Now()
		err := w.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) >= resetThreshold {
			bo.Reset()
		}
		interval := bo.NextBackOff()
		w.logger.Warn("disconnected, reconnecting...", "error", err, "backoff", interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

type received struct {
	data []byte
	err  error
}

// session runs one connection. It opens with a pull, then re-pulls
// whenever the server asked for a reply or no frame arrived within the
// ping interval.
func (w *Watcher) session(ctx context.Context) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := w.dial(sessCtx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.CloseNow() }()

	// Reads live on their own goroutine: cancelling a Read context
	// closes the connection, so the keepalive timer cannot share it.
	frames := make(chan received)
	go func() {
		for {
			_, data, err := conn.Read(sessCtx)
			select {
			case frames <- received{data: data, err: err}:
			case <-sessCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	if err := w.sendPull(sessCtx, conn); err != nil {
		return err
	}

	keepalive := time.NewTimer(w.opts.PingInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-sessCtx.Done():
			return sessCtx.Err()
		case <-keepalive.C:
			// Silence for a full ping interval: re-pull so both sides
			// know the session is alive.
			if err := w.sendPull(sessCtx, conn); err != nil {
				return err
			}
			keepalive.Reset(w.opts.PingInterval)
		case rcv := <-frames:
			if rcv.err != nil {
				return rcv.err
			}
			reply, err := w.dispatch(rcv.data)
			if err != nil {
				return err
			}
			if reply {
				if err := w.sendPull(sessCtx, conn); err != nil {
					return err
				}
			}
			if !keepalive.Stop() {
				select {
				case <-keepalive.C:
				default:
				}
			}
			keepalive.Reset(w.opts.PingInterval)
		}
	}
}

// dispatch applies one downstream frame and reports whether the server
// asked for a reply pull.
func (w *Watcher) dispatch(data []byte) (bool, error) {
	frame, err := message.DecodeDownstream(data)
	if err != nil {
		return false, err
	}
	if frame.Err != nil {
		return false, &ServerError{Code: frame.Err.Code, Msg: frame.Err.ErrorMsg}
	}

	push := frame.Push
	switch push.MessageType {
	case message.TypeChanged:
		w.apply(push.Data, push.HashCode)
	case message.TypeNoChange:
		// Current view already matches the server.
	default:
		w.logger.Warn("unhandled push frame", "message_type", push.MessageType)
	}
	return push.ResponseMode == message.ModeReply, nil
}

// apply swaps in the new view and runs the change callbacks.
func (w *Watcher) apply(data map[string]any, hash string) {
	if data == nil {
		data = map[string]any{}
	}
	w.mu.Lock()
	w.data = data
	w.hash = hash
	callbacks := slices.Clone(w.callbacks)
	w.mu.Unlock()

	w.logger.Info("configuration changed", "hash_code", hash, "keys", len(data))
	for _, fn := range callbacks {
		fn(data)
	}
}

func (w *Watcher) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	hdr := http.Header{}
	if w.opts.Token != "" {
		hdr.Set(auth.TokenHeader, w.opts.Token)
	}
	conn, _, err := websocket.Dial(dctx, w.opts.URL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", w.opts.URL, err)
	}
	return conn, nil
}

func (w *Watcher) sendPull(ctx context.Context, conn *websocket.Conn) error {
	frame := message.Pull{
		MessageType: message.TypePull,
		ConfigName:  w.opts.Name,
		HashCode:    w.Hash(),
		Env:         w.opts.Env,
		Context:     w.pullContext(),
	}
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

// runLoopEnabled checks the auto-start option and the resolved kill
// switch entry.
func (w *Watcher) runLoopEnabled() bool {
	if !w.opts.AutoStart {
		return false
	}
	v, ok := w.Data()[runLoopKey]
	if !ok {
		return true
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return !strings.EqualFold(t, "false")
	case float64:
		return t != 0
	}
	return true
}
