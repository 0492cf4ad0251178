// Package client provides the exported subscriber API for rtconf: it
// keeps a local copy of a project's resolved configuration fresh over a
// websocket and exposes it through snapshot accessors and change
// callbacks.
package client

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	iclient "github.com/rtconf/rtconf/internal/client"
)

// Environment variables consulted for unset options. A set variable
// overrides the corresponding field, so deployments can repoint a
// subscriber without a rebuild.
const (
	EnvName          = "RTC_NAME"
	EnvURL           = "RTC_WS_URL"
	EnvEnv           = "RTC_ENV"
	EnvToken         = "RTC_TOKEN"
	EnvPingInterval  = "RTC_PING_INTERVAL"
	EnvRetryInterval = "RTC_RETRY_INTERVAL"
)

// Interval defaults.
const (
	DefaultPingInterval  = iclient.DefaultPingInterval
	DefaultRetryInterval = iclient.DefaultRetryInterval
	DefaultRecvInterval  = iclient.DefaultRecvInterval
)

// ServerError is an error frame received from the server, e.g. an
// unknown project or a rejected connection.
type ServerError = iclient.ServerError

// Options holds configuration for a subscriber.
type Options struct {
	Name  string // project to watch (RTC_NAME)
	URL   string // server subscribe endpoint, e.g. "ws://localhost:8089/connect" (RTC_WS_URL)
	Env   string // environment overlay, empty for default (RTC_ENV)
	Token string // client auth token (RTC_TOKEN)

	PingInterval  time.Duration // keepalive re-pull interval, default 5m (RTC_PING_INTERVAL)
	RetryInterval time.Duration // reconnect backoff seed, default 5s (RTC_RETRY_INTERVAL)
	RecvInterval  time.Duration // advisory receive interval reported to the server, default 1s

	Daemon  bool // reported in the session summary
	NoWatch bool // stop after the initial sync instead of watching

	Context map[string]any    // extra entries for the session context
	Environ map[string]string // overlays for the reported process environment

	Logger *slog.Logger // defaults to slog.Default()
}

// Client is a subscriber. Construct with New or Open.
type Client struct {
	w *iclient.Watcher
}

// New builds a subscriber from opts merged with the RTC_* environment
// variables.
func New(opts Options) *Client {
	return &Client{w: iclient.New(resolve(opts))}
}

// Open builds a subscriber and starts it. Shorthand for New followed by
// Start.
func Open(ctx context.Context, opts Options) (*Client, error) {
	c := New(opts)
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Start performs one synchronous sync, failing fast when the server is
// unreachable or rejects the project, then keeps watching in the
// background until ctx is cancelled or Close is called.
func (c *Client) Start(ctx context.Context) error {
	return c.w.Start(ctx)
}

// Data returns a snapshot of the resolved configuration.
func (c *Client) Data() map[string]any {
	return c.w.Data()
}

// Hash returns the content hash of the current view, empty before the
// first sync.
func (c *Client) Hash() string {
	return c.w.Hash()
}

// String returns the value under key rendered as a string, or def when
// the key is absent.
func (c *Client) String(key, def string) string {
	return c.w.String(key, def)
}

// Watch registers fn to run after every applied change. Callbacks
// receive a shared snapshot and must treat it as read-only.
func (c *Client) Watch(fn func(map[string]any)) {
	c.w.Watch(fn)
}

// Close stops the watch loop and waits for it to exit.
func (c *Client) Close() {
	c.w.Close()
}

func resolve(opts Options) iclient.Options {
	return iclient.Options{
		Name:          envString(EnvName, opts.Name),
		URL:           envString(EnvURL, opts.URL),
		Env:           envString(EnvEnv, opts.Env),
		Token:         envString(EnvToken, opts.Token),
		PingInterval:  envDuration(EnvPingInterval, opts.PingInterval),
		RetryInterval: envDuration(EnvRetryInterval, opts.RetryInterval),
		RecvInterval:  opts.RecvInterval,
		Daemon:        opts.Daemon,
		AutoStart:     !opts.NoWatch,
		Context:       opts.Context,
		Environ:       opts.Environ,
		Logger:        opts.Logger,
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration accepts Go durations ("30s") or bare seconds ("30").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
