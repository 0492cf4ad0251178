package store

import (
	"context"

	"github.com/rtconf/rtconf/internal/document"
	"github.com/rtconf/rtconf/internal/metrics"
)

// instrumented wraps a backend with per-operation counters. Subscribe and
// Close are lifecycle calls and pass through uncounted.
type instrumented struct {
	Backend
	kind string
}

func instrument(b Backend, kind string) Backend {
	return &instrumented{Backend: b, kind: kind}
}

func (i *instrumented) count(op string) {
	metrics.StoreOpsTotal.WithLabelValues(i.kind, op).Inc()
}

func (i *instrumented) Get(ctx context.Context, name string) (document.Document, error) {
	i.count("get")
	return i.Backend.Get(ctx, name)
}

func (i *instrumented) Set(ctx context.Context, name string, doc document.Document) error {
	i.count("set")
	return i.Backend.Set(ctx, name, doc)
}

func (i *instrumented) Delete(ctx context.Context, name string) error {
	i.count("delete")
	return i.Backend.Delete(ctx, name)
}

func (i *instrumented) Exists(ctx context.Context, name string) (bool, error) {
	i.count("exists")
	return i.Backend.Exists(ctx, name)
}

func (i *instrumented) List(ctx context.Context) ([]string, error) {
	i.count("list")
	return i.Backend.List(ctx)
}

func (i *instrumented) Iter(ctx context.Context, fn func(name string, doc document.Document) error) error {
	i.count("iter")
	return i.Backend.Iter(ctx, fn)
}

func (i *instrumented) GetUser(ctx context.Context, username string) (UserRecord, error) {
	i.count("get_user")
	return i.Backend.GetUser(ctx, username)
}

func (i *instrumented) GetUserByToken(ctx context.Context, token string) (UserRecord, error) {
	i.count("get_user_by_token")
	return i.Backend.GetUserByToken(ctx, token)
}

func (i *instrumented) SetUser(ctx context.Context, u UserRecord) error {
	i.count("set_user")
	return i.Backend.SetUser(ctx, u)
}

func (i *instrumented) Publish(ctx context.Context, payload []byte) error {
	i.count("publish")
	return i.Backend.Publish(ctx, payload)
}
