// Package pusher drives configuration delivery: it answers pulls, fans
// changed views out to affected sessions, and bridges the connection
// registry onto the cross-process notification bus.
package pusher

import (
	"context"
	"log/slog"
	"os"

	"github.com/rtconf/rtconf/internal/confhash"
	"github.com/rtconf/rtconf/internal/message"
	"github.com/rtconf/rtconf/internal/metrics"
	"github.com/rtconf/rtconf/internal/registry"
	"github.com/rtconf/rtconf/internal/resolve"
	"github.com/rtconf/rtconf/internal/util/timefmt"
)

// Bus is the slice of the backend the engine publishes and subscribes on.
type Bus interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, handler func(payload []byte)) error
}

// Engine coordinates resolution, the session registry, and the bus.
type Engine struct {
	bus      Bus
	resolver *resolve.Resolver
	reg      *registry.Registry
	pid      int
}

func New(bus Bus, resolver *resolve.Resolver, reg *registry.Registry) *Engine {
	return &Engine{
		bus:      bus,
		resolver: resolver,
		reg:      reg,
		pid:      os.Getpid(),
	}
}

// Start subscribes the engine to the bus and begins forwarding registry
// events. It returns once wired; delivery runs in the background until ctx
// is cancelled or the registry closes.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.bus.Subscribe(ctx, func(payload []byte) {
		e.HandleBusFrame(ctx, payload)
	}); err != nil {
		return err
	}
	go e.Run(ctx)
	return nil
}

// HandlePull resolves the client's view and registers the session. The
// returned frame is a notify-mode push: changed with the full view when the
// client's hash is stale, nochange with an empty map otherwise.
func (e *Engine) HandlePull(ctx context.Context, sess *registry.Session, frame message.Pull) (message.Push, error) {
	metrics.PullsTotal.Inc()

	resolved, err := e.resolver.Resolve(ctx, frame.ConfigName, frame.Env, frame.Context)
	if err != nil {
		return message.Push{}, err
	}
	serverHash := confhash.Sum(resolved)
	summary := e.buildSummary(sess, frame, serverHash)

	if _, err := e.reg.Attach(sess, registry.PullState{
		Project: frame.ConfigName,
		Env:     frame.Env,
		Context: frame.Context,
		Hash:    frame.HashCode,
	}, summary); err != nil {
		return message.Push{}, err
	}

	push := message.Push{
		MessageType:  message.TypeNoChange,
		ConfigName:   frame.ConfigName,
		HashCode:     serverHash,
		Data:         map[string]any{},
		Env:          frame.Env,
		ResponseMode: message.ModeNotify,
	}
	if serverHash != frame.HashCode {
		push.MessageType = message.TypeChanged
		push.Data = resolved
	}
	return push, nil
}

// PublishConfigChanged announces a document write on the bus. Every
// process, this one included, reacts in HandleBusFrame.
func (e *Engine) PublishConfigChanged(ctx context.Context, name string) {
	e.publish(ctx, message.NewBusFrame(message.FuncConfigChanged, name))
}

// HandleBusFrame dispatches one bus payload. Faulty frames are logged and
// dropped; a bad peer must not take the subscriber loop down.
func (e *Engine) HandleBusFrame(ctx context.Context, payload []byte) {
	frame, err := message.DecodeBusFrame(payload)
	if err != nil {
		slog.Warn("dropping malformed bus frame", "error", err)
		return
	}
	metrics.BusEventsTotal.WithLabelValues(frame.Func).Inc()

	switch frame.Func {
	case message.FuncConfigChanged:
		name, err := frame.StringArg(0)
		if err != nil {
			slog.Warn("dropping bus frame", "func", frame.Func, "error", err)
			return
		}
		e.configChanged(ctx, name)

	case message.FuncAddConnection:
		id, err := frame.StringArg(0)
		if err != nil {
			slog.Warn("dropping bus frame", "func", frame.Func, "error", err)
			return
		}
		summary, err := frame.MapArg(1)
		if err != nil {
			slog.Warn("dropping bus frame", "func", frame.Func, "error", err)
			return
		}
		e.reg.MirrorPut(id, summary)

	case message.FuncRemoveConnection:
		id, err := frame.StringArg(0)
		if err != nil {
			slog.Warn("dropping bus frame", "func", frame.Func, "error", err)
			return
		}
		e.reg.MirrorDelete(id)

	default:
		slog.Warn("ignoring unknown bus frame", "func", frame.Func)
	}
}

// configChanged pushes fresh views to the sessions watching the changed
// project or any project inheriting from it. Each session gets its own
// project resolved, not the changed one, so a dependent's overrides stay
// applied.
func (e *Engine) configChanged(ctx context.Context, name string) {
	projects := []string{name}
	dependents, err := e.resolver.Dependents(ctx, name)
	if err != nil {
		slog.Error("scanning dependents failed", "config_name", name, "error", err)
	} else {
		projects = append(projects, dependents...)
	}

	for _, project := range projects {
		for _, target := range e.reg.Targets(project) {
			resolved, err := e.resolver.Resolve(ctx, target.Project, target.Env, target.Context)
			if err != nil {
				slog.Warn("resolving for push failed",
					"session_id", target.ID, "config_name", target.Project, "error", err)
				continue
			}
			serverHash := confhash.Sum(resolved)
			if serverHash == target.Hash {
				continue
			}
			push := message.Push{
				MessageType:  message.TypeChanged,
				ConfigName:   target.Project,
				HashCode:     serverHash,
				Data:         resolved,
				Env:          target.Env,
				ResponseMode: message.ModeReply,
			}
			if err := target.Session.Send(push); err != nil {
				slog.Warn("pushing to session failed", "session_id", target.ID, "error", err)
				continue
			}
			metrics.PushFramesTotal.WithLabelValues(message.TypeChanged).Inc()
			slog.Info("pushed changed view",
				"session_id", target.ID, "config_name", target.Project, "env", target.Env)
		}
	}
}

// Run forwards registry lifecycle events onto the bus so peers can mirror
// this process's sessions. Returns when ctx ends or the registry closes.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.reg.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case registry.EventAttach, registry.EventTouch:
				e.publish(ctx, message.NewBusFrame(message.FuncAddConnection, ev.SessionID, ev.Summary))
			case registry.EventDetach:
				e.publish(ctx, message.NewBusFrame(message.FuncRemoveConnection, ev.SessionID))
			}
		}
	}
}

func (e *Engine) publish(ctx context.Context, frame message.BusFrame) {
	payload, err := frame.Encode()
	if err != nil {
		slog.Error("encoding bus frame failed", "func", frame.Func, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, payload); err != nil {
		metrics.BusPublishErrorsTotal.Inc()
		slog.Error("publishing bus frame failed", "func", frame.Func, "error", err)
	}
}

// buildSummary snapshots what peer processes mirror for a session.
func (e *Engine) buildSummary(sess *registry.Session, frame message.Pull, serverHash string) map[string]any {
	if serverHash == "" {
		serverHash = "--"
	}
	headers := map[string]any{}
	for k, v := range sess.Headers {
		headers[k] = v
	}
	return map[string]any{
		"pid":          e.pid,
		"message_type": frame.MessageType,
		"config_name":  frame.ConfigName,
		"hash_code":    frame.HashCode,
		"data":         map[string]any{},
		"context": map[string]any{
			"client":  frame.Context,
			"request": map[string]any{"headers": headers},
		},
		"env":              frame.Env,
		"client_ip":        sess.ClientIP,
		"lut":              timefmt.Now(),
		"server_hash_code": serverHash,
	}
}
