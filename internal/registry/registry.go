// Package registry tracks subscriber sessions: which connection watches
// which project, the summaries mirrored from peer processes, and the
// admission limit shared between both.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rtconf/rtconf/internal/message"
	"github.com/rtconf/rtconf/internal/metrics"
	"github.com/rtconf/rtconf/internal/rtcerr"
	"github.com/rtconf/rtconf/internal/util/timefmt"
)

// Session is one subscriber connection. The identity fields are set once
// when the connection sends its first pull; per-pull state lives in the
// registry tables.
type Session struct {
	ID       string
	ClientIP string
	Headers  map[string]string
	SendFn   func(message.Push) error // Optional: overrides the transport write for testing.

	mu sync.Mutex
}

// Send writes a push frame to the session. The mutex serializes writes so
// concurrent fan-out and pull replies cannot interleave frames.
func (s *Session) Send(p message.Push) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendFn == nil {
		return fmt.Errorf("session %s has no transport", s.ID)
	}
	return s.SendFn(p)
}

// PullState is the per-pull snapshot the registry keeps for a session.
type PullState struct {
	Project string
	Env     string
	Context map[string]any
	Hash    string // hash code the client reported, not the server's
}

// Target is a fan-out view of one attached session.
type Target struct {
	ID      string
	Project string
	Env     string
	Context map[string]any
	Hash    string
	Session *Session
}

type entry struct {
	sess     *Session
	project  string
	env      string
	context  map[string]any
	hash     string
	lastPull string
	summary  map[string]any
}

// Registry tracks attached sessions and peer summaries. Thread-safe.
type Registry struct {
	max int

	mu       sync.RWMutex
	pool     map[string]map[string]*entry // project -> session id -> entry
	sessions map[string]*entry            // session id -> entry
	mirror   map[string]map[string]any    // peer session id -> summary
	events   chan Event
	closed   bool
}

// New creates a Registry admitting at most max sessions across this process
// and its mirrored peers.
func New(max int) *Registry {
	return &Registry{
		max:      max,
		pool:     make(map[string]map[string]*entry),
		sessions: make(map[string]*entry),
		mirror:   make(map[string]map[string]any),
		events:   make(chan Event, 64),
	}
}

// Attach admits or refreshes a session. New sessions are rejected once the
// combined local and mirrored count has reached the limit; sessions already
// attached always pass, so a re-pull can never evict its own connection.
// The summary is what peers will mirror for this session.
func (r *Registry) Attach(sess *Session, st PullState, summary map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sess.ID]
	isNew := !ok
	if isNew {
		if len(r.sessions)+len(r.mirror) >= r.max {
			metrics.SessionsRejectedTotal.Inc()
			return false, rtcerr.Connectf("Number of connection is already the maximum %d.", r.max)
		}
		e = &entry{sess: sess}
		r.sessions[sess.ID] = e
		metrics.ActiveSessions.Inc()
	}

	if e.project != st.Project {
		if old := r.pool[e.project]; old != nil {
			delete(old, sess.ID)
			if len(old) == 0 {
				delete(r.pool, e.project)
			}
		}
		if r.pool[st.Project] == nil {
			r.pool[st.Project] = make(map[string]*entry)
		}
		r.pool[st.Project][sess.ID] = e
	}

	e.project = st.Project
	e.env = st.Env
	e.context = st.Context
	e.hash = st.Hash
	e.lastPull = timefmt.Now()
	e.summary = summary

	typ := EventTouch
	if isNew {
		typ = EventAttach
	}
	r.emit(Event{Type: typ, SessionID: sess.ID, Project: st.Project, Summary: summary})
	return isNew, nil
}

// Detach removes a session. Reports whether it was attached.
func (r *Registry) Detach(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	delete(r.sessions, sessionID)
	metrics.ActiveSessions.Dec()
	if p := r.pool[e.project]; p != nil {
		delete(p, sessionID)
		if len(p) == 0 {
			delete(r.pool, e.project)
		}
	}
	r.emit(Event{Type: EventDetach, SessionID: sessionID, Project: e.project})
	return true
}

// Targets returns the attached sessions watching project, sorted by id.
// With an empty project every attached session is returned.
func (r *Registry) Targets(project string) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var src map[string]*entry
	if project == "" {
		src = r.sessions
	} else {
		src = r.pool[project]
	}
	out := make([]Target, 0, len(src))
	for id, e := range src {
		out = append(out, Target{
			ID:      id,
			Project: e.project,
			Env:     e.env,
			Context: e.context,
			Hash:    e.hash,
			Session: e.sess,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns attached plus mirrored sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions) + len(r.mirror)
}

// List returns session summaries, local and mirrored, optionally filtered
// by project. Local entries win over a mirrored duplicate of the same id.
func (r *Registry) List(project string) []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := make(map[string]map[string]any, len(r.sessions)+len(r.mirror))
	for id, summary := range r.mirror {
		if project != "" && summary["config_name"] != project {
			continue
		}
		byID[id] = summary
	}
	for id, e := range r.sessions {
		if project != "" && e.project != project {
			continue
		}
		if e.summary != nil {
			byID[id] = e.summary
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

// MirrorPut records a peer session summary. Ids attached locally are
// ignored so a process's own bus publishes never double-count it.
func (r *Registry) MirrorPut(sessionID string, summary map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, local := r.sessions[sessionID]; local {
		return
	}
	if _, ok := r.mirror[sessionID]; !ok {
		metrics.MirroredSessions.Inc()
	}
	r.mirror[sessionID] = summary
}

// MirrorDelete drops a peer session summary.
func (r *Registry) MirrorDelete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mirror[sessionID]; ok {
		delete(r.mirror, sessionID)
		metrics.MirroredSessions.Dec()
	}
}

// Close stops the event stream. Attach and Detach keep working; their
// events are dropped.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
}
