// Package resolve computes the effective view of a project for one
// environment: parent overlays, environment variables, and placeholder
// interpolation against the client's context.
package resolve

import (
	"context"
	"maps"
	"sort"

	"github.com/rtconf/rtconf/internal/document"
	"github.com/rtconf/rtconf/internal/rtcerr"
)

// Store is the slice of the backend the resolver reads from.
type Store interface {
	// Get returns the document for name, or a not-found error.
	Get(ctx context.Context, name string) (document.Document, error)
	// Iter visits every stored document.
	Iter(ctx context.Context, fn func(name string, doc document.Document) error) error
}

// Resolver resolves project views against a store. It is stateless between
// calls; documents are memoised only within a single resolution.
type Resolver struct {
	store Store
}

func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// state memoises loads and tracks the parent chain for one resolution.
type state struct {
	docs     map[string]document.Document
	visiting map[string]bool
}

func newState() *state {
	return &state{
		docs:     map[string]document.Document{},
		visiting: map[string]bool{},
	}
}

func (r *Resolver) load(ctx context.Context, st *state, name string) (document.Document, error) {
	if doc, ok := st.docs[name]; ok {
		return doc, nil
	}
	doc, err := r.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	doc = document.Normalize(doc)
	st.docs[name] = doc
	return doc, nil
}

// Resolve returns the flat key → value view of name at env, interpolated
// with clientCtx. The env must exist on the target project itself; parents
// contribute whatever sections they have.
func (r *Resolver) Resolve(ctx context.Context, name, env string, clientCtx map[string]any) (map[string]any, error) {
	st := newState()
	doc, err := r.load(ctx, st, name)
	if err != nil {
		return nil, err
	}
	if !doc.HasEnv(env) {
		return nil, rtcerr.EnvInvalid(name, env)
	}
	merged, err := r.overlay(ctx, st, name, env)
	if err != nil {
		return nil, err
	}
	envVars, err := r.environ(ctx, st, name)
	if err != nil {
		return nil, err
	}
	return interpolate(merged, buildVars(envVars, clientCtx)).(map[string]any), nil
}

// overlay merges the chain bottom-up: each parent's overlay first (later
// parents win), then the project's own default section, then its env
// section.
func (r *Resolver) overlay(ctx context.Context, st *state, name, env string) (map[string]any, error) {
	if st.visiting[name] {
		return nil, rtcerr.Cycle(name)
	}
	st.visiting[name] = true
	defer delete(st.visiting, name)

	doc, err := r.load(ctx, st, name)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, parent := range doc.Parents() {
		pm, err := r.overlay(ctx, st, parent, env)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, pm)
	}
	maps.Copy(out, doc.Flatten(document.KeyDefault))
	if env != document.KeyDefault {
		maps.Copy(out, doc.Flatten(env))
	}
	return out, nil
}

// environ collects the environ sections along the same chain and in the
// same precedence order as overlay.
func (r *Resolver) environ(ctx context.Context, st *state, name string) (map[string]any, error) {
	if st.visiting[name] {
		return nil, rtcerr.Cycle(name)
	}
	st.visiting[name] = true
	defer delete(st.visiting, name)

	doc, err := r.load(ctx, st, name)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, parent := range doc.Parents() {
		pm, err := r.environ(ctx, st, parent)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, pm)
	}
	maps.Copy(out, doc.Flatten(document.KeyEnviron))
	return out, nil
}

// Dependents returns every project that inherits from name, directly or
// through intermediate parents, in breadth-first order with children
// sorted. The project itself is not included.
func (r *Resolver) Dependents(ctx context.Context, name string) ([]string, error) {
	children := map[string][]string{}
	err := r.store.Iter(ctx, func(child string, doc document.Document) error {
		for _, p := range document.Normalize(doc).Parents() {
			children[p] = append(children[p], child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		sort.Strings(c)
	}

	var out []string
	seen := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out, nil
}
