package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rtconf/rtconf/internal/document"
	"github.com/rtconf/rtconf/internal/rtcerr"
)

// userFile holds all user records in the document directory.
const userFile = "user.data"

// fileBackend keeps one <name>.json per project under a directory. The bus
// degenerates to in-process dispatch: there is no cross-process medium, so
// Publish hands the payload straight to the local handler.
type fileBackend struct {
	dir        string
	openNotify bool

	mu      sync.RWMutex
	handler func([]byte)
	closed  bool
}

func newFileBackend(cfg Config) (*fileBackend, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("store: json_file backend needs a directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create document directory: %w", err)
	}
	return &fileBackend{dir: cfg.Dir, openNotify: cfg.OpenNotify}, nil
}

func (b *fileBackend) docPath(name string) string {
	return filepath.Join(b.dir, name+".json")
}

func (b *fileBackend) Get(_ context.Context, name string) (document.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	raw, err := os.ReadFile(b.docPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rtcerr.NotFound(name)
		}
		return nil, fmt.Errorf("store: read document %s: %w", name, err)
	}
	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("store: decode document %s: %w", name, err)
	}
	return doc, nil
}

func (b *fileBackend) Set(_ context.Context, name string, doc document.Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode document %s: %w", name, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.WriteFile(b.docPath(name), raw, 0o644); err != nil {
		return fmt.Errorf("store: write document %s: %w", name, err)
	}
	return nil
}

func (b *fileBackend) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(b.docPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete document %s: %w", name, err)
	}
	return nil
}

func (b *fileBackend) Exists(_ context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, err := os.Stat(b.docPath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("store: stat document %s: %w", name, err)
}

func (b *fileBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (b *fileBackend) Iter(ctx context.Context, fn func(string, document.Document) error) error {
	names, err := b.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		doc, err := b.Get(ctx, name)
		if err != nil {
			slog.Warn("skipping unreadable document", "name", name, "error", err)
			continue
		}
		if err := fn(name, doc); err != nil {
			return err
		}
	}
	return nil
}

func (b *fileBackend) loadUsers() (map[string]UserRecord, error) {
	raw, err := os.ReadFile(filepath.Join(b.dir, userFile))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]UserRecord{}, nil
		}
		return nil, fmt.Errorf("store: read users: %w", err)
	}
	users := map[string]UserRecord{}
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("store: decode users: %w", err)
	}
	return users, nil
}

func (b *fileBackend) saveUsers(users map[string]UserRecord) error {
	raw, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode users: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.dir, userFile), raw, 0o600); err != nil {
		return fmt.Errorf("store: write users: %w", err)
	}
	return nil
}

func (b *fileBackend) GetUser(_ context.Context, username string) (UserRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	users, err := b.loadUsers()
	if err != nil {
		return UserRecord{}, err
	}
	u, ok := users[username]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (b *fileBackend) GetUserByToken(_ context.Context, token string) (UserRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	users, err := b.loadUsers()
	if err != nil {
		return UserRecord{}, err
	}
	for _, u := range users {
		if u.Token != "" && u.Token == token {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (b *fileBackend) SetUser(_ context.Context, u UserRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	users, err := b.loadUsers()
	if err != nil {
		return err
	}
	users[u.Username] = u
	return b.saveUsers(users)
}

func (b *fileBackend) Publish(_ context.Context, payload []byte) error {
	if !b.openNotify {
		return nil
	}
	b.mu.RLock()
	handler := b.handler
	closed := b.closed
	b.mu.RUnlock()
	if closed || handler == nil {
		return nil
	}
	handler(payload)
	return nil
}

func (b *fileBackend) Subscribe(_ context.Context, handler func([]byte)) error {
	if !b.openNotify {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	return nil
}

func (b *fileBackend) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handler = nil
	return nil
}
