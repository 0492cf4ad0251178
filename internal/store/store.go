// Package store persists project documents and user records and carries the
// cross-process notification bus. Three backends share one contract: local
// JSON files, a Redis hash with pub/sub, and MongoDB collections with a
// polled event log.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rtconf/rtconf/internal/document"
)

// Store type names accepted in configuration.
const (
	TypeJSONFile = "json_file"
	TypeRedis    = "redis"
	TypeMongo    = "mongodb"
)

// ErrUserNotFound reports a missing user record. Project lookups use the
// domain error taxonomy instead.
var ErrUserNotFound = errors.New("store: user not found")

// UserRecord is one stored account. Password holds a bcrypt hash, never
// plaintext.
type UserRecord struct {
	ID       string `json:"id" bson:"id"`
	Username string `json:"username" bson:"username"`
	Password string `json:"password" bson:"password"`
	Token    string `json:"token" bson:"token"`
	Created  string `json:"created" bson:"created"`
	LUT      string `json:"lut" bson:"lut"`
}

// Backend is a project document store with user records and an attached
// notification bus. Implementations are safe for concurrent use.
type Backend interface {
	// Get returns the document for name, or a not-found domain error.
	Get(ctx context.Context, name string) (document.Document, error)
	// Set writes the document for name, replacing any stored one.
	Set(ctx context.Context, name string, doc document.Document) error
	// Delete removes the document for name. Missing names are a no-op.
	Delete(ctx context.Context, name string) error
	// Exists reports whether a document is stored under name.
	Exists(ctx context.Context, name string) (bool, error)
	// List returns all stored project names in sorted order.
	List(ctx context.Context) ([]string, error)
	// Iter visits every stored document in sorted name order. A non-nil
	// return from fn stops the walk and is returned.
	Iter(ctx context.Context, fn func(name string, doc document.Document) error) error

	// GetUser returns the record for username, or ErrUserNotFound.
	GetUser(ctx context.Context, username string) (UserRecord, error)
	// GetUserByToken returns the record holding token, or ErrUserNotFound.
	GetUserByToken(ctx context.Context, token string) (UserRecord, error)
	// SetUser writes a user record keyed by username.
	SetUser(ctx context.Context, u UserRecord) error

	// Publish sends a bus payload to every subscribed process, including
	// this one. A no-op when notification is disabled.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe registers the bus handler and starts delivery. At most one
	// handler per backend.
	Subscribe(ctx context.Context, handler func(payload []byte)) error
	// Close announces shutdown on the bus, stops delivery, and releases
	// the backend's resources.
	Close(ctx context.Context) error
}

// Config selects and parameterises a backend.
type Config struct {
	// Type is one of TypeJSONFile, TypeRedis, TypeMongo.
	Type string
	// Dir is the document directory for the json_file backend.
	Dir string
	// RedisURL is the redis:// connection string for the redis backend.
	RedisURL string
	// MongoURL is the mongodb:// connection string for the mongodb
	// backend. The database name comes from the URL path.
	MongoURL string
	// NotifyChannel names the bus channel (redis) or is kept for parity on
	// the other backends.
	NotifyChannel string
	// OpenNotify enables the notification bus. When false, Publish and
	// Subscribe are no-ops and processes never see each other's changes.
	OpenNotify bool
	// LoopInterval is the mongodb event poll period.
	LoopInterval time.Duration
}

// Open connects the backend selected by cfg.Type.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	kind := cfg.Type
	switch cfg.Type {
	case TypeJSONFile, "":
		kind = TypeJSONFile
		b, err = newFileBackend(cfg)
	case TypeRedis:
		b, err = newRedisBackend(ctx, cfg)
	case TypeMongo:
		b, err = newMongoBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("store: unknown store type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return instrument(b, kind), nil
}
