package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rtconf/rtconf/internal/document"
	"github.com/rtconf/rtconf/internal/message"
	"github.com/rtconf/rtconf/internal/rtcerr"
	"github.com/rtconf/rtconf/internal/util/timefmt"
)

// Mongo collection layout.
const (
	mongoDataColl  = "rt_config_data"
	mongoEventColl = "rt_config_publish"
	mongoAuthColl  = "rt_auth_data"
)

const defaultMongoDatabase = "rtconf"

// mongoDoc is one stored project document row.
type mongoDoc struct {
	ConfigName string `bson:"config_name"`
	Data       bson.M `bson:"data"`
	Created    string `bson:"created"`
	LUT        string `bson:"lut"`
}

// mongoEvent is one bus event row. There is no Mongo pub/sub, so publishes
// append to a capped-by-sweep event log that subscribers poll by tsp.
type mongoEvent struct {
	TSP     int64  `bson:"tsp"`
	Message string `bson:"message"`
	Created string `bson:"created"`
}

type mongoBackend struct {
	client       *mongo.Client
	docs         *mongo.Collection
	events       *mongo.Collection
	users        *mongo.Collection
	openNotify   bool
	loopInterval time.Duration

	mu      sync.Mutex
	lastTSP int64
	cancel  context.CancelFunc
	done    chan struct{}
}

func newMongoBackend(ctx context.Context, cfg Config) (*mongoBackend, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURL).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("store: connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: ping mongodb: %w", err)
	}
	db := client.Database(mongoDatabaseName(cfg.MongoURL))
	interval := cfg.LoopInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &mongoBackend{
		client:       client,
		docs:         db.Collection(mongoDataColl),
		events:       db.Collection(mongoEventColl),
		users:        db.Collection(mongoAuthColl),
		openNotify:   cfg.OpenNotify,
		loopInterval: interval,
	}, nil
}

// mongoDatabaseName extracts the database from the connection string path.
func mongoDatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultMongoDatabase
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return defaultMongoDatabase
	}
	return name
}

func (b *mongoBackend) Get(ctx context.Context, name string) (document.Document, error) {
	var row mongoDoc
	err := b.docs.FindOne(ctx, bson.M{"config_name": name}).Decode(&row)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, rtcerr.NotFound(name)
		}
		return nil, fmt.Errorf("store: read document %s: %w", name, err)
	}
	doc, _ := fromBSON(row.Data).(map[string]any)
	return document.Document(doc), nil
}

func (b *mongoBackend) Set(ctx context.Context, name string, doc document.Document) error {
	now := timefmt.Now()
	update := bson.M{
		"$set":         bson.M{"data": map[string]any(doc), "lut": now},
		"$setOnInsert": bson.M{"created": now},
	}
	_, err := b.docs.UpdateOne(ctx, bson.M{"config_name": name}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: write document %s: %w", name, err)
	}
	return nil
}

func (b *mongoBackend) Delete(ctx context.Context, name string) error {
	if _, err := b.docs.DeleteOne(ctx, bson.M{"config_name": name}); err != nil {
		return fmt.Errorf("store: delete document %s: %w", name, err)
	}
	return nil
}

func (b *mongoBackend) Exists(ctx context.Context, name string) (bool, error) {
	n, err := b.docs.CountDocuments(ctx, bson.M{"config_name": name}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("store: check document %s: %w", name, err)
	}
	return n > 0, nil
}

func (b *mongoBackend) List(ctx context.Context) ([]string, error) {
	raw, err := b.docs.Distinct(ctx, "config_name", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *mongoBackend) Iter(ctx context.Context, fn func(string, document.Document) error) error {
	cur, err := b.docs.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "config_name", Value: 1}}))
	if err != nil {
		return fmt.Errorf("store: list documents: %w", err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var row mongoDoc
		if err := cur.Decode(&row); err != nil {
			slog.Warn("skipping undecodable document", "error", err)
			continue
		}
		doc, _ := fromBSON(row.Data).(map[string]any)
		if err := fn(row.ConfigName, document.Document(doc)); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("store: iterate documents: %w", err)
	}
	return nil
}

func (b *mongoBackend) GetUser(ctx context.Context, username string) (UserRecord, error) {
	var u UserRecord
	err := b.users.FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("store: read user %s: %w", username, err)
	}
	return u, nil
}

func (b *mongoBackend) GetUserByToken(ctx context.Context, token string) (UserRecord, error) {
	var u UserRecord
	err := b.users.FindOne(ctx, bson.M{"token": token}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("store: read user by token: %w", err)
	}
	return u, nil
}

func (b *mongoBackend) SetUser(ctx context.Context, u UserRecord) error {
	_, err := b.users.ReplaceOne(ctx, bson.M{"username": u.Username}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: write user %s: %w", u.Username, err)
	}
	return nil
}

func (b *mongoBackend) Publish(ctx context.Context, payload []byte) error {
	if !b.openNotify {
		return nil
	}
	ev := mongoEvent{
		TSP:     b.nextTSP(),
		Message: string(payload),
		Created: timefmt.Now(),
	}
	if _, err := b.events.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("store: publish: %w", err)
	}
	return nil
}

// nextTSP returns a strictly increasing event timestamp in microseconds.
// Publishes within the same microsecond still order correctly.
func (b *mongoBackend) nextTSP() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UnixMicro()
	if now <= b.lastTSP {
		now = b.lastTSP + 1
	}
	b.lastTSP = now
	return now
}

func (b *mongoBackend) Subscribe(ctx context.Context, handler func([]byte)) error {
	if !b.openNotify {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return fmt.Errorf("store: already subscribed")
	}

	// Seed from the newest event so old log entries are never replayed.
	var last int64
	var newest mongoEvent
	err := b.events.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "tsp", Value: -1}})).Decode(&newest)
	switch {
	case err == nil:
		last = newest.TSP
	case errors.Is(err, mongo.ErrNoDocuments):
		last = 0
	default:
		return fmt.Errorf("store: seek newest event: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.subscribeLoop(loopCtx, last, handler, b.done)
	return nil
}

// subscribeLoop polls the event log for rows newer than the last seen tsp
// and sweeps expired rows once per day.
func (b *mongoBackend) subscribeLoop(ctx context.Context, last int64, handler func([]byte), done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.loopInterval)
	defer ticker.Stop()
	sweepDay := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur, err := b.events.Find(ctx, bson.M{"tsp": bson.M{"$gt": last}},
			options.Find().SetSort(bson.D{{Key: "tsp", Value: 1}}))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("polling bus events failed", "error", err)
			continue
		}
		var evs []mongoEvent
		if err := cur.All(ctx, &evs); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("reading bus events failed", "error", err)
			continue
		}
		for _, ev := range evs {
			last = ev.TSP
			if ev.Message == message.Over {
				return
			}
			handler([]byte(ev.Message))
		}

		if day := time.Now().Format(timefmt.DateOnly); day != sweepDay {
			sweepDay = day
			if _, err := b.events.DeleteMany(ctx, bson.M{"created": bson.M{"$lt": day + " 00:00:00"}}); err != nil && ctx.Err() == nil {
				slog.Warn("sweeping expired bus events failed", "error", err)
			}
		}
	}
}

func (b *mongoBackend) Close(ctx context.Context) error {
	if b.openNotify {
		if err := b.Publish(ctx, []byte(message.Over)); err != nil {
			slog.Warn("publishing shutdown sentinel failed", "error", err)
		}
	}
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.done = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return b.client.Disconnect(ctx)
}

// fromBSON rewrites driver container types into the plain JSON shapes the
// rest of the system works with. Hashing and resolution type-switch on
// map[string]any and []any, which bson.M and bson.A do not satisfy.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	default:
		return v
	}
}
