package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rtconf/rtconf/internal/confhash"
)

func TestMongoDatabaseName(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"with database", "mongodb://localhost:27017/confdb", "confdb"},
		{"with options", "mongodb://user:pw@localhost:27017/confdb?authSource=admin", "confdb"},
		{"no database", "mongodb://localhost:27017", "rtconf"},
		{"bare slash", "mongodb://localhost:27017/", "rtconf"},
		{"unparseable", "://", "rtconf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mongoDatabaseName(tc.url))
		})
	}
}

func TestFromBSON(t *testing.T) {
	t.Run("containers rewritten", func(t *testing.T) {
		in := bson.M{
			"default": bson.M{
				"a": bson.M{"key": "a", "desc": "", "value": bson.A{"x", int32(1)}},
			},
			"parent": bson.A{"base"},
		}
		out, ok := fromBSON(in).(map[string]any)
		require.True(t, ok)

		def, ok := out["default"].(map[string]any)
		require.True(t, ok)
		entry, ok := def["a"].(map[string]any)
		require.True(t, ok)
		list, ok := entry["value"].([]any)
		require.True(t, ok)
		assert.Equal(t, "x", list[0])

		_, ok = out["parent"].([]any)
		assert.True(t, ok)
	})

	t.Run("ordered documents rewritten", func(t *testing.T) {
		in := bson.D{{Key: "b", Value: int64(2)}, {Key: "a", Value: bson.D{{Key: "c", Value: "v"}}}}
		out, ok := fromBSON(in).(map[string]any)
		require.True(t, ok)
		assert.Equal(t, int64(2), out["b"])
		inner, ok := out["a"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "v", inner["c"])
	})

	t.Run("hash agrees with the json decoding", func(t *testing.T) {
		// The same logical document read back from Mongo and from a JSON
		// file must produce the same hash code.
		fromMongo := fromBSON(bson.M{
			"default": bson.M{"a": bson.M{"key": "a", "desc": "", "value": int32(3)}},
			"parent":  bson.A{},
		})

		var fromJSON any
		require.NoError(t, json.Unmarshal([]byte(`{"default":{"a":{"key":"a","desc":"","value":3}},"parent":[]}`), &fromJSON))

		assert.Equal(t, confhash.Sum(fromJSON), confhash.Sum(fromMongo))
	})

	t.Run("scalars untouched", func(t *testing.T) {
		assert.Equal(t, "s", fromBSON("s"))
		assert.Equal(t, 1.5, fromBSON(1.5))
		assert.Nil(t, fromBSON(nil))
	})
}

func TestMongoNextTSP(t *testing.T) {
	b := &mongoBackend{}

	t.Run("strictly increasing", func(t *testing.T) {
		prev := int64(0)
		for i := 0; i < 1000; i++ {
			tsp := b.nextTSP()
			require.Greater(t, tsp, prev)
			prev = tsp
		}
	})

	t.Run("clock regression tolerated", func(t *testing.T) {
		// A last value far in the future forces the clock branch to lose.
		b := &mongoBackend{lastTSP: 1 << 62}
		assert.Equal(t, int64(1<<62+1), b.nextTSP())
		assert.Equal(t, int64(1<<62+2), b.nextTSP())
	})
}
