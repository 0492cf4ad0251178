package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtconf/rtconf/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8089", c.Addr)
	assert.Equal(t, store.TypeJSONFile, c.StoreType)
	assert.Equal(t, 1024, c.MaxConnection)
	assert.Equal(t, "rtc_config", c.NotifyChannel)
	assert.True(t, c.OpenNotify)
	assert.False(t, c.OpenClientAuthToken)
	assert.Equal(t, time.Second, c.LoopInterval)
	assert.NotEmpty(t, c.StoreDirectory)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RTC_ADDR", "127.0.0.1:9000")
	t.Setenv("RTC_MAX_CONNECTION", "5")
	t.Setenv("RTC_LOOP_INTERVAL", "250ms")
	t.Setenv("RTC_OPEN_NOTIFY", "false")
	t.Setenv("RTC_STORE_TYPE", store.TypeRedis)
	t.Setenv("RTC_REDIS_URL", "redis://example:6379/1")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", c.Addr)
	assert.Equal(t, 5, c.MaxConnection)
	assert.Equal(t, 250*time.Millisecond, c.LoopInterval)
	assert.False(t, c.OpenNotify)
	assert.Equal(t, store.TypeRedis, c.StoreType)
	assert.Equal(t, "redis://example:6379/1", c.RedisURL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtconf.yaml")
	body := "addr: \"127.0.0.1:7000\"\nstore_type: mongodb\nloop_interval: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", c.Addr)
	assert.Equal(t, store.TypeMongo, c.StoreType)
	assert.Equal(t, 2*time.Second, c.LoopInterval)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1024, c.MaxConnection)

	// The environment layers over the file.
	t.Setenv("RTC_ADDR", "127.0.0.1:7001")
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", c.Addr)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("creates store directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "data")
		c := &Config{StoreType: store.TypeJSONFile, StoreDirectory: dir, Addr: ":8089", MaxConnection: 1}
		require.NoError(t, c.Validate())
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("missing addr", func(t *testing.T) {
		c := &Config{StoreType: store.TypeJSONFile, StoreDirectory: t.TempDir(), MaxConnection: 1}
		require.Error(t, c.Validate())
	})

	t.Run("bad max connection", func(t *testing.T) {
		c := &Config{StoreType: store.TypeJSONFile, StoreDirectory: t.TempDir(), Addr: ":8089"}
		require.Error(t, c.Validate())
	})

	t.Run("redis requires url", func(t *testing.T) {
		c := &Config{StoreType: store.TypeRedis, Addr: ":8089", MaxConnection: 1}
		require.Error(t, c.Validate())
	})

	t.Run("mongodb requires url", func(t *testing.T) {
		c := &Config{StoreType: store.TypeMongo, Addr: ":8089", MaxConnection: 1}
		require.Error(t, c.Validate())
	})

	t.Run("unknown store type", func(t *testing.T) {
		c := &Config{StoreType: "etcd", Addr: ":8089", MaxConnection: 1}
		require.Error(t, c.Validate())
	})
}

func TestStoreConfig(t *testing.T) {
	c := &Config{
		StoreType:     store.TypeRedis,
		RedisURL:      "redis://example:6379/0",
		NotifyChannel: "chan",
		OpenNotify:    true,
		LoopInterval:  time.Second,
	}
	sc := c.StoreConfig()
	assert.Equal(t, store.TypeRedis, sc.Type)
	assert.Equal(t, "redis://example:6379/0", sc.RedisURL)
	assert.Equal(t, "chan", sc.NotifyChannel)
	assert.True(t, sc.OpenNotify)
	assert.Equal(t, time.Second, sc.LoopInterval)
}
