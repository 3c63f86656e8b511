package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.ListenAddr, cfg.ListenAddr)
	assert.Equal(t, def.SendQueueSize, cfg.SendQueueSize)
	assert.Equal(t, 16, cfg.FabricShards)
}

func TestLoadJSONOverridesProvidedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":":9000","log_level":"debug"}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultConfig().TokenTTL, cfg.TokenTTL)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "listen_addr: \":9100\"\nallowed_origins:\n  - https://chat.example.com\nfabric_shards: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 4, cfg.FabricShards)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":":9000"}`), 0644))

	t.Setenv("HUDDLE_LISTEN_ADDR", ":9200")
	t.Setenv("HUDDLE_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("HUDDLE_SEND_QUEUE_SIZE", "32")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.ListenAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 32, cfg.SendQueueSize)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad json", `{"listen_addr":`},
		{"zero queue", `{"send_queue_size":0}`},
		{"negative ttl", `{"token_ttl_seconds":-1}`},
		{"empty addr", `{"listen_addr":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestGetConfigPathHonorsEnv(t *testing.T) {
	t.Setenv("HUDDLE_CONFIG", "/etc/huddle/config.yaml")
	assert.Equal(t, "/etc/huddle/config.yaml", GetConfigPath())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"info"}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { changes <- cfg })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0644))

	select {
	case cfg := <-changes:
		assert.Equal(t, "debug", cfg.LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("config change not observed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
