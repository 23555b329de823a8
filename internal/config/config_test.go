package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 500, cfg.FanOut.BatchSize)
	assert.Equal(t, 7*24*time.Hour, cfg.Server.TokenTTL)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  token_ttl: 12h
  cors_origins: ["https://quill.example"]
store:
  driver: sqlite
  sqlite_path: /tmp/a.db
fanout:
  batch_size: 100
archive:
  kind: s3
  bucket: quill-reports
`), 0o600))
	t.Setenv("AUDITIONS_SQLITE_PATH", "/var/lib/auditions.db")
	t.Setenv("AUDITIONS_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 12*time.Hour, cfg.Server.TokenTTL)
	assert.Equal(t, []string{"https://quill.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/auditions.db", cfg.Store.SQLitePath)
	assert.Equal(t, 100, cfg.FanOut.BatchSize)
	assert.Equal(t, "s3", cfg.Archive.Kind)
	assert.Equal(t, "quill-reports", cfg.Archive.Bucket)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":     func(c *Config) { c.Store.Driver = "redis" },
		"batch size": func(c *Config) { c.FanOut.BatchSize = 501 },
		"archive":    func(c *Config) { c.Archive.Kind = "ftp" },
		"level":      func(c *Config) { c.Log.Level = "chatty" },
		"addr":       func(c *Config) { c.Server.Addr = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
