package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  host: voice.example.org
  port: 1234
  verify: true
user:
  name: alice
  password: from-file
protocol_log: client.mlog
log_level: debug
retry: 3
ping_interval: 10s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func defaults() Config {
	return Config{Port: DefaultPort, LogLevel: "info", Retry: 1, PingInterval: 5 * time.Second, PromptPassword: true}
}

func TestLoadFileConfig(t *testing.T) {
	fc, err := LoadFileConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "voice.example.org", fc.Server.Host)
	assert.Equal(t, uint16(1234), fc.Server.Port)
	assert.True(t, fc.Server.Verify)
	assert.Equal(t, "alice", fc.User.Name)
	assert.Equal(t, 3, fc.Retry)
	assert.Equal(t, 10*time.Second, fc.PingInterval)
}

func TestLoadFileConfigErrors(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = LoadFileConfig(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)

	_, err = LoadFileConfig(writeConfig(t, "server:\n  port: 70000\n"))
	assert.Error(t, err, "port must fit uint16")
}

func TestMergeFileOnly(t *testing.T) {
	fc, err := LoadFileConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	c := defaults()
	c.Merge(fc, map[string]bool{})

	assert.Equal(t, "voice.example.org", c.Host)
	assert.Equal(t, uint(1234), c.Port)
	assert.True(t, c.VerifyPeer)
	assert.Equal(t, "alice", c.Username)
	assert.Equal(t, "from-file", c.Password)
	assert.Equal(t, "client.mlog", c.ProtocolLog)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 3, c.Retry)
	assert.Equal(t, 10*time.Second, c.PingInterval)
}

func TestMergeFlagsOverrideFile(t *testing.T) {
	fc, err := LoadFileConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	c := defaults()
	c.Host = "127.0.0.1"
	c.Port = DefaultPort
	c.Password = "from-flag"
	c.Retry = 1
	c.Merge(fc, map[string]bool{"host": true, "port": true, "password": true, "retry": true})

	assert.Equal(t, "127.0.0.1", c.Host)
	assert.Equal(t, uint(DefaultPort), c.Port)
	assert.Equal(t, "from-flag", c.Password)
	assert.Equal(t, 1, c.Retry)
	assert.Equal(t, "alice", c.Username, "unset flags still come from the file")
}

func TestMergeEmptyFileKeepsDefaults(t *testing.T) {
	c := defaults()
	c.Merge(&FileConfig{}, map[string]bool{})
	assert.Equal(t, defaults(), c)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := defaults()
		c.Host = "voice.example.org"
		c.Username = "alice"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"discovery instead of host", func(c *Config) { c.Host = ""; c.DiscoverInstance = "Team" }, false},
		{"no server", func(c *Config) { c.Host = "" }, true},
		{"no user", func(c *Config) { c.Username = "" }, true},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 65536 }, true},
		{"cert without key", func(c *Config) { c.CertFile = "a.pem" }, true},
		{"negative retry", func(c *Config) { c.Retry = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadCertificate(t *testing.T) {
	c := defaults()
	cert, err := c.LoadCertificate()
	assert.NoError(t, err)
	assert.Nil(t, cert)

	c.CertFile = filepath.Join(t.TempDir(), "missing.pem")
	c.KeyFile = c.CertFile
	_, err = c.LoadCertificate()
	assert.Error(t, err)
}

func TestBuildSessionConfig(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	c := defaults()
	c.Retry = 4
	c.VerifyPeer = true
	c.ProtocolLog = filepath.Join(t.TempDir(), "client.mlog")

	cfg, closeLog, err := buildSessionConfig(&c, logger)
	require.NoError(t, err)
	defer closeLog()

	require.NotNil(t, cfg.Retry)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.NotNil(t, cfg.Retry.Retryable)
	require.NotNil(t, cfg.Transport.TLSConfig)
	assert.True(t, cfg.Transport.TLSConfig.VerifyPeer)
	assert.NotNil(t, cfg.ProtocolLogger)
	assert.FileExists(t, c.ProtocolLog)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
}

func TestBuildSessionConfigSingleAttempt(t *testing.T) {
	c := defaults()

	cfg, closeLog, err := buildSessionConfig(&c, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer closeLog()

	assert.Nil(t, cfg.Retry)
	assert.Nil(t, cfg.ProtocolLogger)
}
