package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.InputDirectory = t.TempDir()
	cfg.DataDirectory = filepath.Join(t.TempDir(), "data")
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeStdio, cfg.Mode)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "mcp-exam-extractor", cfg.ServerName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 10, cfg.MinContentChars)
	assert.Equal(t, 10, cfg.AnchorHops)
	assert.False(t, cfg.DownloadImages)

	currentDir, _ := os.Getwd()
	assert.Equal(t, currentDir, cfg.InputDirectory)
	assert.Equal(t, filepath.Join(currentDir, DefaultDataDirName), cfg.DataDirectory)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "valid stdio", modify: func(c *Config) {}},
		{name: "valid server", modify: func(c *Config) { c.Mode = ModeServer }},
		{name: "invalid mode", modify: func(c *Config) { c.Mode = "invalid" }, wantErr: "mode must be"},
		{name: "port too low", modify: func(c *Config) { c.Mode = ModeServer; c.Port = 0 }, wantErr: "port must be"},
		{name: "port too high", modify: func(c *Config) { c.Mode = ModeServer; c.Port = 70000 }, wantErr: "port must be"},
		{name: "port ignored in stdio", modify: func(c *Config) { c.Port = 0 }},
		{name: "empty input dir", modify: func(c *Config) { c.InputDirectory = "" }, wantErr: "input directory"},
		{name: "empty data dir", modify: func(c *Config) { c.DataDirectory = "" }, wantErr: "data directory"},
		{name: "log level", modify: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "max file size", modify: func(c *Config) { c.MaxFileSize = 0 }, wantErr: "file size"},
		{name: "fetch timeout", modify: func(c *Config) { c.FetchTimeout = 0 }, wantErr: "fetch timeout"},
		{name: "min content", modify: func(c *Config) { c.MinContentChars = -1 }, wantErr: "cannot be negative"},
		{name: "anchor hops", modify: func(c *Config) { c.AnchorHops = 0 }, wantErr: "anchor hops"},
		{name: "missing rules file", modify: func(c *Config) { c.RulesPath = "/does/not/exist.yaml" }, wantErr: "rules file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigValidateCreatesDataDirectory(t *testing.T) {
	cfg := validConfig(t)
	cfg.DataDirectory = filepath.Join(t.TempDir(), "nested", "data")

	require.NoError(t, cfg.Validate())
	assert.DirExists(t, cfg.DataDirectory)
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{Host: "192.168.1.1", Port: 9090}
	assert.Equal(t, "192.168.1.1:9090", cfg.Address())
}

func TestConfigModes(t *testing.T) {
	assert.True(t, (&Config{Mode: ModeServer}).IsServerMode())
	assert.False(t, (&Config{Mode: ModeServer}).IsStdioMode())
	assert.True(t, (&Config{Mode: ModeStdio}).IsStdioMode())
	assert.True(t, (&Config{LogLevel: "debug"}).IsDebug())
	assert.False(t, (&Config{LogLevel: "info"}).IsDebug())
}

func TestConfigString(t *testing.T) {
	cfg := &Config{
		Mode:           ModeServer,
		Host:           "localhost",
		Port:           8080,
		InputDirectory: "/home/user/exams",
		DataDirectory:  "/home/user/out",
		LogLevel:       "debug",
		MaxFileSize:    1024,
		AnchorHops:     10,
	}

	result := cfg.String()
	for _, substr := range []string{
		"Mode: server",
		"Port: 8080",
		"InputDirectory: /home/user/exams",
		"DataDirectory: /home/user/out",
		"MaxFileSize: 1024",
		"AnchorHops: 10",
	} {
		assert.Contains(t, result, substr)
	}
}
