package main

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-exam-extractor/internal/config"
)

func TestPrintVersion(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
	defer func() {
		version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit
	}()
	version = "1.2.3"
	buildTime = "2023-12-01_10:30:00"
	gitCommit = "abc123"

	var buf bytes.Buffer
	printVersion(&buf)

	output := buf.String()
	for _, expected := range []string{
		"MCP Exam Extractor",
		"Version: 1.2.3",
		"Build Time: 2023-12-01_10:30:00",
		"Git Commit: abc123",
		"Built with:",
	} {
		assert.Contains(t, output, expected)
	}
}

func TestSetupLogging(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	defer log.SetFlags(log.LstdFlags)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeServer
	setupLogging(cfg)
	assert.Equal(t, log.LstdFlags|log.Lshortfile, log.Flags())

	cfg.Mode = config.ModeStdio
	cfg.LogLevel = "debug"
	setupLogging(cfg)
	assert.Equal(t, os.Stderr, log.Writer())
}

func TestNewServer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputDirectory = t.TempDir()
	cfg.DataDirectory = t.TempDir()

	server, err := newServer(cfg)
	require.NoError(t, err)
	assert.NotNil(t, server)

	cfg.RulesPath = "/nonexistent/rules.yaml"
	_, err = newServer(cfg)
	assert.Error(t, err)
}
