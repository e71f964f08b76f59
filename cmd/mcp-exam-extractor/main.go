package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/mcp-exam-extractor/internal/config"
	"github.com/a3tai/mcp-exam-extractor/internal/mcp"
	"github.com/a3tai/mcp-exam-extractor/internal/pipeline"
)

var (
	version   = "dev"     // set by build flags
	buildTime = "unknown" // set by build flags
	gitCommit = "unknown" // set by build flags
)

// setupLogging configures logging based on the server mode
func setupLogging(cfg *config.Config) {
	if cfg.IsStdioMode() {
		// stdout carries the MCP protocol
		log.SetOutput(os.Stderr)
		if !cfg.IsDebug() {
			log.SetOutput(io.Discard)
		}
	} else {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}

// runServerMode serves the HTTP API until a signal arrives
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		log.Printf("Received signal: %s", sig)
		log.Println("Initiating graceful shutdown...")
		cancel()

		if err := <-serverErrCh; err != nil {
			log.Printf("Server shutdown with error: %v", err)
			os.Exit(1)
		}

	case err := <-serverErrCh:
		if err != nil {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
	}

	log.Println("Server stopped successfully")
}

// runStdioMode serves MCP over stdio; the parent process controls the lifecycle
func runStdioMode(ctx context.Context, _ context.CancelFunc, server *mcp.Server) {
	if err := server.Run(ctx); err != nil {
		if os.Getenv("DEBUG") != "" {
			log.Printf("Server error: %v", err)
		}
		os.Exit(1)
	}
}

// newServer builds the pipeline service and the server around it
func newServer(cfg *config.Config) (*mcp.Server, error) {
	service, err := pipeline.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline service: %w", err)
	}
	if cfg.IsStdioMode() && !cfg.IsDebug() {
		service.SetLogger(log.New(io.Discard, "", 0))
	}

	server, err := mcp.NewServer(cfg, service)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server, nil
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion(os.Stdout)
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() && cfg.IsServerMode() {
		log.Printf("Starting with configuration: %s", cfg.String())
	}

	server, err := newServer(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsServerMode() {
		runServerMode(ctx, cancel, server)
	} else {
		runStdioMode(ctx, cancel, server)
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP Exam Extractor\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
