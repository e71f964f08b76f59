package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort            = 8080
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultMaxFileSize     = 100 * 1024 * 1024 // 100MB
	DefaultFetchTimeout    = 30 * time.Second
	DefaultMinContentChars = 10
	DefaultAnchorHops      = 10
	DefaultDataDirName     = "exam-data"

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the exam extractor
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Storage configuration
	InputDirectory string // source PDFs, text and HTML files
	DataDirectory  string // per-document records, side-files and reports

	// Extraction configuration
	FetchTimeout    time.Duration
	MinContentChars int
	AnchorHops      int
	RulesPath       string // optional YAML overriding the embedded rule tables
	DownloadImages  bool

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum input file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		// Fallback to current directory if working directory cannot be determined
		currentDir = "."
	}

	return &Config{
		Mode:            ModeStdio, // Default to stdio mode for MCP compatibility
		Host:            DefaultHost,
		Port:            DefaultPort,
		InputDirectory:  currentDir,
		DataDirectory:   filepath.Join(currentDir, DefaultDataDirName),
		FetchTimeout:    DefaultFetchTimeout,
		MinContentChars: DefaultMinContentChars,
		AnchorHops:      DefaultAnchorHops,
		Version:         "1.0.0",
		ServerName:      "mcp-exam-extractor",
		LogLevel:        DefaultLogLevel,
		MaxFileSize:     DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)
	cfg.expandPaths()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("EXAM_EXTRACT")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.InputDirectory)
	viper.SetDefault("data", cfg.DataDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("fetchtimeout", cfg.FetchTimeout)
	viper.SetDefault("mincontent", cfg.MinContentChars)
	viper.SetDefault("anchorhops", cfg.AnchorHops)
	viper.SetDefault("rules", cfg.RulesPath)
	viper.SetDefault("images", cfg.DownloadImages)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.InputDirectory, "Directory containing source PDF, text and HTML files")
	pflag.String("data", cfg.DataDirectory, "Directory for question records, side-files and reports")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum input file size in bytes")
	pflag.Duration("fetchtimeout", cfg.FetchTimeout, "Per-request timeout for fetching source pages and images")
	pflag.Int("mincontent", cfg.MinContentChars, "Minimum characters after a number line for it to start a question")
	pflag.Int("anchorhops", cfg.AnchorHops, "Maximum DOM hops from a colored span or artifact to its question anchor")
	pflag.String("rules", cfg.RulesPath, "YAML file overriding the built-in color, keyword and language tables")
	pflag.Bool("images", cfg.DownloadImages, "Download accepted images into the document directory")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "dir", "data", "loglevel", "maxfilesize",
		"fetchtimeout", "mincontent", "anchorhops", "rules", "images",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP Exam Extractor - turns exam PDFs and blog posts into question records\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          "+
			"# stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/exams --data=/path/to/out  "+
			"# stdio mode with custom directories\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --port=8081                 # HTTP API\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_MODE          Server mode\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_HOST          Server host\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_PORT          Server port\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_DIR           Input directory\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_DATA          Data directory\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_LOGLEVEL      Log level\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_MAXFILESIZE   Maximum file size\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_FETCHTIMEOUT  Fetch timeout\n")
		fmt.Fprintf(os.Stderr, "  EXAM_EXTRACT_RULES         Rule table override\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.InputDirectory = viper.GetString("dir")
	cfg.DataDirectory = viper.GetString("data")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.FetchTimeout = viper.GetDuration("fetchtimeout")
	cfg.MinContentChars = viper.GetInt("mincontent")
	cfg.AnchorHops = viper.GetInt("anchorhops")
	cfg.RulesPath = viper.GetString("rules")
	cfg.DownloadImages = viper.GetBool("images")
}

func (c *Config) expandPaths() {
	for _, p := range []*string{&c.InputDirectory, &c.DataDirectory, &c.RulesPath} {
		if *p == "" {
			continue
		}
		if expanded, err := filepath.Abs(*p); err == nil {
			*p = expanded
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.InputDirectory == "" {
		return errors.New("input directory cannot be empty")
	}
	if c.DataDirectory == "" {
		return errors.New("data directory cannot be empty")
	}
	for _, dir := range []string{c.InputDirectory, c.DataDirectory} {
		if err := ensureDirectory(dir); err != nil {
			return err
		}
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	if c.MinContentChars < 0 {
		return errors.New("minimum content characters cannot be negative")
	}
	if c.AnchorHops < 1 {
		return errors.New("anchor hops must be at least 1")
	}
	if c.RulesPath != "" {
		if _, err := os.Stat(c.RulesPath); err != nil {
			return fmt.Errorf("cannot access rules file %s: %w", c.RulesPath, err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ensureDirectory creates dir if it does not exist
func ensureDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, InputDirectory: %s, DataDirectory: %s, LogLevel: %s, MaxFileSize: %d, AnchorHops: %d}",
		c.Mode, c.Host, c.Port, c.InputDirectory, c.DataDirectory, c.LogLevel, c.MaxFileSize, c.AnchorHops)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
