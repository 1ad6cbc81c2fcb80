package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	EnvEndpoint      = "FACECAP_ENDPOINT"
	EnvEndpointsFile = "FACECAP_ENDPOINTS_FILE"
	EnvListen        = "FACECAP_LISTEN"
	EnvTokens        = "FACECAP_TOKENS"
	EnvProbes        = "FACECAP_PROBES"
	EnvFrameInterval = "FACECAP_FRAME_INTERVAL"
	EnvCaptureWindow = "FACECAP_CAPTURE_WINDOW"
	EnvFramesDir     = "FACECAP_FRAMES_DIR"
	EnvLogLevel      = "FACECAP_LOG_LEVEL"
	EnvDevelopment   = "FACECAP_DEV"
	EnvJournalDSN    = "FACECAP_JOURNAL_DSN"
)

var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Endpoint is one of the named face-recognition servers a client can
// switch between.
type Endpoint struct {
	Name    string `toml:"name"`
	Address string `toml:"address"`
}

type endpointFile struct {
	Endpoints []Endpoint `toml:"endpoint"`
}

type Config struct {
	Endpoint      string
	EndpointsFile string
	Endpoints     []Endpoint
	Listen        string
	Tokens        int
	Probes        int
	FrameInterval time.Duration
	CaptureWindow time.Duration
	FramesDir     string
	LogLevel      string
	Development   bool
	JournalDSN    string
}

// DefaultEndpoints is the fixed set of servers the client knows about.
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{Name: "Local", Address: "wss://localhost:9000"},
		{Name: "CMU", Address: "wss://facerec.cmusatyalab.org:9000"},
		{Name: "AWS-East", Address: "wss://54.159.128.49:9000"},
		{Name: "AWS-West", Address: "wss://54.188.234.61:9000"},
	}
}

func Defaults() Config {
	return Config{
		Endpoint:      "Local",
		Endpoints:     DefaultEndpoints(),
		Listen:        "127.0.0.1:8090",
		Tokens:        1,
		Probes:        10,
		FrameInterval: 250 * time.Millisecond,
		CaptureWindow: 30 * time.Second,
		LogLevel:      "info",
	}
}

// Load reads envFile (if it exists) into the environment and builds the
// configuration from FACECAP_* variables on top of the defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config load failed (%s): %w", envFile, err)
		}
	}

	cfg := Defaults()
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	cfg.FramesDir = os.Getenv(EnvFramesDir)
	cfg.JournalDSN = os.Getenv(EnvJournalDSN)
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := parseBool(os.Getenv(EnvDevelopment)); ok {
		cfg.Development = v
	}

	var err error
	if cfg.Tokens, err = intEnv(EnvTokens, cfg.Tokens); err != nil {
		return Config{}, err
	}
	if cfg.Probes, err = intEnv(EnvProbes, cfg.Probes); err != nil {
		return Config{}, err
	}
	if cfg.FrameInterval, err = durationEnv(EnvFrameInterval, cfg.FrameInterval); err != nil {
		return Config{}, err
	}
	if cfg.CaptureWindow, err = durationEnv(EnvCaptureWindow, cfg.CaptureWindow); err != nil {
		return Config{}, err
	}

	if path := os.Getenv(EnvEndpointsFile); path != "" {
		cfg.EndpointsFile = path
		if cfg.Endpoints, err = LoadEndpoints(path); err != nil {
			return Config{}, err
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEndpoints reads a TOML file of [[endpoint]] tables.
func LoadEndpoints(path string) ([]Endpoint, error) {
	var f endpointFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	for i, ep := range f.Endpoints {
		if err := ValidateEndpoint(ep); err != nil {
			return nil, fmt.Errorf("endpoint[%d] invalid: %w", i, err)
		}
	}
	if len(f.Endpoints) == 0 {
		return nil, fmt.Errorf("config parse failed (%s): no endpoints", path)
	}
	return f.Endpoints, nil
}

func Lookup(endpoints []Endpoint, name string) (Endpoint, error) {
	for _, ep := range endpoints {
		if strings.EqualFold(ep.Name, name) {
			return ep, nil
		}
	}
	return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
}

func Validate(cfg Config) error {
	if cfg.Tokens < 0 {
		return fmt.Errorf("tokens must be >= 0, got %d", cfg.Tokens)
	}
	if cfg.Probes <= 5 {
		return fmt.Errorf("probes must be > 5, got %d", cfg.Probes)
	}
	if cfg.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be > 0")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen address is required")
	}
	seen := map[string]bool{}
	for i, ep := range cfg.Endpoints {
		if err := ValidateEndpoint(ep); err != nil {
			return fmt.Errorf("endpoint[%d] invalid: %w", i, err)
		}
		key := strings.ToLower(ep.Name)
		if seen[key] {
			return fmt.Errorf("duplicate endpoint %q", ep.Name)
		}
		seen[key] = true
	}
	if _, err := Lookup(cfg.Endpoints, cfg.Endpoint); err != nil {
		return err
	}
	return nil
}

func ValidateEndpoint(ep Endpoint) error {
	if strings.TrimSpace(ep.Name) == "" {
		return fmt.Errorf("name is required")
	}
	u, err := url.Parse(ep.Address)
	if err != nil {
		return fmt.Errorf("address %q: %w", ep.Address, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("address %q: scheme must be ws or wss", ep.Address)
	}
	if u.Host == "" {
		return fmt.Errorf("address %q: host is required", ep.Address)
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
