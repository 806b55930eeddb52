package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/bridge.ini"
)

// Transport modes accepted by the bridge. Exactly one is active per process.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// BridgeConfig describes runtime options for the bridge daemon.
type BridgeConfig struct {
	Environment string
	Port        int
	Transport   string // sse|websocket

	LogFile  string
	LogLevel string

	// Keep-alive interval for push-stream sinks and event feed subscribers.
	KeepAliveInterval time.Duration

	// Usage ledger; empty path disables recording.
	LedgerPath string

	// Upstream provider selection: "static" (built-in canned provider) or
	// "openai" (any OpenAI-compatible endpoint, e.g. a local model runner).
	Provider          string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	StaticCatalogPath string

	ShutdownTimeout time.Duration
}

// LoadBridgeConfig reads the current environment and loads the appropriate bridge config file.
// Values resolve as: BRIDGE_* env var > config/<env>/bridge.ini > config/setting.ini > default.
func LoadBridgeConfig(root string) (BridgeConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return BridgeConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return BridgeConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := BridgeConfig{
		Environment:       s.Environment,
		Port:              parseOptionalInt(firstNonEmpty(os.Getenv("BRIDGE_PORT"), merged["port"]), 3939),
		Transport:         strings.ToLower(strings.TrimSpace(firstNonEmpty(os.Getenv("BRIDGE_TRANSPORT"), merged["transport"], TransportSSE))),
		LogFile:           firstNonEmpty(os.Getenv("BRIDGE_LOG_FILE"), merged["log_file"]),
		LogLevel:          firstNonEmpty(os.Getenv("BRIDGE_LOG_LEVEL"), merged["log_level"], "info"),
		LedgerPath:        firstNonEmpty(os.Getenv("BRIDGE_LEDGER_PATH"), merged["ledger_path"]),
		Provider:          strings.ToLower(strings.TrimSpace(firstNonEmpty(os.Getenv("BRIDGE_PROVIDER"), merged["provider"], "static"))),
		OpenAIBaseURL:     firstNonEmpty(os.Getenv("BRIDGE_OPENAI_BASE_URL"), merged["openai_base_url"]),
		OpenAIAPIKey:      firstNonEmpty(os.Getenv("BRIDGE_OPENAI_API_KEY"), merged["openai_api_key"]),
		StaticCatalogPath: firstNonEmpty(os.Getenv("BRIDGE_STATIC_CATALOG"), merged["static_catalog"]),
	}

	switch cfg.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return BridgeConfig{}, fmt.Errorf("invalid transport %q (expected %s or %s)", cfg.Transport, TransportSSE, TransportWebSocket)
	}
	switch cfg.Provider {
	case "static", "openai":
	default:
		return BridgeConfig{}, fmt.Errorf("invalid provider %q (expected static or openai)", cfg.Provider)
	}

	cfg.KeepAliveInterval = 15 * time.Second
	if v := firstNonEmpty(os.Getenv("BRIDGE_KEEPALIVE_INTERVAL"), merged["keepalive_interval"]); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return BridgeConfig{}, fmt.Errorf("invalid keepalive_interval %q: %w", v, err)
		}
		cfg.KeepAliveInterval = dur
	}
	cfg.ShutdownTimeout = 5 * time.Second
	if v := firstNonEmpty(os.Getenv("BRIDGE_SHUTDOWN_TIMEOUT"), merged["shutdown_timeout"]); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return BridgeConfig{}, fmt.Errorf("invalid shutdown_timeout %q: %w", v, err)
		}
		cfg.ShutdownTimeout = dur
	}

	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
