// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/fablier/fablier/internal/storage"
	"github.com/joho/godotenv"
)

// Singleton instance of the mutable application config.
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configStore   *storage.FileStore
)

// configFileName holds the persisted facilitator-tunable settings, under the
// data directory.
const configFileName = "config.json"

// DefaultEventChance is the probability of an event interlude firing on an
// eligible transition in extended mode. Observed values in deployed
// scenarios range 0.3-0.4.
const DefaultEventChance = 0.35

// AppConfig holds the full application configuration, including the
// facilitator-tunable settings persisted to data/config.json.
type AppConfig struct {
	// Base settings
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// Relay worker
	RelayAPIBase string `json:"relay_api_base"`

	// Session identity for exports
	Scenario      string `json:"scenario"`
	ClassID       string `json:"class_id"`
	FacilitatorID string `json:"facilitator_id"`

	// Facilitator-tunable settings
	DefaultModel  string  `json:"default_model"`
	TTSEnabled    bool    `json:"tts_enabled"`
	TTSModel      string  `json:"tts_model"`
	EventChance   float64 `json:"event_chance"`
	MemoryEnabled bool    `json:"memory_enabled"`
}

// Config holds the immutable base configuration read from the environment.
type Config struct {
	Port          string
	DataDir       string
	LogDir        string
	DebugMode     bool
	RelayAPIBase  string
	Scenario      string
	ClassID       string
	FacilitatorID string
	DefaultModel  string
	TTSEnabled    bool
	TTSModel      string
	EventChance   float64
	MemoryEnabled bool
}

// Load reads configuration from the environment. A .env file is honored
// when present.
func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		Port:          getEnv("PORT", "8080"),
		DataDir:       getEnvPath("DATA_DIR", "data"),
		LogDir:        getEnvPath("LOG_DIR", "logs"),
		DebugMode:     getEnvBool("DEBUG_MODE", true),
		RelayAPIBase:  getEnv("RELAY_API_BASE", ""),
		Scenario:      getEnv("SCENARIO", "default"),
		ClassID:       getEnv("CLASS_ID", "classroom"),
		FacilitatorID: getEnv("FACILITATOR_ID", "facilitator"),
		DefaultModel:  getEnv("DEFAULT_MODEL", "gpt-4o-mini"),
		TTSEnabled:    getEnvBool("TTS_ENABLED", false),
		TTSModel:      getEnv("TTS_MODEL", "gpt-4o-mini-tts"),
		EventChance:   getEnvFloat("EVENT_CHANCE", DefaultEventChance),
		MemoryEnabled: getEnvBool("MEMORY_ENABLED", false),
	}

	if config.RelayAPIBase == "" {
		return nil, fmt.Errorf("RELAY_API_BASE is not set; the engine cannot reach the chat relay")
	}

	return config, nil
}

// getEnv returns the environment variable or a default.
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath returns a path environment variable, creating the directory
// when it does not exist yet.
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Printf("warning: failed to create directory %s: %v", path, err)
		}
	}

	return path
}

// getEnvBool returns a boolean environment variable.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvFloat returns a float environment variable.
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("warning: invalid value for %s: %v", key, err)
		return defaultValue
	}
	return f
}

// InitConfig initializes the config manager: base settings come from the
// environment, facilitator-tunable settings are merged from any previously
// saved data/config.json.
func InitConfig(dataDir string) error {
	store, err := storage.NewFileStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open config storage: %w", err)
	}

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	configStore = store
	currentConfig = fromBase(baseConfig)

	if configStore.FileExists("", configFileName) {
		var savedConfig AppConfig
		if configStore.LoadJSONFile("", configFileName, &savedConfig) == nil {
			// Keep the saved tunables but always take the fresh base
			// settings: paths and relay target follow the environment.
			savedConfig.Port = baseConfig.Port
			savedConfig.DataDir = baseConfig.DataDir
			savedConfig.LogDir = baseConfig.LogDir
			savedConfig.DebugMode = baseConfig.DebugMode
			savedConfig.RelayAPIBase = baseConfig.RelayAPIBase
			savedConfig.Scenario = baseConfig.Scenario
			savedConfig.ClassID = baseConfig.ClassID
			savedConfig.FacilitatorID = baseConfig.FacilitatorID
			savedConfig.MemoryEnabled = baseConfig.MemoryEnabled
			if savedConfig.DefaultModel == "" {
				savedConfig.DefaultModel = baseConfig.DefaultModel
			}
			if savedConfig.TTSModel == "" {
				savedConfig.TTSModel = baseConfig.TTSModel
			}
			if savedConfig.EventChance <= 0 || savedConfig.EventChance >= 1 {
				savedConfig.EventChance = baseConfig.EventChance
			}
			currentConfig = &savedConfig
		}
	}

	return saveLocked()
}

func fromBase(base *Config) *AppConfig {
	return &AppConfig{
		Port:          base.Port,
		DataDir:       base.DataDir,
		LogDir:        base.LogDir,
		DebugMode:     base.DebugMode,
		RelayAPIBase:  base.RelayAPIBase,
		Scenario:      base.Scenario,
		ClassID:       base.ClassID,
		FacilitatorID: base.FacilitatorID,
		DefaultModel:  base.DefaultModel,
		TTSEnabled:    base.TTSEnabled,
		TTSModel:      base.TTSModel,
		EventChance:   base.EventChance,
		MemoryEnabled: base.MemoryEnabled,
	}
}

// GetCurrentConfig returns a copy of the current configuration.
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, err := Load()
		if err != nil {
			// Last resort so callers never see nil; the relay base is
			// missing and every gateway call will say so.
			return &AppConfig{Port: "8080", DataDir: "data", LogDir: "logs", EventChance: DefaultEventChance}
		}
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateTunables updates the facilitator-tunable settings and persists them.
func UpdateTunables(defaultModel string, ttsEnabled bool, eventChance float64) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("config system not initialized")
	}

	if defaultModel != "" {
		currentConfig.DefaultModel = defaultModel
	}
	currentConfig.TTSEnabled = ttsEnabled
	if eventChance > 0 && eventChance < 1 {
		currentConfig.EventChance = eventChance
	}

	return saveLocked()
}

// saveLocked persists the current config atomically. Caller holds
// configMutex.
func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("no config to save")
	}
	if configStore == nil {
		return fmt.Errorf("config storage not initialized")
	}

	return configStore.SaveJSONFile("", configFileName, currentConfig)
}
