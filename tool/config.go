package tool

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/moyoez/submitsession/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
)

func DefaultConfig() types.AppConfig {
	return types.AppConfig{
		Endpoint:             "http://127.0.0.1:8787",
		Port:                 53380,
		UploadFolder:         "uploads",
		DraftStore:           "file",
		DraftPath:            "draft.json",
		AutosaveIntervalSec:  30,
		AutosaveDebounceMs:   2000,
		MaxConcurrentUploads: 3,
		MaxRetries:           3,
		RetryDelayBaseMs:     1000,
		UploadTimeoutSec:     120,
		RequestTimeoutSec:    30,
		RequestsPerSecond:    0,
		StageDelayMs:         1500,
		InspectLinks:         true,
		ProbeBackend:         true,
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig reads path (YAML, or TOML when the extension is .toml).
// A missing file is created with default values.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := DefaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeDefaultConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s", path)
			CurrentConfig = cfg
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %v", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}

	normalizeConfig(&cfg)
	CurrentConfig = cfg
	return cfg, nil
}

// normalizeConfig replaces unusable values with defaults.
func normalizeConfig(cfg *types.AppConfig) {
	def := DefaultConfig()
	if cfg.MaxConcurrentUploads <= 0 {
		DefaultLogger.Warnf("maxConcurrentUploads=%d is invalid, using %d", cfg.MaxConcurrentUploads, def.MaxConcurrentUploads)
		cfg.MaxConcurrentUploads = def.MaxConcurrentUploads
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelayBaseMs <= 0 {
		cfg.RetryDelayBaseMs = def.RetryDelayBaseMs
	}
	if cfg.UploadTimeoutSec <= 0 {
		cfg.UploadTimeoutSec = def.UploadTimeoutSec
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = def.RequestTimeoutSec
	}
	if cfg.AutosaveIntervalSec <= 0 {
		cfg.AutosaveIntervalSec = def.AutosaveIntervalSec
	}
	if cfg.AutosaveDebounceMs <= 0 {
		cfg.AutosaveDebounceMs = def.AutosaveDebounceMs
	}
	if cfg.StageDelayMs < 0 {
		cfg.StageDelayMs = def.StageDelayMs
	}
	if cfg.DraftStore != "memory" {
		cfg.DraftStore = "file"
	}
	if cfg.Port <= 0 {
		cfg.Port = def.Port
	}
}

func writeDefaultConfig(path string, cfg types.AppConfig) error {
	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func GetCurrentConfig() *types.AppConfig {
	return &CurrentConfig
}
