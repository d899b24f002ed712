package types

import "time"

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Endpoint             string  `json:"endpoint" yaml:"endpoint" toml:"endpoint"`                                    // processing backend base URL
	APIKey               string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty" toml:"api-key,omitempty"`           // sent as bearer token
	Port                 int     `json:"port" yaml:"port" toml:"port"`                                                // HTTP API port
	UploadFolder         string  `json:"uploadFolder" yaml:"uploadFolder" toml:"upload-folder"`                       // where API-received files are kept
	DraftStore           string  `json:"draftStore" yaml:"draftStore" toml:"draft-store"`                             // "file" or "memory"
	DraftPath            string  `json:"draftPath" yaml:"draftPath" toml:"draft-path"`                                // file store location
	AutosaveIntervalSec  int     `json:"autosaveIntervalSec" yaml:"autosaveIntervalSec" toml:"autosave-interval-sec"` // periodic save while text is non-empty
	AutosaveDebounceMs   int     `json:"autosaveDebounceMs" yaml:"autosaveDebounceMs" toml:"autosave-debounce-ms"`    // save after edits settle
	MaxConcurrentUploads int     `json:"maxConcurrentUploads" yaml:"maxConcurrentUploads" toml:"max-concurrent-uploads"`
	MaxRetries           int     `json:"maxRetries" yaml:"maxRetries" toml:"max-retries"`
	RetryDelayBaseMs     int     `json:"retryDelayBaseMs" yaml:"retryDelayBaseMs" toml:"retry-delay-base-ms"`
	UploadTimeoutSec     int     `json:"uploadTimeoutSec" yaml:"uploadTimeoutSec" toml:"upload-timeout-sec"`
	RequestTimeoutSec    int     `json:"requestTimeoutSec" yaml:"requestTimeoutSec" toml:"request-timeout-sec"`       // links, text, session notifications
	RequestsPerSecond    float64 `json:"requestsPerSecond" yaml:"requestsPerSecond" toml:"requests-per-second"`       // 0 = unlimited
	StageDelayMs         int     `json:"stageDelayMs" yaml:"stageDelayMs" toml:"stage-delay-ms"`                      // simulated pipeline stage delay
	InspectLinks         bool    `json:"inspectLinks" yaml:"inspectLinks" toml:"inspect-links"`                       // fetch title/description before submitting a link
	NotifySocket         string  `json:"notifySocket,omitempty" yaml:"notifySocket,omitempty" toml:"notify-socket,omitempty"`
	ProbeBackend         bool    `json:"probeBackend" yaml:"probeBackend" toml:"probe-backend"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log                  string
	UseConfigPath        string
	UseEndpoint          string
	UsePort              int
	UseUploadFolder      string
	UseDraftStore        string
	UseDraftPath         string
	UseMaxConcurrent     int
	UseNotifySocket      string
	SkipNotify           bool // if true, do not write to the notify socket
	SkipProbe            bool
	SkipLinkInspection   bool
	UseRequestsPerSecond float64
}

func millis(n int) time.Duration  { return time.Duration(n) * time.Millisecond }
func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c AppConfig) AutosaveInterval() time.Duration { return seconds(c.AutosaveIntervalSec) }
func (c AppConfig) AutosaveDebounce() time.Duration { return millis(c.AutosaveDebounceMs) }
func (c AppConfig) RetryDelayBase() time.Duration   { return millis(c.RetryDelayBaseMs) }
func (c AppConfig) UploadTimeout() time.Duration    { return seconds(c.UploadTimeoutSec) }
func (c AppConfig) RequestTimeout() time.Duration   { return seconds(c.RequestTimeoutSec) }
func (c AppConfig) StageDelay() time.Duration       { return millis(c.StageDelayMs) }
