package tool

import (
	"github.com/spf13/pflag"

	"github.com/moyoez/submitsession/types"
)

// BindFlags registers the override flags on fs and returns the struct they fill.
func BindFlags(fs *pflag.FlagSet) *types.Config {
	cfg := &types.Config{}
	fs.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	fs.StringVar(&cfg.UseConfigPath, "useConfigPath", "", "override config file path (.yaml or .toml)")
	fs.StringVar(&cfg.UseEndpoint, "useEndpoint", "", "override processing backend URL")
	fs.IntVar(&cfg.UsePort, "usePort", 0, "override HTTP API port")
	fs.StringVar(&cfg.UseUploadFolder, "useUploadFolder", "", "override upload folder")
	fs.StringVar(&cfg.UseDraftStore, "useDraftStore", "", "draft store: file|memory")
	fs.StringVar(&cfg.UseDraftPath, "useDraftPath", "", "override draft file path")
	fs.IntVar(&cfg.UseMaxConcurrent, "useMaxConcurrent", 0, "override max concurrent uploads per batch")
	fs.StringVar(&cfg.UseNotifySocket, "useNotifySocket", "", "unix socket that receives workflow notifications")
	fs.BoolVar(&cfg.SkipNotify, "skipNotify", false, "do not write notifications to the unix socket")
	fs.BoolVar(&cfg.SkipProbe, "skipProbe", false, "do not probe the backend host at startup")
	fs.BoolVar(&cfg.SkipLinkInspection, "skipLinkInspection", false, "submit links without fetching their title")
	fs.Float64Var(&cfg.UseRequestsPerSecond, "useRequestsPerSecond", 0, "limit backend requests per second (0 = config value)")
	return cfg
}

// ApplyFlagOverrides merges non-zero flag values into appCfg.
func ApplyFlagOverrides(appCfg *types.AppConfig, flags *types.Config) {
	if flags == nil {
		return
	}
	if flags.UseEndpoint != "" {
		appCfg.Endpoint = flags.UseEndpoint
	}
	if flags.UsePort > 0 {
		appCfg.Port = flags.UsePort
	}
	if flags.UseUploadFolder != "" {
		appCfg.UploadFolder = flags.UseUploadFolder
	}
	if flags.UseDraftStore != "" {
		appCfg.DraftStore = flags.UseDraftStore
	}
	if flags.UseDraftPath != "" {
		appCfg.DraftPath = flags.UseDraftPath
	}
	if flags.UseMaxConcurrent > 0 {
		appCfg.MaxConcurrentUploads = flags.UseMaxConcurrent
	}
	if flags.UseNotifySocket != "" {
		appCfg.NotifySocket = flags.UseNotifySocket
	}
	if flags.SkipNotify {
		appCfg.NotifySocket = ""
	}
	if flags.SkipProbe {
		appCfg.ProbeBackend = false
	}
	if flags.SkipLinkInspection {
		appCfg.InspectLinks = false
	}
	if flags.UseRequestsPerSecond > 0 {
		appCfg.RequestsPerSecond = flags.UseRequestsPerSecond
	}
}
