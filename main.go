package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/submitsession/api"
	"github.com/moyoez/submitsession/api/models"
	"github.com/moyoez/submitsession/api/notifyhub"
	"github.com/moyoez/submitsession/draft"
	"github.com/moyoez/submitsession/notify"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/transfer"
	"github.com/moyoez/submitsession/types"
)

var flags *types.Config

func main() {
	root := &cobra.Command{
		Use:           "submitsession",
		Short:         "Submit files, links and text to a processing backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags = tool.BindFlags(root.PersistentFlags())
	root.AddCommand(newServeCommand(), newSubmitCommand())

	if err := root.Execute(); err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
}

// setup loads config, applies flag overrides and initializes logging.
func setup() types.AppConfig {
	tool.InitLogger()
	tool.SetLogMode(flags.Log)

	appCfg, err := tool.LoadConfig(flags.UseConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	tool.ApplyFlagOverrides(&appCfg, flags)
	tool.CurrentConfig = appCfg

	if appCfg.ProbeBackend && !flags.SkipProbe {
		if host := tool.EndpointHost(appCfg.Endpoint); host != "" {
			if tool.QuickICMPProbe(host, time.Second) {
				tool.DefaultLogger.Infof("Backend host %s is reachable", host)
			} else {
				tool.DefaultLogger.Warnf("Backend host %s did not answer the probe", host)
			}
		}
	}
	return appCfg
}

func newProcessor(appCfg types.AppConfig) *transfer.HTTPProcessor {
	opts := transfer.Options{
		Endpoint:          appCfg.Endpoint,
		APIKey:            appCfg.APIKey,
		RequestsPerSecond: appCfg.RequestsPerSecond,
	}
	if appCfg.InspectLinks {
		opts.Inspector = transfer.NewLinkInspector(nil)
	}
	return transfer.NewHTTPProcessor(opts)
}

func newDraftStore(appCfg types.AppConfig) draft.Store {
	if appCfg.DraftStore == "memory" {
		return draft.NewMemoryStore(draft.DefaultMemoryTTL)
	}
	return draft.NewFileStore(appCfg.DraftPath)
}

// newDispatcher fans notifications out to the optional Unix socket listener.
func newDispatcher(appCfg types.AppConfig) *notify.Dispatcher {
	d := notify.NewDispatcher()
	if appCfg.NotifySocket != "" {
		d.AddSink(notify.NewSocketSink(appCfg.NotifySocket))
		tool.DefaultLogger.Infof("Forwarding notifications to %s", appCfg.NotifySocket)
	}
	return d
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg := setup()

			dispatcher := newDispatcher(appCfg)
			defer dispatcher.Close()
			hub := notifyhub.New()
			dispatcher.AddSink(hub)
			models.SetNotifyHub(hub)
			models.Configure(appCfg, newProcessor(appCfg), newDraftStore(appCfg), dispatcher)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(appCfg.Port)
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				tool.DefaultLogger.Info("Shutting down API server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}
}
