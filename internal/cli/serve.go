package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/pkg/gateway"
	"github.com/toolgate/toolgate/pkg/security"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the approval gateway daemon",
	Long: `Start the long-running service: the WebSocket approval gateway where
human approvers answer requests, the expired-approval sweeper, and
hot-reload of the permission settings file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.close()

	if !rt.cfg.Gateway.Enabled {
		return fmt.Errorf("gateway is disabled in configuration; enable gateway.enabled to serve")
	}

	server, err := gateway.NewServer(gateway.Config{
		Port:             rt.cfg.Gateway.Port,
		SharedSecret:     rt.cfg.Gateway.SharedSecret,
		AuthAttemptLimit: rt.cfg.Gateway.AuthAttempts,
		Logger:           rt.log.GetZerolog(),
	})
	if err != nil {
		return err
	}
	rt.manager.SetApprovalProvider(server)

	if err := server.Start(); err != nil {
		return err
	}

	sweeper, err := security.NewSweeper(rt.manager, rt.cfg.Security.SweepSchedule)
	if err != nil {
		return err
	}
	sweeper.Start()

	var watcher *security.SettingsWatcher
	if rt.cfg.Security.SettingsFile != "" {
		watcher, err = security.WatchSettingsFile(rt.manager, rt.cfg.Security.SettingsFile)
		if err != nil {
			return err
		}
	}

	log.Info().
		Int("port", rt.cfg.Gateway.Port).
		Str("audit_db", rt.cfg.Security.AuditDB).
		Msg("Toolgate daemon running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	if watcher != nil {
		_ = watcher.Stop()
	}
	sweeper.Stop()
	return server.Stop()
}
