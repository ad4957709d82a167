package cli

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tpodg/hostprep/internal/server"
)

const pingTimeout = 15 * time.Second

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Verify connection to servers",
	Long:  `Try to connect to all configured servers and execute a simple command to verify accessibility.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hostprepApp := getApp(cmd)
		hostprepApp.Logger.Info().Msg("Starting connection verification")

		if len(hostprepApp.Config.Servers) == 0 {
			hostprepApp.Logger.Warn().Msg("No servers configured")
			return nil
		}

		servers := make([]server.Server, 0, len(hostprepApp.Config.Servers))
		for _, sCfg := range hostprepApp.Config.Servers {
			srv, _, err := hostprepApp.NewServer(sCfg)
			if err != nil {
				return err
			}
			servers = append(servers, srv)
		}

		verifyServers(cmd.Context(), hostprepApp.Logger, servers)
		return nil
	},
}

func verifyServers(parent context.Context, logger zerolog.Logger, servers []server.Server) {
	for _, srv := range servers {
		func() {
			ctx, cancel := context.WithTimeout(parent, pingTimeout)
			defer cancel()

			logger.Info().Str("name", srv.ID()).Str("address", srv.Address()).Msg("Checking server")
			output, err := srv.Execute(ctx, "echo 'pong'")

			if err != nil {
				logger.Error().Str("server", srv.ID()).Err(err).Msg("Verification failed")
				return
			}

			if strings.TrimSpace(output) == "pong" {
				logger.Info().Str("server", srv.ID()).Msg("Verification successful")
			} else {
				logger.Warn().Str("server", srv.ID()).Str("output", strings.TrimSpace(output)).Msg("Verification partially successful (unexpected output)")
			}
		}()
	}
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
