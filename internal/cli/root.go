package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tpodg/hostprep/internal/app"
	"github.com/tpodg/hostprep/internal/config"
)

type contextKey string

const appKey contextKey = "app"

var rootCmd = &cobra.Command{
	Use:   "hostprep",
	Short: "hostprep prepares fresh Ubuntu servers for production",
	Long: `hostprep connects to freshly rented Ubuntu servers over SSH and applies
a fixed set of provisioning steps: moving sshd to another port, replacing
root login with a personal sudo account, uploading your ssh key, restricting
ssh, enabling a firewall and installing baseline packages. Every step can be
rolled back.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		cfgFile, err := flags.GetString("config")
		if err != nil {
			return err
		}
		var opts app.Options
		if opts.Verbose, err = flags.GetBool("verbose"); err != nil {
			return err
		}
		if opts.JSON, err = flags.GetBool("json"); err != nil {
			return err
		}
		if opts.NonInteractive, err = flags.GetBool("non-interactive"); err != nil {
			return err
		}
		opts.Out = cmd.OutOrStdout()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		hostprepApp := app.New(cfg, opts)
		ctx := context.WithValue(cmd.Context(), appKey, hostprepApp)
		cmd.SetContext(ctx)

		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", fmt.Sprintf("config file (default is $HOME/%s)", config.DefaultConfigFileName))
	flags.BoolP("verbose", "v", false, "enable verbose (debug) output, including remote commands")
	flags.Bool("json", false, "output logs in JSON format")
	flags.Bool("non-interactive", false, "never prompt; operations take their non-interactive path")
}

func getApp(cmd *cobra.Command) *app.App {
	if a, ok := cmd.Context().Value(appKey).(*app.App); ok {
		return a
	}
	return nil
}
