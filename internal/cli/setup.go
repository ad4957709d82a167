package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tpodg/hostprep/internal/app"
	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/catalog"
)

var (
	onlyTasks string
	skipTasks string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the configured servers",
	Long: `Apply the provisioning tasks to every configured server in catalogue order.
Tasks that are already applied are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServers(cmd.Context(), getApp(cmd), "setup", (*task.TaskConfigurator).Configure)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Undo the provisioning of the configured servers",
	Long:  `Roll the provisioning tasks back in reverse catalogue order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServers(cmd.Context(), getApp(cmd), "rollback", (*task.TaskConfigurator).Revert)
	},
}

type runFunc func(*task.TaskConfigurator, context.Context, *task.Env) error

// runServers processes servers one after another. A failing server stops
// its own run only; the error is reported once all servers were tried.
func runServers(ctx context.Context, a *app.App, action string, run runFunc) error {
	if len(a.Config.Servers) == 0 {
		a.Logger.Warn().Msg("No servers configured")
		return nil
	}

	specs, err := task.SelectSpecs(catalog.Builtins(), strutil.SplitList(onlyTasks), strutil.SplitList(skipTasks))
	if err != nil {
		return err
	}

	runner := task.NewRunner(a.Logger)
	var errs []error
	for _, s := range a.Config.Servers {
		log := a.Logger.With().Str("server", s.Name).Str("address", s.Address).Logger()
		log.Info().Msgf("Starting %s", action)

		tasks, unknown, err := planServer(s, specs)
		if err != nil {
			log.Error().Err(err).Msg("Failed to plan tasks")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		if len(unknown) > 0 {
			log.Warn().Strs("keys", unknown).Msg("Ignoring unknown task keys")
		}
		tc := task.NewTaskConfigurator(runner, tasks...)
		if tc.Len() == 0 {
			log.Info().Msg("No tasks to run")
			continue
		}

		env, err := a.Environment(s)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prepare server")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}

		if err := run(tc, ctx, env); err != nil {
			log.Error().Err(err).Msgf("Failed to %s server", action)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		log.Info().Msgf("Server %s finished", action)
	}
	return errors.Join(errs...)
}

func init() {
	for _, cmd := range []*cobra.Command{setupCmd, rollbackCmd} {
		cmd.Flags().StringVar(&onlyTasks, "only", "", "run only these tasks (comma separated keys, see 'hostprep tasks')")
		cmd.Flags().StringVar(&skipTasks, "skip", "", "skip these tasks (comma separated keys)")
		rootCmd.AddCommand(cmd)
	}
}
