package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eAi-solutions/mvast-fmri-task/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and initialize the configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the task would run with, after defaults and
MVAST_* environment overrides are applied. Repaired fields are listed on
stderr.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.NewStore(configPath, logger).Path())
		return nil
	},
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	f, warnings, err := config.NewStore(configPath, logger).Load()
	if err != nil {
		return failure(err)
	}
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return failure(fmt.Errorf("encode config: %w", err))
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	store := config.NewStore(configPath, logger)
	if !configInitForce {
		_, err := os.Stat(store.Path())
		if err == nil {
			return failure(fmt.Errorf("%s already exists (use --force to overwrite)", store.Path()))
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return failure(err)
		}
	}
	if err := store.Save(config.Default()); err != nil {
		return failure(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", store.Path())
	return nil
}
