package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoauth/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample dittoauth configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/dittoauth/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dittoauth config init

  # Initialize with custom path
  dittoauth config init --config /etc/dittoauth/config.yaml

  # Force overwrite existing config
  dittoauth config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Set kerberos.keytab_path and kerberos.service_principal")
	_, _ = fmt.Fprintln(out, "  2. Set kerberos.enabled to true")
	_, _ = fmt.Fprintf(out, "  3. Check it with: dittoauth config validate --config %s\n", configPath)

	return nil
}
