package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoauth/internal/cli/output"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
	"github.com/marmos91/dittoauth/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dittoauth configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dittoauth config validate

  # Validate specific config file
  dittoauth config validate --config /etc/dittoauth/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string

	if !cfg.Kerberos.Enabled {
		warnings = append(warnings, "Kerberos is disabled - accept will rely on environment overrides")
	} else if _, err := os.Stat(cfg.Kerberos.KeytabPath); err != nil {
		warnings = append(warnings, fmt.Sprintf("Keytab not readable: %v", err))
	}

	if _, err := cfg.Negotiation.MechanismOIDs(oid.Default()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.SimpleTable(out, [][2]string{
		{"Log level", cfg.Logging.Level},
		{"Service principal", cfg.Kerberos.ServicePrincipal},
		{"Keytab", cfg.Kerberos.KeytabPath},
		{"Max clock skew", cfg.Kerberos.MaxClockSkew.String()},
		{"Offered mechanisms", strings.Join(cfg.Negotiation.Mechanisms, ",")},
	})
}
