package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoauth/internal/cli/output"
	"github.com/marmos91/dittoauth/internal/logger"
	"github.com/marmos91/dittoauth/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads the --config file, falling back to defaults when no file
// exists at the default location.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.MustLoad(cfgFile)
	}
	return config.Load("")
}

func newPrinter(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format), nil
}

// readToken returns the token given as the single argument, read from file,
// or read from stdin when neither is set (or the argument is "-").
func readToken(cmd *cobra.Command, args []string, file string, enc output.Encoding) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case file != "":
		data, err = os.ReadFile(file)
	case len(args) == 1 && args[0] != "-":
		if enc == output.EncodingRaw {
			return nil, fmt.Errorf("raw encoding requires --file or stdin")
		}
		data = []byte(args[0])
	default:
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	b, err := enc.Decode(data)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("empty token")
	}
	return b, nil
}
