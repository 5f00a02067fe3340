package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoauth/internal/cli/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

func runVersion(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	info := versionInfo{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	if p.Format() == output.FormatTable {
		p.Printf("dittoauth %s (commit: %s, built: %s, %s)\n", info.Version, info.Commit, info.Date, info.GoVersion)
		return nil
	}
	return p.Print(info)
}
