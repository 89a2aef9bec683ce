package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "avue",
		Short: "Relay line-of-sight search",
		Long: `avue finds the relay supports around an installation point whose antennas
have a clear line of sight to it, and reports which operators are visible.

Configuration is layered: built-in defaults, then the YAML file given with
--config, then AVUE_* environment variables (plus LOG_LEVEL and LOG_FORMAT),
then command-line flags.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML configuration file")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("elevation-url", "", "Elevation-line service endpoint")
	pf.Duration("elevation-min-interval", 0, "Minimum spacing between elevation requests")
	pf.String("supports-url", "", "Supports backend base URL")
	pf.String("supports-file", "", "YAML or JSON support catalog, used instead of the backend")
	pf.Int("max-candidates", 0, "Largest number of supports a search may evaluate")
	pf.Duration("search-timeout", 0, "Upper bound on the duration of one search (0 disables)")
	pf.Bool("tracing", false, "Enable OpenTelemetry tracing")

	root.AddCommand(newServeCmd(), newSearchCmd(), newVersionCmd())
	return root
}
