// Package cmd wires the cobra command tree for the datagate binary.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/iaeternum/datagate/internal/config"
	"github.com/iaeternum/datagate/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Loaded by the persistent pre-run; valid inside every RunE.
	cfg *config.Config

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "datagate",
	Short: "Payment and quota gate for metered data APIs",
	Long: `datagate fronts a metered pay-per-call data API with a free-tier
sliding-window rate limiter, x402 payment verification, and a 30-day
rolling volume ledger with discount tiers.

Use the subcommands to perform specific operations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		observability.InitCLILogger(verbose)

		loaded, err := config.Load(cfgFile, observability.CLILogger)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./datagate.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}
