/*
Package cli is the factctl command surface.

PURPOSE:
  One binary drives the whole system: pipeline runs, snapshot management,
  and the query API server. Configuration follows the usual hierarchy:

  1. CLI flags
  2. Environment variables (FACTCTL_*)
  3. Config file (~/.factctl/config.yaml)
  4. Defaults

SEE ALSO:
  - pipeline: What `factctl run` executes
  - api: What `factctl serve` exposes
*/
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "factctl",
	Short: "factctl - bitemporal fact ledger toolkit",
	Long: `factctl drives the fact ledger: it merges duplicate entities with full
lineage, reconciles multi-source observations into canonical records with
auditable decisions, materializes the bitemporal fact schema, and serves
the result over HTTP.

Every mutation leaves a trail: superseded entities are tombstoned, not
deleted; corrected statements are retained next to their replacements; and
every reconciled value can answer "why was this chosen?".`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("factctl v1.0.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.factctl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.factctl")
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("FACTCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger; verbose switches to the development
// encoder with debug level.
func newLogger() (*zap.SugaredLogger, error) {
	var (
		log *zap.Logger
		err error
	)
	if verbose || viper.GetBool("verbose") {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}
