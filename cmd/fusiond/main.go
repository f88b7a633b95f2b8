package main

import (
	"fmt"
	"os"

	"github.com/cuemby/fusiond/pkg/log"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fusiond",
	Short:   "fusiond - build-orchestration daemon for fusion asset pipelines",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fusiond version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("state-dir", "/gevol/fusion/state", "Directory holding the single-instance lock, catalog, and task recovery markers")
	rootCmd.PersistentFlags().String("asset-root", "/gevol/assets", "Root directory of asset/version records")
	rootCmd.PersistentFlags().String("rules-dir", "/etc/fusion/taskrules", "Directory of .taskrule files")
	rootCmd.PersistentFlags().String("volumes-config", "/etc/fusion/volumes.yaml", "Path to the volume list config")
	rootCmd.PersistentFlags().String("this-host", "", "This machine's hostname as it appears in volumes-config (defaults to os.Hostname)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
