package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/fusiond/pkg/lifecycle"
	"github.com/cuemby/fusiond/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the asset manager, resource manager, and provider listener",
	Long: `serve starts the single fusiond instance for this host: it acquires the
single-instance lock under --state-dir, rebuilds the asset graph from disk,
recovers any tasks left in flight by a previous crash, and then accepts
asset-manager clients, provider connections, and activation work until
interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics on")
}

func runServe(cmd *cobra.Command, args []string) error {
	stateDir, _ := cmd.Flags().GetString("state-dir")
	assetRoot, _ := cmd.Flags().GetString("asset-root")
	rulesDir, _ := cmd.Flags().GetString("rules-dir")
	volumesConfig, _ := cmd.Flags().GetString("volumes-config")
	thisHost, _ := cmd.Flags().GetString("this-host")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	if thisHost == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("determining hostname: %w", err)
		}
		thisHost = h
	}

	sys, err := lifecycle.Start(lifecycle.Config{
		StateDir:    stateDir,
		AssetRoot:   assetRoot,
		RulesDir:    rulesDir,
		VolumesPath: volumesConfig,
		ThisHost:    thisHost,
	})
	if err != nil {
		return fmt.Errorf("starting fusiond: %w", err)
	}

	metrics.SetVersion(Version)
	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	fmt.Printf("fusiond running (this-host=%s)\n", thisHost)
	fmt.Printf("metrics: http://%s/metrics\n", metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nshutting down...")
	sys.Shutdown()
	return nil
}
