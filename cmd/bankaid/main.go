// Command bankaid runs the Ethereum light-client bridge daemon: it watches a beacon
// chain head, derives sync-committee and epoch-batch update jobs, drives them through
// off-chain proof generation, and broadcasts the resulting proofs to a settlement-chain
// contract.
//
// Grounded on publisher-leader-app/main.go's cobra root/version command pair, banner,
// and applyFlags convention.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lightclient/bankai/internal/app"
	"github.com/lightclient/bankai/internal/config"
	"github.com/lightclient/bankai/internal/log"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "bankaid",
		Short: "bankai",
		Long:  banner + "\n\nAn Ethereum light-client bridge daemon.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

const banner = `
 _                 _         _
| |__   __ _ _ __ | | ____ _(_)
| '_ \ / _' | '_ \| |/ / _' | |
| |_) | (_| | | | |   < (_| | |
|_.__/ \__,_|_| |_|_|\_\__,_|_|`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newJobsCommand())
	rootCmd.AddCommand(newConfigCommand())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "bankai.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP API listen address")
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)

	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("build information")

	logger.Info().
		Str("config_file", cfgFile).
		Str("listen_addr", cfg.API.ListenAddr).
		Str("beacon_base_url", cfg.Beacon.BaseURL).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Msg("configuration loaded")

	application, err := app.New(cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("bankai\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}
	if cmd.Flag("listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
}
