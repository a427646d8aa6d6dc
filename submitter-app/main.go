package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/zkrollup-network/batch-submitter/log"
	"github.com/zkrollup-network/batch-submitter/submitter-app/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "batch-submitter",
		Short: "Batch Submitter",
		Long:  banner + "\n\nA daemon that proves L2 batches and lands them on the L1 bridge contract.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}

	submitOnceCmd = &cobra.Command{
		Use:   "submit-once",
		Short: "Build and submit the configured batch once, bypassing the pipeline",
		RunE:  runSubmitOnce,
	}
)

const banner = `
███████╗██╗   ██╗██████╗ ███╗   ███╗██╗████████╗████████╗███████╗██████╗
██╔════╝██║   ██║██╔══██╗████╗ ████║██║╚══██╔══╝╚══██╔══╝██╔════╝██╔══██╗
███████╗██║   ██║██████╔╝██╔████╔██║██║   ██║      ██║   █████╗  ██████╔╝
╚════██║██║   ██║██╔══██╗██║╚██╔╝██║██║   ██║      ██║   ██╔══╝  ██╔══██╗
███████║╚██████╔╝██████╔╝██║ ╚═╝ ██║██║   ██║      ██║   ███████╗██║  ██║
╚══════╝ ╚═════╝ ╚═════╝ ╚═╝     ╚═╝╚═╝   ╚═╝      ╚═╝   ╚══════╝╚═╝  ╚═╝`

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
	cobra.OnInitialize(initConfig)

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(submitOnceCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config",
		"submitter-app/configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Network flags
	rootCmd.PersistentFlags().String("rpc-url", "", "L1 JSON-RPC endpoint")
	rootCmd.PersistentFlags().Uint64("chain-id", 0, "expected L1 chain id")

	// DA flags
	rootCmd.PersistentFlags().String("da-mode", "", "data availability mode (calldata, blob)")

	// API flags
	rootCmd.PersistentFlags().String("api-listen-addr", "", "HTTP API listen address")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "set metrics.enabled (only logged; /metrics is always served by the API server)")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "submitter-app/configs/config.yaml"
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	log.Info().
		Str("config_file", cfgFile).
		Str("rpc_url", cfg.Network.RPCURL).
		Uint64("chain_id", cfg.Network.ChainID).
		Str("da_mode", cfg.DA.Mode).
		Str("api_listen_addr", cfg.API.ListenAddr).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("Batch Submitter\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runSubmitOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)
	return submitOnce(cmd.Context(), cfg, log.Logger)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("rpc-url").Changed {
		cfg.Network.RPCURL, _ = cmd.Flags().GetString("rpc-url")
	}
	if cmd.Flag("chain-id").Changed {
		cfg.Network.ChainID, _ = cmd.Flags().GetUint64("chain-id")
	}

	if cmd.Flag("da-mode").Changed {
		cfg.DA.Mode, _ = cmd.Flags().GetString("da-mode")
	}

	if cmd.Flag("api-listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("api-listen-addr")
	}

	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
}
