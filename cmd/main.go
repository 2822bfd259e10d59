// Package main is the entry point for the tronctx CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Set at build time via ldflags.
var (
	Version = "v0.1.0"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tronctx",
		Short: "Inspect, repair and compact agent conversation histories",
		Long: `tronctx reads a conversation (a JSON array of messages, or an object with
"system" and "messages"), repairs it so providers accept it, reports context
window usage and compacts older turns into a summary.

Use "-" as FILE to read from stdin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			envFile, _ := cmd.Flags().GetString("env-file")
			loadEnvFiles(envFile)
		},
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	root.PersistentFlags().String("env-file", "", "Additional .env file to load")

	root.AddCommand(
		sanitizeCmd(),
		validateCmd(),
		snapshotCmd(),
		compactCmd(),
		sessionsCmd(),
		configsCmd(),
		versionCmd(),
	)
	return root
}

// loadEnvFiles loads .env from standard locations, then extra (if any).
// Variables already set in the environment are never overridden.
func loadEnvFiles(extra string) {
	if homeDir, err := os.UserHomeDir(); err == nil {
		configEnv := filepath.Join(homeDir, ".config", "tronctx", ".env")
		if _, err := os.Stat(configEnv); err == nil {
			_ = godotenv.Load(configEnv)
		}
	}
	_ = godotenv.Load()
	if extra != "" {
		_ = godotenv.Load(extra)
	}
}

// resolveConfig resolves the config to use.
// Checks: user flag -> filesystem locations -> embedded default.
// Returns raw bytes and source description.
func resolveConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		if data, err := os.ReadFile(userConfig); err == nil {
			return data, userConfig, nil
		}
		// Not a file: try an embedded config of that name.
		if data, err := getEmbeddedConfig(userConfig); err == nil {
			return data, "(embedded) " + userConfig, nil
		}
		return nil, "", fmt.Errorf("config file not found: %s", userConfig)
	}

	var searchPaths []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		searchPaths = append(searchPaths, filepath.Join(xdg, "tronctx", "config.yaml"))
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "tronctx", "config.yaml"))
	}
	searchPaths = append(searchPaths, "tronctx.yaml", "configs/config.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	data, err := getEmbeddedConfig("default")
	if err != nil {
		return nil, "", fmt.Errorf("no config file found. Specify --config path")
	}
	return data, "(embedded) default.yaml", nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tronctx %s (commit: %s, %s %s/%s)\n",
				Version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func configsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configs [NAME]",
		Short: "List embedded configs, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				data, err := getEmbeddedConfig(args[0])
				if err != nil {
					return fmt.Errorf("unknown embedded config %q", args[0])
				}
				_, err = out.Write(data)
				return err
			}
			names, err := listEmbeddedConfigs()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}
