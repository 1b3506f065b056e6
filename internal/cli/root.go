// internal/cli/root.go
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	pahkatconfig "github.com/divvun/pahkat/internal/config"
	"github.com/divvun/pahkat/pkg/pahkat"
)

var (
	cfgFile    string
	prefixPath string
	userScope  bool
	debug      bool

	logger *slog.Logger
	engine *pahkat.Engine
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "pahkatc",
	Short: "Pahkat package client",
	Long: `pahkatc - Pahkat package client

Drives the Pahkat cross-platform package engine: resolve packages against
configured repositories, download payloads, and install or uninstall them
through the platform-native store (Windows registry/msiexec, macOS
pkgutil/installer, or a portable tarball prefix).`,
	Version:           "0.1.0",
	PersistentPreRunE: initEngine,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&prefixPath, "prefix", "", "use a portable prefix install directory instead of the platform-native store")
	rootCmd.PersistentFlags().BoolVar(&userScope, "user", false, "operate at user scope instead of system scope")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}

func initEngine(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("PAHKAT_LOG")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if prefixPath != "" {
		e, err := pahkat.OpenPrefix(cmd.Context(), prefixPath, logger)
		if err != nil {
			return fmt.Errorf("opening prefix store: %w", err)
		}
		engine = e
		return nil
	}

	path := cfgFile
	if path == "" {
		path = pahkatconfig.DefaultConfigPath()
	}
	cfg, err := pahkatconfig.Load(path, pahkatconfig.ReadWrite, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	e, err := pahkat.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	engine = e
	return nil
}

func scope() pahkat.Scope {
	if userScope {
		return pahkat.ScopeUser
	}
	return pahkat.ScopeSystem
}
