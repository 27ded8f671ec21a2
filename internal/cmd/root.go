// Package cmd provides the command-line interface for the dataset builder.
// It handles command parsing, configuration loading, and stage execution.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tarum/picdataset/internal/config"
	"github.com/tarum/picdataset/internal/logging"
	"github.com/tarum/picdataset/internal/storage"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "picdataset",
	Short: "Build labeled image datasets from web sources",
	Long: `picdataset ingests images from web sources, deduplicates and
classifies them, and exports a labeled dataset for model training.

The pipeline runs as discrete stages: scrape, preprocess, classify,
caption, dedupe, export. Each stage reads and writes the shared SQLite
content store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCfg := logging.DefaultConfig()
		logCfg.Level = logging.ParseLevel(viper.GetString("log_level"))
		logCfg.FilePath = viper.GetString("log_file")
		return logging.SetDefault(logCfg)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./picdataset.yml)")
	rootCmd.PersistentFlags().StringP("database", "d", "./data/metadata.db", "Path to SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "Optional log file path (JSON, size-rotated)")

	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if show, _ := cmd.Flags().GetBool("show-config"); show {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return showCurrentConfig(cfg)
		}
		return cmd.Help()
	}

	for viperKey, flagName := range map[string]string{
		"database_path": "database",
		"log_level":     "log-level",
		"log_file":      "log-file",
	} {
		if err := viper.BindPFlag(viperKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", flagName, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("picdataset")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers viper values over the defaults.
func loadConfig() (*config.ScrapeConfig, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// openStore validates the configured path and opens the content store.
func openStore(cfg *config.ScrapeConfig) (*storage.SQLiteStore, error) {
	if cfg.DatabasePath == "" {
		return nil, config.ErrEmptyDatabasePath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func showCurrentConfig(cfg *config.ScrapeConfig) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: configuration validation failed: %v\n\n", err)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Printf("# Current picdataset configuration\n")
	fmt.Printf("# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Printf("# Config file search path: ./picdataset.yml, env prefix: PD_\n\n")
	fmt.Print(string(yamlData))

	return nil
}
