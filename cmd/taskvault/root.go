package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	vaultDir string
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "taskvault",
	Short: "A plain-text task manager with a document-backed vault",
	Long: `Taskvault keeps every task and board as a human-readable text
document in a vault directory. The files are the durable source of
truth: they can be edited with any editor, synced with any file sync
tool, and inspected without the program.

Examples:
  taskvault add "Call the dentist" --context errands
  taskvault list --status next-action
  taskvault complete 4f1c
  taskvault boards
  taskvault watch`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return initLogging(viper.GetString("log-level"), verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "Path to the vault directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Also log to stderr")

	_ = viper.BindPFlag("vault", rootCmd.PersistentFlags().Lookup("vault"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig layers configuration: flags over environment over config
// file over defaults.
func initConfig() error {
	viper.SetEnvPrefix("TASKVAULT")
	viper.AutomaticEnv()

	if configDir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(configDir, "taskvault"))
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if viper.GetString("vault") == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot locate home directory, pass --vault: %w", err)
		}
		viper.SetDefault("vault", filepath.Join(home, "taskvault"))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
