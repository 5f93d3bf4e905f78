// Package cli implements the ncloud command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

var rootCmd = &cobra.Command{
	Use:   "ncloud",
	Short: "Nextcloud command line client",
	Long: `ncloud talks to a Nextcloud server: accounts, groups, shares and files.

Credentials are stored in a settings file (see --config). Run 'ncloud login'
once to authorize the client; subsequent commands reuse and refresh the
stored token.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "", "Settings file (default: the user config directory)")
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "Log requests and responses")
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() hclog.Logger {
	level := hclog.Warn
	if verbose {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "ncloud",
		Level:  level,
		Output: os.Stderr,
	})
}

func loadSettings() (*nextcloud.Settings, error) {
	path := configPath
	if path == "" {
		p, err := nextcloud.DefaultSettingsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	settings, err := nextcloud.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	if settings.ApplicationName == "" {
		settings.ApplicationName = "ncloud"
	}
	if verbose {
		settings.LogRequest = 2
		settings.LogResult = 2
	}
	return settings, nil
}

func newClient() (*nextcloud.Client, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return nextcloud.New(settings, nextcloud.WithLogger(newLogger()))
}
