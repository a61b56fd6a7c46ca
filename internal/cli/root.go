package cli

import (
	"github.com/harun/chatguard/internal/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatguard",
	Short: "chatguard - chat session guard",
	Long: `chatguard keeps the session state for a chat service in memory.
It issues sessions, enforces a per-minute interaction rate and a lifetime
interaction cap, and expires idle sessions, behind a small HTTP API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chatguard/chatguard.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// loadConfig loads the config named by --config and applies --log-level.
func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return loader, cfg, nil
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
