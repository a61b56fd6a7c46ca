package cli

import (
	"fmt"

	"github.com/harun/chatguard/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up chatguard.
The wizard walks through session limits, the gateway listener and logging.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	wizard := config.NewWizardIO(cmd.InOrStdin(), cmd.OutOrStdout())

	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "\nYou can now start chatguard with: chatguard start")

	return nil
}
