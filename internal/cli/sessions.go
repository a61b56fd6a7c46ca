package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/chatguard/pkg/gateway"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage sessions on a running daemon",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsEnd,
}

var sessionsBlockCmd = &cobra.Command{
	Use:   "block <session-id>",
	Short: "Block a session so further interactions are rejected",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsBlock,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsEndCmd)
	sessionsCmd.AddCommand(sessionsBlockCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func sessionsClient() (*apiClient, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Gateway.Enabled {
		return nil, fmt.Errorf("gateway is disabled in %s", cfgFileOrDefault())
	}
	return newAPIClient(cfg), nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	client, err := sessionsClient()
	if err != nil {
		return err
	}
	return listSessions(cmd, client)
}

func listSessions(cmd *cobra.Command, client *apiClient) error {
	var list gateway.SessionList
	if err := client.do(commandContext(cmd), http.MethodGet, "/api/sessions", nil, &list); err != nil {
		return err
	}

	if list.Count == 0 {
		cmd.Println("No live sessions.")
		return nil
	}

	cmd.Printf("Live sessions (%d):\n", list.Count)
	for _, s := range list.Sessions {
		remaining := time.Until(s.ExpiresAt).Round(time.Second)
		if remaining < 0 {
			remaining = 0
		}
		cmd.Printf("- %s | owner: %s | status: %s | interactions: %d | expires in: %s\n",
			s.ID, s.OwnerID, s.Status, s.InteractionCount, remaining)
	}
	return nil
}

func runSessionsEnd(cmd *cobra.Command, args []string) error {
	client, err := sessionsClient()
	if err != nil {
		return err
	}
	return endSession(cmd, client, args[0])
}

func endSession(cmd *cobra.Command, client *apiClient, id string) error {
	id = strings.TrimSpace(id)
	if err := client.do(commandContext(cmd), http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	cmd.Printf("Session %s ended.\n", id)
	return nil
}

func runSessionsBlock(cmd *cobra.Command, args []string) error {
	client, err := sessionsClient()
	if err != nil {
		return err
	}
	return blockSession(cmd, client, args[0])
}

func blockSession(cmd *cobra.Command, client *apiClient, id string) error {
	id = strings.TrimSpace(id)
	if err := client.do(commandContext(cmd), http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/block", nil, nil); err != nil {
		return err
	}
	cmd.Printf("Session %s blocked.\n", id)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func cfgFileOrDefault() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "the default config"
}
