package cli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/harun/chatguard/pkg/gateway"
	"github.com/harun/chatguard/pkg/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testSecret = "cli-test-secret"

// newTestGateway serves a real gateway handler and returns a client for it.
func newTestGateway(t *testing.T) (*apiClient, *session.Manager) {
	t.Helper()

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	manager, err := session.NewManager(session.ManagerOptions{Logger: &logger})
	require.NoError(t, err)

	server, err := gateway.NewServer(gateway.ServerOptions{SharedSecret: testSecret}, manager, nil, nil, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	client := &apiClient{baseURL: ts.URL, secret: testSecret, http: ts.Client()}
	return client, manager
}

func hasCommand(name string) bool {
	for _, c := range GetRootCmd().Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}

func helpOutput(t *testing.T, args ...string) string {
	t.Helper()

	cmd := GetRootCmd()
	cmd.SetArgs(append(args, "--help"))
	output := &bytes.Buffer{}
	cmd.SetOut(output)

	require.NoError(t, cmd.Execute())
	return output.String()
}

func captureCommand() (*cobra.Command, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd, out
}
