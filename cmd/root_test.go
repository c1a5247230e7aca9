// -- cmd/root_test.go --
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/operant/internal/config"
)

func TestInitializeViper_Defaults(t *testing.T) {
	v, err := initializeViper()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5000", v.GetString("server.listen"))
	assert.Equal(t, "gemini-3-pro-preview", v.GetString("model.model"))
	assert.Equal(t, 20, v.GetInt("agent.default_max_steps"))
}

func TestInitializeViper_EnvOverride(t *testing.T) {
	t.Setenv("OPERANT_SERVER_LISTEN", "0.0.0.0:9000")
	t.Setenv("GEMINI_API_KEY", "test-key")

	v, err := initializeViper()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", v.GetString("server.listen"))

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Model.APIKey)
}

func TestServeCmdFlags(t *testing.T) {
	serveCmd := newServeCmd()
	assert.NotNil(t, serveCmd.Flags().Lookup("listen"))
	assert.NotNil(t, serveCmd.Flags().Lookup("headless"))
}
