package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsync/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"serve", "join", "schema"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestSchemaCommandWritesStdout(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"schema"})
	require.NoError(t, root.Execute())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "netsync configuration", doc["title"])
}

func TestSchemaCommandWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "schema.json")
	root := NewRootCommand()
	root.SetArgs([]string{"schema", "--out", path})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"channels"`)
}

func TestLoadConfigAppliesOverride(t *testing.T) {
	cfg, err := loadConfig("", func(cfg *config.Config) {
		cfg.Role = config.RolePeer
		cfg.AuthorityURL = "ws://authority:9/ws"
	})
	require.NoError(t, err)
	assert.Equal(t, config.RolePeer, cfg.Role)
	assert.Equal(t, "ws://authority:9/ws", cfg.AuthorityURL)

	_, err = loadConfig("", func(cfg *config.Config) { cfg.TickRate = 0 })
	assert.Error(t, err)
}

func TestJoinRejectsExtraArguments(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"join", "ws://a", "ws://b"})
	assert.Error(t, root.Execute())
}
