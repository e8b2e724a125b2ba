package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsync/internal/attrs"
	"netsync/replication"
)

const sample = `
role: authority
listen: ":9000"
tickRate: 30
channels:
  - message: position
    authority:
      to: {kind: all}
      from: {kind: include, conns: [2]}
    peer: from
  - message: name
    authority:
      to: {kind: except, conns: [3]}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 30, cfg.TickRate)
	assert.Equal(t, Default().CatchupMaxTicks, cfg.CatchupMaxTicks)
	require.Len(t, cfg.Channels, 2)

	ch, ok := cfg.Channel(attrs.PositionMessage)
	require.True(t, ok)
	rec, err := ch.Record()
	require.NoError(t, err)
	to, _ := rec.Authority.To()
	from, _ := rec.Authority.From()
	assert.Equal(t, "All", to.String())
	assert.Equal(t, "Include(2)", from.String())
	assert.True(t, rec.Authority.Hazard())
	assert.Equal(t, replication.PeerFrom, rec.Peer)
}

func TestLoadAppliesEnvironment(t *testing.T) {
	t.Setenv("NETSYNC_ROLE", "peer")
	t.Setenv("NETSYNC_AUTHORITY_URL", "ws://example:1/ws")
	t.Setenv("NETSYNC_TICK_RATE", "5")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, RolePeer, cfg.Role)
	assert.Equal(t, "ws://example:1/ws", cfg.AuthorityURL)
	assert.Equal(t, 5, cfg.TickRate)
	assert.Equal(t, ":9000", cfg.Listen, "unset variables keep the file value")
}

func TestApplyEnvWithCustomEnvironment(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{"NETSYNC_METRICS_ENABLED": "false", "NETSYNC_LOG_SEVERITY": "debug", "NETSYNC_PPROF": "true"},
	})
	require.NoError(t, err)
	assert.False(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Observability.EnablePprof)
	assert.Equal(t, "debug", cfg.Logging.Severity)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Decode([]byte("tickrate: 3\n"), &cfg)
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Role = "observer"
	cfg.TickRate = 0
	cfg.Channels = []ChannelConfig{
		{Message: "position", Peer: "sideways"},
		{Message: "position"},
		{Authority: DirectionConfig{To: &SpecConfig{Kind: "some"}}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, fragment := range []string{"role", "tickRate", "sideways", "duplicate message", "channels[2].message"} {
		assert.Contains(t, err.Error(), fragment)
	}
}

func TestValidateRejectsUnknownMessage(t *testing.T) {
	cfg := Default()
	cfg.Channels = []ChannelConfig{{Message: "posiiton"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown message "posiiton"`)
}

func TestChannelMatchesAliasAndFullType(t *testing.T) {
	cfg := Default()
	cfg.Channels = []ChannelConfig{
		{Message: "name", Peer: "to"},
		{Message: string(attrs.VisibilityMessage)},
	}
	require.NoError(t, cfg.Validate())

	ch, ok := cfg.Channel(attrs.NameMessage)
	require.True(t, ok)
	assert.Equal(t, "to", ch.Peer)
	_, ok = cfg.Channel(attrs.VisibilityMessage)
	assert.True(t, ok)
	_, ok = cfg.Channel(attrs.PositionMessage)
	assert.False(t, ok)

	cfg.Channels = append(cfg.Channels, ChannelConfig{Message: "visibility"})
	assert.ErrorContains(t, cfg.Validate(), "duplicate message")
}

func TestDirectionConfigNoneWhenEmpty(t *testing.T) {
	dir, err := DirectionConfig{}.Direction()
	require.NoError(t, err)
	_, sends := dir.To()
	_, receives := dir.From()
	assert.False(t, sends)
	assert.False(t, receives)
}

func TestSchemaListsRoleEnum(t *testing.T) {
	data, err := json.Marshal(Schema())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "netsync configuration", doc["title"])
	assert.Contains(t, string(data), `"authority"`)
	assert.Contains(t, string(data), `"channels"`)
}
