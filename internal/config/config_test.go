package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ringrelay.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultListenAddr, cfg.Network.ListenAddr)
	assert.Equal(t, DefaultInboundBuffer, cfg.Network.InboundBuffer)
	assert.Equal(t, DefaultSettleDelay, cfg.Daemon.SettleDelay)
	assert.Equal(t, DefaultUpgradePort, cfg.Upgrade.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "human", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestSampleRoundTrip(t *testing.T) {
	cfg := Default()
	var sample bytes.Buffer
	require.NoError(t, cfg.Sample(&sample))

	var doc map[string]any
	require.NoError(t, toml.Unmarshal(sample.Bytes(), &doc))
	for _, section := range []string{"general", "network", "daemon", "upgrade", "log", "metrics", "display"} {
		assert.Contains(t, doc, section)
	}
	assert.Equal(t, "200ms", doc["daemon"].(map[string]any)["settle_delay"])

	loaded, err := Load(writeConfig(t, sample.String()), nil)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, *loaded, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("sample does not load back to defaults (-want +got):\n%s", diff)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
[network]
listen_addr = "127.0.0.1:7000"
bootstrap = ["10.0.0.1:9801", "10.0.0.2:9801"]
send_timeout = "2s"

[daemon]
settle_delay = "0s"

[log]
level = "debug"
`)
	t.Setenv("RINGRELAY_LOG_LEVEL", "warn")
	t.Setenv("RINGRELAY_UPGRADE_PORT", "9900")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.String("listen", "", "")
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse([]string{"--listen", "127.0.0.1:7100"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7100", cfg.Network.ListenAddr)
	assert.Equal(t, []string{"10.0.0.1:9801", "10.0.0.2:9801"}, cfg.Network.Bootstrap)
	assert.Equal(t, 2*time.Second, cfg.Network.SendTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9900, cfg.Upgrade.Port)
	assert.Zero(t, cfg.Daemon.SettleDelay)
	assert.Equal(t, DefaultCommandBuffer, cfg.Daemon.CommandBuffer)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"listen addr":    func(c *Config) { c.Network.ListenAddr = "nohost" },
		"bootstrap addr": func(c *Config) { c.Network.Bootstrap = []string{"10.0.0.1"} },
		"send timeout":   func(c *Config) { c.Network.SendTimeout = -time.Second },
		"upgrade port":   func(c *Config) { c.Upgrade.Port = 70000 },
		"debug addr":     func(c *Config) { c.Metrics.DebugAddr = "6060" },
		"log level":      func(c *Config) { c.Log.Level = "loud" },
		"log format":     func(c *Config) { c.Log.Format = "xml" },
		"command buffer": func(c *Config) { c.Daemon.CommandBuffer = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
}

func TestPathResolvesAgainstHome(t *testing.T) {
	cfg := Default()
	cfg.General.Home = "/var/lib/ringrelay"
	assert.Equal(t, "/var/lib/ringrelay/history.jsonl", cfg.Path("history.jsonl"))
	assert.Equal(t, "/tmp/h.jsonl", cfg.Path("/tmp/h.jsonl"))
	assert.Equal(t, "", cfg.Path(""))
}
