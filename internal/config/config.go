// Package config loads the node configuration from a TOML file, RINGRELAY_
// environment variables and command line flags, in increasing precedence.
package config

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ringrelay/internal/debuglog"
)

const EnvPrefix = "RINGRELAY"

// Defaults.
const (
	DefaultListenAddr      = "0.0.0.0:9801"
	DefaultInboundBuffer   = 10
	DefaultSendTimeout     = 5 * time.Second
	DefaultCandidateTTL    = 5 * time.Minute
	DefaultMaxConnsPerIP   = 16
	DefaultMaxStreamsPerIP = 256
	DefaultMaxHops         = 8
	DefaultSettleDelay     = 200 * time.Millisecond
	DefaultCommandBuffer   = 10
	DefaultUpgradePort     = 9803
	DefaultHistoryReplay   = 10
)

type Config struct {
	General General         `toml:"general" mapstructure:"general"`
	Network Network         `toml:"network" mapstructure:"network"`
	Daemon  Daemon          `toml:"daemon" mapstructure:"daemon"`
	Upgrade Upgrade         `toml:"upgrade" mapstructure:"upgrade"`
	Log     debuglog.Config `toml:"log" mapstructure:"log"`
	Metrics Metrics         `toml:"metrics" mapstructure:"metrics"`
	Display Display         `toml:"display" mapstructure:"display"`
}

type General struct {
	// Home holds node state. Relative paths elsewhere resolve against it.
	Home string `toml:"home" mapstructure:"home"`
	// PrivateKey is the PEM key file. Empty runs with an ephemeral identity.
	PrivateKey string `toml:"private_key" mapstructure:"private_key"`
}

type Network struct {
	ListenAddr      string        `toml:"listen_addr" mapstructure:"listen_addr"`
	AdvertiseAddr   string        `toml:"advertise_addr" mapstructure:"advertise_addr"`
	Bootstrap       []string      `toml:"bootstrap" mapstructure:"bootstrap"`
	Whitelist       []string      `toml:"whitelist" mapstructure:"whitelist"`
	InboundBuffer   int           `toml:"inbound_buffer" mapstructure:"inbound_buffer"`
	SendTimeout     time.Duration `toml:"send_timeout" mapstructure:"send_timeout"`
	CandidateTTL    time.Duration `toml:"candidate_ttl" mapstructure:"candidate_ttl"`
	MaxConnsPerIP   int           `toml:"max_conns_per_ip" mapstructure:"max_conns_per_ip"`
	MaxStreamsPerIP int           `toml:"max_streams_per_ip" mapstructure:"max_streams_per_ip"`
	MaxHops         int           `toml:"max_hops" mapstructure:"max_hops"`
}

type Daemon struct {
	SettleDelay   time.Duration `toml:"settle_delay" mapstructure:"settle_delay"`
	CommandBuffer int           `toml:"command_buffer" mapstructure:"command_buffer"`
}

type Upgrade struct {
	Port int `toml:"port" mapstructure:"port"`
	// Binary is the executable offered to peers. Empty serves the running one.
	Binary string `toml:"binary" mapstructure:"binary"`
}

type Metrics struct {
	// DebugAddr serves /metrics and, with Pprof, /debug/pprof. Empty disables
	// the debug server.
	DebugAddr   string `toml:"debug_addr" mapstructure:"debug_addr"`
	Pprof       bool   `toml:"pprof" mapstructure:"pprof"`
	AllowPublic bool   `toml:"allow_public" mapstructure:"allow_public"`
}

type Display struct {
	History string `toml:"history" mapstructure:"history"`
	Color   bool   `toml:"color" mapstructure:"color"`
	Replay  int    `toml:"replay" mapstructure:"replay"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	cfg.InitDefaults()
	return cfg
}

func (cfg *Config) InitDefaults() {
	if cfg.General.Home == "" {
		cfg.General.Home = defaultHome()
	}
	n := &cfg.Network
	if n.ListenAddr == "" {
		n.ListenAddr = DefaultListenAddr
	}
	if n.InboundBuffer == 0 {
		n.InboundBuffer = DefaultInboundBuffer
	}
	if n.SendTimeout == 0 {
		n.SendTimeout = DefaultSendTimeout
	}
	if n.CandidateTTL == 0 {
		n.CandidateTTL = DefaultCandidateTTL
	}
	if n.MaxConnsPerIP == 0 {
		n.MaxConnsPerIP = DefaultMaxConnsPerIP
	}
	if n.MaxStreamsPerIP == 0 {
		n.MaxStreamsPerIP = DefaultMaxStreamsPerIP
	}
	if n.MaxHops == 0 {
		n.MaxHops = DefaultMaxHops
	}
	if cfg.Daemon.SettleDelay == 0 {
		cfg.Daemon.SettleDelay = DefaultSettleDelay
	}
	if cfg.Daemon.CommandBuffer == 0 {
		cfg.Daemon.CommandBuffer = DefaultCommandBuffer
	}
	if cfg.Upgrade.Port == 0 {
		cfg.Upgrade.Port = DefaultUpgradePort
	}
	cfg.Log.InitDefaults()
	if cfg.Display.History == "" {
		cfg.Display.History = "history.jsonl"
	}
	if cfg.Display.Replay == 0 {
		cfg.Display.Replay = DefaultHistoryReplay
	}
}

func (cfg *Config) Validate() error {
	if _, _, err := net.SplitHostPort(cfg.Network.ListenAddr); err != nil {
		return errors.Wrapf(err, "network.listen_addr %q", cfg.Network.ListenAddr)
	}
	for _, addr := range cfg.Network.Bootstrap {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return errors.Wrapf(err, "network.bootstrap %q", addr)
		}
	}
	switch {
	case cfg.Network.InboundBuffer < 1:
		return errors.Errorf("network.inbound_buffer must be positive, got %d", cfg.Network.InboundBuffer)
	case cfg.Network.SendTimeout <= 0:
		return errors.Errorf("network.send_timeout must be positive, got %s", cfg.Network.SendTimeout)
	case cfg.Network.MaxHops < 1:
		return errors.Errorf("network.max_hops must be positive, got %d", cfg.Network.MaxHops)
	case cfg.Daemon.SettleDelay < 0:
		return errors.Errorf("daemon.settle_delay must not be negative, got %s", cfg.Daemon.SettleDelay)
	case cfg.Daemon.CommandBuffer < 1:
		return errors.Errorf("daemon.command_buffer must be positive, got %d", cfg.Daemon.CommandBuffer)
	case cfg.Upgrade.Port < 1 || cfg.Upgrade.Port > 65535:
		return errors.Errorf("upgrade.port out of range: %d", cfg.Upgrade.Port)
	}
	if cfg.Metrics.DebugAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.DebugAddr); err != nil {
			return errors.Wrapf(err, "metrics.debug_addr %q", cfg.Metrics.DebugAddr)
		}
	}
	return cfg.Log.Validate()
}

// Path resolves p against the home directory.
func (cfg *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.General.Home, p)
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ringrelay"
	}
	return filepath.Join(home, ".ringrelay")
}

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"home":        "general.home",
	"private-key": "general.private_key",
	"listen":      "network.listen_addr",
	"advertise":   "network.advertise_addr",
	"bootstrap":   "network.bootstrap",
	"whitelist":   "network.whitelist",
	"log-level":   "log.level",
	"debug-addr":  "metrics.debug_addr",
}

// Load reads the file at path, when set, applies the environment and the
// flags listed in FlagKeys that were set on fs, then validates the result.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, val := range flatten(toMap(Default(), false), "") {
		v.SetDefault(key, val)
	}
	if fs != nil {
		for name, key := range FlagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const sampleHeader = `# ringrelay node configuration.
#
# Every key can be overridden with a RINGRELAY_<SECTION>_<KEY> environment
# variable, e.g. RINGRELAY_NETWORK_LISTEN_ADDR. Durations use Go syntax
# ("200ms", "5m").

`

// Sample writes the default configuration as TOML.
func (cfg *Config) Sample(dst io.Writer) error {
	b, err := toml.Marshal(toMap(*cfg, true))
	if err != nil {
		return errors.Wrap(err, "encode sample")
	}
	if _, err := io.WriteString(dst, sampleHeader); err != nil {
		return errors.WithStack(err)
	}
	_, err = dst.Write(b)
	return errors.WithStack(err)
}

var durationType = reflect.TypeOf(time.Duration(0))

// toMap converts a configuration struct into nested maps keyed by the
// mapstructure tags. With durationStrings set, durations render as "5s".
func toMap(v any, durationStrings bool) map[string]any {
	rv := reflect.ValueOf(v)
	out := make(map[string]any, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Type().Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		fv := rv.Field(i)
		switch {
		case fv.Type() == durationType && durationStrings:
			out[key] = time.Duration(fv.Int()).String()
		case fv.Kind() == reflect.Struct:
			out[key] = toMap(fv.Interface(), durationStrings)
		case fv.Kind() == reflect.Slice && fv.IsNil():
			out[key] = []string{}
		default:
			out[key] = fv.Interface()
		}
	}
	return out
}

func flatten(m map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			for sk, sv := range flatten(sub, key) {
				out[sk] = sv
			}
			continue
		}
		out[key] = v
	}
	return out
}
