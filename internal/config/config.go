// Package config loads the netsync runtime configuration from a YAML file
// with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"netsync/internal/attrs"
	"netsync/internal/observability"
	"netsync/logging"
	"netsync/replication"
)

const (
	RoleAuthority = "authority"
	RolePeer      = "peer"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "NETSYNC_"
)

// Config is the file format of netsync.yaml.
type Config struct {
	Role            string               `yaml:"role" json:"role" jsonschema:"enum=authority,enum=peer,description=Which side of the replication this process runs"`
	Listen          string               `yaml:"listen" json:"listen,omitempty" jsonschema:"description=HTTP listen address of the authority"`
	AuthorityURL    string               `yaml:"authorityUrl" json:"authorityUrl,omitempty" jsonschema:"description=Websocket URL a peer dials"`
	TickRate        int                  `yaml:"tickRate" json:"tickRate,omitempty" jsonschema:"minimum=1,description=Ticks per second"`
	CatchupMaxTicks int                  `yaml:"catchupMaxTicks" json:"catchupMaxTicks,omitempty" jsonschema:"minimum=1,description=Largest step delta in ticks after a stall"`
	Entities        int                  `yaml:"entities" json:"entities,omitempty" jsonschema:"minimum=0,description=Entities spawned by the demo world"`
	ResyncCapacity  int                  `yaml:"resyncCapacity" json:"resyncCapacity,omitempty" jsonschema:"minimum=1,description=Pending resync requests per channel before they collapse into a full resync"`
	Transport       TransportConfig      `yaml:"transport" json:"transport,omitempty"`
	Logging         LoggingConfig        `yaml:"logging" json:"logging,omitempty"`
	Metrics         MetricsConfig        `yaml:"metrics" json:"metrics,omitempty"`
	Observability   observability.Config `yaml:"observability" json:"observability,omitempty"`
	Channels        []ChannelConfig      `yaml:"channels" json:"channels,omitempty" jsonschema:"description=Per attribute replication directions"`
}

type TransportConfig struct {
	SendQueue  int     `yaml:"sendQueue" json:"sendQueue,omitempty" jsonschema:"minimum=1,description=Outbound frames buffered per connection"`
	InboxLimit int     `yaml:"inboxLimit" json:"inboxLimit,omitempty" jsonschema:"minimum=1,description=Inbound envelopes buffered per message type"`
	RateLimit  float64 `yaml:"rateLimit" json:"rateLimit,omitempty" jsonschema:"minimum=0,description=Inbound frames per second per connection; zero disables"`
	RateBurst  int     `yaml:"rateBurst" json:"rateBurst,omitempty" jsonschema:"minimum=0"`
}

type LoggingConfig struct {
	Severity      string        `yaml:"severity" json:"severity,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Console       bool          `yaml:"console" json:"console,omitempty"`
	JSONPath      string        `yaml:"jsonPath" json:"jsonPath,omitempty" jsonschema:"description=Append JSON lines to this file"`
	FlushInterval time.Duration `yaml:"flushInterval" json:"flushInterval,omitempty"`
	BufferSize    int           `yaml:"bufferSize" json:"bufferSize,omitempty" jsonschema:"minimum=1"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled,omitempty"`
	Namespace string `yaml:"namespace" json:"namespace,omitempty"`
}

// ChannelConfig sets the record directions used for one message type.
type ChannelConfig struct {
	Message   string          `yaml:"message" json:"message" jsonschema:"required"`
	Authority DirectionConfig `yaml:"authority" json:"authority,omitempty"`
	Peer      string          `yaml:"peer" json:"peer,omitempty" jsonschema:"enum=none,enum=to,enum=from"`
}

// DirectionConfig is an authority direction. Omitting both sides means None.
type DirectionConfig struct {
	To   *SpecConfig `yaml:"to,omitempty" json:"to,omitempty"`
	From *SpecConfig `yaml:"from,omitempty" json:"from,omitempty"`
}

// SpecConfig is a recipient spec. Conns is used by include and except.
type SpecConfig struct {
	Kind  string   `yaml:"kind" json:"kind" jsonschema:"enum=all,enum=none,enum=include,enum=except"`
	Conns []uint64 `yaml:"conns,omitempty" json:"conns,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Role:            RoleAuthority,
		Listen:          ":8080",
		AuthorityURL:    "ws://localhost:8080/ws",
		TickRate:        20,
		CatchupMaxTicks: 3,
		Entities:        8,
		ResyncCapacity:  replication.DefaultResyncCapacity,
		Transport: TransportConfig{
			SendQueue:  256,
			InboxLimit: 4096,
			RateLimit:  120,
			RateBurst:  240,
		},
		Logging: LoggingConfig{
			Severity:      "info",
			Console:       true,
			FlushInterval: time.Second,
			BufferSize:    1024,
		},
		Metrics: MetricsConfig{Enabled: true, Namespace: "netsync"},
	}
}

// envOverrides lists the settings that may be overridden from the
// environment. Unset variables leave the file value alone.
type envOverrides struct {
	Role         *string  `env:"ROLE"`
	Listen       *string  `env:"LISTEN"`
	AuthorityURL *string  `env:"AUTHORITY_URL"`
	TickRate     *int     `env:"TICK_RATE"`
	Entities     *int     `env:"ENTITIES"`
	RateLimit    *float64 `env:"RATE_LIMIT"`
	LogSeverity  *string  `env:"LOG_SEVERITY"`
	LogJSONPath  *string  `env:"LOG_JSON_PATH"`
	Metrics      *bool    `env:"METRICS_ENABLED"`
	Pprof        *bool    `env:"PPROF"`
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses YAML over cfg. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, opts env.Options) error {
	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setIf(&cfg.Role, overrides.Role)
	setIf(&cfg.Listen, overrides.Listen)
	setIf(&cfg.AuthorityURL, overrides.AuthorityURL)
	setIf(&cfg.TickRate, overrides.TickRate)
	setIf(&cfg.Entities, overrides.Entities)
	setIf(&cfg.Transport.RateLimit, overrides.RateLimit)
	setIf(&cfg.Logging.Severity, overrides.LogSeverity)
	setIf(&cfg.Logging.JSONPath, overrides.LogJSONPath)
	setIf(&cfg.Metrics.Enabled, overrides.Metrics)
	setIf(&cfg.Observability.EnablePprof, overrides.Pprof)
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	switch c.Role {
	case RoleAuthority:
		if c.Listen == "" {
			errs = append(errs, errors.New("listen: required for the authority"))
		}
	case RolePeer:
		if c.AuthorityURL == "" {
			errs = append(errs, errors.New("authorityUrl: required for a peer"))
		}
	default:
		errs = append(errs, fmt.Errorf("role: unknown role %q", c.Role))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tickRate: must be positive, got %d", c.TickRate))
	}
	if c.Entities < 0 {
		errs = append(errs, fmt.Errorf("entities: must not be negative, got %d", c.Entities))
	}
	if c.Transport.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("transport.rateLimit: must not be negative, got %v", c.Transport.RateLimit))
	}
	if _, err := logging.ParseSeverity(c.Logging.Severity); err != nil {
		errs = append(errs, fmt.Errorf("logging.severity: %w", err))
	}
	seen := make(map[replication.MessageType]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Message == "" {
			errs = append(errs, fmt.Errorf("channels[%d].message: required", i))
			continue
		}
		msg, ok := attrs.Lookup(ch.Message)
		if !ok {
			errs = append(errs, fmt.Errorf("channels[%d].message: unknown message %q", i, ch.Message))
		} else if seen[msg] {
			errs = append(errs, fmt.Errorf("channels[%d]: duplicate message %q", i, ch.Message))
		} else {
			seen[msg] = true
		}
		if _, err := ch.Record(); err != nil {
			errs = append(errs, fmt.Errorf("channels[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Channel returns the configuration of msg.
func (c Config) Channel(msg replication.MessageType) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if resolved, ok := attrs.Lookup(ch.Message); ok && resolved == msg {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// Record builds the replication record described by the channel.
func (c ChannelConfig) Record() (replication.Record, error) {
	authority, err := c.Authority.Direction()
	if err != nil {
		return replication.Record{}, err
	}
	peer, err := ParsePeerDirection(c.Peer)
	if err != nil {
		return replication.Record{}, err
	}
	return replication.NewRecord(authority, peer), nil
}

// Direction converts the config to an AuthorityDirection.
func (d DirectionConfig) Direction() (replication.AuthorityDirection, error) {
	var to, from replication.RecipientSpec
	var err error
	if d.To != nil {
		if to, err = d.To.Spec(); err != nil {
			return replication.AuthorityDirection{}, fmt.Errorf("authority.to: %w", err)
		}
	}
	if d.From != nil {
		if from, err = d.From.Spec(); err != nil {
			return replication.AuthorityDirection{}, fmt.Errorf("authority.from: %w", err)
		}
	}
	switch {
	case d.To != nil && d.From != nil:
		return replication.AuthorityToFrom(to, from), nil
	case d.To != nil:
		return replication.AuthorityTo(to), nil
	case d.From != nil:
		return replication.AuthorityFrom(from), nil
	default:
		return replication.AuthorityNone(), nil
	}
}

// Spec converts the config to a RecipientSpec.
func (s SpecConfig) Spec() (replication.RecipientSpec, error) {
	conns := make([]replication.ConnID, 0, len(s.Conns))
	for _, id := range s.Conns {
		conns = append(conns, replication.ConnID(id))
	}
	switch strings.ToLower(s.Kind) {
	case "all":
		return replication.All(), nil
	case "none":
		return replication.None(), nil
	case "include":
		return replication.Include(conns...), nil
	case "except":
		return replication.Except(conns...), nil
	default:
		return replication.RecipientSpec{}, fmt.Errorf("unknown recipient kind %q", s.Kind)
	}
}

// ParsePeerDirection accepts none, to and from. Empty means none.
func ParsePeerDirection(s string) (replication.PeerDirection, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return replication.PeerNone, nil
	case "to":
		return replication.PeerTo, nil
	case "from":
		return replication.PeerFrom, nil
	default:
		return replication.PeerNone, fmt.Errorf("peer: unknown direction %q", s)
	}
}
