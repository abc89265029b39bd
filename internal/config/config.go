// Package config loads statemesh's YAML configuration file, overlays a
// .env file and environment variables on top of it, and resolves its
// kind-tagged sections into concrete core types.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"statemesh/core"
	"statemesh/internal/xerrors"
)

// DefaultPath is used when no -c/--config flag is given.
const DefaultPath = "./config.yml"

// Config is the root document: a version tag plus the component spec.
type Config struct {
	Version string `yaml:"version"`
	Spec    Spec   `yaml:"spec"`
}

// Spec groups the three configurable layers. Each is itself a
// kind-discriminated variant; "Default" (or an empty kind) selects the
// only implementation this build carries, and any other kind is a fatal
// configuration error.
type Spec struct {
	Agent      AgentConfig      `yaml:"agent"`
	State      StateConfig      `yaml:"state"`
	Connection ConnectionConfig `yaml:"connection"`
}

// AgentConfig configures the app-facing HTTP server.
type AgentConfig struct {
	Kind string `yaml:"kind"`
	Port uint16 `yaml:"port"`
}

// ConnectionConfig configures the peer-facing HTTP server, the gossip
// loops' tuning parameters, and peer discovery.
type ConnectionConfig struct {
	Kind string `yaml:"kind"`

	Port       uint16 `yaml:"port"`
	TargetPort uint16 `yaml:"target_port"`

	PushInterval int `yaml:"push_interval"` // ms
	PullInterval int `yaml:"pull_interval"` // ms
	R0           int `yaml:"r0"`            // fan-out width
	Timeout      int `yaml:"timeout"`       // ms, per-peer connect timeout

	PeerProvider core.PeerProvider  `yaml:"-"`
	RawProvider  taggedPeerProvider `yaml:"peer_provider"`
}

// StateConfig configures the state engine and its optional data seeder.
type StateConfig struct {
	Kind string `yaml:"kind"`

	TTL           *int64 `yaml:"ttl"`
	PurgeInterval int    `yaml:"purge_interval"` // ms

	DataSeeder    core.DataSeeder `yaml:"-"`
	RawDataSeeder taggedSeeder    `yaml:"data_seeder"`
}

const defaultKind = "Default"

func validKind(kind string) bool {
	return kind == "" || kind == defaultKind
}

// taggedPeerProvider and taggedSeeder hold the discriminated "kind" field
// plus the raw remainder, resolved into a concrete implementation after
// the surrounding document has been parsed.
type taggedPeerProvider struct {
	Kind string    `yaml:"kind"`
	Node yaml.Node `yaml:",inline"`
}

type taggedSeeder struct {
	Kind string    `yaml:"kind"`
	Node yaml.Node `yaml:",inline"`
}

// UnmarshalYAML captures the full mapping node so Kind can be read before
// deciding which concrete type to decode the rest into.
func (t *taggedPeerProvider) UnmarshalYAML(node *yaml.Node) error {
	var peek struct {
		Kind string `yaml:"kind"`
	}
	if err := node.Decode(&peek); err != nil {
		return fmt.Errorf("peer_provider: %w", err)
	}
	t.Kind = peek.Kind
	t.Node = *node
	return nil
}

func (t *taggedSeeder) UnmarshalYAML(node *yaml.Node) error {
	var peek struct {
		Kind string `yaml:"kind"`
	}
	if err := node.Decode(&peek); err != nil {
		return fmt.Errorf("data_seeder: %w", err)
	}
	t.Kind = peek.Kind
	t.Node = *node
	return nil
}

func (t taggedPeerProvider) resolve() (core.PeerProvider, error) {
	switch t.Kind {
	case "", "Static", "static":
		var p core.StaticProvider
		if err := t.Node.Decode(&p); err != nil {
			return nil, fmt.Errorf("peer_provider(static): %w", err)
		}
		return &p, nil
	case "K8s", "k8s", "Kubernetes", "kubernetes":
		var p core.KubernetesProvider
		if err := t.Node.Decode(&p); err != nil {
			return nil, fmt.Errorf("peer_provider(k8s): %w", err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("peer_provider: unknown kind %q", t.Kind)
	}
}

func (t taggedSeeder) resolve() (core.DataSeeder, error) {
	switch t.Kind {
	case "":
		return nil, nil
	case "File", "file":
		var s core.FileSeeder
		if err := t.Node.Decode(&s); err != nil {
			return nil, fmt.Errorf("data_seeder(file): %w", err)
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("data_seeder: unknown kind %q", t.Kind)
	}
}

// Load reads the YAML config at path, overlays a .env file in the working
// directory (if present) and STATEMESH_-prefixed environment variables, and resolves the
// tagged-union sections into concrete core types.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, xerrors.Wrap(err, "load .env")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(err, fmt.Sprintf("read config %q", path))
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STATEMESH")
	v.AutomaticEnv()
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, xerrors.Wrap(err, fmt.Sprintf("parse config %q", path))
	}
	merged, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, xerrors.Wrap(err, "re-encode overlaid config")
	}

	var cfg Config
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		return nil, xerrors.Wrap(err, fmt.Sprintf("decode config %q", path))
	}

	if !validKind(cfg.Spec.Agent.Kind) {
		return nil, fmt.Errorf("agent: unknown kind %q", cfg.Spec.Agent.Kind)
	}
	if !validKind(cfg.Spec.State.Kind) {
		return nil, fmt.Errorf("state: unknown kind %q", cfg.Spec.State.Kind)
	}
	if !validKind(cfg.Spec.Connection.Kind) {
		return nil, fmt.Errorf("connection: unknown kind %q", cfg.Spec.Connection.Kind)
	}

	provider, err := cfg.Spec.Connection.RawProvider.resolve()
	if err != nil {
		return nil, err
	}
	cfg.Spec.Connection.PeerProvider = provider

	seeder, err := cfg.Spec.State.RawDataSeeder.resolve()
	if err != nil {
		return nil, err
	}
	cfg.Spec.State.DataSeeder = seeder

	return &cfg, nil
}
