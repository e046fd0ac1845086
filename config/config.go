/*
Package config loads decipi's YAML configuration file and layers
command-line overrides on top of it, the way Config.go/Config Modify.go
load "Config Default.yaml" and then apply a ModifyConfig on top: a
missing or empty file falls back to an embedded default, and any overlay
field left at its zero value leaves the loaded value untouched.
*/
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

// PeerSeed is one entry of the initial peer seed list: a known worker or
// relay to attempt a handshake with on startup.
type PeerSeed struct {
	PublicKey string `yaml:"PublicKey"` // hex-encoded Ed25519 verify key
	Address   string `yaml:"Address"`   // ip:port
}

// Config is decipi's persisted configuration. cmd/decipi overrides some
// fields from command-line flags (see Overlay); the flag wins when set.
// LogFile, ListenWorkers and SeedList have no flag.
type Config struct {
	LogFile string `yaml:"LogFile"`

	Listen        string `yaml:"Listen"`        // ip:port to bind the UDP socket
	ListenWorkers int    `yaml:"ListenWorkers"` // packet-processing goroutines

	KeyStorePath string `yaml:"KeyStorePath"` // PEM identity file

	Entity    string `yaml:"Entity"`    // worker | participant | spectator
	ContestId string `yaml:"ContestId"` // hex-encoded 128-bit contest id

	ServerAddr string `yaml:"ServerAddr"` // bootstrap peer to connect to
	ServerPSK  string `yaml:"ServerPSK"`  // hex-encoded 32-byte pre-shared obfuscation key

	DiagnosticsAddr string `yaml:"DiagnosticsAddr"` // http status/events listen address, empty disables

	SeedList []PeerSeed `yaml:"SeedList"`
}

// Load reads filename as YAML. A nonexistent or empty file is treated as
// "use the built-in default" rather than an error, mirroring LoadConfig's
// stat-then-fallback behavior.
func Load(filename string) (Config, error) {
	var cfg Config

	data := defaultConfig
	if stat, err := os.Stat(filename); err == nil && stat.Size() > 0 {
		data, err = os.ReadFile(filename)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", filename, err)
		}
	} else if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: stat %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", filename, err)
	}
	return cfg, nil
}

// Save writes cfg back to filename as YAML.
func Save(filename string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshalling: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("config: writing %s: %w", filename, err)
	}
	return nil
}
