// Package config merges defaults, an optional YAML file and command line flags.
package config

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	DefaultAPIListenAddr  = ":8080"
	DefaultWSListenAddr   = ":8888"
	DefaultLogLevel       = "debug"
	DefaultRoomCodeLength = 6
	DefaultOutboundBuffer = 64

	minRoomCodeLength = 4
	maxRoomCodeLength = 16
)

var (
	ErrEmptyListenAddr    = errors.New("listen address must not be empty")
	ErrRoomCodeLength     = fmt.Errorf("room code length must be in [%d, %d]", minRoomCodeLength, maxRoomCodeLength)
	ErrOutboundBufferSize = errors.New("outbound buffer must be positive")
)

type Config struct {
	APIListenAddr  string `koanf:"api_listen_addr"`
	WSListenAddr   string `koanf:"ws_listen_addr"`
	LogLevel       string `koanf:"log_level"`
	RoomCodeLength int    `koanf:"room_code_length"`
	OutboundBuffer int    `koanf:"outbound_buffer"`
}

func Default() Config {
	return Config{
		APIListenAddr:  DefaultAPIListenAddr,
		WSListenAddr:   DefaultWSListenAddr,
		LogLevel:       DefaultLogLevel,
		RoomCodeLength: DefaultRoomCodeLength,
		OutboundBuffer: DefaultOutboundBuffer,
	}
}

// Flags defines command line flags on fs.
func Flags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringP("config", "c", "", "path to yaml config file")
	fs.StringP("api-listen-addr", "a", d.APIListenAddr, "api listen address")
	fs.StringP("ws-listen-addr", "w", d.WSListenAddr, "websocket signaling listen address")
	fs.StringP("log-level", "l", d.LogLevel, "log level")
	fs.Int("room-code-length", d.RoomCodeLength, "length of generated room codes")
	fs.Int("outbound-buffer", d.OutboundBuffer, "per-connection outbound queue size")
}

// Load builds the config from parsed flags. Values come from defaults,
// then the config file if --config is given, then flags set explicitly.
func Load(fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	path, err := fs.GetString("config")
	if err != nil {
		return cfg, err
	}
	if path != "" {
		k := koanf.New(".")
		if err = k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		if err = k.Unmarshal("", &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	for flag, dst := range map[string]*string{
		"api-listen-addr": &cfg.APIListenAddr,
		"ws-listen-addr":  &cfg.WSListenAddr,
		"log-level":       &cfg.LogLevel,
	} {
		if fs.Changed(flag) {
			if *dst, err = fs.GetString(flag); err != nil {
				return cfg, err
			}
		}
	}
	for flag, dst := range map[string]*int{
		"room-code-length": &cfg.RoomCodeLength,
		"outbound-buffer":  &cfg.OutboundBuffer,
	} {
		if fs.Changed(flag) {
			if *dst, err = fs.GetInt(flag); err != nil {
				return cfg, err
			}
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.APIListenAddr == "" || c.WSListenAddr == "" {
		errs = append(errs, ErrEmptyListenAddr)
	}
	if c.RoomCodeLength < minRoomCodeLength || c.RoomCodeLength > maxRoomCodeLength {
		errs = append(errs, ErrRoomCodeLength)
	}
	if c.OutboundBuffer < 1 {
		errs = append(errs, ErrOutboundBufferSize)
	}
	return errors.Join(errs...)
}
