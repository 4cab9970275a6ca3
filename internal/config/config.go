// Package config loads the server configuration from the environment, an
// optional .env file and an optional YAML channels file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tenorite/tenorite-server/internal/game"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	RedisURL    string
	NATSURL     string

	IdleTimeout time.Duration
	ListTimeout time.Duration

	ChannelsFile string
	Channels     []ChannelSpec
}

// ChannelSpec declares a permanent channel.
type ChannelSpec struct {
	Tempo string `yaml:"tempo"`
	Mode  string `yaml:"mode"`
	Name  string `yaml:"name"`
}

type channelsFile struct {
	Channels []ChannelSpec `yaml:"channels"`
}

// Load reads envFile (".env" when empty; a missing file is fine) and then
// the environment.
func Load(envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:    ":8080",
		IdleTimeout: 10 * time.Minute,
		ListTimeout: 200 * time.Millisecond,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	cfg.ChannelsFile = strings.TrimSpace(os.Getenv("CHANNELS_FILE"))

	var err error
	if cfg.IdleTimeout, err = durationEnv("CHANNEL_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return nil, err
	}
	if cfg.ListTimeout, err = durationEnv("LIST_TIMEOUT", cfg.ListTimeout); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveChannels fills Channels from ChannelsFile, or with the default
// set when no file is configured.
func (c *Config) ResolveChannels() error {
	if c.ChannelsFile == "" {
		c.Channels = DefaultChannels()
		return nil
	}
	specs, err := LoadChannels(c.ChannelsFile)
	if err != nil {
		return err
	}
	c.Channels = specs
	return nil
}

func LoadChannels(path string) ([]ChannelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading channels file: %w", err)
	}
	var f channelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing channels file: %w", err)
	}
	for i := range f.Channels {
		if f.Channels[i].Tempo == "" {
			f.Channels[i].Tempo = string(game.TempoNormal)
		}
		if f.Channels[i].Name == "" {
			f.Channels[i].Name = strings.ToLower(f.Channels[i].Mode)
		}
	}
	return f.Channels, nil
}

// DefaultChannels is one channel per mode and tempo, named after the mode.
func DefaultChannels() []ChannelSpec {
	var out []ChannelSpec
	for _, t := range game.Tempos {
		for _, m := range game.Modes() {
			out = append(out, ChannelSpec{
				Tempo: string(t),
				Mode:  string(m.ID),
				Name:  strings.ToLower(string(m.ID)),
			})
		}
	}
	return out
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("loading env file %s: %w", path, err)
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
