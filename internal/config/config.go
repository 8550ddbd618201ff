package config

import (
	"fmt"
	"os"
	"strings"

	"word_armor/internal/payload"
	"word_armor/internal/protocol/permutation"

	"github.com/BurntSushi/toml"
)

const (
	EnvSeed       = "WORD_ARMOR_SEED"
	EnvServerAddr = "WORD_ARMOR_SERVER_ADDR"
	EnvRedisAddr  = "WORD_ARMOR_REDIS_ADDR"
	EnvMongoURI   = "WORD_ARMOR_MONGO_URI"
)

type (
	Config struct {
		LogLevel   string           `toml:"log_level"`
		Server     ServerConfig     `toml:"server"`
		Armor      ArmorConfig      `toml:"armor"`
		Dictionary DictionaryConfig `toml:"dictionary"`
		Mongo      MongoConfig      `toml:"mongo"`
		Redis      RedisConfig      `toml:"redis"`
	}

	ServerConfig struct {
		Addr string `toml:"addr"`
	}

	ArmorConfig struct {
		// Seed is a decimal 128-bit integer or 0x-prefixed hex.
		Seed        string `toml:"seed"`
		SoftLimit   int    `toml:"soft_limit"`
		Compression string `toml:"compression"`
	}

	DictionaryConfig struct {
		Path    string `toml:"path"`
		Version string `toml:"version"`
	}

	MongoConfig struct {
		URI      string `toml:"uri"`
		Database string `toml:"database"`
	}

	RedisConfig struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	}
)

func Default() Config {
	return Config{
		LogLevel: "info",
		Server:   ServerConfig{Addr: "localhost:9090"},
		Armor: ArmorConfig{
			SoftLimit:   160,
			Compression: "zstd",
		},
		Dictionary: DictionaryConfig{Version: "v1"},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "word_armor",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvSeed)); v != "" {
		cfg.Armor.Seed = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMongoURI)); v != "" {
		cfg.Mongo.URI = v
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("config missing server.addr")
	}
	if cfg.Armor.SoftLimit < 0 {
		return fmt.Errorf("armor.soft_limit must not be negative")
	}
	if cfg.Armor.Seed != "" {
		if _, err := permutation.ParseSeed(cfg.Armor.Seed); err != nil {
			return fmt.Errorf("armor.seed: %w", err)
		}
	}
	if _, err := payload.ParseCompression(cfg.Armor.Compression); err != nil {
		return fmt.Errorf("armor.compression: %w", err)
	}
	if strings.TrimSpace(cfg.Dictionary.Path) == "" && strings.TrimSpace(cfg.Dictionary.Version) == "" {
		return fmt.Errorf("config needs dictionary.path or dictionary.version")
	}
	return nil
}

// Seed parses the configured seed; it fails when none is set.
func (c Config) Seed() (permutation.Seed, error) {
	if strings.TrimSpace(c.Armor.Seed) == "" {
		return permutation.Seed{}, fmt.Errorf("armor.seed is not set (config or %s)", EnvSeed)
	}
	return permutation.ParseSeed(c.Armor.Seed)
}

func (c Config) Compression() payload.Compression {
	comp, _ := payload.ParseCompression(c.Armor.Compression)
	return comp
}

const Template = `log_level = "info"

[server]
addr = "localhost:9090"

[armor]
seed = "0x0123456789abcdef0123456789abcdef"
soft_limit = 160
compression = "zstd"

[dictionary]
path = "words.txt"
version = "v1"

[mongo]
uri = "mongodb://localhost:27017"
database = "word_armor"

[redis]
addr = "localhost:6379"
password = ""
db = 0
`
