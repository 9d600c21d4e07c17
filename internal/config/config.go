// Package config loads relay and agent settings. Later sources override
// earlier ones: defaults, the --config file, environment variables,
// command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "2s" in config files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// User is a seeded login for the relay's auth endpoints.
type User struct {
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
}

// Relay configures the relay process.
type Relay struct {
	Addr        string `json:"addr" yaml:"addr"`
	Document    string `json:"document" yaml:"document"`
	RedisAddr   string `json:"redis_addr" yaml:"redis_addr"`
	DatabaseURL string `json:"database_url" yaml:"database_url"`
	RequireAuth bool   `json:"require_auth" yaml:"require_auth"`
	Users       []User `json:"users" yaml:"users"`
	Advertise   bool   `json:"advertise" yaml:"advertise"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
}

// DefaultRelay returns the relay defaults.
func DefaultRelay() Relay {
	return Relay{
		Addr:     ":3001",
		Document: "default",
		LogLevel: "info",
	}
}

// Agent configures a headless participant.
type Agent struct {
	RelayURL         string   `json:"relay_url" yaml:"relay_url"`
	AuthURL          string   `json:"auth_url" yaml:"auth_url"`
	Codec            string   `json:"codec" yaml:"codec"`
	UserID           string   `json:"user_id" yaml:"user_id"`
	Email            string   `json:"email" yaml:"email"`
	TokenFile        string   `json:"token_file" yaml:"token_file"`
	SnapshotInterval Duration `json:"snapshot_interval" yaml:"snapshot_interval"`
	Discover         bool     `json:"discover" yaml:"discover"`
	DumpState        bool     `json:"dump_state" yaml:"dump_state"`
	LogLevel         string   `json:"log_level" yaml:"log_level"`
}

// DefaultAgent returns the agent defaults.
func DefaultAgent() Agent {
	tokenFile := ".collabtext-token"
	if dir, err := os.UserConfigDir(); err == nil {
		tokenFile = filepath.Join(dir, "collabtext", "token")
	}
	return Agent{
		RelayURL:         "ws://localhost:3001/ws",
		Codec:            "json",
		TokenFile:        tokenFile,
		SnapshotInterval: Duration(2 * time.Second),
		LogLevel:         "info",
	}
}

// LoadFile decodes a YAML (.yaml, .yml) or JSON-with-comments file into v.
func LoadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), v)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// configPath finds --config in args without failing on other flags.
func configPath(name string, args []string) (string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.String("config", "", "")
	fs.BoolP("help", "h", false, "")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *path, nil
}

// LoadRelay builds the relay configuration from args and getenv.
func LoadRelay(args []string, getenv func(string) string) (Relay, error) {
	cfg := DefaultRelay()
	path, err := configPath("relay", args)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	setString(&cfg.Addr, getenv("COLLABTEXT_ADDR"))
	if port := getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	setString(&cfg.Document, getenv("COLLABTEXT_DOCUMENT"))
	setString(&cfg.RedisAddr, getenv("REDIS_ADDR"))
	setString(&cfg.DatabaseURL, getenv("DATABASE_URL"))
	setString(&cfg.LogLevel, getenv("COLLABTEXT_LOG_LEVEL"))
	if err := setBool(&cfg.RequireAuth, "COLLABTEXT_REQUIRE_AUTH", getenv); err != nil {
		return cfg, err
	}

	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	fs.String("config", path, "config file (.json, .jsonc, .yaml)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on")
	fs.StringVar(&cfg.Document, "document", cfg.Document, "document name, used as the redis channel")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for multi-relay fan-out (empty: in-process)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres url for auth (empty: in-memory)")
	fs.BoolVar(&cfg.RequireAuth, "require-auth", cfg.RequireAuth, "reject websocket clients without a valid token")
	fs.BoolVar(&cfg.Advertise, "advertise", cfg.Advertise, "advertise the relay over mDNS")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadAgent builds the agent configuration from args and getenv.
func LoadAgent(args []string, getenv func(string) string) (Agent, error) {
	cfg := DefaultAgent()
	path, err := configPath("agent", args)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	setString(&cfg.RelayURL, getenv("COLLABTEXT_RELAY_URL"))
	setString(&cfg.AuthURL, getenv("COLLABTEXT_AUTH_URL"))
	setString(&cfg.Codec, getenv("COLLABTEXT_CODEC"))
	setString(&cfg.UserID, getenv("COLLABTEXT_USER_ID"))
	setString(&cfg.Email, getenv("COLLABTEXT_EMAIL"))
	setString(&cfg.TokenFile, getenv("COLLABTEXT_TOKEN_FILE"))
	setString(&cfg.LogLevel, getenv("COLLABTEXT_LOG_LEVEL"))

	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	fs.String("config", path, "config file (.json, .jsonc, .yaml)")
	fs.StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "relay websocket url")
	fs.StringVar(&cfg.AuthURL, "auth", cfg.AuthURL, "auth base url (empty: no login)")
	fs.StringVar(&cfg.Codec, "codec", cfg.Codec, "wire codec: json or cbor")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user id for selections (empty: random)")
	fs.StringVar(&cfg.Email, "email", cfg.Email, "login email")
	fs.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "where the auth token is kept")
	fs.DurationVar((*time.Duration)(&cfg.SnapshotInterval), "snapshot-interval", time.Duration(cfg.SnapshotInterval), "minimum spacing of snapshot pushes")
	fs.BoolVar(&cfg.Discover, "discover", cfg.Discover, "find the relay over mDNS")
	fs.BoolVar(&cfg.DumpState, "dump-state", cfg.DumpState, "log full states on every dispatch (debug level)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string, getenv func(string) string) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("%s: not a boolean: %q", key, v)
	}
	return nil
}
