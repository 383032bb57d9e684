package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Database  DatabaseConfig `yaml:"database"`
	Auth      AuthConfig     `yaml:"auth"`
	Code      CodeConfig     `yaml:"code"`
	Link      LinkConfig     `yaml:"link"`
	Discord   DiscordConfig  `yaml:"discord"`
	NATS      NATSConfig     `yaml:"nats"`
	Q3Servers []Q3Server     `yaml:"q3_servers"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
}

// DatabaseConfig holds SQLite settings. When LinksFile is set, links are
// persisted to that JSON file instead of the links table.
type DatabaseConfig struct {
	Path      string `yaml:"path"`
	LinksFile string `yaml:"links_file,omitempty"`
}

// AuthConfig holds API authentication and game permission settings
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenDuration      time.Duration `yaml:"token_duration"`
	DefaultPermissions []string      `yaml:"default_permissions"`
}

// CodeConfig controls link code generation and submission
type CodeConfig struct {
	Length              int           `yaml:"length"`
	Lowercase           bool          `yaml:"lowercase"`
	Lifetime            time.Duration `yaml:"lifetime"`
	SubmitRatePerMinute int           `yaml:"submit_rate_per_minute"`
	SubmitBurst         int           `yaml:"submit_burst"`
}

// LinkConfig controls what a link grants and how the command surfaces behave
type LinkConfig struct {
	Group                 string            `yaml:"group"`
	Roles                 []string          `yaml:"roles"`
	RevokeGroupOnLeave    bool              `yaml:"revoke_group_on_leave"`
	DeauthenticateOnLeave bool              `yaml:"deauthenticate_on_leave"`
	AuthCommands          []string          `yaml:"auth_commands"`
	DeauthCommands        []string          `yaml:"deauth_commands"`
	ChatPrefix            string            `yaml:"chat_prefix"`
	RoleWorkers           int               `yaml:"role_workers"`
	NotifyWorkers         int               `yaml:"notify_workers"`
	Messages              map[string]string `yaml:"messages,omitempty"`
}

// DiscordConfig holds bot credentials and endpoints
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
	APIURL  string `yaml:"api_url,omitempty"`
}

// NATSConfig controls event publishing and link hooks over NATS. An empty
// URL with Embedded false disables NATS entirely.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Embedded      bool          `yaml:"embedded"`
	EmbeddedPort  int           `yaml:"embedded_port"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Hooks         bool          `yaml:"hooks"`
	HookTimeout   time.Duration `yaml:"hook_timeout"`
}

// Q3Server represents a Quake 3 server whose players can link
type Q3Server struct {
	Name         string `yaml:"name"`
	Address      string `yaml:"address"`
	LogPath      string `yaml:"log_path"`
	RconPassword string `yaml:"rcon_password"`
}

// envOverrides are secrets and paths that may come from the environment
type envOverrides struct {
	DiscordToken   string `env:"TRINITY_LINK_DISCORD_TOKEN"`
	DiscordGuildID string `env:"TRINITY_LINK_DISCORD_GUILD_ID"`
	JWTSecret      string `env:"TRINITY_LINK_JWT_SECRET"`
	DatabasePath   string `env:"TRINITY_LINK_DATABASE_PATH"`
	NATSURL        string `env:"TRINITY_LINK_NATS_URL"`
	HTTPPort       int    `env:"TRINITY_LINK_HTTP_PORT"`
}

// Load reads configuration from a YAML file. A .env file next to it is
// loaded first, and TRINITY_LINK_* environment variables override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", dotenv, err)
	}

	cfg := Config{Link: LinkConfig{RevokeGroupOnLeave: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default filled in
func Default() *Config {
	cfg := Config{Link: LinkConfig{RevokeGroupOnLeave: true}}
	cfg.setDefaults()
	return &cfg
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	if o.DiscordToken != "" {
		c.Discord.Token = o.DiscordToken
	}
	if o.DiscordGuildID != "" {
		c.Discord.GuildID = o.DiscordGuildID
	}
	if o.JWTSecret != "" {
		c.Auth.JWTSecret = o.JWTSecret
	}
	if o.DatabasePath != "" {
		c.Database.Path = o.DatabasePath
	}
	if o.NATSURL != "" {
		c.NATS.URL = o.NATSURL
	}
	if o.HTTPPort != 0 {
		c.Server.HTTPPort = o.HTTPPort
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8081
	}
	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/trinity/trinity-link.db"
	}

	if c.Auth.TokenDuration == 0 {
		c.Auth.TokenDuration = 24 * time.Hour
	}
	if c.Auth.DefaultPermissions == nil {
		c.Auth.DefaultPermissions = []string{"trinitylink.auth", "trinitylink.deauth"}
	}

	if c.Code.Length == 0 {
		c.Code.Length = 5
	}
	if c.Code.Lifetime == 0 {
		c.Code.Lifetime = time.Hour
	}
	if c.Code.SubmitRatePerMinute == 0 {
		c.Code.SubmitRatePerMinute = 6
	}
	if c.Code.SubmitBurst == 0 {
		c.Code.SubmitBurst = 3
	}

	if c.Link.Group == "" {
		c.Link.Group = "authenticated"
	}
	if c.Link.Roles == nil {
		c.Link.Roles = []string{"Authenticated"}
	}
	if len(c.Link.AuthCommands) == 0 {
		c.Link.AuthCommands = []string{"auth", "authenticate"}
	}
	if len(c.Link.DeauthCommands) == 0 {
		c.Link.DeauthCommands = []string{"deauth", "deauthenticate"}
	}
	if c.Link.ChatPrefix == "" {
		c.Link.ChatPrefix = "^5(Auth)^7:"
	}
	if c.Link.RoleWorkers == 0 {
		c.Link.RoleWorkers = 4
	}
	if c.Link.NotifyWorkers == 0 {
		c.Link.NotifyWorkers = 4
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "trinitylink"
	}
	if c.NATS.EmbeddedPort == 0 {
		c.NATS.EmbeddedPort = 4222
	}
	if c.NATS.HookTimeout == 0 {
		c.NATS.HookTimeout = 2 * time.Second
	}
}

// Validate checks the settings serve needs
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return errors.New("discord.token is required")
	}
	if c.Discord.GuildID == "" {
		return errors.New("discord.guild_id is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Code.Length < 1 {
		return fmt.Errorf("code.length must be positive, got %d", c.Code.Length)
	}
	if c.Code.Lifetime < 0 {
		return fmt.Errorf("code.lifetime must not be negative, got %v", c.Code.Lifetime)
	}
	for i, s := range c.Q3Servers {
		if s.Address == "" {
			return fmt.Errorf("q3_servers[%d]: address is required", i)
		}
	}
	return nil
}

// Save writes cfg as YAML to path, readable only by the owner
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
