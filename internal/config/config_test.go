package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "discord:\n  token: abc\n  guild_id: \"1\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Code.Length != 5 || cfg.Code.Lifetime != time.Hour || cfg.Code.Lowercase {
		t.Errorf("code defaults = %+v", cfg.Code)
	}
	if !cfg.Link.RevokeGroupOnLeave || cfg.Link.DeauthenticateOnLeave {
		t.Errorf("leave defaults = %+v", cfg.Link)
	}
	if cfg.Link.Group != "authenticated" || len(cfg.Link.Roles) != 1 || cfg.Link.Roles[0] != "Authenticated" {
		t.Errorf("link defaults = %+v", cfg.Link)
	}
	if len(cfg.Link.AuthCommands) != 2 || cfg.Link.AuthCommands[0] != "auth" {
		t.Errorf("auth commands = %v", cfg.Link.AuthCommands)
	}
	if cfg.Server.HTTPPort != 8081 || cfg.Auth.TokenDuration != 24*time.Hour {
		t.Errorf("server/auth defaults = %+v %+v", cfg.Server, cfg.Auth)
	}
	if cfg.NATS.SubjectPrefix != "trinitylink" || cfg.NATS.EmbeddedPort != 4222 {
		t.Errorf("nats defaults = %+v", cfg.NATS)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
code:
  length: 8
  lowercase: true
  lifetime: 90s
link:
  revoke_group_on_leave: false
  roles: []
  messages:
    authenticated: "linked to {guild}"
q3_servers:
  - name: ffa
    address: 127.0.0.1:27960
    log_path: /tmp/games.log
    rcon_password: secret
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Code.Length != 8 || !cfg.Code.Lowercase || cfg.Code.Lifetime != 90*time.Second {
		t.Errorf("code = %+v", cfg.Code)
	}
	if cfg.Link.RevokeGroupOnLeave {
		t.Error("explicit false revoke_group_on_leave overridden")
	}
	if cfg.Link.Roles == nil || len(cfg.Link.Roles) != 0 {
		t.Errorf("explicit empty roles = %#v", cfg.Link.Roles)
	}
	if cfg.Link.Messages["authenticated"] != "linked to {guild}" {
		t.Errorf("messages = %v", cfg.Link.Messages)
	}
	if len(cfg.Q3Servers) != 1 || cfg.Q3Servers[0].RconPassword != "secret" {
		t.Errorf("q3 servers = %+v", cfg.Q3Servers)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "discord:\n  token: from-file\n")
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte("TRINITY_LINK_JWT_SECRET=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRINITY_LINK_DISCORD_TOKEN", "from-env")
	t.Setenv("TRINITY_LINK_HTTP_PORT", "9000")
	// godotenv sets the variable process-wide; make sure it is cleaned up.
	t.Setenv("TRINITY_LINK_JWT_SECRET", "")
	os.Unsetenv("TRINITY_LINK_JWT_SECRET")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "from-env" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
	if cfg.Auth.JWTSecret != "from-dotenv" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("port = %d", cfg.Server.HTTPPort)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := Default()
	cfg.Discord.Token = "tok"
	cfg.Discord.GuildID = "42"
	cfg.Auth.JWTSecret = "s"
	cfg.Link.RevokeGroupOnLeave = false

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Discord.GuildID != "42" || loaded.Link.RevokeGroupOnLeave {
		t.Errorf("loaded = %+v", loaded)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("missing token accepted")
	}
	cfg.Discord.Token, cfg.Discord.GuildID, cfg.Auth.JWTSecret = "t", "g", "s"
	cfg.Q3Servers = []Q3Server{{Name: "nowhere"}}
	if err := cfg.Validate(); err == nil {
		t.Error("server without address accepted")
	}
}
