package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trifle/internal/auth"
)

// isolate points HOME and the working directory at fresh temp dirs and
// clears every env override.
func isolate(t *testing.T) (homeDir, workspace string) {
	t.Helper()
	homeDir = t.TempDir()
	workspace = t.TempDir()

	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(workspace); err != nil {
		t.Fatalf("chdir workspace: %v", err)
	}

	t.Setenv("HOME", homeDir)
	for _, key := range []string{
		configDirEnvKey, trustProjectConfigEnvKey,
		"TRIFLE_DB", "TRIFLE_API_URL", "TRIFLE_EMAIL", "TRIFLE_TOKEN", "TRIFLE_JWT_SECRET", "TRIFLE_DATA_DIR",
	} {
		t.Setenv(key, "")
	}
	return homeDir, workspace
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Remote.URL != "http://127.0.0.1:7333" {
		t.Fatalf("expected default API URL, got %q", cfg.Remote.URL)
	}
	if cfg.Local.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.Local.DBPath)
	}
	if cfg.Server.Backend != "fs" || !cfg.Server.VerifyFileHashes {
		t.Fatalf("unexpected server defaults %#v", cfg.Server)
	}
	if cfg.Server.MaxValueBytes != DefaultMaxValueBytes {
		t.Fatalf("expected max value default %d, got %d", DefaultMaxValueBytes, cfg.Server.MaxValueBytes)
	}
	if cfg.RemoteTimeout() != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.RemoteTimeout())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	writeFile(t, path, `log_level = "warn"

[remote]
url = "http://localhost:9999"
email = "alice@example.com"
timeout = "5s"

[server]
backend = "bolt"

[[server.tokens]]
email = "bob@example.com"
token_hash = "$2a$10$abc"
`)

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.URL != "http://localhost:9999" {
		t.Fatalf("expected remote.url, got %q", cfg.Remote.URL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.RemoteTimeout() != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %s", cfg.RemoteTimeout())
	}
	if cfg.Server.Backend != "bolt" {
		t.Fatalf("expected bolt backend, got %q", cfg.Server.Backend)
	}
	want := []auth.TokenEntry{{Email: "bob@example.com", TokenHash: "$2a$10$abc"}}
	if len(cfg.Server.Tokens) != 1 || cfg.Server.Tokens[0] != want[0] {
		t.Fatalf("unexpected tokens %#v", cfg.Server.Tokens)
	}
	if !cfg.Server.VerifyFileHashes {
		t.Fatal("unset keys should keep their defaults")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.trifle.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Remote.URL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	writeFile(t, path, "log_level = \n")
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{"log_level", "local.db_path", "remote.url", "remote.email", "server.backend", "server.rate_limit"} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	for _, key := range []string{"invalid", "server.tokens", "remote"} {
		if IsAllowedKey(key) {
			t.Fatalf("expected %q to not be allowed", key)
		}
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.Local.DBPath = "/tmp/test.db"
	cfg.Remote.Email = "alice@example.com"
	cfg.Remote.Token = "secret"
	cfg.Server.RateLimit = 2.5

	tests := map[string]string{
		"local.db_path":             "/tmp/test.db",
		"remote.email":              "alice@example.com",
		"remote.token":              "<set>",
		"server.jwt_secret":         "",
		"server.rate_limit":         "2.5",
		"server.verify_file_hashes": "true",
		"remote.parallelism":        "4",
	}
	for key, want := range tests {
		got, err := cfg.Get(key)
		if err != nil || got != want {
			t.Fatalf("%s: expected %q, got %q (err: %v)", key, want, got, err)
		}
	}
	for _, key := range AllowedKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Fatalf("allowed key %q has no getter: %v", key, err)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "new.toml")
	if err := SetKey(path, "remote.url", "http://sync.example.com"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.URL != "http://sync.example.com" {
		t.Fatalf("expected remote.url, got %q", cfg.Remote.URL)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	writeFile(t, path, "log_level = \"debug\"\n\n[remote]\nurl = \"http://keep\"\n")

	if err := SetKey(path, "remote.email", "Alice@Example.com"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetKey(path, "server.rate_burst", "7"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.Email != "alice@example.com" {
		t.Fatalf("expected lower-cased email, got %q", cfg.Remote.Email)
	}
	if cfg.Remote.URL != "http://keep" || cfg.LogLevel != "debug" {
		t.Fatalf("expected other keys preserved, got %#v", cfg)
	}
	if cfg.Server.RateBurst != 7 {
		t.Fatalf("expected rate_burst 7, got %d", cfg.Server.RateBurst)
	}
}

func TestSetKeyValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	for _, tc := range []struct{ key, value string }{
		{"invalid_key", "value"},
		{"server.backend", "s3"},
		{"server.max_value_bytes", "-1"},
		{"remote.parallelism", "zero"},
		{"remote.timeout", "soon"},
		{"server.verify_file_hashes", "maybe"},
		{"server.rate_limit", "-3"},
	} {
		if err := SetKey(path, tc.key, tc.value); err == nil {
			t.Fatalf("expected error for %s=%s", tc.key, tc.value)
		}
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadDefaultsUnderHome(t *testing.T) {
	homeDir, _ := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Local.DBPath != filepath.Join(homeDir, ".trifle", DefaultDBFileName) {
		t.Fatalf("unexpected db path %q", cfg.Local.DBPath)
	}
	if cfg.Server.DataDir != filepath.Join(homeDir, ".trifle", DefaultDataDirName) {
		t.Fatalf("unexpected data dir %q", cfg.Server.DataDir)
	}
	if cfg.Local.Owner != DefaultOwner {
		t.Fatalf("unexpected owner %q", cfg.Local.Owner)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	_, workspace := isolate(t)
	configDir := t.TempDir()
	writeFile(t, filepath.Join(configDir, configFileName), "[remote]\nurl = \"http://127.0.0.1:9001\"\n")
	writeFile(t, filepath.Join(workspace, configFileName), "[remote]\nurl = \"http://project\"\n")

	t.Setenv(configDirEnvKey, configDir)
	t.Setenv(trustProjectConfigEnvKey, "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.URL != "http://127.0.0.1:9001" {
		t.Fatalf("expected config-dir remote.url, got %q", cfg.Remote.URL)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatal("config dir override should skip the project file")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("TRIFLE_API_URL", "http://example.com:8080")
	t.Setenv("TRIFLE_DB", "/tmp/override.db")
	t.Setenv("TRIFLE_EMAIL", " Alice@Example.com ")
	t.Setenv("TRIFLE_TOKEN", "tok")
	t.Setenv("TRIFLE_JWT_SECRET", "shh")
	t.Setenv("TRIFLE_DATA_DIR", "/tmp/data")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.URL != "http://example.com:8080" {
		t.Fatalf("expected env override for API URL, got %q", cfg.Remote.URL)
	}
	if cfg.Local.DBPath != "/tmp/override.db" {
		t.Fatalf("expected env override for DB path, got %q", cfg.Local.DBPath)
	}
	if cfg.Remote.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", cfg.Remote.Email)
	}
	if cfg.Remote.Token != "tok" || cfg.Server.JWTSecret != "shh" || cfg.Server.DataDir != "/tmp/data" {
		t.Fatalf("unexpected overrides %#v", cfg)
	}
}

func TestLoadIgnoresProjectConfigByDefault(t *testing.T) {
	homeDir, workspace := isolate(t)
	writeFile(t, filepath.Join(homeDir, configFileName), "log_level = \"warn\"\n")
	writeFile(t, filepath.Join(workspace, configFileName), "log_level = \"error\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected global log level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("expected no trusted project config path, got %q", cfg.TrustedProjectConfigPath)
	}
}

func TestLoadAppliesProjectConfigWhenTrusted(t *testing.T) {
	homeDir, workspace := isolate(t)
	writeFile(t, filepath.Join(homeDir, configFileName), "log_level = \"warn\"\n")
	writeFile(t, filepath.Join(workspace, configFileName), "log_level = \"error\"\n")
	t.Setenv(trustProjectConfigEnvKey, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("expected trusted project log level 'error', got %q", cfg.LogLevel)
	}
	expectedPath := filepath.Join(workspace, configFileName)
	if cfg.TrustedProjectConfigPath != expectedPath {
		t.Fatalf("expected trusted project config path %q, got %q", expectedPath, cfg.TrustedProjectConfigPath)
	}
}

func TestLoadDoesNotTrustProjectConfigOnInvalidEnvValue(t *testing.T) {
	homeDir, workspace := isolate(t)
	writeFile(t, filepath.Join(homeDir, configFileName), "log_level = \"warn\"\n")
	writeFile(t, filepath.Join(workspace, configFileName), "log_level = \"error\"\n")
	t.Setenv(trustProjectConfigEnvKey, "definitely-not-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected global log level with invalid trust env, got %q", cfg.LogLevel)
	}
}

func TestProjectConfigTrusted(t *testing.T) {
	isolate(t)
	if ProjectConfigTrusted() {
		t.Fatal("project config must not be trusted by default")
	}
	t.Setenv(trustProjectConfigEnvKey, "yes-please")
	if ProjectConfigTrusted() {
		t.Fatal("an unparsable trust value must not trust the project config")
	}
	t.Setenv(trustProjectConfigEnvKey, "true")
	if !ProjectConfigTrusted() {
		t.Fatal("expected trusted project config")
	}
	t.Setenv(trustProjectConfigEnvKey, "")
	t.Setenv(configDirEnvKey, t.TempDir())
	if !ProjectConfigTrusted() {
		t.Fatal("an explicit config dir is always read")
	}
}
