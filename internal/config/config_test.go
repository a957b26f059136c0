package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versadb/migrate"
)

func env(vars map[string]string) LookupEnv {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func load(t *testing.T, lookup LookupEnv, args ...string) *Configuration {
	t.Helper()
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse(args))
	c, err := Load(fs, lookup)
	require.NoError(t, err)
	return c
}

func TestValueOrDefault(t *testing.T) {
	lookup := env(map[string]string{EnvPlatform: "mariadb"})
	assert.Equal(t, "postgresql", ValueOrDefault(lookup, "postgresql", EnvPlatform, DefaultPlatform))
	assert.Equal(t, "mariadb", ValueOrDefault(lookup, "", EnvPlatform, DefaultPlatform))
	assert.Equal(t, DefaultPlatform, ValueOrDefault(env(nil), "", EnvPlatform, DefaultPlatform))
	assert.Equal(t, DefaultPlatform, ValueOrDefault(env(map[string]string{EnvPlatform: ""}), "", EnvPlatform, DefaultPlatform))
	assert.Equal(t, DefaultPlatform, ValueOrDefault(nil, "", EnvPlatform, DefaultPlatform))
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	c := load(t, env(nil))
	assert.Equal(t, wd, c.Workspace)
	assert.Equal(t, DefaultPlatform, c.Platform)
	assert.Equal(t, defaultCommandTimeout, c.CommandTimeout)
	assert.Equal(t, string(migrate.Session), c.TransactionMode)
	assert.Equal(t, "text", c.LogFormat)
	assert.Empty(t, c.Tokens)
}

func TestLoadFlags(t *testing.T) {
	c := load(t, env(map[string]string{EnvTokens: "owner=dbo, region=eu"}),
		"-p", "/ws", "-c", "postgres://localhost/sales", "-t", "v1.02", "-a",
		"-k", "env=dev", "--token", "app=billing",
		"--transaction-mode", "statement", "--continue-after-failure", "--meta-table", "ledger",
		"--connect-retries", "3", "--command-timeout", "5", "--verbose")

	assert.Equal(t, "/ws", c.Workspace)
	assert.Equal(t, "postgres", c.Platform)
	assert.Equal(t, []string{"env=dev", "app=billing", "owner=dbo", "region=eu"}, c.Tokens)
	assert.True(t, c.AutoCreateDatabase)
	assert.True(t, c.Verbose)

	cfg, err := c.Run(true, "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "/ws", cfg.Workspace)
	assert.Equal(t, "v1.02", cfg.TargetVersion)
	assert.Equal(t, migrate.PerScript, cfg.TransactionMode)
	assert.True(t, cfg.ContinueAfterFailure)
	assert.True(t, cfg.VerifyOnly)
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "1.2.3", cfg.AppliedByToolVersion)
	assert.Equal(t, migrate.Token{Key: "owner", Value: "dbo"}, cfg.Tokens[2])

	db := c.Database()
	assert.Equal(t, "ledger", db.MetaTableName)
	assert.Equal(t, uint(3), db.ConnectRetries)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("MIGRATE_TARGET_VERSION", "v2.00")
	t.Setenv("MIGRATE_LOG_FORMAT", "json")

	c := load(t, env(map[string]string{
		EnvWorkspace:        "/from/env",
		EnvConnectionString: "Server=localhost;Database=sales",
	}))
	assert.Equal(t, "/from/env", c.Workspace)
	assert.Equal(t, DefaultPlatform, c.Platform)
	assert.Equal(t, "v2.00", c.TargetVersion)
	assert.Equal(t, "json", c.LogFormat)

	// flags win
	c = load(t, env(nil), "--target-version", "v1.00")
	assert.Equal(t, "v1.00", c.TargetVersion)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "migrate.yaml"),
		[]byte("platform: sqlite\nmeta-schema: audit\nbulk-separator: \";\"\n"), 0o644))

	c := load(t, env(nil), "--config.source", dir, "--config.file", "migrate")
	assert.Equal(t, "sqlite", c.Platform)
	assert.Equal(t, "audit", c.MetaSchemaName)
	assert.Equal(t, ";", c.BulkSeparator)

	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse([]string{"--config.source", dir, "--config.file", "missing"}))
	_, err := Load(fs, env(nil))
	assert.ErrorContains(t, err, "cannot load configuration")
}

func TestRunConfigErrors(t *testing.T) {
	c := load(t, env(nil), "--transaction-mode", "nested")
	_, err := c.Run(false, "")
	var cfgErr *migrate.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "TransactionMode", cfgErr.Field)

	c = load(t, env(nil), "-k", "novalue")
	_, err = c.Run(false, "")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Tokens", cfgErr.Field)

	c = load(t, env(nil), "-t", "latest")
	_, err = c.Run(false, "")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "TargetVersion", cfgErr.Field)
}

func TestPrintJSON(t *testing.T) {
	c := &Configuration{Platform: "sqlserver", ConnectionString: "Server=.;Password=secret"}

	for _, redact := range []bool{true, false} {
		var buf bytes.Buffer
		require.NoError(t, PrintJSON(&buf, c, redact))
		var printed Configuration
		require.NoError(t, json.Unmarshal(buf.Bytes(), &printed))
		if redact {
			assert.Equal(t, Redacted, printed.ConnectionString)
			assert.NotContains(t, buf.String(), "secret")
		} else {
			assert.Equal(t, c.ConnectionString, printed.ConnectionString)
		}
		assert.Equal(t, "sqlserver", printed.Platform)
	}
	// the configuration itself is untouched
	assert.Equal(t, "Server=.;Password=secret", c.ConnectionString)
}
