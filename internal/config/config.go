// Package config builds the configuration of the migrate command from
// flags, MIGRATE_* environment variables and an optional configuration
// file, in that order of precedence.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/versadb/migrate"
	"github.com/versadb/migrate/database"
	iurl "github.com/versadb/migrate/internal/url"
)

// Environment variables read through ValueOrDefault. Every other option is
// read from MIGRATE_<FLAG> by viper, with . and - replaced by _.
const (
	EnvWorkspace        = "MIGRATE_WORKSPACE"
	EnvPlatform         = "MIGRATE_PLATFORM"
	EnvConnectionString = "MIGRATE_CONNECTION_STRING"
	EnvTokens           = "MIGRATE_TOKENS"
)

// DefaultPlatform is used when neither a flag, the environment nor the
// connection string name a platform.
const DefaultPlatform = "sqlserver"

// Redacted replaces sensitive values in PrintJSON.
const Redacted = "<sensitive-data-redacted>"

const (
	defaultConfigDirectory = "."
	defaultCommandTimeout  = 30
	defaultLogFormat       = "text"
)

// LookupEnv looks up an environment variable, like os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Configuration is the configuration of one invocation.
type Configuration struct {
	Workspace            string   `json:"workspace"`
	Platform             string   `json:"platform"`
	ConnectionString     string   `json:"connectionString"`
	CommandTimeout       int      `json:"commandTimeout"`
	ConnectRetries       uint     `json:"connectRetries"`
	TargetVersion        string   `json:"targetVersion"`
	AutoCreateDatabase   bool     `json:"autoCreateDatabase"`
	Tokens               []string `json:"tokens"`
	BulkSeparator        string   `json:"bulkSeparator"`
	BulkBatchSize        int      `json:"bulkBatchSize"`
	Environment          string   `json:"environment"`
	MetaSchemaName       string   `json:"metaSchemaName"`
	MetaTableName        string   `json:"metaTableName"`
	TransactionMode      string   `json:"transactionMode"`
	ContinueAfterFailure bool     `json:"continueAfterFailure"`
	RequiredClearedDraft bool     `json:"requiredClearedDraft"`
	Force                bool     `json:"force"`
	Major                bool     `json:"major"`
	Verbose              bool     `json:"verbose"`
	LogFormat            string   `json:"logFormat"`
	TraceSensitiveData   bool     `json:"traceSensitiveData"`
}

// Flags registers the flags of the migrate command on fs.
func Flags(fs *pflag.FlagSet) {
	fs.StringP("path", "p", "", "workspace directory (default: current directory)")
	fs.String("platform", "", "target platform (default: the connection string scheme, else "+DefaultPlatform+")")
	fs.StringP("connection-string", "c", "", "connection string of the target database")
	fs.Int("command-timeout", defaultCommandTimeout, "seconds a statement may run, 0 disables the timeout")
	fs.Uint("connect-retries", 0, "extra attempts to connect to an unreachable server")
	fs.StringP("target-version", "t", "", "highest version to apply (default: the latest)")
	fs.BoolP("auto-create-db", "a", false, "create the target database when it does not exist")
	fs.StringArrayP("token", "k", nil, "token replacing ${key} in scripts, as key=value, repeatable")
	fs.String("bulk-separator", "", "field separator of data files (default: ,)")
	fs.Int("bulk-batch-size", 0, "rows per bulk insert (default: 0, the platform default)")
	fs.String("environment", "", "environment selecting _<env> folders and files")
	fs.String("meta-schema", "", "schema of the ledger table (default: the platform default)")
	fs.String("meta-table", "", "name of the ledger table (default: "+database.DefaultMetaTable+")")
	fs.String("transaction-mode", string(migrate.Session), "session or statement")
	fs.Bool("continue-after-failure", false, "record a failed version and go on with the next one")
	fs.Bool("require-cleared-draft", false, "fail when _draft holds any script")
	fs.BoolP("force", "f", false, "run: reapply applied versions, erase: confirm erasing")
	fs.BoolP("major", "m", false, "vnext: increment the major version")
	fs.Bool("verbose", false, "print verbose logging")
	fs.String("log.format", defaultLogFormat, "log format, text or json")
	fs.Bool("trace-sensitive-data", false, "print the connection string in verbose output")
	fs.String("config.source", defaultConfigDirectory, "directory of the configuration file")
	fs.String("config.file", "", "configuration file name without extension")
}

// ValueOrDefault returns value unless it is empty, then the environment
// variable envKey unless it is unset or empty, then def.
func ValueOrDefault(lookup LookupEnv, value, envKey, def string) string {
	if value != "" {
		return value
	}
	if lookup != nil {
		if env, ok := lookup(envKey); ok && env != "" {
			return env
		}
	}
	return def
}

// Load reads the configuration from the parsed fs, the environment and the
// configuration file named by config.file.
func Load(fs *pflag.FlagSet, lookup LookupEnv) (*Configuration, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("migrate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.AddConfigPath(v.GetString("config.source"))
	if v.GetString("config.file") != "" {
		v.SetConfigName(v.GetString("config.file"))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot load configuration: %w", err)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	c := &Configuration{
		Workspace:            ValueOrDefault(lookup, v.GetString("path"), EnvWorkspace, wd),
		ConnectionString:     ValueOrDefault(lookup, v.GetString("connection-string"), EnvConnectionString, ""),
		CommandTimeout:       v.GetInt("command-timeout"),
		ConnectRetries:       v.GetUint("connect-retries"),
		TargetVersion:        v.GetString("target-version"),
		AutoCreateDatabase:   v.GetBool("auto-create-db"),
		Tokens:               v.GetStringSlice("token"),
		BulkSeparator:        v.GetString("bulk-separator"),
		BulkBatchSize:        v.GetInt("bulk-batch-size"),
		Environment:          v.GetString("environment"),
		MetaSchemaName:       v.GetString("meta-schema"),
		MetaTableName:        v.GetString("meta-table"),
		TransactionMode:      v.GetString("transaction-mode"),
		ContinueAfterFailure: v.GetBool("continue-after-failure"),
		RequiredClearedDraft: v.GetBool("require-cleared-draft"),
		Force:                v.GetBool("force"),
		Major:                v.GetBool("major"),
		Verbose:              v.GetBool("verbose"),
		LogFormat:            v.GetString("log.format"),
		TraceSensitiveData:   v.GetBool("trace-sensitive-data"),
	}
	if fs.Changed("token") {
		// repeated flags keep values containing commas
		if c.Tokens, err = fs.GetStringArray("token"); err != nil {
			return nil, err
		}
	}
	if env, ok := lookup(EnvTokens); ok && env != "" {
		for _, t := range strings.Split(env, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.Tokens = append(c.Tokens, t)
			}
		}
	}
	c.Platform = ValueOrDefault(lookup, v.GetString("platform"), EnvPlatform,
		iurl.PlatformFromURL(c.ConnectionString, database.List(), DefaultPlatform))
	c.Platform = strings.ToLower(c.Platform)
	return c, nil
}

// Run returns the migrate.Config of a run. verifyOnly comes from the
// command, not from a flag.
func (c *Configuration) Run(verifyOnly bool, toolVersion string) (migrate.Config, error) {
	mode, err := migrate.ParseTransactionMode(c.TransactionMode)
	if err != nil {
		return migrate.Config{}, &migrate.ConfigError{Field: "TransactionMode", Err: err}
	}
	tokens := make([]migrate.Token, 0, len(c.Tokens))
	for _, raw := range c.Tokens {
		t, err := migrate.ParseToken(raw)
		if err != nil {
			return migrate.Config{}, &migrate.ConfigError{Field: "Tokens", Err: err}
		}
		tokens = append(tokens, t)
	}

	cfg := migrate.NewConfig(c.Workspace)
	cfg.TargetVersion = c.TargetVersion
	cfg.AutoCreateDatabase = c.AutoCreateDatabase
	cfg.Tokens = tokens
	if c.BulkSeparator != "" {
		cfg.BulkSeparator = c.BulkSeparator
	}
	if c.BulkBatchSize != 0 {
		cfg.BulkBatchSize = c.BulkBatchSize
	}
	cfg.TransactionMode = mode
	cfg.ContinueAfterFailure = c.ContinueAfterFailure
	cfg.RequiredClearedDraft = c.RequiredClearedDraft
	cfg.IsForced = c.Force
	cfg.VerifyOnly = verifyOnly
	cfg.Environment = c.Environment
	cfg.MetaSchemaName = c.MetaSchemaName
	cfg.MetaTableName = c.MetaTableName
	cfg.AppliedByToolVersion = toolVersion
	cfg.CommandTimeout = time.Duration(c.CommandTimeout) * time.Second
	return cfg, cfg.Validate()
}

// Database returns the driver configuration.
func (c *Configuration) Database() *database.Config {
	return &database.Config{
		MetaSchemaName: c.MetaSchemaName,
		MetaTableName:  c.MetaTableName,
		ConnectRetries: c.ConnectRetries,
	}
}

// PrintJSON writes c as indented JSON. With redact, the connection string
// is replaced by Redacted.
func PrintJSON(w io.Writer, c *Configuration, redact bool) error {
	cc := *c
	if redact && cc.ConnectionString != "" {
		cc.ConnectionString = Redacted
	}
	b, err := json.MarshalIndent(cc, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
