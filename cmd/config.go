package cmd

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scieloorg/opac-tabs/cmd/compressors"
	"github.com/spf13/viper"
)

// Static errors for configuration validation
var (
	ErrOutputDirRequired     = errors.New("output directory is required ([DIRPATH] diroutput)")
	ErrPrefixInvalid         = errors.New("archive prefix must be non-empty and must not contain path separators")
	ErrKeepInvalid           = errors.New("number of archives to keep must be at least 1")
	ErrSourceDriverInvalid   = errors.New("source driver must be one of: mongo, postgres")
	ErrMongoDatabaseRequired = errors.New("MongoDB database name is required ([MONGO-OPAC] dbname)")
	ErrMongoHostsRequired    = errors.New("MongoDB hostnames are required ([MONGO-OPAC] hostnames)")
	ErrMongoPortInvalid      = errors.New("MongoDB port must be between 1 and 65535")
	ErrMongoTimeoutInvalid   = errors.New("MongoDB timeout must be positive")
	ErrPostgresHostRequired  = errors.New("PostgreSQL host is required")
	ErrPostgresNameRequired  = errors.New("PostgreSQL database name is required")
	ErrPostgresPortInvalid   = errors.New("PostgreSQL port must be between 1 and 65535")
	ErrPostgresTableInvalid  = errors.New("PostgreSQL table name is invalid: must be 1-63 characters, start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrS3AccessKeyRequired   = errors.New("S3 access key is required when a bucket is configured")
	ErrS3SecretKeyRequired   = errors.New("S3 secret key is required when a bucket is configured")
	ErrS3RegionInvalid       = errors.New("S3 region contains invalid characters or is too long")
	ErrS3PathTemplateInvalid = errors.New("S3 path template must contain {name} placeholder")
)

// Source drivers
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

const (
	regionAuto              = "auto"
	defaultPrefix           = "opac-tabs-"
	defaultKeep             = 3
	defaultCompressionLevel = compressors.DefaultLevel
	defaultMongoPort        = 27017
	defaultMongoTimeout     = 30 * time.Second
	defaultPostgresTable    = "article"
	defaultPathTemplate     = "opac-tabs/{YYYY}/{MM}/{name}"
)

type Config struct {
	Debug            bool
	LogFormat        string
	DryRun           bool
	TUI              bool
	OutputDir        string
	Prefix           string
	Keep             int
	CompressionLevel int
	Source           SourceConfig
	Mongo            MongoConfig
	Postgres         PostgresConfig
	S3               S3Config
}

type SourceConfig struct {
	Driver string
}

type MongoConfig struct {
	Database       string
	Username       string
	Password       string
	Hostnames      string // Comma-separated, entries may carry their own port
	Port           int
	ReplicaSet     string
	ReadPreference string // "secondary" or anything else for primary
	Timeout        time.Duration
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	Table    string // Table holding one JSONB article document per row
}

type S3Config struct {
	Endpoint     string
	Bucket       string
	AccessKey    string
	SecretKey    string
	Region       string
	PathTemplate string
}

// Enabled reports whether archives should be published
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Viper keys. Section names follow the INI settings file.
const (
	keyDebug            = "debug"
	keyLogFormat        = "log_format"
	keyDryRun           = "dry_run"
	keyTUI              = "tui"
	keyOutputDir        = "dirpath.diroutput"
	keyPrefix           = "report.prefix"
	keyKeep             = "report.keep"
	keyCompressionLevel = "report.compression_level"
	keySourceDriver     = "source.driver"
	keyMongoDatabase    = "mongo-opac.dbname"
	keyMongoUsername    = "mongo-opac.username"
	keyMongoPassword    = "mongo-opac.password"
	keyMongoHostnames   = "mongo-opac.hostnames"
	keyMongoPort        = "mongo-opac.port"
	keyMongoReplicaSet  = "mongo-opac.replicaset"
	keyMongoReadPref    = "mongo-opac.readpreference"
	keyMongoTimeout     = "mongo-opac.timeout"
	keyPostgresHost     = "postgres-opac.host"
	keyPostgresPort     = "postgres-opac.port"
	keyPostgresUser     = "postgres-opac.username"
	keyPostgresPassword = "postgres-opac.password"
	keyPostgresName     = "postgres-opac.dbname"
	keyPostgresSSLMode  = "postgres-opac.sslmode"
	keyPostgresTable    = "postgres-opac.table"
	keyS3Endpoint       = "s3.endpoint"
	keyS3Bucket         = "s3.bucket"
	keyS3AccessKey      = "s3.access_key"
	keyS3SecretKey      = "s3.secret_key"
	keyS3Region         = "s3.region"
	keyS3PathTemplate   = "s3.path_template"
)

// setConfigDefaults registers the values used when neither the settings
// file, the environment nor a flag provides one
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyPrefix, defaultPrefix)
	v.SetDefault(keyKeep, defaultKeep)
	v.SetDefault(keyCompressionLevel, defaultCompressionLevel)
	v.SetDefault(keySourceDriver, DriverMongo)
	v.SetDefault(keyMongoPort, defaultMongoPort)
	v.SetDefault(keyMongoReadPref, "primary")
	v.SetDefault(keyMongoTimeout, defaultMongoTimeout)
	v.SetDefault(keyPostgresPort, 5432)
	v.SetDefault(keyPostgresSSLMode, "disable")
	v.SetDefault(keyPostgresTable, defaultPostgresTable)
	v.SetDefault(keyS3Region, regionAuto)
	v.SetDefault(keyS3PathTemplate, defaultPathTemplate)
}

// configFromViper builds the run configuration from every loaded source
func configFromViper(v *viper.Viper) *Config {
	return &Config{
		Debug:            v.GetBool(keyDebug),
		LogFormat:        v.GetString(keyLogFormat),
		DryRun:           v.GetBool(keyDryRun),
		TUI:              v.GetBool(keyTUI),
		OutputDir:        strings.TrimSpace(v.GetString(keyOutputDir)),
		Prefix:           v.GetString(keyPrefix),
		Keep:             v.GetInt(keyKeep),
		CompressionLevel: v.GetInt(keyCompressionLevel),
		Source: SourceConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString(keySourceDriver))),
		},
		Mongo: MongoConfig{
			Database:       v.GetString(keyMongoDatabase),
			Username:       v.GetString(keyMongoUsername),
			Password:       v.GetString(keyMongoPassword),
			Hostnames:      v.GetString(keyMongoHostnames),
			Port:           v.GetInt(keyMongoPort),
			ReplicaSet:     v.GetString(keyMongoReplicaSet),
			ReadPreference: v.GetString(keyMongoReadPref),
			Timeout:        secondsOrDuration(v, keyMongoTimeout),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString(keyPostgresHost),
			Port:     v.GetInt(keyPostgresPort),
			User:     v.GetString(keyPostgresUser),
			Password: v.GetString(keyPostgresPassword),
			Name:     v.GetString(keyPostgresName),
			SSLMode:  v.GetString(keyPostgresSSLMode),
			Table:    v.GetString(keyPostgresTable),
		},
		S3: S3Config{
			Endpoint:     v.GetString(keyS3Endpoint),
			Bucket:       v.GetString(keyS3Bucket),
			AccessKey:    v.GetString(keyS3AccessKey),
			SecretKey:    v.GetString(keyS3SecretKey),
			Region:       v.GetString(keyS3Region),
			PathTemplate: v.GetString(keyS3PathTemplate),
		},
	}
}

// secondsOrDuration reads a timeout written either as a duration ("45s") or
// as a bare number of seconds
func secondsOrDuration(v *viper.Viper, key string) time.Duration {
	if seconds, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return v.GetDuration(key)
}

// validPostgreSQLIdentifier checks if a string is a valid PostgreSQL identifier
var validPostgreSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var validRegion = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// isValidTableName validates that a table name is safe to use in SQL queries
func isValidTableName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	return validPostgreSQLIdentifier.MatchString(name)
}

// isValidRegion validates that an S3 region is reasonable
func isValidRegion(region string) bool {
	if region == "" || len(region) > 50 {
		return false
	}
	return validRegion.MatchString(region)
}

func isValidPrefix(prefix string) bool {
	return prefix != "" && !strings.ContainsAny(prefix, `/\`)
}

// ValidateOutput checks the settings shared by every command that touches
// the output directory
func (c *Config) ValidateOutput() error {
	if c.OutputDir == "" {
		return ErrOutputDirRequired
	}
	if !isValidPrefix(c.Prefix) {
		return fmt.Errorf("%w: '%s'", ErrPrefixInvalid, c.Prefix)
	}
	if c.Keep < 1 {
		return fmt.Errorf("%w, got %d", ErrKeepInvalid, c.Keep)
	}
	return nil
}

// Validate checks everything an export run needs
func (c *Config) Validate() error {
	if err := c.ValidateOutput(); err != nil {
		return err
	}

	if _, err := compressors.NewZipCompressor(c.CompressionLevel); err != nil {
		return err
	}

	switch c.Source.Driver {
	case DriverMongo:
		if err := c.Mongo.validate(); err != nil {
			return err
		}
	case DriverPostgres:
		if err := c.Postgres.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrSourceDriverInvalid, c.Source.Driver)
	}

	if c.S3.Enabled() {
		if err := c.S3.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c MongoConfig) validate() error {
	if c.Database == "" {
		return ErrMongoDatabaseRequired
	}
	if len(mongoHosts(c.Hostnames, c.Port)) == 0 {
		return ErrMongoHostsRequired
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w, got %d", ErrMongoPortInvalid, c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w, got %s", ErrMongoTimeoutInvalid, c.Timeout)
	}
	return nil
}

func (c PostgresConfig) validate() error {
	if c.Host == "" {
		return ErrPostgresHostRequired
	}
	if c.Name == "" {
		return ErrPostgresNameRequired
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w, got %d", ErrPostgresPortInvalid, c.Port)
	}
	if !isValidTableName(c.Table) {
		return fmt.Errorf("%w: '%s'", ErrPostgresTableInvalid, c.Table)
	}
	return nil
}

func (c S3Config) validate() error {
	if c.AccessKey == "" {
		return ErrS3AccessKeyRequired
	}
	if c.SecretKey == "" {
		return ErrS3SecretKeyRequired
	}
	if c.Region != "" && c.Region != regionAuto && !isValidRegion(c.Region) {
		return fmt.Errorf("%w: %s", ErrS3RegionInvalid, c.Region)
	}
	if !strings.Contains(c.PathTemplate, "{name}") {
		return fmt.Errorf("%w: '%s'", ErrS3PathTemplateInvalid, c.PathTemplate)
	}
	return nil
}
