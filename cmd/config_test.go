package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/scieloorg/opac-tabs/cmd/compressors"
	"github.com/spf13/viper"
)

const sampleSettings = `
[DIRPATH]
diroutput = /var/lib/opac-tabs

[MONGO-OPAC]
dbname = opac
username = reader
password = secret
hostnames = mongo1,mongo2:27018
port = 27017
replicaset = rs0
readpreference = secondary
`

func loadTestConfig(t *testing.T, settings string) *Config {
	t.Helper()

	v := viper.New()
	configureViper(v)
	v.SetConfigType("ini")
	if err := v.ReadConfig(strings.NewReader(settings)); err != nil {
		t.Fatalf("failed to read settings: %v", err)
	}
	return configFromViper(v)
}

func validConfig() *Config {
	return &Config{
		OutputDir:        "/tmp/out",
		Prefix:           defaultPrefix,
		Keep:             defaultKeep,
		CompressionLevel: defaultCompressionLevel,
		Source:           SourceConfig{Driver: DriverMongo},
		Mongo: MongoConfig{
			Database:  "opac",
			Hostnames: "localhost",
			Port:      27017,
			Timeout:   time.Second,
		},
	}
}

func TestConfigFromSettingsFile(t *testing.T) {
	config := loadTestConfig(t, sampleSettings)

	if config.OutputDir != "/var/lib/opac-tabs" {
		t.Errorf("unexpected output dir %q", config.OutputDir)
	}
	if config.Mongo.Database != "opac" || config.Mongo.Username != "reader" || config.Mongo.Password != "secret" {
		t.Errorf("unexpected mongo credentials: %+v", config.Mongo)
	}
	if config.Mongo.Hostnames != "mongo1,mongo2:27018" || config.Mongo.Port != 27017 {
		t.Errorf("unexpected mongo hosts: %+v", config.Mongo)
	}
	if config.Mongo.ReplicaSet != "rs0" || config.Mongo.ReadPreference != "secondary" {
		t.Errorf("unexpected replica set settings: %+v", config.Mongo)
	}

	// Defaults for keys the settings file does not carry
	if config.Prefix != defaultPrefix || config.Keep != defaultKeep {
		t.Errorf("unexpected retention defaults: prefix=%q keep=%d", config.Prefix, config.Keep)
	}
	if config.Source.Driver != DriverMongo {
		t.Errorf("expected mongo driver by default, got %q", config.Source.Driver)
	}
	if config.Mongo.Timeout != defaultMongoTimeout {
		t.Errorf("expected default timeout, got %s", config.Mongo.Timeout)
	}
	if config.S3.Enabled() {
		t.Error("publishing should be disabled without a bucket")
	}

	if err := config.Validate(); err != nil {
		t.Fatalf("settings file should validate: %v", err)
	}
}

func TestConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("OPAC_TABS_MONGO_OPAC_PASSWORD", "from-env")
	t.Setenv("OPAC_TABS_REPORT_KEEP", "5")

	config := loadTestConfig(t, sampleSettings)

	if config.Mongo.Password != "from-env" {
		t.Errorf("expected password from environment, got %q", config.Mongo.Password)
	}
	if config.Keep != 5 {
		t.Errorf("expected keep from environment, got %d", config.Keep)
	}
}

func TestConfigTimeoutSetting(t *testing.T) {
	tests := map[string]time.Duration{
		"10":    10 * time.Second,
		"1m30s": 90 * time.Second,
	}

	for value, expected := range tests {
		config := loadTestConfig(t, sampleSettings+"timeout = "+value+"\n")
		if config.Mongo.Timeout != expected {
			t.Errorf("timeout %q: expected %s, got %s", value, expected, config.Mongo.Timeout)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid", mutate: func(_ *Config) {}},
		{name: "missing output dir", mutate: func(c *Config) { c.OutputDir = "" }, wantErr: ErrOutputDirRequired},
		{name: "prefix with separator", mutate: func(c *Config) { c.Prefix = "a/b" }, wantErr: ErrPrefixInvalid},
		{name: "empty prefix", mutate: func(c *Config) { c.Prefix = "" }, wantErr: ErrPrefixInvalid},
		{name: "keep zero", mutate: func(c *Config) { c.Keep = 0 }, wantErr: ErrKeepInvalid},
		{name: "compression level", mutate: func(c *Config) { c.CompressionLevel = 12 }, wantErr: compressors.ErrInvalidLevel},
		{name: "unknown driver", mutate: func(c *Config) { c.Source.Driver = "mysql" }, wantErr: ErrSourceDriverInvalid},
		{name: "mongo database", mutate: func(c *Config) { c.Mongo.Database = "" }, wantErr: ErrMongoDatabaseRequired},
		{name: "mongo hosts", mutate: func(c *Config) { c.Mongo.Hostnames = " , " }, wantErr: ErrMongoHostsRequired},
		{name: "mongo port", mutate: func(c *Config) { c.Mongo.Port = 70000 }, wantErr: ErrMongoPortInvalid},
		{name: "mongo timeout", mutate: func(c *Config) { c.Mongo.Timeout = 0 }, wantErr: ErrMongoTimeoutInvalid},
		{
			name: "postgres valid",
			mutate: func(c *Config) {
				c.Source.Driver = DriverPostgres
				c.Postgres = PostgresConfig{Host: "db", Port: 5432, Name: "opac", Table: "article"}
			},
		},
		{
			name: "postgres bad table",
			mutate: func(c *Config) {
				c.Source.Driver = DriverPostgres
				c.Postgres = PostgresConfig{Host: "db", Port: 5432, Name: "opac", Table: "article; DROP TABLE x"}
			},
			wantErr: ErrPostgresTableInvalid,
		},
		{
			name: "postgres missing host",
			mutate: func(c *Config) {
				c.Source.Driver = DriverPostgres
				c.Postgres = PostgresConfig{Port: 5432, Name: "opac", Table: "article"}
			},
			wantErr: ErrPostgresHostRequired,
		},
		{
			name: "s3 valid",
			mutate: func(c *Config) {
				c.S3 = S3Config{Bucket: "b", AccessKey: "a", SecretKey: "s", Region: "us-east-1", PathTemplate: "tabs/{name}"}
			},
		},
		{
			name: "s3 missing secret",
			mutate: func(c *Config) {
				c.S3 = S3Config{Bucket: "b", AccessKey: "a", PathTemplate: "tabs/{name}"}
			},
			wantErr: ErrS3SecretKeyRequired,
		},
		{
			name: "s3 bad region",
			mutate: func(c *Config) {
				c.S3 = S3Config{Bucket: "b", AccessKey: "a", SecretKey: "s", Region: "us east", PathTemplate: "{name}"}
			},
			wantErr: ErrS3RegionInvalid,
		},
		{
			name: "s3 template without name",
			mutate: func(c *Config) {
				c.S3 = S3Config{Bucket: "b", AccessKey: "a", SecretKey: "s", Region: regionAuto, PathTemplate: "tabs/{YYYY}"}
			},
			wantErr: ErrS3PathTemplateInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateOutputIgnoresSource(t *testing.T) {
	config := &Config{OutputDir: "/tmp/out", Prefix: defaultPrefix, Keep: 3}
	if err := config.ValidateOutput(); err != nil {
		t.Fatalf("sweep settings should validate without a source: %v", err)
	}
	if err := config.Validate(); err == nil {
		t.Fatal("export settings should require a source")
	}
}
