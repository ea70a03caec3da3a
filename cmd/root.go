package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "OPAC_TABS"

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/scieloorg/opac-tabs/cmd.Version=1.2.3"
	Version = "dev"

	// signalContext is set by main() before Cobra initialization
	signalContext context.Context

	// configErr holds a settings file or .env failure until a command runs
	configErr error

	cfgFile             string
	debug               bool
	logFormat           string
	dryRun              bool
	outputDir           string
	prefix              string
	keep                int
	tui                 bool
	sourceDriver        string
	compressionLevel    int
	mongoDatabase       string
	mongoUsername       string
	mongoPassword       string
	mongoHostnames      string
	mongoPort           int
	mongoReplicaSet     string
	mongoReadPreference string
	mongoTimeout        time.Duration
	pgHost              string
	pgPort              int
	pgUser              string
	pgPassword          string
	pgName              string
	pgSSLMode           string
	pgTable             string
	s3Endpoint          string
	s3Bucket            string
	s3AccessKey         string
	s3SecretKey         string
	s3Region            string
	pathTemplate        string

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	logger *slog.Logger
)

// SetSignalContext stores the signal-aware context created in main()
// This must be called before Execute() to ensure proper signal handling
func SetSignalContext(ctx context.Context) {
	signalContext = ctx
}

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, r.Level.String(), r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	return h
}

func logLevel(isDebug bool) slog.Level {
	if isDebug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// newLogger builds the slog logger for the debug flag and log format
func newLogger(w io.Writer, isDebug bool, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(isDebug)}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "logfmt":
		handler = slog.NewTextHandler(w, opts)
	default: // "text" or anything else
		handler = newTextOnlyHandler(w, opts)
	}
	return slog.New(handler)
}

func initLogger(isDebug bool, format string) {
	logger = newLogger(os.Stdout, isDebug, format)
}

// configureViper sets defaults and environment lookup. OPAC_TABS_MONGO_OPAC_PASSWORD
// overrides the password key of the [MONGO-OPAC] section.
func configureViper(v *viper.Viper) {
	setConfigDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

var rootCmd = &cobra.Command{
	Use:     "opac-tabs",
	Version: Version,
	Short:   "📊 Export public OPAC articles as a CSV report",
	Long: titleStyle.Render("OPAC Tabs") + `

Exports the publicly visible articles of the OPAC article store as a CSV
report, compresses it into a timestamped ZIP archive and keeps only the most
recent archives in the output directory. Archives can optionally be published
to S3-compatible storage.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write, archive and rotate the public article report",
	Long:  `Reads every public article, writes one CSV row per article, compresses the report into a ZIP archive, removes old archives and optionally uploads the new one to S3.`,
	Run: func(_ *cobra.Command, _ []string) {
		runExport()
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove old report archives",
	Long:  `Removes all but the most recent report archives from the output directory.`,
	Run: func(_ *cobra.Command, _ []string) {
		runSweep()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sweepCmd)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is ./config.ini)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "perform a dry run without uploading")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "directory for reports and archives ([DIRPATH] diroutput)")
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", defaultPrefix, "report file name prefix")
	rootCmd.PersistentFlags().IntVar(&keep, "keep", defaultKeep, "number of archives to keep")

	// Export-specific flags
	exportCmd.Flags().BoolVar(&tui, "tui", false, "show an interactive progress display")
	exportCmd.Flags().StringVar(&sourceDriver, "source", DriverMongo, "article store: mongo, postgres")
	exportCmd.Flags().IntVar(&compressionLevel, "compression-level", defaultCompressionLevel, "ZIP deflate level (1-9)")

	exportCmd.Flags().StringVar(&mongoDatabase, "mongo-db", "", "MongoDB database name")
	exportCmd.Flags().StringVar(&mongoUsername, "mongo-user", "", "MongoDB user")
	exportCmd.Flags().StringVar(&mongoPassword, "mongo-password", "", "MongoDB password")
	exportCmd.Flags().StringVar(&mongoHostnames, "mongo-hosts", "", "comma-separated MongoDB hosts")
	exportCmd.Flags().IntVar(&mongoPort, "mongo-port", defaultMongoPort, "MongoDB port for hosts without one")
	exportCmd.Flags().StringVar(&mongoReplicaSet, "mongo-replicaset", "", "MongoDB replica set name")
	exportCmd.Flags().StringVar(&mongoReadPreference, "mongo-readpreference", "primary", "MongoDB read preference (secondary or primary)")
	exportCmd.Flags().DurationVar(&mongoTimeout, "mongo-timeout", defaultMongoTimeout, "MongoDB server selection timeout")

	exportCmd.Flags().StringVar(&pgHost, "pg-host", "", "PostgreSQL mirror host")
	exportCmd.Flags().IntVar(&pgPort, "pg-port", 5432, "PostgreSQL mirror port")
	exportCmd.Flags().StringVar(&pgUser, "pg-user", "", "PostgreSQL mirror user")
	exportCmd.Flags().StringVar(&pgPassword, "pg-password", "", "PostgreSQL mirror password")
	exportCmd.Flags().StringVar(&pgName, "pg-name", "", "PostgreSQL mirror database name")
	exportCmd.Flags().StringVar(&pgSSLMode, "pg-sslmode", "disable", "PostgreSQL SSL mode (disable, require, verify-ca, verify-full)")
	exportCmd.Flags().StringVar(&pgTable, "pg-table", defaultPostgresTable, "PostgreSQL table holding article documents")

	exportCmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")
	exportCmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name (publishing is off when empty)")
	exportCmd.Flags().StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	exportCmd.Flags().StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")
	exportCmd.Flags().StringVar(&s3Region, "s3-region", regionAuto, "S3 region")
	exportCmd.Flags().StringVar(&pathTemplate, "path-template", defaultPathTemplate, "S3 key template with placeholders: {name}, {YYYY}, {MM}, {DD}, {HH}")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		keyDebug:     "debug",
		keyLogFormat: "log-format",
		keyDryRun:    "dry-run",
		keyOutputDir: "output-dir",
		keyPrefix:    "prefix",
		keyKeep:      "keep",
	})
	bindFlags(exportCmd.Flags(), map[string]string{
		keyTUI:              "tui",
		keySourceDriver:     "source",
		keyCompressionLevel: "compression-level",
		keyMongoDatabase:    "mongo-db",
		keyMongoUsername:    "mongo-user",
		keyMongoPassword:    "mongo-password",
		keyMongoHostnames:   "mongo-hosts",
		keyMongoPort:        "mongo-port",
		keyMongoReplicaSet:  "mongo-replicaset",
		keyMongoReadPref:    "mongo-readpreference",
		keyMongoTimeout:     "mongo-timeout",
		keyPostgresHost:     "pg-host",
		keyPostgresPort:     "pg-port",
		keyPostgresUser:     "pg-user",
		keyPostgresPassword: "pg-password",
		keyPostgresName:     "pg-name",
		keyPostgresSSLMode:  "pg-sslmode",
		keyPostgresTable:    "pg-table",
		keyS3Endpoint:       "s3-endpoint",
		keyS3Bucket:         "s3-bucket",
		keyS3AccessKey:      "s3-access-key",
		keyS3SecretKey:      "s3-secret-key",
		keyS3Region:         "s3-region",
		keyS3PathTemplate:   "path-template",
	})
}

func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func initConfig() {
	// .env is optional; its values reach viper through the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		configErr = fmt.Errorf("failed to load .env: %w", err)
		return
	}

	v := viper.GetViper()
	configureViper(v)
	v.SetConfigType("ini")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("failed to read settings file: %w", err)
		}
	}
}

// loadConfig builds the run configuration and the logger, exiting on a
// settings file that could not be read
func loadConfig() *Config {
	config := configFromViper(viper.GetViper())
	initLogger(config.Debug, config.LogFormat)

	if configErr != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", configErr.Error()))
		os.Exit(1)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(fmt.Sprintf("📄 Using settings file: %s", used))
	}
	return config
}

func commandContext() (context.Context, context.CancelFunc) {
	if signalContext != nil {
		return signalContext, func() {}
	}
	logger.Warn("Signal context not set, creating fallback...")
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runExport() {
	// Add panic recovery to catch any unexpected crashes
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n❌ PANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	config := loadConfig()

	logger.Info("")
	logger.Info(fmt.Sprintf("🚀 OPAC Tabs v%s", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	logger.Debug("Validating configuration...")
	if err := config.Validate(); err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(1)
	}
	logger.Debug("Configuration validated successfully")

	ctx, stop := commandContext()
	defer stop()

	exporter := NewExporter(config, logger)

	var (
		result *ExportResult
		err    error
	)
	if config.TUI {
		result, err = runExportWithProgress(ctx, exporter, logLevel(config.Debug))
	} else {
		// Force exit if graceful shutdown takes too long
		exited := make(chan struct{})
		go func() {
			select {
			case <-exited:
				return
			case <-ctx.Done():
			}
			logger.Info("")
			logger.Info("⚠️  Interrupt signal received, shutting down...")
			select {
			case <-exited:
			case <-time.After(5 * time.Second):
				logger.Error("⚠️  Graceful shutdown timed out, forcing exit...")
				os.Exit(130)
			}
		}()

		result, err = exporter.Run(ctx)
		close(exited)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			logger.Info("")
			logger.Info("⚠️  Export cancelled by user")
			os.Exit(130)
		}
		logger.Error(fmt.Sprintf("❌ Export failed: %s", err.Error()))
		os.Exit(1)
	}

	exporter.printSummary(result)
	if ctx.Err() != nil {
		os.Exit(130)
	}

	logger.Info("")
	logger.Info("✅ Export completed")
}

func runSweep() {
	config := loadConfig()

	if err := config.ValidateOutput(); err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(1)
	}

	result, err := SweepArchives(config.OutputDir, config.Prefix, config.Keep, logger)
	logger.Info(fmt.Sprintf("🗑️  Old archives removed: %d, kept: %d", len(result.Removed), len(result.Kept)))
	if err != nil {
		logger.Error(fmt.Sprintf("❌ Sweep failed: %s", err.Error()))
		os.Exit(1)
	}
}
