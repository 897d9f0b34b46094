package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/vivalabs/viva/internal/api"
	"github.com/vivalabs/viva/internal/genai"
	"github.com/vivalabs/viva/internal/lockfile"
	"github.com/vivalabs/viva/internal/models"
	"github.com/vivalabs/viva/internal/store"
	"github.com/vivalabs/viva/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for VIVA state data
	DefaultStateDir = "/var/lib/viva"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "viva.db"
)

func main() {
	initializeLogger(util.ParseBoolEnv("VIVA_DEBUG", false))

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// A file-based database means this process must own the state directory.
	var lock *lockfile.Lock
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		var err error
		lock, err = lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
		if err != nil {
			slog.Error("Failed to acquire state directory lock", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping VIVA with configured modules")
	slog.Debug("Final configuration", "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "default_max_probes", *flags.maxProbes)
	if err := api.Run(storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("VIVA failed to run", "error", err)
		if lock != nil {
			lock.Release()
		}
		os.Exit(1)
	}
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	APIAddr     string
	MaxProbes   int
	Language    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	model     *string
	apiAddr   *string
	maxProbes *int
	language  *string
}

// initializeLogger sets up structured logging. $VIVA_DEBUG enables debug
// level output.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("VIVA_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		APIAddr:     os.Getenv("API_ADDR"),
		MaxProbes:   util.ParseIntEnv("DEFAULT_MAX_PROBES", api.DefaultMaxProbes),
		Language:    os.Getenv("DEFAULT_LANGUAGE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No VIVA_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// With no database URL, default to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"VIVA_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"DEFAULT_MAX_PROBES", config.MaxProbes,
		"DEFAULT_LANGUAGE", config.Language)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for VIVA data (overrides $VIVA_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN: Postgres URL or SQLite file path (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		model:     flag.String("openai-model", config.OpenAIModel, "chat completion model (overrides $OPENAI_MODEL)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		maxProbes: flag.Int("max-probes", config.MaxProbes, "default survey probe limit (overrides $DEFAULT_MAX_PROBES)"),
		language:  flag.String("language", config.Language, "default survey language (overrides $DEFAULT_LANGUAGE)"),
	}

	flag.Parse()

	// Moving the state directory moves the default SQLite file with it.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"model", *flags.model,
		"apiAddr", *flags.apiAddr,
		"maxProbes", *flags.maxProbes,
		"language", *flags.language)

	return flags
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.maxProbes > 0 {
		apiOpts = append(apiOpts, api.WithDefaultMaxProbes(*flags.maxProbes))
	}
	if *flags.language != "" {
		apiOpts = append(apiOpts, api.WithDefaultLanguage(models.Language(*flags.language)))
	}
	return apiOpts
}
