package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BTreeMap/ScriptPipe/internal/api"
	"github.com/BTreeMap/ScriptPipe/internal/genai"
	"github.com/BTreeMap/ScriptPipe/internal/lockfile"
	"github.com/BTreeMap/ScriptPipe/internal/store"
	"github.com/BTreeMap/ScriptPipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ScriptPipe state data
	DefaultStateDir = "/var/lib/scriptpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "scriptpipe.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Guard the state directory against a second instance
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping ScriptPipe with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "provider", *flags.provider, "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("ScriptPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ScriptPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	StageModel  string
	DatabaseURL string
	StateDir    string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir   *string
	dbDSN      *string
	provider   *string
	apiKey     *string
	model      *string
	stageModel *string
	apiAddr    *string
}

// initializeLogger sets up structured logging; SCRIPTPIPE_DEBUG enables
// debug-level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("SCRIPTPIPE_DEBUG", false) {
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
		Provider:    os.Getenv("SCRIPTPIPE_PROVIDER"),
		APIKey:      os.Getenv("SCRIPTPIPE_API_KEY"),
		Model:       os.Getenv("SCRIPTPIPE_MODEL"),
		StageModel:  os.Getenv("SCRIPTPIPE_STAGE_MODEL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    util.GetEnvWithDefault("SCRIPTPIPE_STATE_DIR", DefaultStateDir),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"SCRIPTPIPE_PROVIDER", config.Provider,
		"SCRIPTPIPE_API_KEY_SET", config.APIKey != "",
		"SCRIPTPIPE_MODEL", config.Model,
		"SCRIPTPIPE_STAGE_MODEL", config.StageModel,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SCRIPTPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for ScriptPipe data (overrides $SCRIPTPIPE_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN for the script archive (overrides $DATABASE_URL)"),
		provider:   flag.String("provider", config.Provider, "generation provider, openai or gemini (overrides $SCRIPTPIPE_PROVIDER)"),
		apiKey:     flag.String("api-key", config.APIKey, "generation provider API key (overrides $SCRIPTPIPE_API_KEY)"),
		model:      flag.String("model", config.Model, "model for lead generation (overrides $SCRIPTPIPE_MODEL)"),
		stageModel: flag.String("stage-model", config.StageModel, "model for stage generation (overrides $SCRIPTPIPE_STAGE_MODEL)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"provider", *flags.provider,
		"apiKeySet", *flags.apiKey != "",
		"model", *flags.model,
		"stageModel", *flags.stageModel,
		"apiAddr", *flags.apiAddr)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		slog.Debug("Configuring script archive", "dsn_type", store.DetectDSNType(*flags.dbDSN))
		storeOpts = append(storeOpts, store.WithDSN(*flags.dbDSN))
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.apiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.apiKey))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	if *flags.stageModel != "" {
		genaiOpts = append(genaiOpts, genai.WithStageModel(*flags.stageModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.provider != "" {
		apiOpts = append(apiOpts, api.WithProvider(*flags.provider))
	}
	return apiOpts
}
