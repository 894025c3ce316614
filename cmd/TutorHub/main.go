package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/EduConnect/TutorHub/internal/api"
	"github.com/EduConnect/TutorHub/internal/approval"
	"github.com/EduConnect/TutorHub/internal/broadcast"
	"github.com/EduConnect/TutorHub/internal/dialogue"
	"github.com/EduConnect/TutorHub/internal/lockfile"
	"github.com/EduConnect/TutorHub/internal/messaging"
	"github.com/EduConnect/TutorHub/internal/store"
	"github.com/EduConnect/TutorHub/internal/twiliomsg"
	"github.com/EduConnect/TutorHub/internal/util"
	"github.com/EduConnect/TutorHub/internal/whatsapp"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TutorHub state data
	DefaultStateDir = "/var/lib/tutorhub"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "tutorhub.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping TutorHub with configured modules")
	if err := run(flags); err != nil {
		slog.Error("TutorHub failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("TutorHub exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	WhatsAppDSN string
	StateDir    string
	APIAddr     string
	Messenger   string
	AdminIDs    []string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	waDSN     *string
	apiAddr   *string
	messenger *string
	adminIDs  []string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TUTORHUB_DEBUG", false) {
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
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:    os.Getenv("TUTORHUB_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		Messenger:   os.Getenv("MESSENGER"),
		AdminIDs:    util.ParseListEnv("ADMIN_IDS"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TUTORHUB_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}
	if config.Messenger == "" {
		config.Messenger = "whatsapp"
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"TUTORHUB_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"MESSENGER", config.Messenger,
		"ADMIN_IDS_COUNT", len(config.AdminIDs))

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:   flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for TutorHub data (overrides $TUTORHUB_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the record store (overrides $DATABASE_URL)"),
		waDSN:     flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow session store (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		messenger: flag.String("messenger", config.Messenger, "messaging transport: whatsapp, twilio, or memory (overrides $MESSENGER)"),
		adminIDs:  config.AdminIDs,
	}

	flag.Parse()

	// Follow a moved state directory for the default file-based DSNs.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.waDSN == filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) {
			*flags.waDSN = filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)
		}
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"messenger", *flags.messenger)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return os.MkdirAll(*flags.stateDir, 0755)
}

// buildStore opens the record store appropriate for the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildMessenger constructs the configured transport. The returned route
// hook mounts transport webhooks on the API server, when the transport
// needs one.
func buildMessenger(flags Flags) (messaging.Service, func(r chi.Router), error) {
	switch strings.ToLower(*flags.messenger) {
	case "twilio":
		client, err := twiliomsg.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		routes := func(r chi.Router) {
			r.Post("/webhook/twilio", svc.WebhookHandler)
		}
		return svc, routes, nil
	case "memory":
		slog.Warn("Using in-process messenger; no external transport is connected")
		return messaging.NewMemoryService(), nil, nil
	default:
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(*flags.waDSN),
			whatsapp.WithMediaDir(filepath.Join(*flags.stateDir, "media")),
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	}
}

// run wires all modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, extraRoutes, err := buildMessenger(flags)
	if err != nil {
		return err
	}
	defer svc.Stop()

	finalizer := dialogue.NewFinalizer(st, st)
	machine := dialogue.NewMachine(st, st, finalizer)
	workflow := approval.NewWorkflow(st, svc)
	broadcaster := broadcast.NewBroadcaster(svc, st)
	dispatcher := messaging.NewDispatcher(svc, messaging.NewDecoder(st), machine, workflow, st)

	if err := svc.Start(ctx); err != nil {
		return err
	}
	go dispatcher.Run(ctx)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	apiOpts = append(apiOpts, api.WithAdmins(flags.adminIDs))

	server := api.NewServer(st, workflow, broadcaster, extraRoutes, apiOpts...)
	return server.Run(ctx)
}
