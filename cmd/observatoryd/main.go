package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/observatory/internal/httpserver"
	"github.com/MarkoPoloResearchLab/observatory/internal/scheduler"
	"github.com/MarkoPoloResearchLab/observatory/internal/secrets"
	"github.com/MarkoPoloResearchLab/observatory/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	"github.com/MarkoPoloResearchLab/observatory/pkg/ratelimit"
	"github.com/MarkoPoloResearchLab/observatory/pkg/weather"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL    = "database-url"
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagSessionKey     = "session-signing-key"
	flagFieldKey       = "field-encryption-key"
	flagAdminName      = "superadmin-name"
	flagAdminEmail     = "superadmin-email"
	flagAdminPassword  = "superadmin-password"
	flagSecureCookies  = "secure-cookies"

	envPrefix = "OBSERVATORY"

	defaultDatabaseURL = "sqlite:///tmp/observatory.db"
	defaultListenAddr  = ":8080"
	defaultAdminName   = "Observatory Admin"
	defaultAdminEmail  = "admin@observatory.local"

	weatherRefreshInterval = 3 * time.Hour
)

type runtimeConfig struct {
	DatabaseURL       string
	ListenAddr        string
	AllowedOrigins    []string
	SessionSigningKey string
	FieldKeyHex       string
	AdminName         string
	AdminEmail        string
	AdminPassword     string
	SecureCookies     bool
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "observatoryd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "observatoryd",
		Short:         "Observatory viewing-session reservation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagSessionKey, "", "session JWT signing key, at least 32 bytes")
	cmd.Flags().String(flagFieldKey, "", "hex-encoded 32-byte key for personal-field encryption")
	cmd.Flags().String(flagAdminName, defaultAdminName, "bootstrap superadmin display name")
	cmd.Flags().String(flagAdminEmail, defaultAdminEmail, "bootstrap superadmin email")
	cmd.Flags().String(flagAdminPassword, "", "bootstrap superadmin password (generated when empty)")
	cmd.Flags().Bool(flagSecureCookies, false, "mark session cookies Secure")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	// A missing .env is fine; explicit env and flags always win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flagNames := []string{
		flagDatabaseURL, flagListenAddr, flagAllowedOrigins, flagSessionKey,
		flagFieldKey, flagAdminName, flagAdminEmail, flagAdminPassword, flagSecureCookies,
	}
	for _, flagName := range flagNames {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.AllowedOrigins = parseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagSessionKey)
	cfg.FieldKeyHex = strings.TrimSpace(v.GetString(flagFieldKey))
	cfg.AdminName = strings.TrimSpace(v.GetString(flagAdminName))
	cfg.AdminEmail = strings.TrimSpace(v.GetString(flagAdminEmail))
	cfg.AdminPassword = v.GetString(flagAdminPassword)
	cfg.SecureCookies = v.GetBool(flagSecureCookies)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%s is required", flagDatabaseURL)
	}
	if cfg.SessionSigningKey == "" {
		return fmt.Errorf("%s is required", flagSessionKey)
	}
	if cfg.FieldKeyHex == "" {
		return fmt.Errorf("%s is required", flagFieldKey)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	fieldKey, err := hex.DecodeString(cfg.FieldKeyHex)
	if err != nil {
		return fmt.Errorf("field encryption key: %w", err)
	}
	fieldCipher, err := secrets.NewFieldCipher(fieldKey)
	if err != nil {
		return err
	}

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	store := gormstore.New(gormDB)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	evaluator := weather.NewEvaluator(weather.NewClient(logger), logger, time.Now)
	service, err := booking.NewService(
		store,
		time.Now,
		fieldCipher,
		secrets.NewPasswordHasher(),
		booking.WithWeatherRater(evaluator),
		booking.WithOperationLogger(httpserver.NewZapOperationLogger(logger)),
	)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}

	if err := bootstrapSuperadmin(ctx, cfg, service, logger); err != nil {
		return err
	}

	refresher := &storeRefresher{evaluator: evaluator, storage: store}
	limiter := ratelimit.New(ratelimit.DefaultWindow, ratelimit.DefaultMaxRequests)
	server, err := httpserver.New(httpserver.Config{
		ListenAddr:        cfg.ListenAddr,
		AllowedOrigins:    cfg.AllowedOrigins,
		SessionSigningKey: []byte(cfg.SessionSigningKey),
		SecureCookies:     cfg.SecureCookies,
	}, logger, service, refresher, limiter)
	if err != nil {
		return err
	}

	// Scheduled refreshes run through the server so their slot counters land
	// in the same registry as the on-demand ones.
	background := scheduler.New(logger)
	background.Every(ctx, "weather_refresh", weatherRefreshInterval, func(taskCtx context.Context) error {
		_, _, err := server.RefreshWeather(taskCtx)
		return err
	})

	serveErr := server.Run(ctx)
	background.Wait()
	return serveErr
}

// storeRefresher binds the evaluator to the persistent store so both the
// scheduler and the admin API share one refresh path.
type storeRefresher struct {
	evaluator *weather.Evaluator
	storage   weather.Storage
}

func (refresher *storeRefresher) RefreshAll(ctx context.Context) (int, int, error) {
	return refresher.evaluator.RefreshAll(ctx, refresher.storage)
}

func bootstrapSuperadmin(ctx context.Context, cfg *runtimeConfig, service *booking.Service, logger *zap.Logger) error {
	email, err := booking.NewEmailAddress(cfg.AdminEmail)
	if err != nil {
		return fmt.Errorf("superadmin email: %w", err)
	}
	rawPassword := cfg.AdminPassword
	generated := false
	if rawPassword == "" {
		rawPassword, err = generatePassword()
		if err != nil {
			return fmt.Errorf("superadmin password: %w", err)
		}
		generated = true
	}
	password, err := booking.NewPassword(rawPassword)
	if err != nil {
		return fmt.Errorf("superadmin password: %w", err)
	}
	accountID, created, err := service.BootstrapSuperadmin(ctx, cfg.AdminName, email, password)
	if err != nil {
		return fmt.Errorf("superadmin bootstrap: %w", err)
	}
	if created {
		logger.Info("superadmin created",
			zap.String("account_id", accountID.String()),
			zap.String("email", email.String()))
		if generated {
			// Printed once at first boot; never logged again.
			fmt.Fprintf(os.Stdout, "generated superadmin password: %s\n", rawPassword)
		}
	}
	return nil
}

// generatePassword emits a random credential that satisfies the strength
// rules regardless of how the random suffix turns out.
func generatePassword() (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "Sa1-" + base64.RawURLEncoding.EncodeToString(raw), nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "observatory.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func parseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"http://localhost:8080"}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
