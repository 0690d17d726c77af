// Command server starts the Coursecast API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"coursecast/internal/api"
	"coursecast/internal/auth"
	"coursecast/internal/ingestion"
	"coursecast/internal/media"
	"coursecast/internal/observability/logging"
	"coursecast/internal/server"
	"coursecast/internal/storage"
)

func main() {
	// A missing .env file is fine, environment variables still apply.
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")

	storageDriver := flag.String("storage-driver", "", "datastore driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")

	tokenSecret := flag.String("token-secret", "", "HMAC secret for access tokens")
	tokenTTL := flag.Duration("token-ttl", 0, "access token lifetime")

	mediaBaseURL := flag.String("media-base-url", "", "base URL of the remote media API")
	mediaTokenID := flag.String("media-token-id", "", "remote media API token id")
	mediaTokenSecret := flag.String("media-token-secret", "", "remote media API token secret")
	mediaPollInterval := flag.Duration("media-poll-interval", 0, "interval between asset processing polls")
	mediaMaxPolls := flag.Int("media-max-polls", 0, "maximum asset processing polls before timing out")
	playbackBaseURL := flag.String("playback-base-url", "", "base URL for public playback links")
	streamBaseURL := flag.String("stream-base-url", "", "base URL for signed premium playback links")
	playbackSigningKey := flag.String("playback-signing-key", "", "PEM RSA key (raw or base64) for signing premium playback tokens")
	playbackKeyID := flag.String("playback-key-id", "", "key id advertised in signed playback tokens")

	batchMaxItems := flag.Int("batch-max-items", 0, "maximum videos accepted in one batch upload")

	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	registerLimit := flag.Int("rate-register-limit", 5, "register requests per window for a single IP")
	loginLimit := flag.Int("rate-login-limit", 10, "login requests per window for a single IP")
	studentLimit := flag.Int("rate-student-limit", 50, "subscription requests per window for a single IP")
	rateWindow := flag.Duration("rate-window", 0, "window for counting rate-limited requests")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed rate limiting")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed rate limiting")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("COURSECAST_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("COURSECAST_LOG_FORMAT")),
	})

	serverMode := modeValue(*mode, os.Getenv("COURSECAST_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("COURSECAST_ADDR"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, storeSettings{
		Driver:          firstNonEmpty(*storageDriver, os.Getenv("COURSECAST_STORAGE_DRIVER")),
		DSN:             resolvePostgresDSN(*postgresDSN),
		MaxConns:        resolveInt(*postgresMaxConns, "COURSECAST_POSTGRES_MAX_CONNS"),
		MinConns:        resolveInt(*postgresMinConns, "COURSECAST_POSTGRES_MIN_CONNS"),
		MaxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "COURSECAST_POSTGRES_MAX_CONN_LIFETIME", 0),
		MaxConnIdle:     resolveDuration(*postgresMaxConnIdle, "COURSECAST_POSTGRES_MAX_CONN_IDLE", 0),
		ConnectTimeout:  resolveDuration(*postgresConnectTimeout, "COURSECAST_POSTGRES_CONNECT_TIMEOUT", 0),
		AppName:         firstNonEmpty(*postgresAppName, os.Getenv("COURSECAST_POSTGRES_APP_NAME")),
		Mode:            serverMode,
	})
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenManager(
		firstNonEmpty(*tokenSecret, os.Getenv("COURSECAST_TOKEN_SECRET")),
		resolveDuration(*tokenTTL, "COURSECAST_TOKEN_TTL", 0),
	)
	if err != nil {
		logger.Error("failed to configure token manager", "error", err)
		os.Exit(1)
	}

	mediaCfg := media.Config{
		BaseURL:         firstNonEmpty(*mediaBaseURL, os.Getenv("COURSECAST_MEDIA_BASE_URL")),
		TokenID:         firstNonEmpty(*mediaTokenID, os.Getenv("COURSECAST_MEDIA_TOKEN_ID")),
		TokenSecret:     firstNonEmpty(*mediaTokenSecret, os.Getenv("COURSECAST_MEDIA_TOKEN_SECRET")),
		PollInterval:    resolveDuration(*mediaPollInterval, "COURSECAST_MEDIA_POLL_INTERVAL", 0),
		MaxPollAttempts: resolveInt(*mediaMaxPolls, "COURSECAST_MEDIA_MAX_POLLS"),
		PlaybackBaseURL: firstNonEmpty(*playbackBaseURL, os.Getenv("COURSECAST_PLAYBACK_BASE_URL")),
		StreamBaseURL:   firstNonEmpty(*streamBaseURL, os.Getenv("COURSECAST_STREAM_BASE_URL")),
		Logger:          logging.WithComponent(logger, "media"),
	}
	signingKey := firstNonEmpty(*playbackSigningKey, os.Getenv("COURSECAST_PLAYBACK_SIGNING_KEY"))
	if signingKey != "" {
		signer, err := media.NewRSASigner(signingKey, firstNonEmpty(*playbackKeyID, os.Getenv("COURSECAST_PLAYBACK_KEY_ID")))
		if err != nil {
			logger.Error("failed to configure playback signer", "error", err)
			os.Exit(1)
		}
		mediaCfg.Signer = signer
	} else {
		logger.Warn("no playback signing key configured, premium lecture uploads will fail")
	}
	mediaClient, err := media.NewClient(mediaCfg)
	if err != nil {
		logger.Error("failed to configure media client", "error", err)
		os.Exit(1)
	}

	workflow := ingestion.NewWorkflow(store, mediaClient, logging.WithComponent(logger, "ingestion"))
	batch := ingestion.NewCoordinator(workflow,
		resolveInt(*batchMaxItems, "COURSECAST_BATCH_MAX_ITEMS"),
		logging.WithComponent(logger, "batch"))

	handler := api.NewHandler(store, tokens, workflow, batch, logging.WithComponent(logger, "api"))

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "COURSECAST_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "COURSECAST_RATE_GLOBAL_BURST"),
		RegisterLimit: resolveInt(*registerLimit, "COURSECAST_RATE_REGISTER_LIMIT"),
		LoginLimit:    resolveInt(*loginLimit, "COURSECAST_RATE_LOGIN_LIMIT"),
		StudentLimit:  resolveInt(*studentLimit, "COURSECAST_RATE_STUDENT_LIMIT"),
		Window:        resolveDuration(*rateWindow, "COURSECAST_RATE_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("COURSECAST_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("COURSECAST_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*redisTimeout, "COURSECAST_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	tlsCfg := server.TLSConfig{
		CertFile: firstNonEmpty(*tlsCert, os.Getenv("COURSECAST_TLS_CERT")),
		KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("COURSECAST_TLS_KEY")),
	}

	srv, err := server.New(handler, server.Config{
		Addr:      listenAddr,
		TLS:       tlsCfg,
		RateLimit: rateCfg,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Coursecast API listening", "addr", listenAddr, "mode", serverMode)
		if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
			logger.Info("TLS enabled", "cert_file", tlsCfg.CertFile)
		}
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("server stopped")
}

type storeSettings struct {
	Driver          string
	DSN             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdle     time.Duration
	ConnectTimeout  time.Duration
	AppName         string
	Mode            string
}

func openStore(ctx context.Context, cfg storeSettings) (storage.Repository, error) {
	driver, err := resolveStorageDriver(cfg.Driver, cfg.DSN, cfg.Mode)
	if err != nil {
		return nil, err
	}
	switch driver {
	case "memory":
		return storage.NewMemoryRepository(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("postgres storage selected without DSN")
		}
		var opts []storage.PostgresOption
		if cfg.MaxConns > 0 || cfg.MinConns > 0 {
			opts = append(opts, storage.WithPoolLimits(int32(cfg.MaxConns), int32(cfg.MinConns)))
		}
		if cfg.MaxConnLifetime > 0 || cfg.MaxConnIdle > 0 {
			opts = append(opts, storage.WithPoolDurations(cfg.MaxConnLifetime, cfg.MaxConnIdle))
		}
		if cfg.ConnectTimeout > 0 {
			opts = append(opts, storage.WithConnectTimeout(cfg.ConnectTimeout))
		}
		if cfg.AppName != "" {
			opts = append(opts, storage.WithApplicationName(cfg.AppName))
		}
		return storage.NewPostgresRepository(ctx, cfg.DSN, opts...)
	default:
		return nil, errors.New("unsupported storage driver " + strconv.Quote(driver))
	}
}

func resolveStorageDriver(flagValue, postgresDSN, mode string) (string, error) {
	driver := strings.ToLower(strings.TrimSpace(flagValue))
	if driver == "" {
		if strings.TrimSpace(postgresDSN) != "" {
			driver = "postgres"
		} else {
			driver = "memory"
		}
	}
	if mode == "production" && driver != "postgres" {
		return "", errors.New("production mode requires the postgres datastore driver")
	}
	return driver, nil
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("COURSECAST_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
