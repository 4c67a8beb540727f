// Listener example binary.
//
// Wires a listener.Container against a real SQS broker and exposes
// health/metrics/status endpoints - the reference deployment shape for
// this library, built the way the teacher wires its standalone
// binaries (chi router, zerolog-via-slog-style startup logging,
// graceful shutdown phases).
//
//	@title			SQS Listener status API
//	@version		1.0
//	@description	Health, readiness, and status endpoints for a running listener container.
//
//	@license.name	Proprietary
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/broker/sqs"
	"go.sqslistener.dev/internal/common/health"
	"go.sqslistener.dev/internal/common/lifecycle"
	"go.sqslistener.dev/internal/common/logging"
	"go.sqslistener.dev/internal/config"
	"go.sqslistener.dev/internal/listener"
	"go.sqslistener.dev/internal/msgcontext"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	logger := logging.Default("listener")
	logger.Info().Str("version", version).Str("buildTime", buildTime).Msg("starting sqslistener example binary")

	profilePath := flag.String("profile-file", "", "path to a TOML queue-profile file (optional)")
	profileName := flag.String("profile", "default", "profile name to load from profile-file")
	queueName := flag.String("queue", os.Getenv("SQS_QUEUE_NAME"), "queue name or URL (overridden by -profile-file)")
	region := flag.String("region", os.Getenv("AWS_REGION"), "AWS region")
	endpoint := flag.String("endpoint", os.Getenv("SQS_ENDPOINT"), "custom SQS endpoint (e.g. LocalStack)")
	httpPort := flag.Int("http-port", 8080, "health/metrics/status HTTP port")
	secretID := flag.String("credentials-secret-id", os.Getenv("SQS_CREDENTIALS_SECRET_ID"), "Secrets Manager secret id holding SQS credentials (optional)")
	vaultPath := flag.String("credentials-vault-path", os.Getenv("SQS_CREDENTIALS_VAULT_PATH"), "Vault AWS secrets engine path (optional, ignored if -credentials-secret-id is set)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokerCfg := sqs.Config{
		Region:         *region,
		CustomEndpoint: *endpoint,
	}
	brokerCfg = resolveBrokerCredentials(ctx, brokerCfg, *secretID, *vaultPath, logger.With("component", "credentials"))

	client, err := sqs.New(ctx, brokerCfg, logger.With("component", "broker"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to build SQS client")
		os.Exit(1)
	}

	cfg := listener.DefaultConfig()
	cfg.QueueName = *queueName

	if *profilePath != "" {
		file, err := config.LoadFile(*profilePath)
		if err != nil {
			logger.Error().Err(err).Str("path", *profilePath).Msg("failed to load queue profile file")
			os.Exit(1)
		}
		profile, err := file.Profile(*profileName)
		if err != nil {
			logger.Error().Err(err).Msg("failed to resolve queue profile")
			os.Exit(1)
		}
		if err := profile.Apply(&cfg); err != nil {
			logger.Error().Err(err).Msg("failed to apply queue profile")
			os.Exit(1)
		}
	}

	container := listener.New(client, logger.With("component", "listener"))
	healthChecker := health.NewChecker(container.IsRunning)
	cfg.OnPollResult = healthChecker.RecordPoll

	if err := container.Configure(func(c *listener.Config) { *c = cfg }); err != nil {
		logger.Error().Err(err).Msg("failed to configure listener container")
		os.Exit(1)
	}

	container.SetMessageListener(func(_ context.Context, payload any, mctx *msgcontext.Context) error {
		logger.Info().
			Str("messageId", mctx.MessageID()).
			Int("receiveCount", mctx.ApproximateReceiveCount()).
			Str("payload", fmt.Sprintf("%v", payload)).
			Msg("message received")
		return nil
	})

	if cfg.AutoStartup {
		if err := container.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to start listener container")
			os.Exit(1)
		}
		waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := health.WaitHealthy(waitCtx, container.IsRunning, 100*time.Millisecond); err != nil {
			logger.Warn().Err(err).Msg("listener container did not report running before startup deadline")
		}
		waitCancel()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/q/health", healthChecker.HandleHealth)
	r.Get("/q/health/live", healthChecker.HandleLive)
	r.Get("/q/health/ready", healthChecker.HandleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	r.Get("/listener/status", statusHandler(container))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *httpPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lc := lifecycle.NewManager()
	lc.RegisterHTTPShutdown("status-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	lc.RegisterQueueShutdown("listener-container", func(context.Context) error {
		container.Stop()
		return nil
	})

	go func() {
		logger.Info().Int("port", *httpPort).Msg("status server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("status server failed")
			lc.Shutdown()
		}
	}()

	if err := lc.Run(); err != nil {
		logger.Error().Err(err).Msg("shutdown did not complete cleanly")
		os.Exit(1)
	}
	logger.Info().Msg("sqslistener example binary stopped")
}

// statusHandler reports the container's lifecycle state - a minimal
// stand-in for a richer admin endpoint (spec §6, "the listener
// container" operations are observable from outside the process).
func statusHandler(c *listener.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Running bool `json:"running"`
		}{Running: c.IsRunning()})
	}
}

// resolveBrokerCredentials refreshes cfg's static credentials from
// Secrets Manager or Vault when one is configured, preferring Secrets
// Manager when both flags are set. Absent both, cfg is returned
// unchanged and the AWS SDK's default provider chain applies.
func resolveBrokerCredentials(ctx context.Context, cfg sqs.Config, secretID, vaultPath string, logger logging.Logger) sqs.Config {
	switch {
	case secretID != "":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load AWS config for Secrets Manager lookup, using default credential chain")
			return cfg
		}
		src := sqs.NewSecretsManagerSource(secretsmanager.NewFromConfig(awsCfg), secretID)
		return sqs.WithCredentialSource(ctx, cfg, src, logger)

	case vaultPath != "":
		vc, err := vaultapi.NewClient(vaultapi.DefaultConfig())
		if err != nil {
			logger.Warn().Err(err).Msg("failed to build Vault client, using default credential chain")
			return cfg
		}
		src := sqs.NewVaultSource(vc, vaultPath)
		return sqs.WithCredentialSource(ctx, cfg, src, logger)

	default:
		return cfg
	}
}

var _ broker.Client = (*sqs.Client)(nil)
