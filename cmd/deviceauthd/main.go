package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wrale/oauth2-device-authz/internal/clients"
	"github.com/wrale/oauth2-device-authz/internal/csrf"
	"github.com/wrale/oauth2-device-authz/internal/deviceflow"
	oauthx "github.com/wrale/oauth2-device-authz/internal/oauth"
	"github.com/wrale/oauth2-device-authz/internal/ticket"
)

// Version is set by the build process
var Version = "dev"

func main() {
	log := logrus.New()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	configureLogger(log, cfg)
	log.WithField("version", Version).Info("starting deviceauthd")

	store, csrfStore, closeStores, err := openStores(cfg)
	if err != nil {
		log.WithError(err).Fatal("opening stores")
	}
	defer closeStores()

	flow := deviceflow.New(store, cfg.BaseURL,
		deviceflow.WithCodeLifetime(cfg.CodeLifetime),
		deviceflow.WithPollInterval(cfg.PollInterval),
		deviceflow.WithUserCodeLength(cfg.UserCodeLength),
		deviceflow.WithMaxGenerationAttempts(cfg.MaxGenerationAttempts),
		deviceflow.WithAuthorizedRetention(cfg.AuthorizedRetention),
		deviceflow.WithCleanupBatchSize(cfg.CleanupBatchSize),
		deviceflow.WithLogger(log),
	)

	issuer, err := oauthx.NewHTTPIssuer(oauthx.HTTPIssuerConfig{
		BaseURL: cfg.IssuerURL,
		Secret:  cfg.IssuerSecret,
	})
	if err != nil {
		log.WithError(err).Fatal("configuring token issuer")
	}

	identity, err := oauthx.NewHTTPIdentityProvider(oauthx.HTTPIdentityProviderConfig{
		UserinfoURL: cfg.IdPUserinfoURL,
	})
	if err != nil {
		log.WithError(err).Fatal("configuring identity provider")
	}

	srv, err := newServer(cfg, log, serverDeps{
		flow:     flow,
		registry: clients.NewRegistry(cfg.Clients),
		csrf:     csrf.NewManager(csrfStore, []byte(cfg.CSRFSecret), cfg.CSRFTokenExpiry),
		tickets:  ticket.NewManager([]byte(cfg.CSRFSecret), cfg.TicketLifetime),
		issuer:   issuer,
		identity: identity,
	})
	if err != nil {
		log.WithError(err).Fatal("creating server")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	if cfg.CleanupInterval > 0 {
		go runJanitor(janitorCtx, flow, cfg.CleanupInterval, log)
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.WithError(err).Fatal("server failed")

	case sig := <-shutdown:
		log.WithField("signal", sig.String()).Info("starting shutdown")
		stopJanitor()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.WithError(err).Error("shutting down server")
			if err := httpServer.Close(); err != nil {
				log.WithError(err).Error("closing server")
			}
		}
	}
}

func configureLogger(log *logrus.Logger, cfg Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}

// openStores builds the device authorization store and the CSRF store for
// the configured backend. With Redis both share the client; with Postgres
// the CSRF tokens live in process memory.
func openStores(cfg Config) (deviceflow.Store, csrf.Store, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}

		closer := func() {
			if err := client.Close(); err != nil {
				logrus.WithError(err).Error("closing redis connection")
			}
		}
		return deviceflow.NewRedisStore(client, cfg.AuthorizedRetention), csrf.NewRedisStore(client), closer, nil

	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}

		store := deviceflow.NewPostgresStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("migrating postgres schema: %w", err)
		}

		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				if err := sqlDB.Close(); err != nil {
					logrus.WithError(err).Error("closing postgres connection")
				}
			}
		}
		return store, csrf.NewMemoryStore(), closer, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

// runJanitor invokes cleanup on a fixed cadence until ctx is cancelled. The
// flow owns no schedule of its own, and the pass is safe to run concurrently
// with live traffic and with other instances' janitors.
func runJanitor(ctx context.Context, flow *deviceflow.Flow, interval time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := flow.Cleanup(ctx); err != nil {
				log.WithError(err).Error("cleanup pass failed")
			}
		}
	}
}
