package main

import (
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-device-authz/cmd/deviceauthd/handlers/authorization"
	"github.com/wrale/oauth2-device-authz/cmd/deviceauthd/handlers/health"
	"github.com/wrale/oauth2-device-authz/cmd/deviceauthd/handlers/token"
	"github.com/wrale/oauth2-device-authz/cmd/deviceauthd/handlers/verify"
	"github.com/wrale/oauth2-device-authz/internal/clients"
	"github.com/wrale/oauth2-device-authz/internal/csrf"
	"github.com/wrale/oauth2-device-authz/internal/deviceflow"
	oauthx "github.com/wrale/oauth2-device-authz/internal/oauth"
	"github.com/wrale/oauth2-device-authz/internal/templates"
	"github.com/wrale/oauth2-device-authz/internal/ticket"
)

type server struct {
	cfg    Config
	router *chi.Mux
	log    logrus.FieldLogger
}

type serverDeps struct {
	flow     *deviceflow.Flow
	registry *clients.Registry
	csrf     *csrf.Manager
	tickets  *ticket.Manager
	issuer   oauthx.TokenIssuer
	identity oauthx.IdentityProvider
}

func newServer(cfg Config, log logrus.FieldLogger, deps serverDeps) (*server, error) {
	tmpls, err := templates.Load()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	// Client used to log users in during verification
	idpOAuth := &oauth2.Config{
		ClientID:     cfg.IdPClientID,
		ClientSecret: cfg.IdPClientSecret,
		RedirectURL:  cfg.BaseURL + "/device/complete",
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.IdPAuthURL,
			TokenURL: cfg.IdPTokenURL,
		},
	}

	srv := &server{
		cfg:    cfg,
		router: chi.NewRouter(),
		log:    log,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(requestLogger(log))
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.Timeout(30 * time.Second))

	authzHandler := authorization.New(authorization.Config{
		Flow:    deps.flow,
		Clients: deps.registry,
		Logger:  log,
	})
	tokenHandler := token.New(token.Config{
		Flow:    deps.flow,
		Clients: deps.registry,
		Issuer:  deps.issuer,
		Logger:  log,
	})
	verifyHandler := verify.New(verify.Config{
		Flow:      deps.flow,
		Templates: tmpls,
		CSRF:      deps.csrf,
		Tickets:   deps.tickets,
		OAuth:     idpOAuth,
		Identity:  deps.identity,
		Logger:    log,
	})
	healthHandler := health.New(map[string]health.Checker{
		"store":  deps.flow,
		"csrf":   deps.csrf,
		"issuer": deps.issuer,
	})

	srv.router.Get("/health", healthHandler.ServeHTTP)

	srv.router.Post("/oauth/device/authorization", authzHandler.ServeHTTP)
	srv.router.Post("/oauth/token", tokenHandler.ServeHTTP)

	srv.router.Get("/device", verifyHandler.HandleForm)
	srv.router.Post("/device/verify", verifyHandler.HandleSubmit)
	srv.router.Get("/device/complete", verifyHandler.HandleComplete)
	srv.router.Post("/device/consent", verifyHandler.HandleConsent)

	return srv, nil
}
