package main

import "time"

// Config holds server configuration loaded from environment variables
type Config struct {
	Port    int    `envconfig:"PORT" default:"8080"`
	BaseURL string `envconfig:"BASE_URL" required:"true"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"` // text | json

	// StoreBackend selects the device authorization store: redis | postgres
	StoreBackend string `envconfig:"STORE_BACKEND" default:"redis"`
	RedisURL     string `envconfig:"REDIS_URL"`
	PostgresDSN  string `envconfig:"POSTGRES_DSN"`

	CodeLifetime          time.Duration `envconfig:"CODE_LIFETIME" default:"15m"`
	PollInterval          time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	UserCodeLength        int           `envconfig:"USER_CODE_LENGTH" default:"8"`
	MaxGenerationAttempts int           `envconfig:"MAX_GENERATION_ATTEMPTS" default:"10"`

	// AuthorizedRetention bounds how long approved records are kept after
	// authorization; CleanupInterval is the janitor cadence (0 disables the
	// in-process janitor for deployments that schedule cleanup externally).
	AuthorizedRetention time.Duration `envconfig:"AUTHORIZED_RETENTION" default:"24h"`
	CleanupInterval     time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1m"`
	CleanupBatchSize    int           `envconfig:"CLEANUP_BATCH_SIZE" default:"500"`

	// Clients maps registered client_id to client_secret; an empty secret
	// marks a public client. Example: CLIENTS="tv-app:,cli:s3cret"
	Clients map[string]string `envconfig:"CLIENTS" required:"true"`

	CSRFSecret      string        `envconfig:"CSRF_SECRET" required:"true"`
	CSRFTokenExpiry time.Duration `envconfig:"CSRF_TOKEN_EXPIRY" default:"1h"`
	TicketLifetime  time.Duration `envconfig:"TICKET_LIFETIME" default:"10m"`

	// Identity provider used to authenticate users in the verify flow
	IdPAuthURL      string `envconfig:"IDP_AUTH_URL" required:"true"`
	IdPTokenURL     string `envconfig:"IDP_TOKEN_URL" required:"true"`
	IdPUserinfoURL  string `envconfig:"IDP_USERINFO_URL" required:"true"`
	IdPClientID     string `envconfig:"IDP_CLIENT_ID" required:"true"`
	IdPClientSecret string `envconfig:"IDP_CLIENT_SECRET"`

	// External token-issuance engine
	IssuerURL    string `envconfig:"ISSUER_URL" required:"true"`
	IssuerSecret string `envconfig:"ISSUER_SECRET" required:"true"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
}
