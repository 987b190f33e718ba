// Package clients implements the client-authentication boundary for the
// device authorization and token endpoints. A static, config-fed registry is
// sufficient here; dynamic client registration is out of scope.
package clients

import (
	"crypto/subtle"
	"errors"
)

var (
	// ErrUnknownClient indicates the client_id is not registered
	ErrUnknownClient = errors.New("unknown client")

	// ErrBadCredentials indicates the presented secret does not match
	ErrBadCredentials = errors.New("invalid client credentials")
)

// Client is a registered OAuth client. A client with an empty Secret is
// public and authenticates by identifier alone, per RFC 8628 section 3.1.
type Client struct {
	ID     string
	Secret string
}

// Public reports whether the client authenticates without a secret
func (c Client) Public() bool { return c.Secret == "" }

// Registry resolves client credentials to registered clients
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds a registry from an id -> secret map
func NewRegistry(credentials map[string]string) *Registry {
	clients := make(map[string]Client, len(credentials))
	for id, secret := range credentials {
		clients[id] = Client{ID: id, Secret: secret}
	}
	return &Registry{clients: clients}
}

// Authenticate resolves the presented credentials to a client. Secret
// comparison is constant time so the registry leaks nothing about which
// part of the credentials was wrong.
func (r *Registry) Authenticate(clientID, clientSecret string) (Client, error) {
	client, ok := r.clients[clientID]
	if !ok {
		return Client{}, ErrUnknownClient
	}

	if client.Public() {
		if clientSecret != "" {
			return Client{}, ErrBadCredentials
		}
		return client, nil
	}

	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(clientSecret)) != 1 {
		return Client{}, ErrBadCredentials
	}
	return client, nil
}
