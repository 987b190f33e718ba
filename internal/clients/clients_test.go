package clients

import (
	"errors"
	"testing"
)

func TestAuthenticate(t *testing.T) {
	registry := NewRegistry(map[string]string{
		"tv-app": "",
		"cli":    "s3cret",
	})

	tests := []struct {
		name         string
		clientID     string
		clientSecret string
		wantErr      error
	}{
		{
			name:     "public client without secret",
			clientID: "tv-app",
		},
		{
			name:         "public client must not present a secret",
			clientID:     "tv-app",
			clientSecret: "anything",
			wantErr:      ErrBadCredentials,
		},
		{
			name:         "confidential client with secret",
			clientID:     "cli",
			clientSecret: "s3cret",
		},
		{
			name:         "confidential client with wrong secret",
			clientID:     "cli",
			clientSecret: "wrong",
			wantErr:      ErrBadCredentials,
		},
		{
			name:     "confidential client without secret",
			clientID: "cli",
			wantErr:  ErrBadCredentials,
		},
		{
			name:         "unknown client",
			clientID:     "nobody",
			clientSecret: "s3cret",
			wantErr:      ErrUnknownClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := registry.Authenticate(tt.clientID, tt.clientSecret)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if client.ID != tt.clientID {
				t.Errorf("client.ID = %q, want %q", client.ID, tt.clientID)
			}
		})
	}
}

func TestPublic(t *testing.T) {
	if !(Client{ID: "a"}).Public() {
		t.Error("client without secret should be public")
	}
	if (Client{ID: "a", Secret: "s"}).Public() {
		t.Error("client with secret should not be public")
	}
}
