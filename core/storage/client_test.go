package storage_test

import (
	"testing"

	"idm-reconciler/core/storage"

	"github.com/stretchr/testify/assert"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name string
		cfg  storage.Config
	}{
		{"Bare endpoint", storage.Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "b"}},
		{"HTTP scheme", storage.Config{Endpoint: "http://localhost:9000", AccessKey: "k", SecretKey: "s"}},
		{"HTTPS scheme", storage.Config{Endpoint: "https://s3.amazonaws.com", AccessKey: "k", SecretKey: "s", Region: "us-east-1"}},
		{"Zero timeout", storage.Config{Endpoint: "localhost:9000", TimeoutSeconds: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := storage.NewClient(tt.cfg)
			assert.NoError(t, err)
			assert.NotNil(t, client)
		})
	}

	t.Run("Invalid endpoint", func(t *testing.T) {
		_, err := storage.NewClient(storage.Config{Endpoint: "bad endpoint with spaces"})
		assert.Error(t, err)
	})
}
