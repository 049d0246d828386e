package main

import (
	"context"
	"fmt"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/remote/httpstore"
	"github.com/openmined/docsync/internal/remote/memstore"
	"github.com/openmined/docsync/internal/remote/s3store"
)

// newStore builds the adapter for the configured backend.
func newStore(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	switch cfg.Backend {
	case config.BackendHTTP:
		store, err := httpstore.New(httpstore.Config{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
		})
		if err != nil {
			return nil, &config.Error{Key: "endpoint", Reason: "cannot build http client", Err: err}
		}
		return store, nil
	case config.BackendS3:
		store, err := s3store.New(ctx, s3store.Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, &config.Error{Key: "backend", Reason: "cannot build s3 client", Err: err}
		}
		return store, nil
	case config.BackendMemory:
		return memstore.New(), nil
	default:
		return nil, &config.Error{Key: "backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}
