// Package httpstore talks to a document store over its REST API.
package httpstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/version"
)

const (
	v1Documents = "/v1/stores/{store}/documents"
	v1Document  = "/v1/stores/{store}/documents/{id}"

	MetaIdentity    = "original_identity"
	MetaContentHash = "content_sha256"

	defaultPageSize = 100
)

var (
	ErrNoEndpoint = errors.New("httpstore: endpoint missing")
)

type Config struct {
	Endpoint string // base URL, e.g. https://docs.example.com/api
	APIKey   string // sent as a bearer token when set
	PageSize int
	// Timeout bounds a single HTTP exchange. Zero means no limit.
	Timeout time.Duration
}

// Store is a remote.Store backed by the document REST API.
type Store struct {
	client   *req.Client
	pageSize int
}

var _ remote.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	// retries are owned by the executor, the client makes exactly one attempt
	client := req.C().
		SetBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")).
		SetUserAgent(version.UserAgent()).
		SetCommonRetryCount(0).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		client.SetCommonBearerAuthToken(cfg.APIKey)
	}

	return &Store{client: client, pageSize: cfg.PageSize}, nil
}

func (s *Store) ListFiles(ctx context.Context, store string) ([]remote.RemoteFile, error) {
	if store == "" {
		return nil, remote.Client("list", "", remote.ErrInvalidStore)
	}

	var files []remote.RemoteFile
	pageToken := ""
	for page := 1; ; page++ {
		var out ListResponse
		resp, err := s.client.R().
			SetContext(ctx).
			SetPathParam("store", store).
			SetQueryParam("pageSize", fmt.Sprint(s.pageSize)).
			SetQueryParam("pageToken", pageToken).
			SetSuccessResult(&out).
			Get(v1Documents)
		if err := classify(resp, err, "list", store); err != nil {
			return nil, err
		}

		for i := range out.Documents {
			files = append(files, out.Documents[i].toRemote())
		}
		slog.Debug("list documents", "store", store, "page", page, "count", len(out.Documents))

		if out.NextPageToken == "" {
			break
		}
		pageToken = out.NextPageToken
	}
	return files, nil
}

func (s *Store) UploadFile(ctx context.Context, store string, upload remote.UploadRequest) (*remote.RemoteFile, error) {
	if store == "" {
		return nil, remote.Client("upload", upload.Identity, remote.ErrInvalidStore)
	}

	var doc Document
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("store", store).
		SetFile("file", upload.Path).
		SetFormData(map[string]string{
			"displayName":   upload.DisplayName,
			MetaIdentity:    upload.Identity,
			MetaContentHash: upload.ContentHash,
		}).
		SetSuccessResult(&doc).
		Post(v1Documents)
	if err := classify(resp, err, "upload", upload.Identity); err != nil {
		return nil, err
	}

	// documents are immutable; drop the one this upload supersedes
	if upload.Replaces != nil && upload.Replaces.ID != "" && upload.Replaces.ID != doc.ID {
		if err := s.DeleteFile(ctx, store, *upload.Replaces); err != nil {
			slog.Warn("superseded document not removed", "path", upload.Identity, "id", upload.Replaces.ID, "error", err)
		}
	}

	file := doc.toRemote()
	return &file, nil
}

func (s *Store) DeleteFile(ctx context.Context, store string, file remote.RemoteFile) error {
	if store == "" {
		return remote.Client("delete", file.Identity, remote.ErrInvalidStore)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("store", store).
		SetPathParam("id", file.ID).
		Delete(v1Document)
	if err == nil && resp.StatusCode == http.StatusNotFound {
		slog.Debug("delete document", "id", file.ID, "status", "already gone")
		return nil
	}
	return classify(resp, err, "delete", file.Identity)
}
