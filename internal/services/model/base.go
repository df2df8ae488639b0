package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	xhttp "PriceAgent/pkg/http"
	"PriceAgent/pkg/retry"
)

// HTTPServiceBase centralizes client construction and JSON POST handling for
// model-server clients.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	policy  *retry.Policy
}

// NewHTTPServiceBase builds a base for baseURL. Transient failures (timeouts,
// transport errors and 5xx/429 statuses) are retried by policy.
func NewHTTPServiceBase(baseURL string, client *xhttp.Client, policy *retry.Policy) *HTTPServiceBase {
	if client == nil {
		client = xhttp.NewClient()
	}
	if policy == nil {
		policy = retry.New(retry.WithMaxAttempts(1))
	}
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		policy:  policy,
	}
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.baseURL == "" {
		return fmt.Errorf("model server url not configured")
	}
	err := b.policy.Do(ctx, func(ctx context.Context, _ int) error {
		err := b.client.PostJSON(ctx, b.baseURL+path, payload, dest)
		if err != nil && !transient(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

func transient(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	var de *xhttp.DecodeError
	return !errors.As(err, &de)
}
