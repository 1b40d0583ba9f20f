// Package remote provides the client for the remote system of record.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	apperrors "github.com/tableside/pos/internal/errors"
	"github.com/tableside/pos/internal/logging"
)

const (
	defaultTimeout     = 15 * time.Second
	maxAttempts        = 3
	maxBackoffInterval = 2 * time.Second
)

// RESTClient talks to a PostgREST-style CRUD API plus its object storage
// endpoint. Equality predicates render as col=eq.v, membership as
// col=in.(a,b).
type RESTClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewRESTClient creates a client for the given service URL and API key.
func NewRESTClient(baseURL, apiKey string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Insert inserts one row or a slice of rows into a collection.
func (c *RESTClient) Insert(ctx context.Context, collection string, rows interface{}) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode rows", err)
	}
	_, err = c.do(ctx, http.MethodPost, c.restURL(collection, nil), body, "return=minimal")
	return err
}

// Update patches all rows matching filter.
func (c *RESTClient) Update(ctx context.Context, collection string, filter Filter, patch interface{}) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode patch", err)
	}
	_, err = c.do(ctx, http.MethodPatch, c.restURL(collection, filter), body, "return=minimal")
	return err
}

// Delete removes all rows matching filter.
func (c *RESTClient) Delete(ctx context.Context, collection string, filter Filter) error {
	_, err := c.do(ctx, http.MethodDelete, c.restURL(collection, filter), nil, "return=minimal")
	return err
}

// Select reads all rows matching filter into dest (a pointer to slice).
func (c *RESTClient) Select(ctx context.Context, collection string, filter Filter, dest interface{}) error {
	data, err := c.do(ctx, http.MethodGet, c.restURL(collection, filter), nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return apperrors.Wrap(apperrors.ErrRemote, "failed to decode response", err)
	}
	return nil
}

// Upload stores an object and returns its public URL. Transient
// failures are retried the same way CRUD calls are.
func (c *RESTClient) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, path)

	_, err := c.retry(ctx, http.MethodPost, func() ([]byte, bool, error) {
		return c.uploadOnce(ctx, uploadURL, data, contentType)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, bucket, path), nil
}

// uploadOnce issues a single storage request. The second return reports
// whether the failure is worth retrying.
func (c *RESTClient) uploadOnce(ctx context.Context, uploadURL string, data []byte, contentType string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrUploadFailed, "failed to build upload request", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, apperrors.Wrap(apperrors.ErrRemoteUnavailable, "upload request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, apperrors.New(apperrors.ErrRemoteUnavailable,
			fmt.Sprintf("upload returned %d", resp.StatusCode))
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, apperrors.New(apperrors.ErrUploadFailed,
			fmt.Sprintf("upload returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
}

// Ping checks reachability of the REST endpoint with a single request,
// no retries. Used as the connectivity probe.
func (c *RESTClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemote, "failed to build probe request", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteUnavailable, "probe request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return apperrors.New(apperrors.ErrRemoteUnavailable,
			fmt.Sprintf("probe returned %d", resp.StatusCode))
	}
	return nil
}

// restURL builds the collection endpoint with filter query parameters.
func (c *RESTClient) restURL(collection string, filter Filter) string {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, collection)
	if len(filter) == 0 {
		return endpoint
	}

	// Deterministic parameter order keeps request logs and tests stable.
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := url.Values{}
	for _, k := range keys {
		switch v := filter[k].(type) {
		case In:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprintf("%v", item)
			}
			params.Set(k, fmt.Sprintf("in.(%s)", strings.Join(parts, ",")))
		default:
			params.Set(k, fmt.Sprintf("eq.%v", v))
		}
	}
	return endpoint + "?" + params.Encode()
}

// setAuth attaches the service credentials.
func (c *RESTClient) setAuth(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// do issues a request, retrying transient failures (network errors, 429,
// 5xx) with exponential backoff up to maxAttempts.
func (c *RESTClient) do(ctx context.Context, method, rawURL string, body []byte, prefer string) ([]byte, error) {
	return c.retry(ctx, method, func() ([]byte, bool, error) {
		return c.doOnce(ctx, method, rawURL, body, prefer)
	})
}

// retry runs fn with exponential backoff up to maxAttempts, as long as
// fn reports the failure as retryable.
func (c *RESTClient) retry(ctx context.Context, method string, fn func() ([]byte, bool, error)) ([]byte, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 100 * time.Millisecond
	backoffCfg.MaxInterval = maxBackoffInterval

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, retryable, err := fn()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable || attempt == maxAttempts {
			return nil, err
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxBackoffInterval
		}
		logging.Debug("retrying remote call",
			map[string]interface{}{"method": method, "attempt": attempt, "sleep_ms": sleep.Milliseconds()})

		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.ErrRemoteUnavailable, "remote call cancelled", ctx.Err())
		case <-time.After(sleep):
		}
	}
	return nil, lastErr
}

// doOnce issues a single HTTP request. The second return reports whether
// the failure is worth retrying.
func (c *RESTClient) doOnce(ctx context.Context, method, rawURL string, body []byte, prefer string) ([]byte, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrRemote, "failed to build request", err)
	}
	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, apperrors.Wrap(apperrors.ErrRemoteUnavailable, "remote request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, apperrors.Wrap(apperrors.ErrRemote, "failed to read response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return data, false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, apperrors.New(apperrors.ErrRemoteAuthFailed,
			fmt.Sprintf("remote returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, apperrors.New(apperrors.ErrRemoteUnavailable,
			fmt.Sprintf("remote returned %d", resp.StatusCode))
	default:
		return nil, false, apperrors.New(apperrors.ErrRemote,
			fmt.Sprintf("remote returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
}
