package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subadmin/internal/external"
)

// apiClient speaks the console's JSON envelope over the resilient base client.
type apiClient struct {
	base    *external.BaseClient
	baseURL string
	actor   string
}

func newAPIClient(baseURL, actor string, timeout time.Duration, version string) *apiClient {
	policy := external.DefaultRetryPolicy()
	policy.MaxRetries = 2
	return &apiClient{
		base: external.NewBaseClient(
			&http.Client{Timeout: timeout},
			"consolectl",
			external.DefaultBreakerSettings(),
			policy,
			"consolectl/"+version,
		),
		baseURL: strings.TrimRight(baseURL, "/"),
		actor:   actor,
	}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *struct {
		Total    int `json:"total"`
		TotalAll int `json:"total_all"`
	} `json:"meta,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// apiError is a non-2xx reply from the API.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (c *apiClient) get(ctx context.Context, path string, q url.Values, out any) (*envelope, error) {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) post(ctx context.Context, path string, body, out any) (*envelope, error) {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (*envelope, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return nil, env.apiError(resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decoding data: %w", err)
		}
	}
	return &env, nil
}

// download fetches a raw body such as the audit export. Error replies are
// still JSON envelopes.
func (c *apiClient) download(ctx context.Context, path string, q url.Values) ([]byte, http.Header, error) {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(body, &env)
		return nil, nil, env.apiError(resp.StatusCode)
	}
	return body, resp.Header, nil
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/v1"+path, body)
	if err != nil {
		return nil, err
	}
	if c.actor != "" {
		req.Header.Set("X-Acting-User", c.actor)
	}
	return req, nil
}

func (e *envelope) apiError(status int) *apiError {
	err := &apiError{Status: status, Code: "unknown", Message: http.StatusText(status)}
	if e.Error != nil {
		err.Code, err.Message = e.Error.Code, e.Error.Message
	}
	return err
}
