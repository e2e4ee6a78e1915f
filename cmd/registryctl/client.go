package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiPrefix = "/api/registry/v1"

type registryClient struct {
	baseURL string
	http    *http.Client
}

func newClient() *registryClient {
	return &registryClient{
		baseURL: serverURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// rawJSON passes pre-encoded JSON through postJSON/patchJSON untouched.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }

// apiError mirrors the server's error body.
type apiError struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Field     string   `json:"field"`
	CyclePath []string `json:"cycle_path"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	if len(e.CyclePath) > 0 {
		msg += fmt.Sprintf(" (cycle: %v)", e.CyclePath)
	}
	return msg
}

func (c *registryClient) do(method, path string, body io.Reader, v any) error {
	req, err := http.NewRequest(method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userName != "" {
		req.Header.Set("X-User", userName)
	}
	if userRoles != "" {
		req.Header.Set("X-Roles", userRoles)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code != "" {
			return &apiErr
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}

	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *registryClient) getJSON(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

func (c *registryClient) postJSON(path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(http.MethodPost, path, reader, v)
}

func (c *registryClient) patchJSON(path string, body any, v any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return c.do(http.MethodPatch, path, bytes.NewReader(data), v)
}

func (c *registryClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}
