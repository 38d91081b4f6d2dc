package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/drsolutions/drsplan/pkg/models"
)

// apiClient calls the drsplan HTTP API
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the reply shape of every endpoint
type envelope struct {
	Success      string          `json:"success"`
	Data         json.RawMessage `json:"data"`
	Error        string          `json:"error"`
	ExecutionArn string          `json:"executionArn"`
}

// do sends a request and returns the raw reply body. Non-200 replies become errors
// carrying the server's message.
func (c *apiClient) do(method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var reply envelope
		if json.Unmarshal(data, &reply) == nil && reply.Error != "" {
			if reply.ExecutionArn != "" {
				return nil, fmt.Errorf("%s (%d): %s", reply.Error, resp.StatusCode, reply.ExecutionArn)
			}
			return nil, fmt.Errorf("%s (%d)", reply.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// data sends a request and decodes the reply's data field into out
func (c *apiClient) data(method, path string, body, out interface{}) error {
	raw, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	var reply envelope
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out == nil || len(reply.Data) == 0 {
		return nil
	}
	return json.Unmarshal(reply.Data, out)
}

func (c *apiClient) listApplications() ([]models.Application, error) {
	var apps []models.Application
	if err := c.data(http.MethodGet, "/applications", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func resultsPath(appID, planID string) string {
	q := url.Values{}
	q.Set("appId", appID)
	q.Set("planId", planID)
	return "/results?" + q.Encode()
}

func resultPath(endpoint, key, executionID string) string {
	q := url.Values{}
	q.Set("AppId_PlanId", key)
	q.Set("ExecutionId", executionID)
	return endpoint + "?" + q.Encode()
}
