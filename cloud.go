package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Auth token test status texts, shown verbatim in the settings panel
const (
	AuthTextEmptyToken = "Please enter a token."
	AuthTextValid      = "All is tickety boo! Your token is valid."
	AuthTextInvalid    = "Whoopsie. That token is invalid."
	AuthTextUnknown    = "Oh no! An unknown error occurred."
	AuthTextNoNetwork  = "Error. Please check the server's internet connection"
)

// CloudClient handles communication with the cloud monitoring service
type CloudClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCloudClient creates a new cloud client
func NewCloudClient(baseURL string, timeout int) *CloudClient {
	if timeout <= 0 {
		timeout = CloudTimeout
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &CloudClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// addAuthHeader adds the token the way the cloud API expects it (no scheme prefix)
func (c *CloudClient) addAuthHeader(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", token)
	}
}

// Ping calls the printer ping endpoint and returns the HTTP status code
func (c *CloudClient) Ping(ctx context.Context, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+CloudPingPath, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create ping request: %w", err)
	}
	c.addAuthHeader(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to ping cloud service: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}

// TestAuthToken reports whether a token is accepted and the message to show for it
func (c *CloudClient) TestAuthToken(ctx context.Context, token string) (bool, string) {
	if token == "" {
		return false, AuthTextEmptyToken
	}

	status, err := c.Ping(ctx, token)
	if err != nil {
		log.Printf("[Cloud] Testing authorization token failed, URL: %s: %v", c.baseURL+CloudPingPath, err)
		return false, AuthTextNoNetwork
	}

	switch status {
	case http.StatusOK:
		return true, AuthTextValid
	case http.StatusUnauthorized:
		return false, AuthTextInvalid
	default:
		log.Printf("[Cloud] Unexpected status %d testing authorization token", status)
		return false, AuthTextUnknown
	}
}

// TestConnection tests the connection to the cloud service without a token
func (c *CloudClient) TestConnection(ctx context.Context) error {
	_, err := c.Ping(ctx, "")
	return err
}
