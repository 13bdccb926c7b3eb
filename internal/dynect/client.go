// Package dynect implements the session client for the Dyn metering API.
package dynect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dynwatch/dynwatch/internal/clock"
)

// DefaultBaseURL is the production endpoint of the metering API.
const DefaultBaseURL = "https://api2.dynect.net/REST/"

// Config holds session client configuration.
type Config struct {
	BaseURL            string
	Customer           string
	Username           string
	Password           string
	MaxRetries         int
	RetryDelay         time.Duration
	Timeout            time.Duration
	MaxInFlight        int64
	InsecureSkipVerify bool
}

// DefaultConfig returns default configuration for the given credentials.
func DefaultConfig(customer, username, password string) Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Customer:    customer,
		Username:    username,
		Password:    password,
		MaxRetries:  50,
		RetryDelay:  5 * time.Second,
		Timeout:     30 * time.Second,
		MaxInFlight: 4,
	}
}

// Client speaks the two-call session protocol of the metering API:
// login, fetch report, logout.
type Client struct {
	config Config
	client *http.Client
	clock  clock.Clock
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// NewClient creates a session client. A nil clk falls back to the real clock.
func NewClient(config Config, clk clock.Clock, logger zerolog.Logger) *Client {
	if clk == nil {
		clk = clock.Real{}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 1
	}

	var transport http.RoundTripper
	if config.InsecureSkipVerify {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
			// The redirect-retry protocol owns redirects.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		clock:  clk,
		sem:    semaphore.NewWeighted(config.MaxInFlight),
		logger: logger,
	}
}

// Authenticate logs in and returns the session token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(sessionRequest{
		CustomerName: c.config.Customer,
		UserName:     c.config.Username,
		Password:     c.config.Password,
	})
	if err != nil {
		return "", fmt.Errorf("encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/Session/"), bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransportError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "login", Err: err}
	}

	var session sessionResponse
	if err := json.Unmarshal(respBody, &session); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Reason: "response is not JSON"}
	}
	if session.Data.Token == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Reason: "no session token in response"}
	}
	return session.Data.Token, nil
}

// FetchReport requests the QPS report for window and drives the
// redirect-retry protocol until a final response arrives or the attempt
// budget runs out. Concurrent fetches are bounded by MaxInFlight.
func (c *Client) FetchReport(ctx context.Context, token string, window Window) (*Report, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &TransportError{Op: "report", Err: err}
	}
	defer c.sem.Release(1)

	body, err := json.Marshal(reportRequest{StartTS: window.Start, EndTS: window.End})
	if err != nil {
		return nil, fmt.Errorf("encode report request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/QPSReport/"), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "report", Err: err}
	}
	c.setReportHeaders(req, token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "report", Err: err}
	}

	attempts := 0
	for {
		switch resp.StatusCode {
		case http.StatusOK:
			respBody, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, &TransportError{Op: "report", Err: err}
			}
			return &Report{Body: respBody, Attempts: attempts}, nil

		case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect:
			// The API answers with a redirect while the report is still
			// being generated.
			if attempts >= c.config.MaxRetries {
				resp.Body.Close()
				return nil, &RetryExhaustedError{Attempts: attempts}
			}
			loc, err := resp.Location()
			resp.Body.Close()
			if err != nil {
				return nil, &TransportError{Op: "report", Err: fmt.Errorf("redirect without location: %w", err)}
			}

			attempts++
			c.logger.Debug().
				Int("attempt", attempts).
				Str("location", loc.String()).
				Msg("report pending, following redirect")

			req, err = http.NewRequestWithContext(ctx, http.MethodGet, loc.String(), nil)
			if err != nil {
				return nil, &TransportError{Op: "report", Err: err}
			}
			c.setReportHeaders(req, token)

			resp, err = c.client.Do(req)
			if err != nil {
				return nil, &TransportError{Op: "report", Err: err}
			}

			if err := c.clock.Sleep(ctx, c.config.RetryDelay); err != nil {
				resp.Body.Close()
				return nil, &TransportError{Op: "report", Err: err}
			}

		default:
			code := resp.StatusCode
			resp.Body.Close()
			return nil, &BadResponseError{StatusCode: code}
		}
	}
}

// Terminate releases the session. Callers treat failure as advisory.
func (c *Client) Terminate(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/Session/"), nil)
	if err != nil {
		return &TransportError{Op: "logout", Err: err}
	}
	req.Header.Set("Auth-Token", token)

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: "logout", Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &BadResponseError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) setReportHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Auth-Token", token)
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + path
}
