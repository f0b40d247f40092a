package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4096

// ErrBrokerResponse is wrapped by fetch errors caused by a non-2xx status.
var ErrBrokerResponse = errors.New("broker error")

// FetchErrorKind classifies why the client list could not be fetched
type FetchErrorKind string

const (
	// FetchNetwork is a transport failure (dial, TLS, reset).
	FetchNetwork FetchErrorKind = "network"
	// FetchTimeout means the request exceeded the configured timeout.
	FetchTimeout FetchErrorKind = "timeout"
	// FetchStatus is a non-2xx HTTP response.
	FetchStatus FetchErrorKind = "status"
	// FetchDecode is a response body that is not valid JSON.
	FetchDecode FetchErrorKind = "decode"
)

// FetchError is returned by ListClients for every failed fetch
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	// Body holds the (truncated) response body for status errors.
	Body string
	Err  error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchStatus:
		return fmt.Sprintf("fetch %s: %v (status %d): %s", e.URL, e.Err, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClientRecord is one entry of the broker's live client list
type ClientRecord struct {
	ClientID  string `json:"clientid"`
	IPAddress string `json:"ip_address"` //nolint:tagliatelle // EMQX API uses snake_case
}

// clientsResponse is the envelope returned by /api/v4/clients
type clientsResponse struct {
	Data []ClientRecord `json:"data"`
}

// ClientInterface defines the methods for reading the broker's client directory
type ClientInterface interface {
	// ListClients returns the currently connected clients
	ListClients(ctx context.Context) ([]ClientRecord, error)
}

// client implements ClientInterface over the EMQX HTTP API
type client struct {
	log        logrus.FieldLogger
	httpClient *http.Client
	url        string
	authHeader string
	timeout    time.Duration
}

// NewClient creates a new broker client
func NewClient(logger logrus.FieldLogger, cfg *Config) (ClientInterface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &client{
		log:        logger.WithField("component", "broker"),
		httpClient: &http.Client{},
		url:        cfg.ClientsURL(),
		authHeader: BasicAuth(cfg.Username, cfg.Password),
		timeout:    cfg.Timeout,
	}, nil
}

// BasicAuth builds the value of an HTTP Basic Authorization header
func BasicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func (c *client) ListClients(ctx context.Context) ([]ClientRecord, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: c.url, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authHeader)

	c.log.WithFields(logrus.Fields{
		"url":     c.url,
		"timeout": c.timeout,
	}).Debug("Requesting client list")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransport(err), URL: c.url, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransport(err), URL: c.url, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}

		return nil, &FetchError{
			Kind:       FetchStatus,
			URL:        c.url,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
			Err:        ErrBrokerResponse,
		}
	}

	var result clientsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &FetchError{Kind: FetchDecode, URL: c.url, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	c.log.WithField("clients", len(result.Data)).Info("Fetched client list")

	if result.Data == nil {
		return []ClientRecord{}, nil
	}

	return result.Data, nil
}

func classifyTransport(err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchTimeout
	}

	return FetchNetwork
}

// Verify interface compliance at compile time
var _ ClientInterface = (*client)(nil)
