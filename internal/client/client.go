// Package client calls query handlers registered on a quest board host.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"questboard/internal/models"
	"questboard/internal/pkg/logger"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a query when no timeout is configured.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when the host does not answer within the query timeout.
	ErrTimeout = errors.New("client: query timed out")
	// ErrUnexpectedStatus is returned for non-200 answers from the host.
	ErrUnexpectedStatus = errors.New("client: unexpected status")
)

// Client invokes host query handlers over HTTP.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
	log     *logger.Logger
}

// New creates a Client for the host at baseURL. A non-positive timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{},
		log:     log,
	}
}

// Login authenticates against the host and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var authResponse models.AuthResponse
	err := c.post(ctx, "/api/auth", models.AuthRequest{Username: username, Password: password}, &authResponse)
	if err != nil {
		return err
	}
	c.token = authResponse.Token
	return nil
}

// Invoke sends query to the handler registered under name and returns its result.
// Business failures are reported in the result, not as an error.
func (c *Client) Invoke(ctx context.Context, name string, query models.Query) (models.QueryResult, error) {
	var result models.QueryResult
	if err := c.post(ctx, "/api/query/"+name, query, &result); err != nil {
		return models.QueryResult{}, err
	}
	return result, nil
}

// Purchase asks the host to run a purchase.
func (c *Client) Purchase(ctx context.Context, req models.PurchaseRequest) (models.QueryResult, error) {
	return c.Invoke(ctx, "questboard", models.Query{Type: models.QueryPurchase, Purchase: &req})
}

// GrantRewards asks the host to grant a quest's rewards. Requires a game master login.
func (c *Client) GrantRewards(ctx context.Context, req models.GrantRewardsRequest) (models.QueryResult, error) {
	return c.Invoke(ctx, "questboard", models.Query{Type: models.QueryGrantRewards, GrantRewards: &req})
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if errors.Is(err, context.DeadlineExceeded) {
		c.log.Warn("query timed out", zap.String("path", path), zap.Duration("timeout", c.timeout))
		return fmt.Errorf("%w: %s", ErrTimeout, path)
	}
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, path)
	}
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResponse models.ErrorResponse
		if json.Unmarshal(respBody, &errResponse) == nil && errResponse.Errors != "" {
			return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, errResponse.Errors)
		}
		return fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
