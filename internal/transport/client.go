package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// TokenSource supplies the opaque access token attached to every request.
// The session credential store implements it.
type TokenSource interface {
	AccessToken() string
}

// Client executes GraphQL queries and mutations and the binary REST
// fetchers against the chat backend. Point requests carry no timeout; the
// caller's context bounds them if needed.
type Client struct {
	baseURL string
	hc      *http.Client
	tokens  TokenSource
	logger  *zap.Logger
}

// NewClient creates a client rooted at baseURL (scheme://host).
func NewClient(baseURL string, tokens TokenSource, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{},
		tokens:  tokens,
		logger:  logger,
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// execute posts one GraphQL operation and decodes its data payload into
// out. Failures are returned as the typed taxonomy, never raw.
func (c *Client) execute(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query-or-mutation", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &UnauthorizedError{}
	case resp.StatusCode >= 500:
		return &ServerError{Message: resp.Status}
	}

	var env gqlEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &ConnectionError{Err: err}
	}
	for _, e := range env.Errors {
		switch e.Message {
		case "UNAUTHORIZED":
			return &UnauthorizedError{}
		default:
			return &ServerError{Message: e.Message}
		}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
